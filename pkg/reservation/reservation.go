package reservation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/topo"
)

// Reservation is one committed end-to-end path: a globalid, its endpoints,
// and the merged forward/reverse/channel-assignment route.
type Reservation struct {
	GlobalID  string
	Src       topo.PortChannel
	Dst       topo.PortChannel
	Route     *pathfinder.Route
	WrittenDB bool
}

// New builds a fresh, not-yet-persisted Reservation.
func New(globalid string, src, dst topo.PortChannel, route *pathfinder.Route) *Reservation {
	return &Reservation{GlobalID: globalid, Src: src, Dst: dst, Route: route}
}

// jsonEntry/jsonReservation mirror the durable store's wire schema (spec §6
// "Persisted state"): stable port/channel key strings, never live pointers.
type jsonEntry struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	X    bool   `json:"x"`
	C    bool   `json:"c"`
	IsGo bool   `json:"is_go"`
}

type jsonReservation struct {
	GlobalID string      `json:"globalid"`
	Src      string      `json:"src"`
	Dst      string      `json:"dst"`
	Route    []jsonEntry `json:"route"`
}

// MarshalJSON renders the durable-store JSON object for this reservation.
func (r *Reservation) MarshalJSON() ([]byte, error) {
	jr := jsonReservation{
		GlobalID: r.GlobalID,
		Src:      r.Src.Key(),
		Dst:      r.Dst.Key(),
	}
	if r.Route != nil {
		for _, e := range r.Route.Entries {
			jr.Route = append(jr.Route, jsonEntry{
				Src: e.Src.Key(), Dst: e.Dst.Key(), X: e.X, C: e.C, IsGo: e.IsGo,
			})
		}
	}
	return json.Marshal(jr)
}

// Unmarshal parses a durable-store JSON object back into a Reservation,
// resolving every port/channel key against top.
func Unmarshal(data []byte, top *topo.Topology) (*Reservation, error) {
	var jr jsonReservation
	if err := json.Unmarshal(data, &jr); err != nil {
		return nil, fmt.Errorf("reservation: parsing record: %w", err)
	}
	src, err := parsePortChannel(top, jr.Src)
	if err != nil {
		return nil, err
	}
	dst, err := parsePortChannel(top, jr.Dst)
	if err != nil {
		return nil, err
	}

	entries := make([]pathfinder.RouteEntry, 0, len(jr.Route))
	for _, je := range jr.Route {
		s, err := parsePortChannel(top, je.Src)
		if err != nil {
			return nil, err
		}
		d, err := parsePortChannel(top, je.Dst)
		if err != nil {
			return nil, err
		}
		entries = append(entries, pathfinder.RouteEntry{Src: s, Dst: d, X: je.X, C: je.C, IsGo: je.IsGo})
	}

	return &Reservation{
		GlobalID:  jr.GlobalID,
		Src:       src,
		Dst:       dst,
		Route:     pathfinder.NewRoute(entries),
		WrittenDB: true,
	}, nil
}

func parsePortChannel(top *topo.Topology, key string) (topo.PortChannel, error) {
	portName, chFullNo, ok := strings.Cut(key, "@")
	if !ok {
		return topo.PortChannel{}, fmt.Errorf("reservation: invalid PortChannel key %q", key)
	}
	p := top.PortByName(portName)
	ch := top.ChannelByFullNo(chFullNo)
	if p == nil || ch == nil {
		return topo.PortChannel{}, fmt.Errorf("reservation: unresolvable PortChannel key %q", key)
	}
	return topo.PortChannel{Port: p, Channel: ch}, nil
}
