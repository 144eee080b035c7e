package nrmops

import (
	"fmt"
	"strings"

	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/reservation"
	"github.com/aist-nrm/nrm/pkg/topo"
)

// makePathList follows route's x=true entries, starting at start, in
// traversal order (GLPK_route.make_path_list): the forward (isGo=true)
// chain or the synthesized back (isGo=false) chain.
func makePathList(route *pathfinder.Route, start topo.PortChannel, isGo bool) ([]topo.PortChannel, error) {
	byStart := map[string]pathfinder.RouteEntry{}
	for _, e := range route.Entries {
		if e.X && e.IsGo == isGo {
			byStart[e.Src.Port.FullName()] = e
		}
	}
	if len(byStart) == 0 {
		return nil, nil
	}
	if !isGo {
		if _, ok := byStart[start.Port.FullName()]; !ok {
			return nil, nil
		}
	}

	var out []topo.PortChannel
	cur := start.Port
	for len(byStart) > 0 {
		e, ok := byStart[cur.FullName()]
		if !ok {
			return nil, fmt.Errorf("missing route entry for port %s", cur.FullName())
		}
		delete(byStart, cur.FullName())
		if len(out) == 0 || e.Src.Port.FullName() != out[len(out)-1].Port.FullName() {
			out = append(out, e.Src)
		}
		out = append(out, e.Dst)
		cur = e.Dst.Port
	}
	return out, nil
}

// showRoute renders a PortChannel chain one hop per line, or a sentinel for
// a nil/empty chain (GLPK_route._show_route).
func showRoute(top *topo.Topology, chain []topo.PortChannel) string {
	if chain == nil {
		return "null"
	}
	if len(chain) == 0 {
		return "<empty>"
	}
	lines := make([]string, 0, len(chain))
	for _, pc := range chain {
		comp := top.ComponentByPort(pc.Port)
		model := "null"
		if comp != nil && comp.Model != "" {
			model = comp.Model
		}
		lines = append(lines, fmt.Sprintf("%-8s (%-15s %-33s %-6s",
			pc.Port.FullName(), pc.Channel.FullNo()+")", model, ioLabel(pc.Port)))
	}
	return strings.Join(lines, "\n")
}

func ioLabel(p *topo.Port) string {
	if p.IsBidi() {
		return "BIDI"
	}
	if p.IsIn() {
		return "IN"
	}
	return "OUT"
}

// dumpRoute renders a reservation's forward and synthesized-back path,
// starting from src (GLPKRoute.dump_route).
func dumpRoute(top *topo.Topology, route *pathfinder.Route, src topo.PortChannel) string {
	goList, err := makePathList(route, src, true)
	var buf []string
	buf = append(buf, "go route")
	if err != nil {
		buf = append(buf, err.Error())
	} else {
		buf = append(buf, showRoute(top, goList))
	}

	buf = append(buf, "back route")
	if err == nil && len(goList) > 0 {
		if backSrc := goList[len(goList)-1].Port.Opposite(); backSrc != nil {
			backList, berr := makePathList(route, topo.PortChannel{Port: backSrc, Channel: src.Channel}, false)
			if berr != nil {
				buf = append(buf, berr.Error())
			} else {
				buf = append(buf, showRoute(top, backList))
			}
		} else {
			buf = append(buf, showRoute(top, nil))
		}
	} else {
		buf = append(buf, showRoute(top, nil))
	}
	return strings.Join(buf, "\n")
}

// dumpReservation appends one reservation's header/src/dst block
// (Reservation.dump/_dump_port_channel).
func dumpReservation(rsv *reservation.Reservation) []string {
	dumpPC := func(label string, pc topo.PortChannel) []string {
		return []string{
			label,
			fmt.Sprintf("%-33s%s", " name", pc.Port.FullName()),
			fmt.Sprintf("%-33s%s", " chNo", pc.Channel.FullNo()),
		}
	}
	var buf []string
	buf = append(buf, fmt.Sprintf("%-33s%s", "globalId", rsv.GlobalID))
	buf = append(buf, dumpPC("src", rsv.Src)...)
	buf = append(buf, dumpPC("dst", rsv.Dst)...)
	return buf
}

// dumpAllReserve implements query's _dump_all_reserve: one separator block
// per reservation, plus its route when quiet is false.
func dumpAllReserve(top *topo.Topology, rsvs []*reservation.Reservation, quiet bool) string {
	var buf []string
	for _, rsv := range rsvs {
		if rsv == nil {
			continue
		}
		buf = append(buf, "----------------------------------------------------")
		buf = append(buf, dumpReservation(rsv)...)
		if !quiet {
			buf = append(buf, dumpRoute(top, rsv.Route, rsv.Src))
		}
	}
	return strings.Join(buf, "\n")
}
