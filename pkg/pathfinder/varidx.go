package pathfinder

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aist-nrm/nrm/pkg/topo"
)

// NoIdx is the sentinel index meaning "this 4-tuple has no assigned
// variable", used as the GLPK `vt` parameter's default value.
const NoIdx = 0

// tuple4 is the dense key a VarIdxTable indexes: (in_port, in_ch, out_port, out_ch).
type tuple4 struct {
	InPort  string
	InCh    string
	OutPort string
	OutCh   string
}

// VarIdxTable is the dense, append-only 1-based index over every
// (in_port,in_ch,out_port,out_ch) 4-tuple admitted by has_connection,
// built once per skeleton and persisted alongside it.
type VarIdxTable struct {
	idx       map[tuple4]int
	next      int
	byInPort  map[string][]string // in_port full name -> distinct in-channel full_nos seen
	flowOutCh map[tuple3][]string // (in_port,in_ch,out_port) -> out-channel full_nos
}

type tuple3 struct {
	InPort  string
	InCh    string
	OutPort string
}

// NewVarIdxTable returns an empty table ready for Add calls.
func NewVarIdxTable() *VarIdxTable {
	return &VarIdxTable{
		idx:       map[tuple4]int{},
		byInPort:  map[string][]string{},
		flowOutCh: map[tuple3][]string{},
	}
}

// Add assigns the next index to the 4-tuple if not already present and
// returns the (possibly pre-existing) index.
func (v *VarIdxTable) Add(inPort *topo.Port, inCh *topo.Channel, outPort *topo.Port, outCh *topo.Channel) int {
	key := tuple4{inPort.FullName(), inCh.FullNo(), outPort.FullName(), outCh.FullNo()}
	if i, ok := v.idx[key]; ok {
		return i
	}
	v.next++
	v.idx[key] = v.next

	t3 := tuple3{key.InPort, key.InCh, key.OutPort}
	v.flowOutCh[t3] = appendIfMissing(v.flowOutCh[t3], key.OutCh)
	v.byInPort[key.InPort] = appendIfMissing(v.byInPort[key.InPort], key.InCh)

	return v.next
}

func appendIfMissing(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

// Idx returns the assigned index for a tuple, or NoIdx if it was never added.
func (v *VarIdxTable) Idx(inPort *topo.Port, inCh *topo.Channel, outPort *topo.Port, outCh *topo.Channel) int {
	key := tuple4{inPort.FullName(), inCh.FullNo(), outPort.FullName(), outCh.FullNo()}
	return v.idx[key]
}

// Count is the total number of distinct admitted tuples (NUM_VARS).
func (v *VarIdxTable) Count() int {
	return v.next
}

// HasConnection reports whether the 4-tuple was admitted into the table.
func (v *VarIdxTable) HasConnection(inPort *topo.Port, inCh *topo.Channel, outPort *topo.Port, outCh *topo.Channel) bool {
	return v.Idx(inPort, inCh, outPort, outCh) != NoIdx
}

// FlowInChannels returns the distinct in-channel full_nos observed flowing
// into port (used to emit FlowInChannels[port]).
func (v *VarIdxTable) FlowInChannels(port *topo.Port) []string {
	return v.byInPort[port.FullName()]
}

// FlowOutChannels returns the out-channel full_nos reachable from
// (inPort,inCh,outPort) — used to emit IJK2Ls[in_port,in_ch,out_port].
func (v *VarIdxTable) FlowOutChannels(inPort *topo.Port, inCh *topo.Channel, outPort *topo.Port) []string {
	return v.flowOutCh[tuple3{inPort.FullName(), inCh.FullNo(), outPort.FullName()}]
}

// persistedEntry is the JSON-serializable form of one VarIdxTable row.
type persistedEntry struct {
	InPort  string `json:"in_port"`
	InCh    string `json:"in_ch"`
	OutPort string `json:"out_port"`
	OutCh   string `json:"out_ch"`
	Idx     int    `json:"idx"`
}

// Save persists the table as JSON next to its skeleton data file (spec's
// sibling ".pickle" — serialized here as JSON, since the table is opaque
// renderer-internal state rather than a cross-language artifact).
func (v *VarIdxTable) Save(path string) error {
	entries := make([]persistedEntry, 0, len(v.idx))
	for k, i := range v.idx {
		entries = append(entries, persistedEntry{k.InPort, k.InCh, k.OutPort, k.OutCh, i})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("pathfinder: marshaling var index table: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadVarIdxTable reloads a table persisted by Save, resolving port/channel
// names against top.
func LoadVarIdxTable(path string, top *topo.Topology) (*VarIdxTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pathfinder: reading var index table: %w", err)
	}
	var entries []persistedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("pathfinder: parsing var index table: %w", err)
	}

	v := NewVarIdxTable()
	for _, e := range entries {
		inPort := top.PortByName(e.InPort)
		outPort := top.PortByName(e.OutPort)
		inCh := top.ChannelByFullNo(e.InCh)
		outCh := top.ChannelByFullNo(e.OutCh)
		if inPort == nil || outPort == nil || inCh == nil || outCh == nil {
			return nil, fmt.Errorf("pathfinder: var index table entry references unknown port/channel: %+v", e)
		}
		key := tuple4{e.InPort, e.InCh, e.OutPort, e.OutCh}
		v.idx[key] = e.Idx
		if e.Idx > v.next {
			v.next = e.Idx
		}
		t3 := tuple3{key.InPort, key.InCh, key.OutPort}
		v.flowOutCh[t3] = appendIfMissing(v.flowOutCh[t3], key.OutCh)
		v.byInPort[key.InPort] = appendIfMissing(v.byInPort[key.InPort], key.InCh)
	}
	return v, nil
}
