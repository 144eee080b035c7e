package topo

import "fmt"

// ConnEntry is one legal (in_pin,in_ch)->(out_pin,out_ch) tuple, as
// enumerated by the per-model ILP solve (the AC builder).
type ConnEntry struct {
	InPin   int
	InCh    *Channel
	OutPin  int
	OutCh   *Channel
}

// Key is the dedup/lookup key for one ConnEntry.
func (e ConnEntry) Key() string {
	return fmt.Sprintf("%d@%s-%d@%s", e.InPin, e.InCh.FullNo(), e.OutPin, e.OutCh.FullNo())
}

// AvailableConnection is the per-device-model table of legal connections,
// produced by the AC builder and attached to every Component sharing that
// model at topology-load time.
type AvailableConnection struct {
	connSet  map[string]bool
	in2outs  map[int]map[int]bool
}

// NewAvailableConnection returns an empty table ready for Add calls.
func NewAvailableConnection() *AvailableConnection {
	return &AvailableConnection{
		connSet: map[string]bool{},
		in2outs: map[int]map[int]bool{},
	}
}

// Add registers one legal tuple.
func (ac *AvailableConnection) Add(e ConnEntry) {
	ac.connSet[e.Key()] = true
	if ac.in2outs[e.InPin] == nil {
		ac.in2outs[e.InPin] = map[int]bool{}
	}
	ac.in2outs[e.InPin][e.OutPin] = true
}

// HasConnection is the pin-only (channel-agnostic) membership test, used
// while building the skeleton's port-level flow graph.
func (ac *AvailableConnection) HasConnection(inPin, outPin int) bool {
	return ac.in2outs[inPin][outPin]
}

// HasConnectionInConn is the fully channel-qualified membership test.
func (ac *AvailableConnection) HasConnectionInConn(inPin int, inCh *Channel, outPin int, outCh *Channel) bool {
	return ac.connSet[ConnEntry{InPin: inPin, InCh: inCh, OutPin: outPin, OutCh: outCh}.Key()]
}
