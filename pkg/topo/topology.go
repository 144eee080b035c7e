// Package topo implements the topology model: channel tables, components,
// ports, port-pairs (nets) and the derived flow-in/flow-out graph that the
// skeleton builder and pathfinder walk to decide which connections are
// legal.
package topo

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aist-nrm/nrm/pkg/util"
)

// Topology owns every Component, Port and Channel parsed from one XML
// document. It is immutable after Load returns — spec §5: "Topology:
// immutable after construction; may be read by any worker without
// synchronization."
type Topology struct {
	channelTables   []*ChannelTable
	channelTableMap map[string]*ChannelTable
	channelByFullNo map[string]*Channel

	components   []*Component
	componentMap map[string]*Component

	ports        map[string]*Port
	portsOrdered []*Port
	portOwner    map[*Port]*Component

	portPairs       []*PortPair
	pairKeyGroups   map[string][]*PortPair
	srcDstToPortPair map[[2]*Port]*PortPair
}

// Load parses the topology XML at path, loads per-model AvailableConnection
// tables from acConnDir (when non-empty), and — when initFull is true —
// builds the full flow-in/flow-out graph needed for path finding. Passing
// initFull=false is used by the AC builder, which only needs channel
// tables, components and ports.
func Load(path, acConnDir string, initFull bool) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newTopologyError("load", "reading topology file", err)
	}

	var doc xmlDesign
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, newTopologyError("load", "parsing topology XML", err)
	}

	t := &Topology{
		channelTableMap:  map[string]*ChannelTable{},
		channelByFullNo:  map[string]*Channel{},
		componentMap:     map[string]*Component{},
		ports:            map[string]*Port{},
		portOwner:        map[*Port]*Component{},
		pairKeyGroups:    map[string][]*PortPair{},
		srcDstToPortPair: map[[2]*Port]*PortPair{},
	}

	t.loadChannelTables(doc.ChannelInfo.Tables)
	if err := t.loadComponents(doc.Components.Comps); err != nil {
		return nil, err
	}

	allTableIDs := t.channelTableIDs()
	for _, c := range t.components {
		c.SetSupportChannels(rawSupportChannels(c), allTableIDs)
	}

	if initFull {
		for _, tbl := range t.channelTables {
			for _, ch := range tbl.Channels {
				t.channelByFullNo[ch.FullNo()] = ch
			}
		}
	}

	if acConnDir != "" {
		if err := t.loadAllConnFiles(acConnDir); err != nil {
			return nil, err
		}
	}

	if err := t.makePortPairs(doc.Nets.Nets); err != nil {
		return nil, err
	}

	if initFull {
		t.makeFlowInOut()
	}

	return t, nil
}

func rawSupportChannels(c *Component) []string {
	// Ports carry the support-channel id individually; a component
	// "supports" the union of its ports' tables.
	seen := map[string]bool{}
	var out []string
	for _, p := range c.Ports {
		if p.SupportChannel == "" || seen[p.SupportChannel] {
			continue
		}
		seen[p.SupportChannel] = true
		out = append(out, p.SupportChannel)
	}
	return out
}

func (t *Topology) channelTableIDs() []string {
	ids := make([]string, len(t.channelTables))
	for i, tbl := range t.channelTables {
		ids[i] = tbl.ID
	}
	return ids
}

func (t *Topology) loadChannelTables(tables []xmlChannelTable) {
	for _, xt := range tables {
		if xt.Type != OpticalTableType {
			util.WithField("table", xt.ID).Warn("topo: skipping non-optical channel table")
			continue
		}
		tbl := &ChannelTable{ID: xt.ID, Type: xt.Type}
		for _, xc := range xt.Channels {
			tbl.Channels = append(tbl.Channels, &Channel{Number: xc.No, ChannelTableID: xt.ID})
		}
		t.channelTables = append(t.channelTables, tbl)
		t.channelTableMap[tbl.ID] = tbl
	}
}

func (t *Topology) loadComponents(comps []xmlComp) error {
	names := make([]string, len(comps))
	byName := make(map[string]xmlComp, len(comps))
	for i, xc := range comps {
		names[i] = xc.Ref
		byName[xc.Ref] = xc
	}
	util.SortNatural(names)

	for _, name := range names {
		xc := byName[name]
		c := &Component{Name: name, Ports: map[int]*Port{}}
		for _, f := range xc.Fields {
			switch f.Name {
			case "Model":
				c.Model = strings.TrimSpace(f.Value)
			case "GLPK":
				c.GLPKText = f.Value
			case "Controller":
				c.Controller = strings.TrimSpace(f.Value)
			case "Socket":
				if n, err := strconv.Atoi(strings.TrimSpace(f.Value)); err == nil {
					c.Socket = n
				} else {
					c.Socket = NoSocketPort
				}
			case "Cost":
				c.CostJSON = f.Value
			}
		}
		if c.Socket == 0 {
			c.Socket = NoSocketPort
		}

		portNames := make([]string, len(xc.Ports.Ports))
		byPortName := make(map[string]xmlPort, len(xc.Ports.Ports))
		for i, xp := range xc.Ports.Ports {
			portNames[i] = xp.Name
			byPortName[xp.Name] = xp
		}
		util.SortNatural(portNames)

		for _, pn := range portNames {
			xp := byPortName[pn]
			p := &Port{
				Number:         xp.Number,
				Name:           xp.Name,
				Component:      c,
				IO:             IO(xp.IO),
				SupportChannel: xp.SupportChannel,
				ConnectedPorts: map[*Port]bool{},
			}
			p.Type = DerivePortType(p.Name)
			c.Ports[p.Number] = p
			t.ports[p.FullName()] = p
			t.portsOrdered = append(t.portsOrdered, p)
			t.portOwner[p] = c
		}

		t.components = append(t.components, c)
		t.componentMap[c.Name] = c
	}

	for _, c := range t.components {
		t.setOppositePorts(c)
	}
	return nil
}

// setOppositePorts implements the Port.opposite resolution rule: self for
// BiDi; else the same-support-channel port whose name differs only by
// IN<->OUT substitution; else, failing that, the unique port in the
// component with complementary io if exactly one candidate remains.
func (t *Topology) setOppositePorts(c *Component) {
	for _, p := range c.Ports {
		if p.IsBidi() {
			p.SetOpposite(p)
			continue
		}
		var byName *Port
		var candidates []*Port
		for _, q := range c.Ports {
			if q == p || !p.IsSameSupportChannel(q) {
				continue
			}
			if IsOppositeName(p.Name, q.Name) {
				byName = q
			}
			if (p.IO == Input && q.IO == Output) || (p.IO == Output && q.IO == Input) {
				candidates = append(candidates, q)
			}
		}
		if byName != nil {
			p.SetOpposite(byName)
		} else if len(candidates) == 1 {
			p.SetOpposite(candidates[0])
		}
	}
}

// loadAllConnFiles loads each distinct component model's <model>.conn.txt
// exactly once and attaches the resulting AvailableConnection to every
// component sharing that model name (spec §9 open question: AC is cached
// by model name only, assuming components sharing a model share a port
// layout — see DESIGN.md).
func (t *Topology) loadAllConnFiles(acConnDir string) error {
	cache := map[string]*AvailableConnection{}
	for _, c := range t.components {
		if c.Model == "" {
			continue
		}
		ac, ok := cache[c.Model]
		if !ok {
			var err error
			ac, err = t.parseConnFile(filepath.Join(acConnDir, c.Model+".conn.txt"))
			if err != nil {
				if os.IsNotExist(err) {
					cache[c.Model] = nil
					continue
				}
				return err
			}
			cache[c.Model] = ac
		}
		c.AC = ac
	}
	return nil
}

var connTupleRegexp = regexp.MustCompile(`\(([0-9]+),([^,]+),([0-9]+),([^,]+)\)`)

func (t *Topology) parseConnFile(path string) (*AvailableConnection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ac := NewAvailableConnection()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, m := range connTupleRegexp.FindAllStringSubmatch(scanner.Text(), -1) {
			inPin, err1 := strconv.Atoi(m[1])
			outPin, err2 := strconv.Atoi(m[3])
			if err1 != nil || err2 != nil {
				continue
			}
			inCh := t.channelByFullNo[m[2]]
			outCh := t.channelByFullNo[m[4]]
			if inCh == nil || outCh == nil {
				continue
			}
			ac.Add(ConnEntry{InPin: inPin, InCh: inCh, OutPin: outPin, OutCh: outCh})
		}
	}
	return ac, scanner.Err()
}

func (t *Topology) makePortPairs(nets []xmlNet) error {
	for _, n := range nets {
		if len(n.Nodes) != 2 {
			continue
		}
		p0 := t.PortByName(nodeFullName(t, n.Nodes[0]))
		p1 := t.PortByName(nodeFullName(t, n.Nodes[1]))
		if p0 == nil || p1 == nil {
			continue
		}
		var src, dst *Port
		if p0.IsOut() {
			src, dst = p0, p1
		} else {
			src, dst = p1, p0
		}
		cost := 0.0
		if n.Cost != nil {
			cost = *n.Cost
		}
		pairKey := DerivePairKey(n.Pair)
		pp, err := NewPortPair(pairKey, src, dst, cost)
		if err != nil {
			return newTopologyError("portpair", n.Name, err)
		}
		t.portPairs = append(t.portPairs, pp)

		// A null pair key (no "pair" attribute) marks a unidirectional net
		// with no sibling to group with; it's excluded from both the
		// pair-key grouping and the src/dst pairing lookup, matching the
		// source's own "if pair_key is not None" guard.
		if pairKey != "" {
			t.pairKeyGroups[pairKey] = append(t.pairKeyGroups[pairKey], pp)
			t.srcDstToPortPair[[2]*Port{src, dst}] = pp
		}

		// Only the outgoing side records the peer; flow-graph construction
		// below derives both directions from this single edge.
		src.AddConnectedPort(dst)
	}

	for key, group := range t.pairKeyGroups {
		if len(group) != 2 {
			return newTopologyError("portpair", fmt.Sprintf("pair-key group %q has %d members, want 2", key, len(group)), nil)
		}
	}
	return nil
}

func nodeFullName(t *Topology, n xmlNode) string {
	return fmt.Sprintf("%s_%d", n.Ref, n.Pin)
}

// makeFlowInOut builds the port-level flow_in/flow_out graph: spec §4.1.
func (t *Topology) makeFlowInOut() {
	flowOut := make(map[*Port]map[*Port]bool, len(t.ports))
	flowIn := make(map[*Port]map[*Port]bool, len(t.ports))
	ensure := func(m map[*Port]map[*Port]bool, p *Port) {
		if m[p] == nil {
			m[p] = map[*Port]bool{}
		}
	}
	link := func(src, dst *Port) {
		ensure(flowOut, src)
		ensure(flowIn, dst)
		flowOut[src][dst] = true
		flowIn[dst][src] = true
	}

	for _, c := range t.components {
		ports := make([]*Port, 0, len(c.Ports))
		for _, p := range c.Ports {
			ports = append(ports, p)
		}
		for _, src := range ports {
			for _, dst := range ports {
				if src == dst {
					continue
				}
				if t.hasIntraComponentFlow(c, src, dst) {
					link(src, dst)
				}
			}
		}
	}

	for _, pp := range t.portPairs {
		link(pp.Src, pp.Dst)
		if pp.Src.IsBidi() {
			link(pp.Dst, pp.Src)
		}
	}

	for p := range t.ports {
		port := t.ports[p]
		if flowIn[port] == nil {
			flowIn[port] = map[*Port]bool{}
		}
		if flowOut[port] == nil {
			flowOut[port] = map[*Port]bool{}
		}
		port.setFlowInOut(flowIn[port], flowOut[port])
	}
}

// hasIntraComponentFlow decides whether a signal entering src can reach
// dst inside c. Pseudo components are excluded even though they never
// carry an AC table, since they represent application endpoints with no
// internal routing of their own (spec's pseudo-component invariant).
func (t *Topology) hasIntraComponentFlow(c *Component, src, dst *Port) bool {
	if c.IsPseudo() {
		return false
	}
	if c.AC != nil {
		return c.AC.HasConnection(src.Number, dst.Number)
	}
	return src.IsIn() && dst.IsOut()
}

// HasConnection is the has_connection predicate of spec §4.4, the
// foundation of both the flow graph and the skeleton builder's VarIdxTable
// construction.
func (t *Topology) HasConnection(inPort *Port, inCh *Channel, outPort *Port, outCh *Channel) bool {
	if inPort == outPort {
		return false
	}
	sameComponent := t.portOwner[inPort] == t.portOwner[outPort]
	if sameComponent {
		c := t.portOwner[inPort]
		if c.AC != nil {
			return c.AC.HasConnectionInConn(inPort.Number, inCh, outPort.Number, outCh)
		}
		if c.IsPseudo() {
			return false
		}
		return inPort.IsIn() && outPort.IsOut() && inCh == outCh && inPort.IsSameSupportChannel(outPort)
	}

	if inCh != outCh || !inPort.IsSameSupportChannel(outPort) {
		return false
	}
	if inPort.IsConnected(outPort) {
		return true
	}
	if inPort.IsBidi() && outPort.IsConnected(inPort) {
		return true
	}
	return false
}

// --- Lookups: total, return nil/zero when absent (spec §4.1). ---

func (t *Topology) PortByName(name string) *Port { return t.ports[name] }

func (t *Topology) ChannelByFullNo(fullNo string) *Channel { return t.channelByFullNo[fullNo] }

func (t *Topology) ComponentByName(name string) *Component { return t.componentMap[name] }

func (t *Topology) ComponentByPort(p *Port) *Component { return t.portOwner[p] }

func (t *Topology) ChannelTableByID(id string) *ChannelTable { return t.channelTableMap[id] }

func (t *Topology) AllChannelTables() []*ChannelTable { return t.channelTables }

func (t *Topology) AllComponents() []*Component { return t.components }

func (t *Topology) AllPorts() map[string]*Port { return t.ports }

// AllPortsOrdered returns every port in component-load order (natural-sorted
// component names, then natural-sorted port names within each) — the order
// the skeleton builder's "set V" uses when a topology carries only one
// channel table.
func (t *Topology) AllPortsOrdered() []*Port { return t.portsOrdered }

// AllChannels returns every channel across every retained table.
func (t *Topology) AllChannels() []*Channel {
	var out []*Channel
	for _, tbl := range t.channelTables {
		out = append(out, tbl.Channels...)
	}
	return out
}

// FindPortPair returns the OTHER direction of the pair-keyed net connecting
// src and dst, or nil if src->dst isn't a wired pair.
func (t *Topology) FindPortPair(src, dst *Port) *PortPair {
	pp := t.srcDstToPortPair[[2]*Port{src, dst}]
	if pp == nil {
		return nil
	}
	group := t.pairKeyGroups[pp.PairKey]
	for _, other := range group {
		if other != pp {
			return other
		}
	}
	return nil
}

// GetAllPortPairsList groups every PortPair by its pair_key.
func (t *Topology) GetAllPortPairsList() map[string][]*PortPair {
	return t.pairKeyGroups
}

// AllPortPairs returns every net's PortPair, one entry per direction (so a
// bidirectional net contributes two entries sharing a pair key).
func (t *Topology) AllPortPairs() []*PortPair {
	return t.portPairs
}

// GetSupportComps returns every component whose support-channel set
// includes tableID.
func (t *Topology) GetSupportComps(tableID string) []*Component {
	var out []*Component
	for _, c := range t.components {
		if c.SupportChannels[tableID] {
			out = append(out, c)
		}
	}
	return out
}
