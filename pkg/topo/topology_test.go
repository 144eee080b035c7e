package topo

import (
	"os"
	"path/filepath"
	"testing"
)

// buildTestTopology assembles a tiny topology by hand (bypassing XML
// loading): two BiDi pseudo endpoints PA/PB wired through a crossconnect
// XC whose two pins are governed by an AvailableConnection table.
func buildTestTopology(t *testing.T) *Topology {
	t.Helper()

	ch1 := &Channel{Number: 1, ChannelTableID: "CT1"}
	ch2 := &Channel{Number: 2, ChannelTableID: "CT1"}
	tbl := &ChannelTable{ID: "CT1", Type: OpticalTableType, Channels: []*Channel{ch1, ch2}}

	top := &Topology{
		channelTables:    []*ChannelTable{tbl},
		channelTableMap:  map[string]*ChannelTable{"CT1": tbl},
		channelByFullNo:  map[string]*Channel{ch1.FullNo(): ch1, ch2.FullNo(): ch2},
		componentMap:     map[string]*Component{},
		ports:            map[string]*Port{},
		portOwner:        map[*Port]*Component{},
		pairKeyGroups:    map[string][]*PortPair{},
		srcDstToPortPair: map[[2]*Port]*PortPair{},
	}

	pa := &Component{Name: "PA", Ports: map[int]*Port{}}
	pb := &Component{Name: "PB", Ports: map[int]*Port{}}
	xc := &Component{Name: "XC1", Ports: map[int]*Port{}}
	xc.AC = NewAvailableConnection()
	xc.AC.Add(ConnEntry{InPin: 1, InCh: ch1, OutPin: 2, OutCh: ch1})
	xc.AC.Add(ConnEntry{InPin: 1, InCh: ch2, OutPin: 2, OutCh: ch2})

	mkPort := func(c *Component, num int, name string, io IO) *Port {
		p := &Port{
			Number: num, Name: name, Component: c, IO: io,
			SupportChannel: "CT1", ConnectedPorts: map[*Port]bool{},
		}
		p.Type = DerivePortType(name)
		c.Ports[num] = p
		top.ports[p.FullName()] = p
		top.portOwner[p] = c
		return p
	}

	paPort := mkPort(pa, 1, "PORT1", BiDi)
	pbPort := mkPort(pb, 1, "PORT1", BiDi)
	xcIn := mkPort(xc, 1, "IN1", Input)
	xcOut := mkPort(xc, 2, "OUT1", Output)

	for _, c := range []*Component{pa, pb, xc} {
		top.components = append(top.components, c)
		top.componentMap[c.Name] = c
	}

	link := func(pairKey string, src, dst *Port) {
		pp, err := NewPortPair(pairKey, src, dst, 1.0)
		if err != nil {
			t.Fatalf("NewPortPair: %v", err)
		}
		top.portPairs = append(top.portPairs, pp)
		top.pairKeyGroups[pairKey] = append(top.pairKeyGroups[pairKey], pp)
		top.srcDstToPortPair[[2]*Port{src, dst}] = pp
		src.AddConnectedPort(dst)
	}

	// Each physical link is represented by both directions, as every net
	// appears twice in the source XML (spec's pair-key invariant).
	link("LINK-A", paPort, xcIn)
	link("LINK-A", xcOut, paPort)
	link("LINK-B", xcOut, pbPort)
	link("LINK-B", pbPort, xcIn)

	top.makeFlowInOut()
	return top
}

func TestFlowGraphConsistency(t *testing.T) {
	top := buildTestTopology(t)
	for _, p := range top.ports {
		for q := range p.FlowOuts {
			if !q.FlowIns[p] {
				t.Errorf("%s in %s.FlowOuts but %s not in %s.FlowIns", q.FullName(), p.FullName(), p.FullName(), q.FullName())
			}
		}
		for q := range p.FlowIns {
			if !q.FlowOuts[p] {
				t.Errorf("%s in %s.FlowIns but %s not in %s.FlowOuts", q.FullName(), p.FullName(), p.FullName(), q.FullName())
			}
		}
	}
}

func TestPairKeyGroupSize(t *testing.T) {
	top := buildTestTopology(t)
	for key, group := range top.pairKeyGroups {
		if len(group) != 2 {
			t.Errorf("pair key %q has %d members, want 2", key, len(group))
		}
	}
}

// unpairedNetTopoXML is spec.md §8 scenario 1's topology: two devices wired
// by one unidirectional net with no "pair" attribute and no same-stem
// sibling. Loading it must succeed - a net with a null pair key is excluded
// from the pair-key grouping and its size-2 invariant entirely, rather than
// failing the load.
const unpairedNetTopoXML = `<?xml version="1.0"?>
<design>
  <channelInfo>
    <channelTable id="WDM32" type="optical">
      <channel no="1"/>
    </channelTable>
  </channelInfo>
  <components>
    <comp ref="N1">
      <ports>
        <port number="1" name="IN1" io="input" supportChannel="WDM32"/>
        <port number="2" name="OUT1" io="output" supportChannel="WDM32"/>
      </ports>
    </comp>
    <comp ref="N2">
      <ports>
        <port number="1" name="IN1" io="input" supportChannel="WDM32"/>
        <port number="2" name="OUT1" io="output" supportChannel="WDM32"/>
      </ports>
    </comp>
  </components>
  <nets>
    <net name="N1_N2" cost="3.0">
      <node ref="N1" pin="2"/>
      <node ref="N2" pin="1"/>
    </net>
  </nets>
</design>`

func TestLoadToleratesUnpairedNet(t *testing.T) {
	dir := t.TempDir()
	topoPath := filepath.Join(dir, "topo.xml")
	if err := os.WriteFile(topoPath, []byte(unpairedNetTopoXML), 0o644); err != nil {
		t.Fatalf("writing topology fixture: %v", err)
	}

	top, err := Load(topoPath, "", true)
	if err != nil {
		t.Fatalf("Load: expected a unidirectional net with no pair attribute to load cleanly, got %v", err)
	}

	if len(top.AllPortPairs()) != 1 {
		t.Fatalf("expected the unpaired net to still produce one PortPair, got %d", len(top.AllPortPairs()))
	}
	if got := top.AllPortPairs()[0].PairKey; got != "" {
		t.Errorf("expected a null pair key for an unpaired net, got %q", got)
	}
	if len(top.pairKeyGroups) != 0 {
		t.Errorf("expected no pair-key groups for a topology with only an unpaired net, got %v", top.pairKeyGroups)
	}

	n1out := top.PortByName("N1_2")
	n2in := top.PortByName("N2_1")
	if n1out == nil || n2in == nil {
		t.Fatal("expected both ends of the unpaired net to resolve")
	}
	if top.FindPortPair(n1out, n2in) != nil {
		t.Error("FindPortPair must return nil for a null-pair-key net: there is no other direction to find")
	}
}

func TestIntraComponentFlowUsesAC(t *testing.T) {
	top := buildTestTopology(t)
	xc := top.componentMap["XC1"]
	in, out := xc.Ports[1], xc.Ports[2]
	if !top.hasIntraComponentFlow(xc, in, out) {
		t.Error("expected AC to allow IN1 -> OUT1")
	}
	if top.hasIntraComponentFlow(xc, out, in) {
		t.Error("AC table has no OUT1 -> IN1 entry, should not flow")
	}
}

func TestBidiAddsReverseFlowEdge(t *testing.T) {
	top := buildTestTopology(t)
	pa := top.componentMap["PA"].Ports[1]
	xcIn := top.componentMap["XC1"].Ports[1]

	if !pa.FlowOuts[xcIn] {
		t.Error("expected PA -> XC1.IN1 flow edge from the forward net")
	}
	if !xcIn.FlowOuts[pa] {
		t.Error("expected XC1.IN1 -> PA reverse flow edge since PA's port is BiDi")
	}
}

func TestPseudoComponentHasNoInternalRouting(t *testing.T) {
	top := buildTestTopology(t)
	pseudo := &Component{Name: "P_ENDPOINT", Ports: map[int]*Port{}}
	p1 := &Port{Number: 1, Name: "PORT1", Component: pseudo, IO: Input, SupportChannel: "CT1"}
	p2 := &Port{Number: 2, Name: "PORT2", Component: pseudo, IO: Output, SupportChannel: "CT1"}
	pseudo.Ports[1], pseudo.Ports[2] = p1, p2

	if top.hasIntraComponentFlow(pseudo, p1, p2) {
		t.Error("pseudo components must not offer internal routing even between in/out ports")
	}
}

func TestHasConnectionRejectsChannelMismatch(t *testing.T) {
	top := buildTestTopology(t)
	xc := top.componentMap["XC1"]
	in, out := xc.Ports[1], xc.Ports[2]
	ch1 := top.channelByFullNo["CT1_1"]
	ch2 := top.channelByFullNo["CT1_2"]
	if ch1 == nil || ch2 == nil {
		t.Fatalf("expected channels CT1_1/CT1_2, got %v", top.channelByFullNo)
	}

	if !top.HasConnection(in, ch1, out, ch1) {
		t.Error("expected IN1/ch1 -> OUT1/ch1 via AC")
	}
	if top.HasConnection(in, ch1, out, ch2) {
		t.Error("AC entries are channel-preserving; ch1 in should not reach ch2 out")
	}
}
