package nrmops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/reservation"
	"github.com/aist-nrm/nrm/pkg/topo"
)

const testTopoXML = `<?xml version="1.0"?>
<design>
  <channelInfo>
    <channelTable id="WDM32" type="optical">
      <channel no="1"/>
      <channel no="2"/>
    </channelTable>
  </channelInfo>
  <components>
    <comp ref="XC1">
      <field name="Model">XCModel</field>
      <field name="GLPK">set AvailableConnection := {AA : j = l &amp;&amp; k = j + 1};</field>
      <ports>
        <port number="1" name="IN1" io="input" supportChannel="WDM32"/>
        <port number="2" name="OUT1" io="output" supportChannel="WDM32"/>
      </ports>
    </comp>
    <comp ref="P1">
      <ports>
        <port number="1" name="PORT1" io="BiDi" supportChannel="WDM32"/>
      </ports>
    </comp>
    <comp ref="P2">
      <ports>
        <port number="1" name="PORT1" io="BiDi" supportChannel="WDM32"/>
      </ports>
    </comp>
    <comp ref="P3">
      <ports>
        <port number="1" name="PORT1" io="input" supportChannel="WDM32"/>
      </ports>
    </comp>
  </components>
  <nets>
    <net name="N1-0" pair="N1-1" cost="1.5">
      <node ref="P1" pin="1"/>
      <node ref="XC1" pin="1"/>
    </net>
    <net name="N1-1" pair="N1-0" cost="1.5">
      <node ref="XC1" pin="1"/>
      <node ref="P1" pin="1"/>
    </net>
    <net name="N2-0" pair="N2-1" cost="2.5">
      <node ref="XC1" pin="2"/>
      <node ref="P2" pin="1"/>
    </net>
    <net name="N2-1" pair="N2-0" cost="2.5">
      <node ref="P2" pin="1"/>
      <node ref="XC1" pin="2"/>
    </net>
  </nets>
</design>`

func loadTestTopo(t *testing.T) *topo.Topology {
	t.Helper()
	dir := t.TempDir()
	topoPath := filepath.Join(dir, "topo.xml")
	if err := os.WriteFile(topoPath, []byte(testTopoXML), 0o644); err != nil {
		t.Fatalf("writing topology fixture: %v", err)
	}

	acDir := t.TempDir()
	connFile := filepath.Join(acDir, "XCModel.conn.txt")
	connBody := "AvailableConnection[*,*] :=\n1 WDM32_1 2 WDM32_1 (1,WDM32_1,2,WDM32_1)\n1 WDM32_2 2 WDM32_2 (1,WDM32_2,2,WDM32_2)\n"
	if err := os.WriteFile(connFile, []byte(connBody), 0o644); err != nil {
		t.Fatalf("writing conn fixture: %v", err)
	}

	top, err := topo.Load(topoPath, acDir, true)
	if err != nil {
		t.Fatalf("topo.Load: %v", err)
	}
	return top
}

func testHandler(t *testing.T) *Handler {
	t.Helper()
	top := loadTestTopo(t)
	mgr, err := reservation.NewManager(context.Background(), top, reservation.NewMemoryStore(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return NewHandler(top, mgr, &pathfinder.Orchestrator{Topo: top}, nil, t.TempDir())
}

func TestParseOptionsArities(t *testing.T) {
	defs := []optionDef{boolOpt("bi"), oneOpt("s"), anyOpt("ero")}

	opts, err := parseOptions(defs, []string{"-bi", "-s", "PORT1", "-ero", "A", "B", "C"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if !opts.boolVal("bi") {
		t.Error("expected -bi to be true")
	}
	s, err := opts.requiredStr("s")
	if err != nil || s != "PORT1" {
		t.Errorf("expected s=PORT1, got %q err=%v", s, err)
	}
	ero := opts.list("ero")
	if len(ero) != 3 || ero[0] != "A" || ero[2] != "C" {
		t.Errorf("expected ero=[A B C], got %v", ero)
	}
}

func TestParseOptionsAnyValStopsAtNextFlag(t *testing.T) {
	defs := []optionDef{anyOpt("ero"), boolOpt("bi")}
	opts, err := parseOptions(defs, []string{"-ero", "A", "B", "-bi"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if got := opts.list("ero"); len(got) != 2 {
		t.Errorf("expected 2 ero values before -bi, got %v", got)
	}
	if !opts.boolVal("bi") {
		t.Error("expected -bi to still be parsed after -ero's run")
	}
}

func TestParseOptionsOneValMissingValue(t *testing.T) {
	defs := []optionDef{oneOpt("s")}
	if _, err := parseOptions(defs, []string{"-s"}); err == nil {
		t.Fatal("expected error for -s with no value")
	}
	if _, err := parseOptions(defs, []string{"-s", "-bi"}); err == nil {
		t.Fatal("expected error for -s followed by another flag")
	}
}

func TestParseOptionsAnyValRequiresAtLeastOne(t *testing.T) {
	defs := []optionDef{anyOpt("ero")}
	if _, err := parseOptions(defs, []string{"-ero"}); err == nil {
		t.Fatal("expected error for -ero with zero values")
	}
}

func TestParseTrueFalseOption(t *testing.T) {
	if v, set, err := parseTrueFalseOption([]string{"deltmp"}); err != nil || set {
		t.Errorf("expected unset with no argument, got v=%v set=%v err=%v", v, set, err)
	}
	if v, set, err := parseTrueFalseOption([]string{"deltmp", "true"}); err != nil || !set || !v {
		t.Errorf("expected true, got v=%v set=%v err=%v", v, set, err)
	}
	if v, set, err := parseTrueFalseOption([]string{"deltmp", "false"}); err != nil || !set || v {
		t.Errorf("expected false, got v=%v set=%v err=%v", v, set, err)
	}
	if _, _, err := parseTrueFalseOption([]string{"deltmp", "maybe"}); err == nil {
		t.Fatal("expected error for non true/false argument")
	}
}

func TestBuildRequestSrcEqualsDst(t *testing.T) {
	top := loadTestTopo(t)
	opts, err := parseOptions(requestOptionDefs, []string{"-s", "P1_1", "-d", "P1_1"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if _, err := buildRequest(top, opts); err == nil {
		t.Fatal("expected error for src == dst")
	}
}

func TestBuildRequestBidiUnsupported(t *testing.T) {
	top := loadTestTopo(t)
	opts, err := parseOptions(requestOptionDefs, []string{"-bi", "-s", "P3_1", "-d", "P2_1"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	_, err = buildRequest(top, opts)
	if err == nil {
		t.Fatal("expected -bi error for a port with no opposite")
	}
	if !strings.Contains(err.Error(), "-bi option not supported for") {
		t.Errorf("unexpected error shape: %v", err)
	}
}

func TestBuildRequestSuccess(t *testing.T) {
	top := loadTestTopo(t)
	opts, err := parseOptions(requestOptionDefs, []string{"-s", "P1_1", "-d", "P2_1", "-ch", "WDM32_1"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	req, err := buildRequest(top, opts)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Src.Port.FullName() != "P1_1" || req.Dst.Port.FullName() != "P2_1" {
		t.Errorf("unexpected src/dst: %+v %+v", req.Src, req.Dst)
	}
	if len(req.Channels) != 1 || req.Channels[0].FullNo() != "WDM32_1" {
		t.Errorf("expected single resolved channel WDM32_1, got %+v", req.Channels)
	}
}

func TestBuildRequestMissingRequired(t *testing.T) {
	top := loadTestTopo(t)
	opts, err := parseOptions(requestOptionDefs, []string{"-s", "P1_1"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if _, err := buildRequest(top, opts); err == nil {
		t.Fatal("expected error for missing -d")
	}
}

func TestResolveChannelsDefaultIsTopologyWide(t *testing.T) {
	top := loadTestTopo(t)
	chans, err := resolveChannels(top, nil, false)
	if err != nil {
		t.Fatalf("resolveChannels: %v", err)
	}
	if len(chans) != len(top.AllChannels()) {
		t.Errorf("expected every topology channel by default, got %d of %d", len(chans), len(top.AllChannels()))
	}
}

func TestResolveChannelsWDMSAPicksOne(t *testing.T) {
	top := loadTestTopo(t)
	chans, err := resolveChannels(top, nil, true)
	if err != nil {
		t.Fatalf("resolveChannels: %v", err)
	}
	if len(chans) != 1 {
		t.Errorf("expected exactly one channel from -wdmsa, got %+v", chans)
	}
}

func TestDumpAllReserveEmpty(t *testing.T) {
	top := loadTestTopo(t)
	if got := dumpAllReserve(top, nil, false); got != "" {
		t.Errorf("expected empty dump for no reservations, got %q", got)
	}
}

func TestDumpRouteRendersForwardAndBack(t *testing.T) {
	top := loadTestTopo(t)
	p1 := top.PortByName("P1_1")
	xc1 := top.PortByName("XC1_1")
	xc2 := top.PortByName("XC1_2")
	p2 := top.PortByName("P2_1")
	ch1 := top.ChannelByFullNo("WDM32_1")

	entries := []pathfinder.RouteEntry{
		{Src: topo.PortChannel{Port: p1, Channel: ch1}, Dst: topo.PortChannel{Port: xc1, Channel: ch1}, X: true, IsGo: true},
		{Src: topo.PortChannel{Port: xc1, Channel: ch1}, Dst: topo.PortChannel{Port: xc2, Channel: ch1}, X: true, IsGo: true},
		{Src: topo.PortChannel{Port: xc2, Channel: ch1}, Dst: topo.PortChannel{Port: p2, Channel: ch1}, X: true, IsGo: true},
	}
	route := pathfinder.NewRoute(entries)

	out := dumpRoute(top, route, topo.PortChannel{Port: p1, Channel: ch1})
	if !strings.Contains(out, "go route") || !strings.Contains(out, "back route") {
		t.Errorf("expected both go and back route sections, got:\n%s", out)
	}
	if !strings.Contains(out, "P1_1") || !strings.Contains(out, "P2_1") {
		t.Errorf("expected endpoints in dump, got:\n%s", out)
	}
}

func TestHandlerDispatchUnknownOp(t *testing.T) {
	h := testHandler(t)
	out := h.Dispatch(context.Background(), "bogusOp")
	if !strings.Contains(out, "usage: pathfind") || !strings.Contains(out, "usage: reserve") {
		t.Errorf("expected full usage listing for unknown op, got:\n%s", out)
	}
}

func TestHandlerDispatchEmptyLine(t *testing.T) {
	h := testHandler(t)
	out := h.Dispatch(context.Background(), "")
	if !strings.Contains(out, "usage: query") {
		t.Errorf("expected full usage listing for empty line, got:\n%s", out)
	}
}

func TestHandlerDispatchQueryNoReservation(t *testing.T) {
	h := testHandler(t)
	out := h.Dispatch(context.Background(), "query")
	if out != "No Reservation" {
		t.Errorf("expected 'No Reservation', got %q", out)
	}
}

func TestHandlerDispatchQueryUnknownGlobalID(t *testing.T) {
	h := testHandler(t)
	out := h.Dispatch(context.Background(), "query -g 42")
	if !strings.HasPrefix(out, "ERROR: ") {
		t.Errorf("expected ERROR reply for unknown id, got %q", out)
	}
}

func TestHandlerDispatchTerminateAll(t *testing.T) {
	h := testHandler(t)
	out := h.Dispatch(context.Background(), "TERMINATEALL")
	if out != "delete all reservations from memory" {
		t.Errorf("unexpected reply: %q", out)
	}
}

func TestHandlerDispatchWriteDB(t *testing.T) {
	h := testHandler(t)
	out := h.Dispatch(context.Background(), "writeDB")
	if !strings.Contains(out, "entries written to the DB") {
		t.Errorf("unexpected reply: %q", out)
	}
}

func TestHandlerDispatchDeltmpTogglesAndReports(t *testing.T) {
	h := testHandler(t)
	if out := h.Dispatch(context.Background(), "deltmp"); out != "deltmp: true" {
		t.Errorf("expected default deltmp=true, got %q", out)
	}
	if out := h.Dispatch(context.Background(), "deltmp false"); out != "deltmp: false" {
		t.Errorf("expected deltmp=false after toggle, got %q", out)
	}
	if h.getDeleteTmp() {
		t.Error("expected internal flag to have flipped to false")
	}
}

func TestHandlerDispatchDumpglpsolTogglesAndReports(t *testing.T) {
	h := testHandler(t)
	if out := h.Dispatch(context.Background(), "dumpglpsol"); out != "dumpglpsol: false" {
		t.Errorf("expected default dumpglpsol=false, got %q", out)
	}
	if out := h.Dispatch(context.Background(), "dumpglpsol true"); out != "dumpglpsol: true" {
		t.Errorf("expected dumpglpsol=true after toggle, got %q", out)
	}
}

func TestHandlerDispatchTerminateRequiresG(t *testing.T) {
	h := testHandler(t)
	out := h.Dispatch(context.Background(), "terminate")
	if !strings.HasPrefix(out, "usage: terminate") {
		t.Errorf("expected usage reply for missing -g, got %q", out)
	}
}

func TestHandlerDispatchReserveThenQueryThenTerminate(t *testing.T) {
	h := testHandler(t)
	ch1 := h.Topo.ChannelByFullNo("WDM32_1")
	rsv := reservation.New("urn:uuid:test-1",
		topo.PortChannel{Port: h.Topo.PortByName("P1_1"), Channel: ch1},
		topo.PortChannel{Port: h.Topo.PortByName("P2_1"), Channel: ch1},
		pathfinder.NewRoute(nil))
	id := h.RsvMgr.Add(rsv)

	out := h.Dispatch(context.Background(), "query -g "+id+" -q")
	if !strings.Contains(out, rsv.GlobalID) {
		t.Errorf("expected dump to contain globalid, got:\n%s", out)
	}

	out = h.Dispatch(context.Background(), "terminate -g "+id)
	if out != "delete from memory: "+id {
		t.Errorf("unexpected terminate reply: %q", out)
	}

	out = h.Dispatch(context.Background(), "query")
	if out != "No Reservation" {
		t.Errorf("expected reservation to be gone, got %q", out)
	}
}
