package acbuilder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aist-nrm/nrm/pkg/solver"
	"github.com/aist-nrm/nrm/pkg/topo"
)

var errBoom = errors.New("boom")

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
    <comp ref="PA">
      <ports>
        <port number="1" name="PORT1" io="BiDi" supportChannel="WDM32"/>
      </ports>
    </comp>
  </components>
  <nets/>
</design>`

func loadTestTopo(t *testing.T) *topo.Topology {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "topo.xml")
	if err := os.WriteFile(path, []byte(testTopoXML), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	top, err := topo.Load(path, "", false)
	if err != nil {
		t.Fatalf("topo.Load: %v", err)
	}
	return top
}

func TestBuildWritesModelAndConnFiles(t *testing.T) {
	top := loadTestTopo(t)
	acDir := t.TempDir()
	runner := &solver.Stub{Stdout: "AvailableConnection[*,*] :=\n1 WDM32_1 2 WDM32_2 (1,WDM32_1,2,WDM32_2)\n"}

	if err := Build(context.Background(), top, acDir, runner); err != nil {
		t.Fatalf("Build: %v", err)
	}

	modelFile := filepath.Join(acDir, ModelFilename("XCModel"))
	modelText, err := os.ReadFile(modelFile)
	if err != nil {
		t.Fatalf("reading model file: %v", err)
	}
	if !strings.Contains(string(modelText), "set InputPort := {1}") {
		t.Errorf("expected InputPort set, got: %s", modelText)
	}
	if !strings.Contains(string(modelText), "set OutputPort := {2}") {
		t.Errorf("expected OutputPort set, got: %s", modelText)
	}
	if !strings.Contains(string(modelText), "Channels_WDM32") {
		t.Errorf("expected Channels renamed to Channels_WDM32, got: %s", modelText)
	}
	if !strings.Contains(string(modelText), "chNo[j]") || !strings.Contains(string(modelText), "chNo[l]") {
		t.Errorf("expected j/l rewritten to chNo[j]/chNo[l], got: %s", modelText)
	}
	if !strings.Contains(string(modelText), "display AvailableConnection;") {
		t.Errorf("expected trailing display statement, got: %s", modelText)
	}

	connFile := filepath.Join(acDir, ConnFilename("XCModel"))
	connText, err := os.ReadFile(connFile)
	if err != nil {
		t.Fatalf("reading conn file: %v", err)
	}
	if !strings.Contains(string(connText), "(1,WDM32_1,2,WDM32_2)") {
		t.Errorf("expected solver stdout persisted verbatim, got: %s", connText)
	}

	dataFile := filepath.Join(acDir, channelsDataFilename)
	if _, err := os.Stat(dataFile); err != nil {
		t.Errorf("expected channels.data to be written: %v", err)
	}
}

func TestBuildSkipsComponentsWithoutGLPK(t *testing.T) {
	top := loadTestTopo(t)
	acDir := t.TempDir()
	runner := &solver.Stub{Stdout: "ok"}
	if err := Build(context.Background(), top, acDir, runner); err != nil {
		t.Fatalf("Build: %v", err)
	}
	entries, err := os.ReadDir(acDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	// channels.data + XCModel.model + XCModel.conn.txt
	if len(entries) != 3 {
		t.Fatalf("expected exactly 3 files, got %d: %v", len(entries), entries)
	}
}

func TestBuildPropagatesAcBuildError(t *testing.T) {
	top := loadTestTopo(t)
	acDir := t.TempDir()
	runner := &solver.Stub{Err: errBoom}

	err := Build(context.Background(), top, acDir, runner)
	if err == nil {
		t.Fatal("expected an error")
	}
	var acErr *AcBuildError
	if !errors.As(err, &acErr) {
		t.Fatalf("expected *AcBuildError, got %T: %v", err, err)
	}
	if acErr.Model != "XCModel" {
		t.Errorf("expected Model=XCModel, got %s", acErr.Model)
	}
}
