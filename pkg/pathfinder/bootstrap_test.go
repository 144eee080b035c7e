package pathfinder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aist-nrm/nrm/pkg/topo"
)

func TestBuildAllSkeletonsWritesPFAndSolvecFiles(t *testing.T) {
	top := loadSkeletonTestTopo(t)
	acDir := t.TempDir()
	connFile := filepath.Join(acDir, "XCModel.conn.txt")
	connBody := "AvailableConnection[*,*] :=\n1 WDM32_1 2 WDM32_1 (1,WDM32_1,2,WDM32_1)\n1 WDM32_2 2 WDM32_2 (1,WDM32_2,2,WDM32_2)\n"
	if err := os.WriteFile(connFile, []byte(connBody), 0o644); err != nil {
		t.Fatalf("writing conn fixture: %v", err)
	}
	modelFile := filepath.Join(acDir, "XCModel.model.txt")
	if err := os.WriteFile(modelFile, []byte("set AvailableConnection := {AA : j = l && k = j + 1};"), 0o644); err != nil {
		t.Fatalf("writing model fixture: %v", err)
	}

	skelDir := t.TempDir()
	pfBuilder, solvecBuilder, err := BuildAllSkeletons(top, acDir, skelDir, "mf", "df", 2)
	if err != nil {
		t.Fatalf("BuildAllSkeletons: %v", err)
	}
	if pfBuilder == nil || solvecBuilder == nil {
		t.Fatal("expected non-nil overlay builders")
	}

	for _, want := range []string{"pf_df_WDM32_1.data", "pf_df_WDM32_2.data", "pf_mf.model", "pf_df_WDM32_1.data.pickle", "pf_df_WDM32_2.data.pickle"} {
		if _, err := os.Stat(filepath.Join(skelDir, want)); err != nil {
			t.Errorf("expected %s to exist: %v", want, err)
		}
	}

	reloadedPF, reloadedSolvec, err := LoadAllSkeletons(top, acDir, skelDir, "mf", "df")
	if err != nil {
		t.Fatalf("LoadAllSkeletons: %v", err)
	}
	if reloadedPF == nil || reloadedSolvec == nil {
		t.Fatal("expected non-nil overlay builders reloaded from persisted var index tables")
	}
}

func TestLoadAllSkeletonsFailsWithoutPriorBuild(t *testing.T) {
	top := loadSkeletonTestTopo(t)
	acDir := t.TempDir()
	if _, _, err := LoadAllSkeletons(top, acDir, t.TempDir(), "mf", "df"); err == nil {
		t.Fatal("expected error reloading skeletons that were never built")
	}
}

func TestBuildAllSkeletonsEmptyTopologyProducesNoSolvecFiles(t *testing.T) {
	dir := t.TempDir()
	topoPath := filepath.Join(dir, "topo.xml")
	xml := `<?xml version="1.0"?>
<design>
  <channelInfo>
    <channelTable id="WDM32" type="optical">
      <channel no="1"/>
    </channelTable>
  </channelInfo>
  <components>
    <comp ref="P1">
      <ports>
        <port number="1" name="PORT1" io="BiDi" supportChannel="WDM32"/>
      </ports>
    </comp>
  </components>
</design>`
	if err := os.WriteFile(topoPath, []byte(xml), 0o644); err != nil {
		t.Fatalf("writing topology fixture: %v", err)
	}
	acDir := t.TempDir()

	top, err := loadTopoForBootstrapTest(topoPath, acDir)
	if err != nil {
		t.Fatalf("topo.Load: %v", err)
	}

	skelDir := t.TempDir()
	_, _, err = BuildAllSkeletons(top, acDir, skelDir, "mf", "df", 2)
	if err != nil {
		t.Fatalf("BuildAllSkeletons: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(skelDir, "solvec_*"))
	if len(matches) != 0 {
		t.Errorf("expected no solvec files for a topology with no controller-bearing components, got %v", matches)
	}
}
