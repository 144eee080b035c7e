package pathfinder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aist-nrm/nrm/pkg/solver"
	"github.com/aist-nrm/nrm/pkg/topo"
)

func writeSkeleton(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDriverRunPFCopiesSkeletonAndAppendsOverlay(t *testing.T) {
	skeletonDir := t.TempDir()
	tempDir := t.TempDir()
	cannedSol := filepath.Join(t.TempDir(), "canned.sol")
	writeSkeleton(t, filepath.Dir(cannedSol), "canned.sol", "PATH_COST = 3 (MINimum)\n")

	ch := &topo.Channel{Number: 1, ChannelTableID: "WDM32"}
	src := &topo.Port{Number: 2, Component: &topo.Component{Name: "P1201"}}
	dst := &topo.Port{Number: 1, Component: &topo.Component{Name: "P204"}}

	writeSkeleton(t, skeletonDir, "pf_topo_"+ch.FullNo()+".data", "set V := 1..4;\n")
	writeSkeleton(t, skeletonDir, "pf_topo.model", "/* model */\n")

	req := &Request{
		Src:      topo.PortChannel{Port: src},
		Dst:      topo.PortChannel{Port: dst},
		Channels: []*topo.Channel{ch},
	}

	var overlayCalled bool
	d := &Driver{
		SkeletonDir: skeletonDir,
		Solver:      &solver.Stub{Stdout: "# result line", SolFile: cannedSol},
		BuildPFOverlay: func(r *Request) (string, error) {
			overlayCalled = true
			return "param src := 1;\n", nil
		},
	}

	result, err := d.RunPF(context.Background(), req, "topo", "topo", tempDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !overlayCalled {
		t.Fatal("expected BuildPFOverlay to be invoked")
	}
	if result.Cost != 3 {
		t.Fatalf("expected cost 3, got %v", result.Cost)
	}
	if result.Stdout != "# result line" {
		t.Fatalf("unexpected stdout: %q", result.Stdout)
	}

	dataFile := filepath.Join(tempDir, "pf_topo_WDM32_1_P1201_2-P204_1.data")
	body, err := os.ReadFile(dataFile)
	if err != nil {
		t.Fatalf("expected overlay-appended data file: %v", err)
	}
	if !strings.Contains(string(body), "set V := 1..4;") || !strings.Contains(string(body), "param src := 1;") {
		t.Fatalf("expected skeleton + overlay content, got %q", body)
	}
}

func TestNewTempDirAndRemove(t *testing.T) {
	base := t.TempDir()
	dir, err := NewTempDir(base, "urn:uuid:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected dir to exist: %v", err)
	}
	if err := RemoveTempDir(dir); err != nil {
		t.Fatalf("unexpected error removing temp dir: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected dir to be removed, stat err=%v", err)
	}
}
