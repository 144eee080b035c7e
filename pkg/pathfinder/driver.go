package pathfinder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aist-nrm/nrm/pkg/solver"
)

// OverlayBuilder renders the request-specific GLPK data fragment appended
// after a skeleton's data file — the `src`/`dst`/`NextERO`/`inuse_*` params
// for a pf sub-request, or the `Vinuse`/`Comps_<model>`/flow-set params for
// a solvec sub-request (spec §4.5). Supplied by the skeleton/overlay
// builder; kept as an interface here so the solver-driver glue does not
// depend on the builder's internals.
type OverlayBuilder func(req *Request) (string, error)

// Driver copies a precomputed skeleton data file into a per-request temp
// directory, appends the request's overlay, invokes the solver, and
// returns a parsed Result. One Driver is shared by every concurrent
// sub-request of a reservation; it carries no per-call mutable state.
type Driver struct {
	SkeletonDir string // GLPK_constant.get_model_data_file_dir(glpk_dir)
	Solver      solver.Solver
	DumpGLPSol  bool // if true, log raw stdout instead of discarding it
	DeleteTmp   bool // if true, remove the per-request temp dir on return

	BuildPFOverlay     OverlayBuilder
	BuildSolvecOverlay OverlayBuilder
}

// pfSkeletonBase mirrors reserve.py's _make_data_file_pf naming:
// "pf_<dataFileKey>_<channelFullNo>".
func pfSkeletonBase(skeletonDir, dataFileKey, chFullNo string) string {
	return filepath.Join(skeletonDir, fmt.Sprintf("pf_%s_%s", dataFileKey, chFullNo))
}

// solvecSkeletonBase mirrors _make_data_file_solvec's naming:
// "solvec_<dataFileKey>_<model>_<fileIdx>".
func solvecSkeletonBase(skeletonDir, dataFileKey, model string, fileIdx int) string {
	return filepath.Join(skeletonDir, fmt.Sprintf("solvec_%s_%s_%d", dataFileKey, model, fileIdx))
}

// RunPF executes one channel's primary-path solve: copy the channel's
// skeleton .data file into tempDir, append the request overlay, invoke
// glpsol with the pf model file, and parse the resulting cost.
func (d *Driver) RunPF(ctx context.Context, req *Request, modelFileKey, dataFileKey, tempDir string) (*Result, error) {
	if len(req.Channels) != 1 {
		return nil, &BuildError{Detail: "RunPF requires exactly one channel on the request"}
	}
	ch := req.Channels[0]

	skeletonData := pfSkeletonBase(d.SkeletonDir, dataFileKey, ch.FullNo()) + ".data"
	modelFile := filepath.Join(d.SkeletonDir, fmt.Sprintf("pf_%s.model", modelFileKey))

	name := fmt.Sprintf("pf_%s_%s_%s-%s", dataFileKey, ch.FullNo(), req.Src.Port.FullName(), req.Dst.Port.FullName())
	dataFile := filepath.Join(tempDir, name+".data")
	solFile := filepath.Join(tempDir, name+".sol")

	if err := copyFile(skeletonData, dataFile); err != nil {
		return nil, &BuildError{Detail: fmt.Sprintf("copying skeleton %s: %v", skeletonData, err)}
	}
	if d.BuildPFOverlay != nil {
		overlay, err := d.BuildPFOverlay(req)
		if err != nil {
			return nil, err
		}
		if err := appendFile(dataFile, overlay); err != nil {
			return nil, &BuildError{Detail: fmt.Sprintf("appending overlay to %s: %v", dataFile, err)}
		}
	}

	stdout, err := d.Solver.Solve(ctx, modelFile, dataFile, solFile, solver.MaxSecPathFind)
	if err != nil {
		return nil, fmt.Errorf("pathfinder: solving %s: %w", dataFile, err)
	}
	cost, err := solver.ParseCost(solFile)
	if err != nil {
		return nil, err
	}
	if cost >= solver.NotFoundCost {
		cost = NotFoundCost
	}
	d.logStdout(stdout)

	return &Result{Req: req, Cost: cost, Stdout: stdout}, nil
}

// RunSolvec executes one (model, component-group) channel-assignment
// solve for a solvec sub-request.
func (d *Driver) RunSolvec(ctx context.Context, req *Request, modelFileKey, dataFileKey string, fileIdx int, tempDir string) (*Result, error) {
	if req.Solvec == nil {
		return nil, &BuildError{Detail: "RunSolvec requires req.Solvec to be set"}
	}
	model := req.Solvec.Model

	skeletonData := solvecSkeletonBase(d.SkeletonDir, dataFileKey, model, fileIdx) + ".data"
	modelFile := filepath.Join(d.SkeletonDir, fmt.Sprintf("solvec_%s_%s.model", modelFileKey, model))

	name := fmt.Sprintf("solvec_%s_%s_%d_%s-%s", dataFileKey, model, fileIdx, req.Src.Port.FullName(), req.Dst.Port.FullName())
	dataFile := filepath.Join(tempDir, name+".data")
	solFile := filepath.Join(tempDir, name+".sol")

	if err := copyFile(skeletonData, dataFile); err != nil {
		return nil, &BuildError{Detail: fmt.Sprintf("copying skeleton %s: %v", skeletonData, err)}
	}
	if d.BuildSolvecOverlay != nil {
		overlay, err := d.BuildSolvecOverlay(req)
		if err != nil {
			return nil, err
		}
		if err := appendFile(dataFile, overlay); err != nil {
			return nil, &BuildError{Detail: fmt.Sprintf("appending overlay to %s: %v", dataFile, err)}
		}
	}

	stdout, err := d.Solver.Solve(ctx, modelFile, dataFile, solFile, solver.MaxSecSolvec)
	if err != nil {
		return nil, fmt.Errorf("pathfinder: solving %s: %w", dataFile, err)
	}
	d.logStdout(stdout)

	// solvec results are consumed by scanning stdout for device-channel
	// assignments (ParseSolvecRouteEntries), not by a numeric path cost.
	return &Result{Req: req, Cost: solver.NotFoundCost, Stdout: stdout}, nil
}

func (d *Driver) logStdout(stdout string) {
	if !d.DumpGLPSol {
		return
	}
	fmt.Fprintln(os.Stderr, stdout)
}

// NewTempDir creates the per-request working directory under base, named
// for globalid, matching reserve.py's query()'s
// os.path.join(tempfile.gettempdir(), GLPK_DIR, globalid) layout.
func NewTempDir(base, globalid string) (string, error) {
	dir := filepath.Join(base, globalid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pathfinder: creating temp dir %s: %w", dir, err)
	}
	return dir, nil
}

// RemoveTempDir deletes a request's temp dir when DeleteTmp is enabled.
func RemoveTempDir(dir string) error {
	return os.RemoveAll(dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}
