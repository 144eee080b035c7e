package nrmops

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aist-nrm/nrm/pkg/audit"
	"github.com/aist-nrm/nrm/pkg/config"
	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/reservation"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

// Handler dispatches client command lines to operations (spec §4.10),
// owning the shared topology, reservation manager, and orchestrator every
// operation runs against, plus the two process-wide toggles deltmp and
// dumpglpsol flip.
type Handler struct {
	Topo         *topo.Topology
	RsvMgr       *reservation.Manager
	Orchestrator *pathfinder.Orchestrator
	Config       *config.Config

	// TempBase is the parent directory each request's per-globalid temp
	// dir is created under (reserve.py's tempfile.gettempdir()/GLPK_DIR).
	TempBase string

	// Audit records reserve/terminate outcomes when non-nil; a nil Audit
	// is a no-op (spec's Non-goals don't require audit logging, but it
	// costs nothing to wire when a logger is configured).
	Audit audit.Logger

	flagsMu    sync.RWMutex
	deleteTmp  bool
	dumpGLPSol bool
}

// NewHandler returns a Handler with deltmp defaulted on and dumpglpsol
// defaulted off (opebase.py's module-level DELTMP=True, DUMP_GLPSOL=False).
func NewHandler(top *topo.Topology, rsvMgr *reservation.Manager, orch *pathfinder.Orchestrator, cfg *config.Config, tempBase string) *Handler {
	return &Handler{
		Topo:         top,
		RsvMgr:       rsvMgr,
		Orchestrator: orch,
		Config:       cfg,
		TempBase:     tempBase,
		deleteTmp:    true,
	}
}

func (h *Handler) getDeleteTmp() bool {
	h.flagsMu.RLock()
	defer h.flagsMu.RUnlock()
	return h.deleteTmp
}

func (h *Handler) setDeleteTmp(v bool) {
	h.flagsMu.Lock()
	defer h.flagsMu.Unlock()
	h.deleteTmp = v
}

func (h *Handler) getDumpGLPSol() bool {
	h.flagsMu.RLock()
	defer h.flagsMu.RUnlock()
	return h.dumpGLPSol
}

func (h *Handler) setDumpGLPSol(v bool) {
	h.flagsMu.Lock()
	defer h.flagsMu.Unlock()
	h.dumpGLPSol = v
}

// orchestratorForRequest returns an Orchestrator value bound to a Driver
// copy carrying this moment's deltmp/dumpglpsol flags and the request's
// -model/-data overrides, leaving the canonical Driver/Orchestrator
// untouched (and therefore safe to read concurrently from other requests).
func (h *Handler) orchestratorForRequest(modelKey, dataKey *string, poolSize int) pathfinder.Orchestrator {
	driver := *h.Orchestrator.Driver
	driver.DeleteTmp = h.getDeleteTmp()
	driver.DumpGLPSol = h.getDumpGLPSol()

	orch := *h.Orchestrator
	orch.Driver = &driver
	if poolSize > 0 {
		orch.PoolSize = poolSize
	}
	if h.Config != nil {
		orch.ModelFileKey = fileKey(modelKey, h.Config.GetPfTmpModel())
		orch.DataFileKey = fileKey(dataKey, h.Config.GetSolvecTmpModel())
	} else {
		orch.ModelFileKey = fileKey(modelKey, orch.ModelFileKey)
		orch.DataFileKey = fileKey(dataKey, orch.DataFileKey)
	}
	return orch
}

// runWithTempDir mints a globalid, creates its temp dir, runs fn, and
// removes the temp dir afterward when deltmp is on (reserve.py's query()).
func (h *Handler) runWithTempDir(ctx context.Context, fn func(ctx context.Context, tempDir string) (*pathfinder.Route, float64, error)) (string, *pathfinder.Route, float64, error) {
	globalid := reservation.NewGlobalID()
	tempDir, err := pathfinder.NewTempDir(h.TempBase, globalid)
	if err != nil {
		return globalid, nil, pathfinder.NotFoundCost, err
	}
	route, cost, runErr := fn(ctx, tempDir)
	if h.getDeleteTmp() {
		if rmErr := pathfinder.RemoveTempDir(tempDir); rmErr != nil {
			util.WithFields(map[string]any{"dir": tempDir, "error": rmErr}).Warn("nrmops: failed to remove temp dir")
		}
	}
	return globalid, route, cost, runErr
}

// logAudit records one reserve/terminate outcome when h.Audit is
// configured; a route's entries become RouteChange add/remove records
// keyed by PortChannel.Key() (spec §9's stable wire identifier), not the
// live topology pointers.
func (h *Handler) logAudit(operation, globalid string, route *pathfinder.Route, changeType audit.RouteChangeType, executeMode bool, start time.Time, opErr error) {
	if h.Audit == nil {
		return
	}
	var changes []audit.RouteChange
	if route != nil {
		changes = make([]audit.RouteChange, 0, len(route.Entries))
		for _, e := range route.Entries {
			changes = append(changes, audit.RouteChange{
				Src:  e.Src.Key(),
				Dst:  e.Dst.Key(),
				Type: changeType,
			})
		}
	}
	ev := audit.NewEvent("", globalid, operation).
		WithChanges(changes).
		WithExecuteMode(executeMode).
		WithDuration(time.Since(start))
	if opErr != nil {
		ev.WithError(opErr)
	} else {
		ev.WithSuccess()
	}
	if err := h.Audit.Log(ev); err != nil {
		util.WithField("error", err).Warn("nrmops: audit log write failed")
	}
}

// operation is one registered command: its usage text and the function
// that parses its own option tokens and performs it.
type operation struct {
	name  string
	usage string
	run   func(h *Handler, ctx context.Context, args []string) (reply string, usageErr bool, err error)
}

func (h *Handler) operations() []operation {
	return []operation{
		{name: "pathfind", usage: requestUsage, run: runPathfind},
		{name: "reserve", usage: requestUsage, run: runReserve},
		{name: "query", usage: "-g <globalid | id> [-q] [-db]", run: runQuery},
		{name: "terminate", usage: "-g <globalid | id> [-db]", run: runTerminate},
		{name: "TERMINATEALL", usage: "[-db]", run: runTerminateAll},
		{name: "writeDB", usage: "", run: runWriteDB},
		{name: "deltmp", usage: "[true|false]", run: runDeltmp},
		{name: "dumpglpsol", usage: "[true|false]", run: runDumpglpsol},
	}
}

func (h *Handler) allUsage() string {
	var lines []string
	for _, op := range h.operations() {
		lines = append(lines, fmt.Sprintf("usage: %s %s", op.name, op.usage))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// Dispatch parses and runs one client command line (request_handler.py's
// handle_req): an unrecognized op name replies with every op's usage, a
// parse failure replies with that op's usage, and any other failure
// degrades to an "ERROR: " reply rather than propagating — the server loop
// never crashes on a request-level error (spec §7).
func (h *Handler) Dispatch(ctx context.Context, line string) string {
	args := strings.Fields(line)
	if len(args) == 0 {
		return h.allUsage()
	}

	var op *operation
	for _, candidate := range h.operations() {
		if candidate.name == args[0] {
			c := candidate
			op = &c
			break
		}
	}
	if op == nil {
		return h.allUsage()
	}

	start := time.Now()
	reply, usageErr, err := op.run(h, ctx, args)
	elapsed := time.Since(start)
	util.WithFields(map[string]any{
		"op": op.name, "elapsed_ms": elapsed.Milliseconds(),
	}).Info("nrmops: operation complete")

	if err != nil {
		if usageErr {
			return fmt.Sprintf("usage: %s %s", op.name, op.usage)
		}
		return "ERROR: " + err.Error()
	}
	return reply
}
