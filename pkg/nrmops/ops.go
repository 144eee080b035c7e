package nrmops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aist-nrm/nrm/pkg/audit"
	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/reservation"
)

// runPathfind computes a route without reserving it (reserve.py's
// Pathfind.operation, a thin query()-only wrapper around Reserve).
func runPathfind(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	opts, err := parseOptions(requestOptionDefs, args[1:])
	if err != nil {
		return "", true, err
	}
	req, err := buildRequest(h.Topo, opts)
	if err != nil {
		return "", false, err
	}

	orch := h.orchestratorForRequest(opts.str("model"), opts.str("data"), poolSize(opts))
	globalid, _, err := runRequest(h, ctx, &orch, req)
	if err != nil {
		return "", false, err
	}
	reply := fmt.Sprintf("globalId=%s", globalid)
	if len(req.Errors) > 0 {
		reply = strings.Join(req.Errors, "\n") + "\n" + reply
	}
	return reply, false, nil
}

// runReserve computes and commits a route (reserve.py's Reserve.operation).
func runReserve(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	start := time.Now()
	opts, err := parseOptions(requestOptionDefs, args[1:])
	if err != nil {
		return "", true, err
	}
	req, err := buildRequest(h.Topo, opts)
	if err != nil {
		return "", false, err
	}

	orch := h.orchestratorForRequest(opts.str("model"), opts.str("data"), poolSize(opts))
	globalid, route, err := runRequest(h, ctx, &orch, req)
	if err != nil {
		h.logAudit("reserve", globalid, nil, audit.RouteChangeAdd, true, start, err)
		return "", false, err
	}
	if route == nil || len(route.Entries) == 0 {
		err := fmt.Errorf("no route found")
		h.logAudit("reserve", globalid, nil, audit.RouteChangeAdd, true, start, err)
		return "", false, err
	}

	// The committed reservation's endpoints carry the channel the solve
	// actually assigned, not the unresolved request endpoints — taken from
	// the computed path's first/last waypoint (GLPK_route.make_path_list,
	// reserve.py's _reserve: "Reservation(globalid, go_list[0], go_list[-1], route)").
	goList, err := makePathList(route, req.Src, true)
	if err != nil {
		h.logAudit("reserve", globalid, route, audit.RouteChangeAdd, true, start, err)
		return "", false, err
	}
	if len(goList) < 2 {
		err := fmt.Errorf("no route found")
		h.logAudit("reserve", globalid, route, audit.RouteChangeAdd, true, start, err)
		return "", false, err
	}

	rsv := reservation.New(globalid, goList[0], goList[len(goList)-1], route)
	id := h.RsvMgr.Add(rsv)
	h.logAudit("reserve", globalid, route, audit.RouteChangeAdd, true, start, nil)

	reply := fmt.Sprintf("id=%s, globalId=%s", id, globalid)
	if len(req.Errors) > 0 {
		reply = strings.Join(req.Errors, "\n") + "\n" + reply
	}
	return reply, false, nil
}

// runRequest mints a globalid, creates/removes its temp dir, and runs the
// orchestrator once; both pathfind and reserve are thin wrappers around it
// since the orchestrator already performs the full per-candidate ERO/bidi/
// solvec loop (spec §4.8) — there is no request-loop logic left to port.
func runRequest(h *Handler, ctx context.Context, orch *pathfinder.Orchestrator, req *pathfinder.Request) (globalid string, route *pathfinder.Route, err error) {
	globalid, route, _, err = h.runWithTempDir(ctx, func(ctx context.Context, tempDir string) (*pathfinder.Route, float64, error) {
		return orch.Run(ctx, req, tempDir)
	})
	return globalid, route, err
}

// runQuery implements query.py's Query.operation: with -g, dump one
// reservation (resolving -db's urn-prefixed globalid or a short id via the
// manager); without -g, dump every reservation.
func runQuery(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	defs := []optionDef{oneOpt("g"), boolOpt("q"), boolOpt("db")}
	opts, err := parseOptions(defs, args[1:])
	if err != nil {
		return "", true, err
	}
	withDB := opts.boolVal("db")
	quiet := opts.boolVal("q")

	g := opts.str("g")
	if g == nil {
		rsvs, err := h.RsvMgr.GetAll(ctx, withDB)
		if err != nil {
			return "", false, err
		}
		if len(rsvs) == 0 {
			return "No Reservation", false, nil
		}
		return dumpAllReserve(h.Topo, rsvs, quiet), false, nil
	}

	globalid, err := resolveGlobalID(h, *g, withDB)
	if err != nil {
		return "", false, err
	}
	rsv, err := h.RsvMgr.Get(ctx, globalid, withDB)
	if err != nil {
		return "", false, err
	}
	if rsv == nil {
		return "No Reservation", false, nil
	}
	return dumpAllReserve(h.Topo, []*reservation.Reservation{rsv}, quiet), false, nil
}

// resolveGlobalID implements the -g/-db resolution every query/terminate
// variant shares: with -db, -g must already be a urn-prefixed globalid
// (terminate.py/query.py require this so DB lookups never depend on the
// in-memory short-id table); otherwise it's resolved as a short id.
func resolveGlobalID(h *Handler, g string, withDB bool) (string, error) {
	if withDB {
		if !strings.HasPrefix(g, "urn:") {
			return "", fmt.Errorf("-g must be a globalid (urn:...) when -db is set: %s", g)
		}
		return g, nil
	}
	globalid, ok := h.RsvMgr.Resolve(g)
	if !ok {
		return "", fmt.Errorf("cannot find reservation: %s", g)
	}
	return globalid, nil
}

// runTerminate implements terminate.py's Terminate.operation: deletes from
// memory and, when -db is set, from the durable store too, reporting
// exactly which of the two actually removed something.
func runTerminate(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	start := time.Now()
	defs := []optionDef{oneOpt("g"), boolOpt("db")}
	opts, err := parseOptions(defs, args[1:])
	if err != nil {
		return "", true, err
	}
	g, err := opts.requiredStr("g")
	if err != nil {
		return "", true, err
	}
	withDB := opts.boolVal("db")

	if withDB {
		if !strings.HasPrefix(g, "urn:") {
			return "", false, fmt.Errorf("-g must be a globalid (urn:...) when -db is set: %s", g)
		}
		rsv, _ := h.RsvMgr.Get(ctx, g, true)
		fromMem := h.RsvMgr.Delete(g)
		fromDB, dbErr := h.RsvMgr.DeleteDB(ctx, g)
		switch {
		case fromMem && fromDB:
			h.logAudit("terminate", g, routeOf(rsv), audit.RouteChangeRemove, true, start, nil)
			return fmt.Sprintf("delete from memory and DB: %s", g), false, nil
		case fromMem:
			msg := fmt.Sprintf("delete from memory: %s", g)
			if dbErr != nil {
				msg = fmt.Sprintf("%s (DB delete failed: %v)", msg, dbErr)
			}
			h.logAudit("terminate", g, routeOf(rsv), audit.RouteChangeRemove, true, start, nil)
			return msg, false, nil
		case fromDB:
			h.logAudit("terminate", g, routeOf(rsv), audit.RouteChangeRemove, true, start, nil)
			return fmt.Sprintf("delete from DB: %s", g), false, nil
		default:
			err := fmt.Errorf("cannot find reservation: %s", g)
			h.logAudit("terminate", g, nil, audit.RouteChangeRemove, true, start, err)
			return "", false, err
		}
	}

	globalid, ok := h.RsvMgr.Resolve(g)
	if !ok {
		err := fmt.Errorf("cannot find reservation: %s", g)
		h.logAudit("terminate", g, nil, audit.RouteChangeRemove, true, start, err)
		return "", false, err
	}
	rsv, _ := h.RsvMgr.Get(ctx, globalid, false)
	if !h.RsvMgr.Delete(globalid) {
		err := fmt.Errorf("cannot find reservation: %s", g)
		h.logAudit("terminate", globalid, nil, audit.RouteChangeRemove, true, start, err)
		return "", false, err
	}
	h.logAudit("terminate", globalid, routeOf(rsv), audit.RouteChangeRemove, true, start, nil)
	return fmt.Sprintf("delete from memory: %s", g), false, nil
}

// routeOf extracts rsv's Route for audit purposes, tolerating a nil
// reservation (e.g. when the DB-only path deletes a record never loaded
// into memory on this server).
func routeOf(rsv *reservation.Reservation) *pathfinder.Route {
	if rsv == nil {
		return nil
	}
	return rsv.Route
}

// runTerminateAll implements TERMINATEALL.operation: clears memory, and
// (with -db) the durable store too.
func runTerminateAll(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	start := time.Now()
	defs := []optionDef{boolOpt("db")}
	opts, err := parseOptions(defs, args[1:])
	if err != nil {
		return "", true, err
	}
	h.RsvMgr.DeleteAll()
	if opts.boolVal("db") {
		if err := h.RsvMgr.DeleteDBAll(ctx); err != nil {
			h.logAudit("terminateall", "", nil, audit.RouteChangeRemove, true, start, err)
			return "", false, err
		}
		h.logAudit("terminateall", "", nil, audit.RouteChangeRemove, true, start, nil)
		return "delete all reservations from memory and DB", false, nil
	}
	h.logAudit("terminateall", "", nil, audit.RouteChangeRemove, true, start, nil)
	return "delete all reservations from memory", false, nil
}

// runWriteDB implements writeDB.py: no options of its own, just flushes
// every unwritten in-memory reservation to the durable store.
func runWriteDB(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	return h.RsvMgr.WriteDB(ctx), false, nil
}

// runDeltmp implements deltmp.py: with no argument, reports the current
// value; with true/false, sets it.
func runDeltmp(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	v, set, err := parseTrueFalseOption(args)
	if err != nil {
		return "", true, err
	}
	if set {
		h.setDeleteTmp(v)
	}
	return fmt.Sprintf("deltmp: %t", h.getDeleteTmp()), false, nil
}

// runDumpglpsol implements dumpglpsol.py: with no argument, reports the
// current value; with true/false, sets it.
func runDumpglpsol(h *Handler, ctx context.Context, args []string) (string, bool, error) {
	v, set, err := parseTrueFalseOption(args)
	if err != nil {
		return "", true, err
	}
	if set {
		h.setDumpGLPSol(v)
	}
	return fmt.Sprintf("dumpglpsol: %t", h.getDumpGLPSol()), false, nil
}
