package pathfinder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aist-nrm/nrm/pkg/acbuilder"
	"github.com/aist-nrm/nrm/pkg/config"
	"github.com/aist-nrm/nrm/pkg/glpktext"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

// Orchestrator drives one top-level request through the full pipeline
// (spec §4.8): ERO split, bounded per-channel fan-out, used-route/used-conn
// merging between sub-requests, answer selection across candidate
// channels, bidi backward-path synthesis, and the solvec channel-
// assignment follow-up. One Orchestrator is shared across requests; it
// carries no per-call mutable state of its own (the request's Errors/
// UsedRoute/UsedConn fields hold everything that changes per call).
type Orchestrator struct {
	Topo   *topo.Topology
	Driver *Driver

	// PoolSize bounds concurrent solver invocations per sub-request; 0
	// means logical CPU count (spec §4.8 step 3's default).
	PoolSize int
	// NumComps bounds solvec component-group size (spec §4.8 step 7);
	// 0 means config.DefaultNumComps.
	NumComps int

	ModelFileKey, DataFileKey string
}

func (o *Orchestrator) poolSize() int {
	if o.PoolSize > 0 {
		return o.PoolSize
	}
	return runtime.NumCPU()
}

func (o *Orchestrator) numComps() int {
	if o.NumComps > 0 {
		return o.NumComps
	}
	return config.DefaultNumComps
}

// LoadModels mirrors pathfinder_util.load_all_modelfiles: for every
// distinct component model in the topology, reads that model's `.model`
// file (written by the AC builder alongside its `.conn.txt`) from acDir,
// and skips any model whose parsed GLPK carries no s.t. constraints (the
// upstream exclusion for models like an EDFA variant with no real
// such-that data).
func LoadModels(top *topo.Topology, acDir string) (map[string]*glpktext.Model, error) {
	models := map[string]*glpktext.Model{}
	for _, comp := range top.AllComponents() {
		if comp.Model == "" {
			continue
		}
		m, ok := models[comp.Model]
		if !ok {
			path := filepath.Join(acDir, acbuilder.ModelFilename(comp.Model))
			text, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("pathfinder: reading model file %s: %w", path, err)
			}
			glpk, err := glpktext.Parse(string(text))
			if err != nil {
				return nil, fmt.Errorf("pathfinder: parsing model file %s: %w", path, err)
			}
			if len(glpk.StDefs) == 0 {
				continue
			}
			m = glpktext.NewModel(comp.Model, glpk)
			models[comp.Model] = m
		}
		m.AddComponent(comp.Name, comp.HasController(), func(model, c string) {
			util.WithFields(map[string]any{"model": model, "component": c}).Warn("pathfinder: components sharing a model disagree on controller presence")
		})
	}
	return models, nil
}

// checkBidi enforces the bidi availability guard: both endpoints must have
// an opposite port, or the request fails outright (spec §4.8).
func checkBidi(req *Request) error {
	if !req.Bidi {
		return nil
	}
	if !req.Src.Port.HasOpposite() {
		return &BidiNotSupportedError{PortName: req.Src.Port.FullName()}
	}
	if !req.Dst.Port.HasOpposite() {
		return &BidiNotSupportedError{PortName: req.Dst.Port.FullName()}
	}
	return nil
}

// subChannelResult is one sub-request's outcome for one candidate channel
// slot: either a successfully parsed route + cost, or a miss (unsupported
// channel, no feasible solution, or a solve error already recorded on the
// sub-request).
type subChannelResult struct {
	ch    *topo.Channel
	route *Route
	cost  float64
	ok    bool
}

// solveSubRequest runs every candidate channel for one ERO sub-request
// concurrently, bounded by poolSize, and returns one result per channel
// index (spec §4.8 steps 2-3). A MalformedSolverOutputError aborts the
// whole group; any other per-channel failure is recorded as a diagnostic
// and treated as "no solution for this slot."
func (o *Orchestrator) solveSubRequest(ctx context.Context, sub *Request, tempDir string) ([]subChannelResult, error) {
	out := make([]subChannelResult, len(sub.Channels))

	var mu sync.Mutex
	var msgs []string
	addMsg := func(format string, args ...any) {
		mu.Lock()
		msgs = append(msgs, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.poolSize())
	for i, ch := range sub.Channels {
		i, ch := i, ch
		g.Go(func() error {
			if !sub.SupportsChannel(ch) {
				addMsg("channel %s not supported by %s<->%s", ch.FullNo(), sub.Src.Port.FullName(), sub.Dst.Port.FullName())
				return nil
			}
			child := sub.ChildForChannel(ch)
			res, err := o.Driver.RunPF(gctx, child, o.ModelFileKey, o.DataFileKey, tempDir)
			if err != nil {
				var malformed *MalformedSolverOutputError
				if errors.As(err, &malformed) {
					return err
				}
				addMsg("channel %s: %v", ch.FullNo(), err)
				return nil
			}
			if !res.HasAnswer() {
				addMsg("channel %s: no feasible solution", ch.FullNo())
				return nil
			}
			route, err := res.ParsePFRouteEntries(o.Topo)
			if err != nil {
				return err
			}
			out[i] = subChannelResult{ch: ch, route: route, cost: res.Cost, ok: true}
			return nil
		})
	}
	err := g.Wait()
	for _, m := range msgs {
		sub.AddError("%s", m)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// mergeSubResults folds every successful per-channel route of one
// sub-request into the shared used_route/used_conn (spec §4.8 step 4),
// regardless of which channel index eventually wins answer selection.
func mergeSubResults(req *Request, results []subChannelResult) {
	for _, r := range results {
		if !r.ok || r.route == nil {
			continue
		}
		req.UsedRoute.MergePFRoute(r.route)
		req.UsedConn.MergeSolvecRoute(r.route)
	}
}

type candidate struct {
	idx  int
	cost float64
}

// selectCandidates builds the ascending-cost candidate order (spec §4.8
// step 5): a channel index is a candidate only if every sub-request
// succeeded on it; ties break on channel index.
func selectCandidates(channels []*topo.Channel, subResults [][]subChannelResult) []candidate {
	if len(subResults) == 0 {
		return nil
	}
	var out []candidate
	for idx := range channels {
		total := 0.0
		allOK := true
		for _, sr := range subResults {
			if idx >= len(sr) || !sr[idx].ok {
				allOK = false
				break
			}
			total += sr[idx].cost
		}
		if allOK {
			out = append(out, candidate{idx: idx, cost: total})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].cost != out[j].cost {
			return out[i].cost < out[j].cost
		}
		return out[i].idx < out[j].idx
	})
	return out
}

func forwardRouteForCandidate(subResults [][]subChannelResult, idx int) *Route {
	var entries []RouteEntry
	for _, sr := range subResults {
		entries = append(entries, sr[idx].route.Entries...)
	}
	return NewRoute(entries)
}

// portChannelChain flattens a Route's entries into the ordered port/channel
// waypoint sequence it visits (src, then every entry's dst, in order).
func portChannelChain(route *Route) []topo.PortChannel {
	if len(route.Entries) == 0 {
		return nil
	}
	chain := make([]topo.PortChannel, 0, len(route.Entries)+1)
	chain = append(chain, route.Entries[0].Src)
	for _, e := range route.Entries {
		chain = append(chain, e.Dst)
	}
	return chain
}

// buildBackList scans a forward path's waypoints from end to start looking
// for wired port-pair opposites (spec §4.8 step 6's first bullet). The
// upstream reference walks the full index range including the wraparound
// case i=0 (pairing the first waypoint against the last); that comparison
// can never find a real pair on a simple path, so it's dropped here rather
// than reproduced.
func (o *Orchestrator) buildBackList(forward *Route) []RouteEntry {
	pcList := portChannelChain(forward)
	var backList []RouteEntry
	for i := len(pcList) - 1; i >= 1; i-- {
		goSrc := pcList[i-1]
		goDst := pcList[i]
		pair := o.Topo.FindPortPair(goSrc.Port, goDst.Port)
		if pair == nil {
			continue
		}
		backList = append(backList, RouteEntry{
			Src:  topo.PortChannel{Port: pair.Src, Channel: goSrc.Channel},
			Dst:  topo.PortChannel{Port: pair.Dst, Channel: goDst.Channel},
			X:    true,
			C:    true,
			IsGo: false,
		})
	}
	return backList
}

// simplePathSearch is a plain BFS over the flow_out graph from src to dst,
// grounded on simple_path_finder.SimplePathFinder.search: ports in the same
// component return the trivial two-hop path; otherwise breadth-first over
// FlowOuts, returning nil if dst is unreachable.
func (o *Orchestrator) simplePathSearch(src, dst *topo.Port) []*topo.Port {
	if o.Topo.ComponentByPort(src) == o.Topo.ComponentByPort(dst) {
		return []*topo.Port{src, dst}
	}

	type node struct {
		port *topo.Port
		pred *node
	}
	visited := map[*topo.Port]bool{src: true}
	start := &node{port: src}
	queue := []*node{start}
	var goal *node
	for len(queue) > 0 && goal == nil {
		cur := queue[0]
		queue = queue[1:]
		if cur.port == dst {
			goal = cur
			break
		}
		for next := range cur.port.FlowOuts {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, &node{port: next, pred: cur})
		}
	}
	if goal == nil {
		return nil
	}
	var path []*topo.Port
	for n := goal; n != nil; n = n.pred {
		path = append([]*topo.Port{n.port}, path...)
	}
	if len(path) <= 1 {
		return nil
	}
	return path
}

// addSubPath fills a gap between two waypoints of a synthesized back path
// using simplePathSearch, verifying every hop with HasConnection (spec
// §4.8 step 6's second bullet).
func (o *Orchestrator) addSubPath(src, dst *topo.Port, ch *topo.Channel) ([]RouteEntry, bool) {
	ports := o.simplePathSearch(src, dst)
	if ports == nil {
		util.WithFields(map[string]any{"src": src.FullName(), "dst": dst.FullName()}).
			Error("pathfinder: cannot find sub path for back route")
		return nil, false
	}
	var entries []RouteEntry
	for i := 0; i < len(ports)-1; i++ {
		if !o.Topo.HasConnection(ports[i], ch, ports[i+1], ch) {
			util.WithFields(map[string]any{
				"src": ports[i].FullName(), "dst": ports[i+1].FullName(), "ch": ch.FullNo(),
			}).Error("pathfinder: has no connection along synthesized back path")
			return nil, false
		}
		entries = append(entries, RouteEntry{
			Src:  topo.PortChannel{Port: ports[i], Channel: ch},
			Dst:  topo.PortChannel{Port: ports[i+1], Channel: ch},
			X:    true,
			C:    true,
			IsGo: false,
		})
	}
	return entries, true
}

// makeFullBackRoute connects backList's wired-pair hops end to end, filling
// every gap (including the very first and last) via addSubPath, starting
// from the forward destination's opposite port and ending at the forward
// source's opposite port.
func (o *Orchestrator) makeFullBackRoute(goDst, goSrc topo.PortChannel, backList []RouteEntry) ([]RouteEntry, bool) {
	backSrc := goDst.Port.Opposite()
	backDst := goSrc.Port.Opposite()
	if backSrc == nil || backDst == nil {
		return nil, false
	}
	ch := goDst.Channel

	var full []RouteEntry
	beforeDst := backSrc
	for _, entry := range backList {
		if beforeDst.FullName() != entry.Src.Port.FullName() {
			sub, ok := o.addSubPath(beforeDst, entry.Src.Port, ch)
			if !ok {
				return nil, false
			}
			full = append(full, sub...)
		}
		full = append(full, entry)
		beforeDst = entry.Dst.Port
	}
	if beforeDst.FullName() != backDst.FullName() {
		sub, ok := o.addSubPath(beforeDst, backDst, ch)
		if !ok {
			return nil, false
		}
		full = append(full, sub...)
	}
	return full, true
}

// synthesizeBidi builds the reverse path for a chosen forward candidate
// (spec §4.8 step 6), rejecting it if any synthesized hop is already
// claimed in req.UsedRoute.
func (o *Orchestrator) synthesizeBidi(req *Request, forward *Route) ([]RouteEntry, bool) {
	if len(forward.Entries) == 0 {
		return nil, false
	}
	backList := o.buildBackList(forward)
	answerSrc := forward.Entries[0].Src
	answerDst := forward.Entries[len(forward.Entries)-1].Dst

	fullBack, ok := o.makeFullBackRoute(answerDst, answerSrc, backList)
	if !ok {
		req.AddError("cannot find back path")
		return nil, false
	}
	for _, e := range fullBack {
		if e.X && req.UsedRoute.HasXEntry(e.Src, e.Dst) {
			req.AddError("back path is already used: %s@%s -> %s@%s",
				e.Src.Port.FullName(), e.Src.Channel.FullNo(), e.Dst.Port.FullName(), e.Dst.Channel.FullNo())
			return nil, false
		}
	}
	return fullBack, true
}

// usedComponentsWithController collects every controller-bearing component
// touched by route's endpoints (spec §4.8 step 7's "used components").
func usedComponentsWithController(top *topo.Topology, route *Route) map[*topo.Component]bool {
	out := map[*topo.Component]bool{}
	for _, e := range route.Entries {
		for _, p := range [2]*topo.Port{e.Src.Port, e.Dst.Port} {
			if c := top.ComponentByPort(p); c != nil && c.HasController() {
				out[c] = true
			}
		}
	}
	return out
}

// partitionSolvecGroups mirrors pathfinder_util.make_solvec_target, scoped
// to the (already-identified) used controller-bearing components rather
// than every component of every known model: groups natural-sorted
// components per model into chunks of at most numComps.
func partitionSolvecGroups(usedComps map[*topo.Component]bool, numComps int) []*SolvecTarget {
	byModel := map[string][]*topo.Component{}
	var modelOrder []string
	for c := range usedComps {
		if _, ok := byModel[c.Model]; !ok {
			modelOrder = append(modelOrder, c.Model)
		}
		byModel[c.Model] = append(byModel[c.Model], c)
	}
	util.SortNatural(modelOrder)

	var targets []*SolvecTarget
	for _, model := range modelOrder {
		comps := byModel[model]
		sort.Slice(comps, func(i, j int) bool { return util.NaturalLess(comps[i].Name, comps[j].Name) })
		for i := 0; i < len(comps); i += numComps {
			end := i + numComps
			if end > len(comps) {
				end = len(comps)
			}
			targets = append(targets, &SolvecTarget{
				Model:      model,
				Components: append([]*topo.Component(nil), comps[i:end]...),
			})
		}
	}
	return targets
}

// runSolvecPhase drives the channel-assignment follow-up (spec §4.8 step
// 7): partitions the used controller-bearing components and solves one
// solvec request per group in sequence, merging each into combined via
// ckey dedup. Returns false (without a hard error) if any group's solver
// found no answer, signaling the caller to try the next candidate path.
func (o *Orchestrator) runSolvecPhase(ctx context.Context, req *Request, combined *Route, tempDir string) (bool, error) {
	usedComps := usedComponentsWithController(o.Topo, combined)
	if len(usedComps) == 0 {
		return true, nil
	}
	groups := partitionSolvecGroups(usedComps, o.numComps())

	for i, target := range groups {
		solvecReq := &Request{
			Topo:      req.Topo,
			Src:       req.Src,
			Dst:       req.Dst,
			Channels:  o.Topo.AllChannels(),
			Mode:      ModeSolvec,
			Solvec:    target,
			UsedRoute: combined,
			UsedConn:  req.UsedConn,
			Parent:    req,
		}
		res, err := o.Driver.RunSolvec(ctx, solvecReq, o.ModelFileKey, o.DataFileKey, i+1, tempDir)
		if err != nil {
			return false, err
		}
		route, err := res.ParseSolvecRouteEntries(o.Topo)
		if err != nil {
			return false, err
		}
		if route == nil {
			req.AddError("solvec group %s/%d: no answer", target.Model, i+1)
			return false, nil
		}
		combined.MergeSolvecRoute(route)
	}
	return true, nil
}

// Run drives req through the full pipeline and returns the winning route
// and its cost. tempDir is the per-request working directory (caller's
// responsibility to create via NewTempDir and remove via RemoveTempDir).
func (o *Orchestrator) Run(ctx context.Context, req *Request, tempDir string) (*Route, float64, error) {
	if err := checkBidi(req); err != nil {
		return nil, NotFoundCost, err
	}
	if req.UsedRoute == nil {
		req.UsedRoute = NewRoute(nil)
	}
	if req.UsedConn == nil {
		req.UsedConn = NewRoute(nil)
	}

	subs := req.SplitERO()
	subResults := make([][]subChannelResult, 0, len(subs))
	for _, sub := range subs {
		results, err := o.solveSubRequest(ctx, sub, tempDir)
		if err != nil {
			return nil, NotFoundCost, err
		}
		mergeSubResults(req, results)
		subResults = append(subResults, results)
	}

	candidates := selectCandidates(req.Channels, subResults)
	if len(candidates) == 0 {
		return nil, NotFoundCost, &NoAnswerError{Reason: strings.Join(req.Errors, "; ")}
	}

	for _, cand := range candidates {
		forward := forwardRouteForCandidate(subResults, cand.idx)
		combined := NewRoute(append([]RouteEntry(nil), forward.Entries...))

		if req.Bidi {
			back, ok := o.synthesizeBidi(req, forward)
			if !ok {
				continue
			}
			combined.Entries = append(combined.Entries, back...)
		}

		ok, err := o.runSolvecPhase(ctx, req, combined, tempDir)
		if err != nil {
			return nil, NotFoundCost, err
		}
		if !ok {
			continue
		}
		return combined, cand.cost, nil
	}

	return nil, NotFoundCost, &NoAnswerError{Reason: strings.Join(req.Errors, "; ")}
}

// wdmsaState guards the process-wide round-robin counter -wdmsa advances
// (spec §5's "protect with a lock if multi-client support is added" —
// applied preemptively since the server already dispatches per-channel
// solves concurrently within one request).
var wdmsaState struct {
	mu      sync.Mutex
	counter int
}

// NextWDMSAChannel returns the next channel in round-robin order across
// calls (spec §4.8's -wdmsa option).
func NextWDMSAChannel(channels []*topo.Channel) *topo.Channel {
	if len(channels) == 0 {
		return nil
	}
	wdmsaState.mu.Lock()
	defer wdmsaState.mu.Unlock()
	ch := channels[wdmsaState.counter%len(channels)]
	wdmsaState.counter++
	return ch
}

// ResolveChannels expands the -ch option (spec §4.8). Absent, every channel
// of table. Otherwise each argument is either the full name of a single
// channel ("WDM32_1") or, if it contains "..", a closed range bounded by two
// full names within table ("WDM32_1..WDM32_4"); every argument's channels are
// unioned together and the result is sorted by full name.
func ResolveChannels(table *topo.ChannelTable, chArgs []string) ([]*topo.Channel, error) {
	if len(chArgs) == 0 {
		return append([]*topo.Channel(nil), table.Channels...), nil
	}

	byFullNo := make(map[string]*topo.Channel, len(table.Channels))
	for _, ch := range table.Channels {
		byFullNo[ch.FullNo()] = ch
	}
	lookup := func(name string) (*topo.Channel, error) {
		ch, ok := byFullNo[name]
		if !ok {
			return nil, &RequestError{Detail: fmt.Sprintf("invalid channel name: %s", name)}
		}
		return ch, nil
	}

	picked := make(map[string]*topo.Channel)
	for _, a := range chArgs {
		if lo, hi, ok := parseChannelRange(a); ok {
			loCh, err := lookup(lo)
			if err != nil {
				return nil, err
			}
			hiCh, err := lookup(hi)
			if err != nil {
				return nil, err
			}
			matched := 0
			for _, ch := range table.Channels {
				if ch.Number >= loCh.Number && ch.Number <= hiCh.Number {
					picked[ch.FullNo()] = ch
					matched++
				}
			}
			if matched == 0 {
				return nil, &RequestError{Detail: fmt.Sprintf("invalid channels: %s", a)}
			}
			continue
		}
		ch, err := lookup(a)
		if err != nil {
			return nil, err
		}
		picked[ch.FullNo()] = ch
	}

	names := make([]string, 0, len(picked))
	for name := range picked {
		names = append(names, name)
	}
	util.SortNatural(names)

	out := make([]*topo.Channel, 0, len(names))
	for _, name := range names {
		out = append(out, picked[name])
	}
	return out, nil
}

// parseChannelRange splits a "<start>..<end>" -ch argument into its two full
// channel names. Both names must resolve within the same table (checked by
// the caller via lookup); this just recognizes the "a..b" shape.
func parseChannelRange(s string) (lo, hi string, ok bool) {
	parts := strings.SplitN(s, "..", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
