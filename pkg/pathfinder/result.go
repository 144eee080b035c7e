package pathfinder

import (
	"regexp"
	"strings"

	"github.com/aist-nrm/nrm/pkg/topo"
)

// Result holds the outcome of one solver invocation: the request it
// answers, the parsed path cost, and the raw stdout for later parsing
// into route entries.
type Result struct {
	Req    *Request
	Cost   float64
	Stdout string
}

// HasAnswer reports whether the solver found a feasible solution.
func (r *Result) HasAnswer() bool {
	return r.Cost < NotFoundCost
}

var resultFieldSplit = regexp.MustCompile(`[ \t]+`)

// ParsePFRouteEntries extracts RouteEntries from a pf-mode solver's stdout:
// each "#"-prefixed line with exactly 10 whitespace-separated fields is a
// candidate; fields 5 (isX) and 6 (isC) must both be "1" (spec §4.7).
func (r *Result) ParsePFRouteEntries(top *topo.Topology) (*Route, error) {
	var entries []RouteEntry
	for _, line := range strings.Split(r.Stdout, "\n") {
		if !strings.HasPrefix(line, "#") {
			continue
		}
		fields := resultFieldSplit.Split(line, -1)
		if len(fields) != 10 {
			continue
		}
		if fields[5] != "1" || fields[6] != "1" {
			continue
		}

		entry, err := resolveEntry(top, fields[1], fields[2], fields[3], fields[4], true, true)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return NewRoute(entries), nil
}

// ParseSolvecRouteEntries extracts RouteEntries from a solvec-mode
// solver's stdout, gated on the "SOLUTION FOUND" sentinel appearing
// somewhere in the output; each "#"-prefixed line with exactly 7 fields
// where field 5 (isC) is "1" contributes an entry (spec §4.7). Returns
// (nil, nil) if the sentinel never appears.
func (r *Result) ParseSolvecRouteEntries(top *topo.Topology) (*Route, error) {
	found := false
	var entries []RouteEntry
	for _, line := range strings.Split(r.Stdout, "\n") {
		if !strings.HasPrefix(line, "#") {
			if strings.Contains(line, "SOLUTION FOUND") {
				found = true
			}
			continue
		}
		fields := resultFieldSplit.Split(line, -1)
		if len(fields) != 7 {
			continue
		}
		if fields[5] != "1" {
			continue
		}

		entry, err := resolveEntry(top, fields[1], fields[2], fields[3], fields[4], false, true)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if !found {
		return nil, nil
	}
	return NewRoute(entries), nil
}

func resolveEntry(top *topo.Topology, srcPort, srcCh, dstPort, dstCh string, x, c bool) (RouteEntry, error) {
	sp := top.PortByName(srcPort)
	sc := top.ChannelByFullNo(srcCh)
	dp := top.PortByName(dstPort)
	dc := top.ChannelByFullNo(dstCh)
	if sp == nil || sc == nil || dp == nil || dc == nil {
		return RouteEntry{}, &MalformedSolverOutputError{Detail: "unresolvable port/channel in solver output line"}
	}
	return RouteEntry{
		Src:  topo.PortChannel{Port: sp, Channel: sc},
		Dst:  topo.PortChannel{Port: dp, Channel: dc},
		X:    x,
		C:    c,
		IsGo: true,
	}, nil
}
