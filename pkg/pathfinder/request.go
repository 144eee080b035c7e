package pathfinder

import (
	"fmt"

	"github.com/aist-nrm/nrm/pkg/topo"
)

// Mode selects which skeleton/overlay shape a Request drives: the primary
// path solve, or the follow-up per-device channel-assignment solve.
type Mode string

const (
	ModePF     Mode = "pf"
	ModeSolvec Mode = "solvec"
)

// SolvecTarget names the model and component subset a solvec sub-request
// operates over (spec §4.8 step 7: solvec groups are partitioned per model
// into groups of at most NumComps components).
type SolvecTarget struct {
	Model      string
	Components []*topo.Component
}

// Request encapsulates one path-finding request: a source/destination
// PortChannel pair, the candidate channels, and everything the orchestrator
// threads through ERO sub-requests and solvec sub-requests.
type Request struct {
	Topo *topo.Topology

	Src      topo.PortChannel
	Dst      topo.PortChannel
	Channels []*topo.Channel

	Mode    Mode
	Solvec  *SolvecTarget

	OrgERO      []*topo.Port // the original, user-supplied ERO
	NextUsedERO []*topo.Port // remaining ERO suffix + final dst, for sub-requests

	Bidi bool

	UsedRoute *Route // shared across sub-requests; mutated by the orchestrator only
	UsedConn  *Route

	Parent *Request
	Errors []string
}

// AddError appends a diagnostic, propagating it to the root request so the
// final failure reply can report every sub-request's accumulated messages.
func (r *Request) AddError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Errors = append(r.Errors, msg)
	if r.Parent != nil {
		r.Parent.AddError("%s", msg)
	}
}

// Root walks Parent links back to the top-level request.
func (r *Request) Root() *Request {
	root := r
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

// ChildForChannel builds a per-channel sub-request for the primary solve,
// sharing this request's used-route/used-conn and ERO state.
func (r *Request) ChildForChannel(ch *topo.Channel) *Request {
	return &Request{
		Topo:        r.Topo,
		Src:         r.Src,
		Dst:         r.Dst,
		Channels:    []*topo.Channel{ch},
		Mode:        ModePF,
		NextUsedERO: r.NextUsedERO,
		Bidi:        r.Bidi,
		UsedRoute:   r.UsedRoute,
		UsedConn:    r.UsedConn,
		Parent:      r,
	}
}

// SupportsChannel reports whether both endpoints of the request can carry
// ch's channel table (spec §4.8 step 2).
func (r *Request) SupportsChannel(ch *topo.Channel) bool {
	return r.Src.Port.IsSameSupportChannel(&topo.Port{SupportChannel: ch.ChannelTableID}) &&
		r.Dst.Port.IsSameSupportChannel(&topo.Port{SupportChannel: ch.ChannelTableID})
}

// SplitERO expands org_ero=[e1,...,eN] into the N+1 sub-requests
// src->e1, e1->e2, ..., eN->dst (spec §4.8 step 1, and the "Request ERO
// split" testable property in §8).
func (r *Request) SplitERO() []*Request {
	if len(r.OrgERO) == 0 {
		return []*Request{r}
	}

	waypoints := append([]*topo.Port{r.Src.Port}, r.OrgERO...)
	waypoints = append(waypoints, r.Dst.Port)

	subs := make([]*Request, 0, len(waypoints)-1)
	for i := 0; i < len(waypoints)-1; i++ {
		src := topo.PortChannel{Port: waypoints[i], Channel: r.Src.Channel}
		dst := topo.PortChannel{Port: waypoints[i+1], Channel: r.Dst.Channel}
		if i == len(waypoints)-2 {
			dst.Channel = r.Dst.Channel
		}

		var nextERO []*topo.Port
		if i+2 <= len(waypoints)-1 {
			nextERO = append(nextERO, waypoints[i+2:]...)
		}

		subs = append(subs, &Request{
			Topo:        r.Topo,
			Src:         src,
			Dst:         dst,
			Channels:    r.Channels,
			Mode:        ModePF,
			NextUsedERO: nextERO,
			Bidi:        r.Bidi,
			UsedRoute:   r.UsedRoute,
			UsedConn:    r.UsedConn,
			Parent:      r,
		})
	}
	return subs
}
