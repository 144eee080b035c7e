// Package pathfinder implements the per-request path-finding pipeline:
// requests, routes, the variable-index table, the skeleton/overlay
// builders, the solver driver, result parsing, and the orchestrator that
// ties them together.
package pathfinder

import (
	"fmt"

	"github.com/aist-nrm/nrm/pkg/topo"
)

// RouteEntry is one edge of a chosen path: a src/dst PortChannel pair plus
// which solve phase selected it (x = primary path solve, c = channel
// assignment solve) and whether it represents forward travel (is_go).
type RouteEntry struct {
	Src  topo.PortChannel
	Dst  topo.PortChannel
	X    bool
	C    bool
	IsGo bool
}

// XKey is the dedup key used when merging primary-solve (x) entries.
func (e RouteEntry) XKey() string {
	return fmt.Sprintf("%s#%s@x", e.Src.Key(), e.Dst.Key())
}

// CKey is the dedup key used when merging channel-solve (c) entries.
func (e RouteEntry) CKey() string {
	return fmt.Sprintf("%s#%s@c", e.Src.Key(), e.Dst.Key())
}

// Route is an ordered list of RouteEntry; order matters for dump text but
// merge dedup is keyed, not positional.
type Route struct {
	Entries []RouteEntry
}

// NewRoute wraps an entry slice (possibly nil) as a Route.
func NewRoute(entries []RouteEntry) *Route {
	return &Route{Entries: entries}
}

// MergePFRoute appends every entry of other not already present under its
// XKey, preserving S's invariant of no two entries sharing an XKey.
func (s *Route) MergePFRoute(other *Route) {
	seen := make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		seen[e.XKey()] = true
	}
	for _, e := range other.Entries {
		if seen[e.XKey()] {
			continue
		}
		seen[e.XKey()] = true
		s.Entries = append(s.Entries, e)
	}
}

// MergeSolvecRoute appends every entry of other not already present under
// its CKey.
func (s *Route) MergeSolvecRoute(other *Route) {
	seen := make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		seen[e.CKey()] = true
	}
	for _, e := range other.Entries {
		if seen[e.CKey()] {
			continue
		}
		seen[e.CKey()] = true
		s.Entries = append(s.Entries, e)
	}
}

// HasXEntry reports whether an entry with the given src/dst/in-ch/out-ch
// already carries x=true (used by backward-path synthesis to reject
// reverse entries already claimed).
func (s *Route) HasXEntry(src, dst topo.PortChannel) bool {
	for _, e := range s.Entries {
		if e.X && e.Src == src && e.Dst == dst {
			return true
		}
	}
	return false
}

// Clone returns a Route with a freshly allocated (shallow-copied) entry
// slice, so callers may mutate it without affecting the original.
func (s *Route) Clone() *Route {
	cp := make([]RouteEntry, len(s.Entries))
	copy(cp, s.Entries)
	return &Route{Entries: cp}
}
