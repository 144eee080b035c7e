package pathfinder

import (
	"fmt"

	"github.com/aist-nrm/nrm/pkg/glpktext"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

// PFSkeletonInfo is the per-channel skeleton state the pf overlay builder
// needs: the VarIdxTable built alongside that channel's skeleton, and the
// port universe the skeleton was restricted to.
type PFSkeletonInfo struct {
	VarIdx      *VarIdxTable
	TargetPorts []*topo.Port
}

// SolvecSkeletonInfo is the per-model skeleton state the solvec overlay
// builder needs.
type SolvecSkeletonInfo struct {
	VarIdx      *VarIdxTable
	TargetPorts []*topo.Port
	Models      map[string]*glpktext.Model
}

// NewPFOverlayBuilder binds a registry of per-channel skeleton info (keyed
// by channel full_no) into an OverlayBuilder matching driver.go's signature.
func NewPFOverlayBuilder(byChannel map[string]*PFSkeletonInfo) OverlayBuilder {
	return func(req *Request) (string, error) {
		if len(req.Channels) != 1 {
			return "", &BuildError{Detail: "pf overlay requires exactly one channel on the request"}
		}
		ch := req.Channels[0]
		info := byChannel[ch.FullNo()]
		if info == nil {
			return "", &BuildError{Detail: fmt.Sprintf("no pf skeleton info registered for channel %s", ch.FullNo())}
		}
		return BuildPFOverlay(req, info.VarIdx, info.TargetPorts), nil
	}
}

// BuildPFOverlay renders the pf request-overlay data appendix (spec §4.5):
// src/dst, NextERO, and the inuse_C/inuse_X parameters populated from
// used_conn/used_route.
func BuildPFOverlay(req *Request, varidx *VarIdxTable, targetPorts []*topo.Port) string {
	targetPortSet := make(map[*topo.Port]bool, len(targetPorts))
	for _, p := range targetPorts {
		targetPortSet[p] = true
	}

	w := newSkelWriter(false)
	w.anyf("param src := %s;\n", req.Src.Port.FullName())
	w.anyf("param dst := %s;\n", req.Dst.Port.FullName())

	w.setDef("NextERO")
	w.ports(req.NextUsedERO, false)
	w.any(";\n")

	w.paramDef("inuse_C", 0)
	writeInuseEntries(w, req.UsedConn, req.Channels, targetPortSet, varidx)
	w.any(";\n")

	w.paramDef("inuse_X", 0)
	writeInuseEntries(w, req.UsedRoute, req.Channels, targetPortSet, varidx)
	w.any(";\n")

	w.any("end;\n")
	return w.build()
}

// writeInuseEntries mirrors InuseCBuilder/InuseXBuilder: every route entry
// whose channels are both among the request's channels and whose endpoints
// both lie in the skeleton's port universe contributes an IJKL=1 line.
// Entries on other channels are skipped silently; entries with an endpoint
// outside the universe or with no assigned variable index are skipped with
// a warning rather than failing the build.
func writeInuseEntries(w *skelWriter, route *Route, channels []*topo.Channel, targetPortSet map[*topo.Port]bool, varidx *VarIdxTable) {
	if route == nil {
		return
	}
	for _, e := range route.Entries {
		if !channelsContain(channels, e.Src.Channel) || !channelsContain(channels, e.Dst.Channel) {
			continue
		}
		if !targetPortSet[e.Src.Port] || !targetPortSet[e.Dst.Port] {
			util.WithFields(map[string]any{
				"src": e.Src.Port.FullName(), "dst": e.Dst.Port.FullName(),
			}).Warn("pathfinder: used-route entry references a port outside this channel's skeleton, skipping")
			continue
		}
		if !varidx.HasConnection(e.Src.Port, e.Src.Channel, e.Dst.Port, e.Dst.Channel) {
			util.WithFields(map[string]any{
				"src": e.Src.Port.FullName(), "in_ch": e.Src.Channel.FullNo(),
				"dst": e.Dst.Port.FullName(), "out_ch": e.Dst.Channel.FullNo(),
			}).Warn("pathfinder: used-route entry has no assigned variable index, skipping")
			continue
		}
		w.anyf("[%s,%s,%s,%s] 1\n", e.Src.Port.FullName(), e.Src.Channel.FullNo(), e.Dst.Port.FullName(), e.Dst.Channel.FullNo())
	}
}

func channelsContain(channels []*topo.Channel, ch *topo.Channel) bool {
	if ch == nil {
		return false
	}
	for _, c := range channels {
		if c == ch || c.FullNo() == ch.FullNo() {
			return true
		}
	}
	return false
}

// NewSolvecOverlayBuilder binds a registry of per-model skeleton info
// (keyed by model name) into an OverlayBuilder matching driver.go's
// signature.
func NewSolvecOverlayBuilder(byModel map[string]*SolvecSkeletonInfo) OverlayBuilder {
	return func(req *Request) (string, error) {
		if req.Solvec == nil {
			return "", &BuildError{Detail: "solvec overlay requires req.Solvec to be set"}
		}
		info := byModel[req.Solvec.Model]
		if info == nil {
			return "", &BuildError{Detail: fmt.Sprintf("no solvec skeleton info registered for model %s", req.Solvec.Model)}
		}
		return BuildSolvecOverlay(req, info), nil
	}
}

// BuildSolvecOverlay renders the solvec request-overlay data appendix
// (spec §4.5): src/dst, Vinuse, the such-that-data/flow/IJK2Ls sections
// restricted to the request's component group (reusing the skeleton
// builder's own renderers, since a solvec group's such-that-data and flow
// sets are shaped exactly like a skeleton's, just scoped to this request's
// group instead of the full model), and inuse_X.
func BuildSolvecOverlay(req *Request, info *SolvecSkeletonInfo) string {
	w := newSkelWriter(false)
	w.anyf("param src := %s;\n", req.Src.Port.FullName())
	w.anyf("param dst := %s;\n", req.Dst.Port.FullName())
	data := w.build()

	data += buildVinuse(req, info.TargetPorts).build()

	data += buildSuchThatDataComps(true, false, info.Models, req.Solvec.Components, req.Solvec).build()
	data += buildSuchThatDataPorts(true, false, info.Models, req.Solvec.Components, info.TargetPorts, req.Solvec).build()
	data += buildFlowInOutPort(true, req.Topo, info.TargetPorts, req.Solvec.Components).build()
	data += buildIJK2Ls(true, req.Topo, info.VarIdx, info.TargetPorts, req.Solvec.Components).build()

	data += buildSolvecInuseX(req, info).build()

	data += "end;\n"
	return data
}

// buildVinuse emits the set of already-used ports, restricted to the
// request's solvec group, that the channel-assignment solve must treat as
// occupied.
func buildVinuse(req *Request, targetPorts []*topo.Port) *skelWriter {
	targetPortSet := make(map[*topo.Port]bool, len(targetPorts))
	for _, p := range targetPorts {
		targetPortSet[p] = true
	}

	var ports []*topo.Port
	seen := map[*topo.Port]bool{}
	if req.UsedRoute != nil {
		for _, e := range req.UsedRoute.Entries {
			for _, p := range [2]*topo.Port{e.Src.Port, e.Dst.Port} {
				if targetPortSet[p] && !seen[p] {
					seen[p] = true
					ports = append(ports, p)
				}
			}
		}
	}

	w := newSkelWriter(false)
	w.setDef("Vinuse")
	w.ports(ports, true)
	w.any(";\n")
	return w
}

// buildSolvecInuseX mirrors the pf inuse_X builder but is not restricted to
// the request's channel list, since a solvec solve spans every channel.
func buildSolvecInuseX(req *Request, info *SolvecSkeletonInfo) *skelWriter {
	targetPortSet := make(map[*topo.Port]bool, len(info.TargetPorts))
	for _, p := range info.TargetPorts {
		targetPortSet[p] = true
	}

	w := newSkelWriter(false)
	w.paramDef("inuse_X", 0)
	if req.UsedRoute != nil {
		for _, e := range req.UsedRoute.Entries {
			if !targetPortSet[e.Src.Port] || !targetPortSet[e.Dst.Port] {
				continue
			}
			if !info.VarIdx.HasConnection(e.Src.Port, e.Src.Channel, e.Dst.Port, e.Dst.Channel) {
				continue
			}
			w.anyf("[%s,%s,%s,%s] 1\n", e.Src.Port.FullName(), e.Src.Channel.FullNo(), e.Dst.Port.FullName(), e.Dst.Channel.FullNo())
		}
	}
	w.any(";\n")
	return w
}
