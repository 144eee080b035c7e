package pathfinder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aist-nrm/nrm/pkg/glpktext"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

// skelWriter mirrors BuilderBase: one append-only buffer for the .data
// file, and an optional second buffer for the .model file (nil when this
// pass never writes model text).
type skelWriter struct {
	data  strings.Builder
	model *strings.Builder
}

func newSkelWriter(writeModel bool) *skelWriter {
	w := &skelWriter{}
	if writeModel {
		w.model = &strings.Builder{}
	}
	return w
}

func (w *skelWriter) modelLine(format string, args ...any) {
	if w.model == nil {
		return
	}
	fmt.Fprintf(w.model, format, args...)
	w.model.WriteString("\n")
}

func (w *skelWriter) setDef(name string) {
	fmt.Fprintf(&w.data, "set %s :=", name)
}

func (w *skelWriter) setDefIdx(name, idx string) {
	fmt.Fprintf(&w.data, "set %s[%s] :=", name, idx)
}

func (w *skelWriter) paramDef(name string, defValue any) {
	fmt.Fprintf(&w.data, "param %s default %v :=\n", name, defValue)
}

func (w *skelWriter) param(name string) {
	fmt.Fprintf(&w.data, "param %s := ", name)
}

func (w *skelWriter) any(s string) {
	w.data.WriteString(s)
}

func (w *skelWriter) anyf(format string, args ...any) {
	fmt.Fprintf(&w.data, format, args...)
}

// list appends values, wrapping onto a tab-indented new line every 10
// entries once the list carries more than 10 (spec §4.4's skeleton
// line-wrapping convention, grounded on builder_base.BuilderBase.print_list).
func (w *skelWriter) list(values []string, doSort bool) {
	if len(values) == 0 {
		return
	}
	bLong := len(values) > 10
	if bLong {
		fmt.Fprintf(&w.data, "\t# num=%d", len(values))
	}
	if doSort {
		values = append([]string(nil), values...)
		util.SortNatural(values)
	}
	for i, name := range values {
		n := i + 1
		if bLong && n%10 == 1 {
			w.data.WriteString("\n\t")
		} else {
			w.data.WriteString(" ")
		}
		w.data.WriteString(name)
	}
}

func (w *skelWriter) ports(ports []*topo.Port, doSort bool) {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.FullName()
	}
	w.list(names, doSort)
}

func (w *skelWriter) components(comps []*topo.Component, doSort bool) {
	names := make([]string, len(comps))
	for i, c := range comps {
		names[i] = c.Name
	}
	w.list(names, doSort)
}

func (w *skelWriter) build() string { return w.data.String() }

func (w *skelWriter) buildModel() string {
	if w.model == nil {
		return ""
	}
	return w.model.String()
}

// pvtEntry is one (out_port, idx) pair recorded under an in_port in a
// portVarIdxTable.
type pvtEntry struct {
	outPort string
	idx     int
}

// portVarIdxTable mirrors builder_base.PortVarIdxTable: a transient,
// insertion-ordered grouping of (out_port,idx) pairs under each in_port,
// used only while emitting one "param vt"/"param pair"/"param inuse_*"
// line group. It is distinct from VarIdxTable, the dense global index.
type portVarIdxTable struct {
	order []string
	byIn  map[string][]pvtEntry
	seen  map[string]map[pvtEntry]bool
}

func newPortVarIdxTable() *portVarIdxTable {
	return &portVarIdxTable{byIn: map[string][]pvtEntry{}}
}

// add appends (out_port,idx) under in_port, allowing duplicates.
func (t *portVarIdxTable) add(inPort, outPort *topo.Port, idx int) {
	in := inPort.FullName()
	if _, ok := t.byIn[in]; !ok {
		t.order = append(t.order, in)
	}
	t.byIn[in] = append(t.byIn[in], pvtEntry{outPort.FullName(), idx})
}

// addSet appends (out_port,idx) under in_port, deduplicating repeats.
func (t *portVarIdxTable) addSet(inPort, outPort *topo.Port, idx int) {
	in := inPort.FullName()
	e := pvtEntry{outPort.FullName(), idx}
	if t.seen == nil {
		t.seen = map[string]map[pvtEntry]bool{}
	}
	if t.seen[in] == nil {
		t.seen[in] = map[pvtEntry]bool{}
	}
	if t.seen[in][e] {
		return
	}
	t.seen[in][e] = true
	if _, ok := t.byIn[in]; !ok {
		t.order = append(t.order, in)
	}
	t.byIn[in] = append(t.byIn[in], e)
}

func (t *portVarIdxTable) clear() {
	t.order = nil
	t.byIn = map[string][]pvtEntry{}
	t.seen = nil
}

func (t *portVarIdxTable) len() int { return len(t.byIn) }

// vtableParIJL emits "[in_port,in_ch,*,out_ch] out1 idx1 out2 idx2...",
// one line per in_port, in insertion order.
func (w *skelWriter) vtableParIJL(inCh, outCh string, t *portVarIdxTable) {
	if t.len() == 0 {
		return
	}
	for _, inPort := range t.order {
		w.anyf("[%s,%s,*,%s]", inPort, inCh, outCh)
		entries := t.byIn[inPort]
		values := make([]string, 0, len(entries)*2)
		for _, e := range entries {
			values = append(values, e.outPort, strconv.Itoa(e.idx))
		}
		w.list(values, false)
		w.any("\n")
	}
}

// vtableParIJKL emits "[in_port,in_ch,out_port,out_ch] idx", one line per
// (in_port,out_port) pair, in insertion order.
func (w *skelWriter) vtableParIJKL(inCh, outCh string, t *portVarIdxTable) {
	if t.len() == 0 {
		return
	}
	for _, inPort := range t.order {
		for _, e := range t.byIn[inPort] {
			w.anyf("[%s,%s,%s,%s] ", inPort, inCh, e.outPort, outCh)
			w.anyf("%d\n", e.idx)
		}
	}
}

// PFTargetComponents returns every component supporting ch's channel table,
// natural-sorted by name.
func PFTargetComponents(top *topo.Topology, ch *topo.Channel) []*topo.Component {
	comps := append([]*topo.Component(nil), top.GetSupportComps(ch.ChannelTableID)...)
	sort.Slice(comps, func(i, j int) bool { return util.NaturalLess(comps[i].Name, comps[j].Name) })
	return comps
}

// PFTargetPorts returns the port universe a pf skeleton/overlay is
// restricted to: every port, if the topology carries only one channel
// table; else every target component's port matching channelTableID,
// natural-sorted by full name.
func PFTargetPorts(top *topo.Topology, targetComps []*topo.Component, channelTableID string) []*topo.Port {
	if len(top.AllChannelTables()) == 1 {
		return top.AllPortsOrdered()
	}
	var ports []*topo.Port
	for _, c := range targetComps {
		for _, p := range c.AllPorts() {
			if topo.IsSupportChannelCompatible(p.SupportChannel, channelTableID) {
				ports = append(ports, p)
			}
		}
	}
	sort.Slice(ports, func(i, j int) bool { return util.NaturalLess(ports[i].FullName(), ports[j].FullName()) })
	return ports
}

// SolvecTargetPorts returns every port across a solvec group's components,
// component-natural-sorted, pin-ordered within each.
func SolvecTargetPorts(target *SolvecTarget) []*topo.Port {
	comps := append([]*topo.Component(nil), target.Components...)
	sort.Slice(comps, func(i, j int) bool { return util.NaturalLess(comps[i].Name, comps[j].Name) })
	var ports []*topo.Port
	for _, c := range comps {
		ports = append(ports, c.AllPorts()...)
	}
	return ports
}

// SkeletonInput bundles everything BuildSkeletonData needs to render one
// channel (pf) or one (model, component-group) (solvec) skeleton.
type SkeletonInput struct {
	Topo       *topo.Topology
	Solvec     bool
	WriteModel bool
	Channels   []*topo.Channel

	// Models is the name->Model registry (LoadModels), used in both modes:
	// pf scans every model; solvec looks up SolvecTarget.Model by name.
	Models map[string]*glpktext.Model
	// SolvecTarget names the model and component subset, set for solvec.
	SolvecTarget *SolvecTarget
}

// SkeletonOutput is one skeleton's rendered text plus the variable-index
// table built while rendering it (the overlay builder needs the same
// table to resolve inuse_X/inuse_C/pair/cost indices).
type SkeletonOutput struct {
	Data   string
	Model  string
	VarIdx *VarIdxTable
}

// BuildSkeletonData renders a skeleton's .data/.model text (spec §4.4),
// grounded on GLPK_builder.py's make_skeleton_data: the exact component
// list, builder composition order, and pf/solvec conditional branches
// below mirror that function line for line.
func BuildSkeletonData(in *SkeletonInput) (*SkeletonOutput, error) {
	var targetComps []*topo.Component
	var targetPorts []*topo.Port

	if !in.Solvec {
		ch := in.Channels[0]
		targetComps = PFTargetComponents(in.Topo, ch)
		targetPorts = PFTargetPorts(in.Topo, targetComps, ch.ChannelTableID)
	} else {
		targetComps = nil
		targetPorts = SolvecTargetPorts(in.SolvecTarget)
	}

	out := &SkeletonOutput{}
	modelBuf := &strings.Builder{}

	// set V
	vw := newSkelWriter(false)
	vw.setDef("V")
	vw.ports(targetPorts, false)
	vw.any(";\n")
	data := vw.build()

	if !in.Solvec || in.WriteModel {
		compsW := buildSuchThatDataComps(in.Solvec, in.WriteModel, in.Models, targetComps, in.SolvecTarget)
		data += compsW.build()
		modelBuf.WriteString(compsW.buildModel())

		portsW := buildSuchThatDataPorts(in.Solvec, in.WriteModel, in.Models, targetComps, targetPorts, in.SolvecTarget)
		data += portsW.build()
		modelBuf.WriteString(portsW.buildModel())
	}

	if !in.Solvec {
		data += buildFlowInOutPort(in.Solvec, in.Topo, targetPorts, targetComps).build()
	}

	chW := buildChannelsList(in.Topo, in.Channels, in.WriteModel, in.Solvec)
	data += chW.build()
	modelBuf.WriteString(chW.buildModel())

	varidx, vtText := buildVarIdxTable(in.Topo, in.Channels, targetPorts)
	data += vtText

	data += buildFlowInChannels(varidx, targetPorts).build()

	if !in.Solvec {
		data += buildIJK2Ls(in.Solvec, in.Topo, varidx, targetPorts, targetComps).build()
		data += buildMultiWidth(in.Channels).build()
		data += buildPair(in.Topo, in.Channels, targetPorts, varidx).build()
		data += buildCost(in.Topo, in.Channels, targetComps, varidx).build()
		data += buildOutOfService(in.Channels, targetComps, varidx).build()
	}

	out.Data = data
	out.Model = modelBuf.String()
	out.VarIdx = varidx
	return out, nil
}

// --- set V, Comps_*, FlowIn/OutPorts (pf-only), Channels_*, vt, FlowInChannels ---

func buildSuchThatDataComps(solvec, writeModel bool, models map[string]*glpktext.Model, targetComps []*topo.Component, solvecTarget *SolvecTarget) *skelWriter {
	w := newSkelWriter(writeModel)
	targetModels := suchThatTargetModels(solvec, models, solvecTarget)

	if len(targetComps) == 0 && w.model != nil {
		for _, m := range targetModels {
			setname := "Comps_" + glpktext.Escape(m.Name)
			w.modelLine("set %s;", setname)
		}
		return w
	}

	for _, m := range targetModels {
		setname := "Comps_" + glpktext.Escape(m.Name)
		w.modelLine("set %s;", setname)
		w.setDef(setname)
		w.components(suchThatTargetComponentsInModel(solvec, m, targetComps), false)
		w.any(";\n")
	}
	return w
}

// suchThatTargetModels mirrors SuchThatDataBuilder.get_target_models: pf
// scans every loaded model; solvec scans only the one model its group
// targets.
func suchThatTargetModels(solvec bool, models map[string]*glpktext.Model, solvecTarget *SolvecTarget) []*glpktext.Model {
	if !solvec {
		names := make([]string, 0, len(models))
		for name := range models {
			names = append(names, name)
		}
		util.SortNatural(names)
		out := make([]*glpktext.Model, 0, len(names))
		for _, name := range names {
			out = append(out, models[name])
		}
		return out
	}
	if solvecTarget != nil {
		if m := models[solvecTarget.Model]; m != nil {
			return []*glpktext.Model{m}
		}
	}
	return nil
}

// suchThatTargetComponentsInModel mirrors
// SuchThatDataBuilder.get_target_component_in_model: pf filters the model's
// full component list down to targetComps; solvec's target_comps already
// names exactly the group in scope.
func suchThatTargetComponentsInModel(solvec bool, m *glpktext.Model, targetComps []*topo.Component) []*topo.Component {
	if solvec {
		return targetComps
	}
	targetByName := make(map[string]*topo.Component, len(targetComps))
	for _, c := range targetComps {
		targetByName[c.Name] = c
	}
	var out []*topo.Component
	for _, name := range m.Components {
		if c, ok := targetByName[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

func buildSuchThatDataPorts(solvec, writeModel bool, models map[string]*glpktext.Model, targetComps []*topo.Component, targetPorts []*topo.Port, solvecTarget *SolvecTarget) *skelWriter {
	w := newSkelWriter(writeModel)
	targetModels := suchThatTargetModels(solvec, models, solvecTarget)

	targetPortSet := make(map[*topo.Port]bool, len(targetPorts))
	for _, p := range targetPorts {
		targetPortSet[p] = true
	}

	model2sets := map[string]map[string]bool{}
	for _, m := range targetModels {
		for _, st := range m.GLPK.StDefs {
			domain := m.GLPK.GetDomain(st)
			domains := []glpktext.Domain{domain}
			if st.SumCond != nil {
				domains = append(domains, st.SumCond.Domain)
			}
			for _, d := range domains {
				for key, val := range d.VarInSet {
					if key == "i" || key == "k" {
						if model2sets[m.Name] == nil {
							model2sets[m.Name] = map[string]bool{}
						}
						model2sets[m.Name][val] = true
					}
				}
			}
		}
	}

	set2comps := map[string]map[*topo.Component]bool{}
	valsetSet := map[string]bool{}
	for _, m := range targetModels {
		for valset := range model2sets[m.Name] {
			for _, c := range suchThatTargetComponentsInModel(solvec, m, targetComps) {
				if set2comps[valset] == nil {
					set2comps[valset] = map[*topo.Component]bool{}
				}
				set2comps[valset][c] = true
			}
			valsetSet[valset] = true
		}
	}

	setNames := make([]string, 0, len(valsetSet))
	for name := range valsetSet {
		setNames = append(setNames, name)
	}
	sort.Strings(setNames)

	if len(set2comps) == 0 && w.model != nil {
		for _, valset := range setNames {
			w.modelLine("set Comps_%s;", valset)
			w.modelLine("set %s{Comps_%s};", valset, valset)
		}
		return w
	}

	for _, valset := range setNames {
		setname := "Comps_" + valset
		w.modelLine("set %s;", setname)
		w.setDef(setname)
		compSet := set2comps[valset]
		comps := make([]*topo.Component, 0, len(compSet))
		for c := range compSet {
			comps = append(comps, c)
		}
		w.components(comps, true)
		w.any(";\n")
	}

	for _, valset := range setNames {
		w.modelLine("set %s{Comps_%s};", valset, valset)
		compSet := set2comps[valset]
		comps := make([]*topo.Component, 0, len(compSet))
		for c := range compSet {
			comps = append(comps, c)
		}
		sort.Slice(comps, func(i, j int) bool { return util.NaturalLess(comps[i].Name, comps[j].Name) })
		for _, comp := range comps {
			w.setDefIdx(valset, comp.Name)
			model := models[comp.Model]
			var ports []*topo.Port
			if model != nil {
				if sd, ok := model.GLPK.SetDefs[valset]; ok {
					for _, num := range sd.Nums {
						p := comp.GetPort(num)
						if p == nil {
							continue
						}
						if !solvec && !targetPortSet[p] {
							continue
						}
						ports = append(ports, p)
					}
				}
			}
			w.ports(ports, false)
			w.any(";\n")
		}
	}
	return w
}

func buildFlowInOutPort(solvec bool, top *topo.Topology, targetPorts []*topo.Port, targetComps []*topo.Component) *skelWriter {
	w := newSkelWriter(false)
	targetPortSet := make(map[*topo.Port]bool, len(targetPorts))
	for _, p := range targetPorts {
		targetPortSet[p] = true
	}
	targetCompSet := make(map[*topo.Component]bool, len(targetComps))
	for _, c := range targetComps {
		targetCompSet[c] = true
	}

	for _, p := range targetPorts {
		if solvec && !targetCompSet[top.ComponentByPort(p)] {
			continue
		}
		w.setDefIdx("FlowInPorts", p.FullName())
		var ins []*topo.Port
		for flowPort := range p.FlowIns {
			if targetPortSet[flowPort] {
				ins = append(ins, flowPort)
			}
		}
		w.ports(ins, true)
		w.any(";\n")

		w.setDefIdx("FlowOutPorts", p.FullName())
		var outs []*topo.Port
		for flowPort := range p.FlowOuts {
			if targetPortSet[flowPort] {
				outs = append(outs, flowPort)
			}
		}
		w.ports(outs, true)
		w.any(";\n")
	}
	return w
}

func buildChannelsList(top *topo.Topology, channels []*topo.Channel, writeModel, solvec bool) *skelWriter {
	w := newSkelWriter(writeModel)

	chMap := map[string][]*topo.Channel{}
	for _, ch := range channels {
		chMap[ch.ChannelTableID] = append(chMap[ch.ChannelTableID], ch)
	}

	if w.model != nil {
		if solvec {
			ids := make([]string, 0, len(chMap))
			for id := range chMap {
				ids = append(ids, id)
			}
			util.SortNatural(ids)
			for _, id := range ids {
				w.modelLine("set Channels_%s;", id)
			}
		} else {
			for _, tbl := range top.AllChannelTables() {
				w.modelLine("set Channels_%s;", tbl.ID)
			}
		}
		w.modelLine("param nextCh{AllChannels} symbolic;")
	}

	var allChannels []string
	var chNo []string
	for _, tbl := range top.AllChannelTables() {
		w.setDef("Channels_" + tbl.ID)
		var names []string
		if chs, ok := chMap[tbl.ID]; ok {
			for _, ch := range chs {
				names = append(names, ch.FullNo())
				chNo = append(chNo, ch.FullNo(), strconv.Itoa(ch.Number))
			}
			w.list(names, false)
		}
		w.any(";\n")
		allChannels = append(allChannels, names...)
	}

	w.setDef("AllChannels")
	w.list(allChannels, false)
	w.any(";\n")

	w.param("chNo")
	w.list(chNo, false)
	w.any(";\n")

	w.param("nextCh")
	var nextCh []string
	for i, chFullNo := range allChannels {
		nextCh = append(nextCh, chFullNo)
		if i < len(allChannels)-1 {
			nextCh = append(nextCh, allChannels[i+1])
		} else if len(allChannels) > 0 {
			nextCh = append(nextCh, allChannels[0])
		}
	}
	w.list(nextCh, false)
	w.any(";\n")

	return w
}

// buildVarIdxTable walks has_connection for every target port pair within
// each channel, assigning each admitted 4-tuple a dense index (spec §4.4's
// VarIdxTable construction), and renders the "param vt" section alongside it.
func buildVarIdxTable(top *topo.Topology, channels []*topo.Channel, targetPorts []*topo.Port) (*VarIdxTable, string) {
	varidx := NewVarIdxTable()
	w := newSkelWriter(false)

	portSet := make(map[*topo.Port]bool, len(targetPorts))
	for _, p := range targetPorts {
		portSet[p] = true
	}

	w.paramDef("vt", NoIdx)
	for _, inCh := range channels {
		type connPair struct{ in, out *topo.Port }
		var conns []connPair
		for _, inPort := range targetPorts {
			outs := sortedFlowPorts(inPort.FlowOuts)
			for _, outPort := range outs {
				if !portSet[outPort] {
					continue
				}
				if top.HasConnection(inPort, inCh, outPort, inCh) {
					conns = append(conns, connPair{inPort, outPort})
				}
			}
		}
		if len(conns) == 0 {
			continue
		}
		sort.Slice(conns, func(i, j int) bool {
			return util.NaturalLess(conns[i].in.FullName(), conns[j].in.FullName())
		})
		table := newPortVarIdxTable()
		for _, c := range conns {
			idx := varidx.Add(c.in, inCh, c.out, inCh)
			table.add(c.in, c.out, idx)
		}
		w.vtableParIJL(inCh.FullNo(), inCh.FullNo(), table)
	}
	w.any(";\n")

	w.param("NUM_VARS")
	w.anyf("%d;\n", varidx.Count())

	return varidx, w.build()
}

func sortedFlowPorts(m map[*topo.Port]bool) []*topo.Port {
	out := make([]*topo.Port, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return util.NaturalLess(out[i].FullName(), out[j].FullName()) })
	return out
}

func buildFlowInChannels(varidx *VarIdxTable, targetPorts []*topo.Port) *skelWriter {
	w := newSkelWriter(false)
	for _, p := range targetPorts {
		w.setDefIdx("FlowInChannels", p.FullName())
		w.list(varidx.FlowInChannels(p), true)
		w.any(";\n")
	}
	return w
}

func buildIJK2Ls(solvec bool, top *topo.Topology, varidx *VarIdxTable, targetPorts []*topo.Port, targetComps []*topo.Component) *skelWriter {
	w := newSkelWriter(false)
	targetPortSet := make(map[*topo.Port]bool, len(targetPorts))
	for _, p := range targetPorts {
		targetPortSet[p] = true
	}
	targetCompSet := make(map[*topo.Component]bool, len(targetComps))
	for _, c := range targetComps {
		targetCompSet[c] = true
	}

	for _, inPort := range targetPorts {
		if solvec && !targetCompSet[top.ComponentByPort(inPort)] {
			continue
		}
		inChNames := append([]string(nil), varidx.FlowInChannels(inPort)...)
		util.SortNatural(inChNames)
		for _, inChName := range inChNames {
			outs := sortedFlowPorts(inPort.FlowOuts)
			for _, outPort := range outs {
				if !targetPortSet[outPort] {
					continue
				}
				w.setDefIdx("IJK2Ls", fmt.Sprintf("%s,%s,%s", inPort.FullName(), inChName, outPort.FullName()))
				inCh := top.ChannelByFullNo(inChName)
				w.list(varidx.FlowOutChannels(inPort, inCh, outPort), true)
				w.any(";\n")
			}
		}
	}
	return w
}

func buildMultiWidth(channels []*topo.Channel) *skelWriter {
	w := newSkelWriter(false)
	ch := channels[0]
	w.paramDef("widthOK", 1)
	w.any(";\n")
	w.setDefIdx("ChannelRange", ch.FullNo())
	w.anyf(" %s", ch.FullNo())
	w.any(";\n")
	return w
}

func buildPair(top *topo.Topology, channels []*topo.Channel, targetPorts []*topo.Port, varidx *VarIdxTable) *skelWriter {
	w := newSkelWriter(false)
	targetPortSet := make(map[*topo.Port]bool, len(targetPorts))
	for _, p := range targetPorts {
		targetPortSet[p] = true
	}

	w.paramDef("pair", 0)
	// table accumulates across channels without clearing, matching the
	// original pair-net renderer: every channel's admitted pairs are added
	// to the same table before being printed under that channel's label.
	table := newPortVarIdxTable()
	for _, ch := range channels {
		for _, group := range top.GetAllPortPairsList() {
			if len(group) != 2 {
				continue
			}
			pair0, pair1 := group[0], group[1]
			if !targetPortSet[pair0.Src] || !targetPortSet[pair1.Src] {
				continue
			}
			table.add(pair0.Src, pair0.Dst, pairVTIdx(varidx, pair1, ch))
			table.add(pair1.Src, pair1.Dst, pairVTIdx(varidx, pair0, ch))
		}
		w.vtableParIJKL(ch.FullNo(), ch.FullNo(), table)
	}
	w.any(";\n")
	return w
}

func pairVTIdx(varidx *VarIdxTable, pair *topo.PortPair, ch *topo.Channel) int {
	idx := varidx.Idx(pair.Src, ch, pair.Dst, ch)
	if idx != NoIdx {
		return idx
	}
	util.WithFields(map[string]any{
		"src": pair.Src.FullName(), "ch": ch.FullNo(), "dst": pair.Dst.FullName(),
	}).Warn("pathfinder: pair net has no assigned variable index")
	return NoIdx
}

func buildCost(top *topo.Topology, channels []*topo.Channel, targetComps []*topo.Component, varidx *VarIdxTable) *skelWriter {
	w := newSkelWriter(false)
	w.paramDef("cost", 0)

	w.any("# net cost\n")
	for _, pair := range top.AllPortPairs() {
		for _, ch := range channels {
			if varidx.HasConnection(pair.Src, ch, pair.Dst, ch) {
				w.anyf("[%s,%s,%s,%s] %v\n", pair.Src.FullName(), ch.FullNo(), pair.Dst.FullName(), ch.FullNo(), pair.Cost)
			}
		}
	}

	w.any("# comp cost\n")
	printIJKLCost(w, true, channels, targetComps, varidx)

	w.any(";\n")
	return w
}

func buildOutOfService(channels []*topo.Channel, targetComps []*topo.Component, varidx *VarIdxTable) *skelWriter {
	w := newSkelWriter(false)
	w.setDef("OUT_OF_SERVICES")
	w.any("\n")
	printIJKLCost(w, false, channels, targetComps, varidx)
	w.any(";\n")
	return w
}

// printIJKLCost mirrors IJKLCostBuiler.print_IJKL_cost: for every target
// component's Cost/OutOfService entry, resolves the src/dst port sets and
// channel filter, and emits one line per admitted (src,ch,dst) tuple.
func printIJKLCost(w *skelWriter, isCost bool, channels []*topo.Channel, targetComps []*topo.Component, varidx *VarIdxTable) {
	for _, comp := range targetComps {
		var costList []any
		if isCost {
			costList = asList(comp.GetCost())
		} else {
			costList = asList(comp.GetOutOfService())
		}
		if costList == nil {
			continue
		}

		seen := map[string]bool{}
		for _, raw := range costList {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			srcPorts := ijklPorts(comp, entry["i"])
			dstPorts := ijklPorts(comp, entry["k"])

			srcSorted := sortedPortSlice(srcPorts)
			dstSorted := sortedPortSlice(dstPorts)

			for _, src := range srcSorted {
				for _, dst := range dstSorted {
					for _, inCh := range channels {
						if !ijklIsMatchCh(entry["j"], inCh.Number) {
							continue
						}
						if !varidx.HasConnection(src, inCh, dst, inCh) {
							continue
						}
						printIJKLValue(w, src, inCh, dst, inCh, entry, isCost, seen)
					}
				}
			}
		}
	}
}

func printIJKLValue(w *skelWriter, src *topo.Port, inCh *topo.Channel, dst *topo.Port, outCh *topo.Channel, entry map[string]any, isCost bool, seen map[string]bool) {
	key := fmt.Sprintf("%s@%s#%s@%s", src.FullName(), inCh.FullNo(), dst.FullName(), outCh.FullNo())
	if seen[key] {
		util.WithField("key", key).Warn("pathfinder: duplicate Cost/OutOfService description")
		return
	}
	seen[key] = true

	if isCost {
		w.anyf("[%s,%s,%s,%s] %v\n", src.FullName(), inCh.FullNo(), dst.FullName(), outCh.FullNo(), entry["cost"])
	} else {
		w.anyf("(%s,%s,%s,%s)\n", src.FullName(), inCh.FullNo(), dst.FullName(), inCh.FullNo())
	}
}

func ijklPorts(comp *topo.Component, val any) []*topo.Port {
	if s, ok := val.(string); ok && s == "*" {
		return comp.AllPorts()
	}
	nums, err := ijklValueToNums(val)
	if err != nil {
		return nil
	}
	var out []*topo.Port
	for n := range nums {
		p := comp.GetPort(n)
		if p == nil {
			util.WithFields(map[string]any{"port": n, "component": comp.Name}).Error("pathfinder: invalid Cost value: port does not exist")
			continue
		}
		out = append(out, p)
	}
	return out
}

func sortedPortSlice(ports []*topo.Port) []*topo.Port {
	out := append([]*topo.Port(nil), ports...)
	sort.Slice(out, func(i, j int) bool { return util.NaturalLess(out[i].FullName(), out[j].FullName()) })
	return out
}

func asList(v any) []any {
	if v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	return list
}
