package pathfinder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aist-nrm/nrm/pkg/acbuilder"
	"github.com/aist-nrm/nrm/pkg/glpktext"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

// BuildAllSkeletons renders and writes every pf and solvec skeleton file
// the orchestrator's Driver will need for this topology (GLPK_builder.py's
// top-level "build everything" entry point), and returns the two overlay
// builders already bound to the resulting VarIdxTable registries. Callers
// typically run this once at server startup (or via the build-skeleton
// CLI subcommand) and wire the result straight into a Driver.
func BuildAllSkeletons(top *topo.Topology, acDir, skeletonDir, modelFileKey, dataFileKey string, numComps int) (pfBuilder, solvecBuilder OverlayBuilder, err error) {
	if err := os.MkdirAll(skeletonDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("pathfinder: creating skeleton dir %s: %w", skeletonDir, err)
	}
	models, err := LoadModels(top, acDir)
	if err != nil {
		return nil, nil, err
	}

	byChannel, err := buildPFSkeletons(top, models, skeletonDir, modelFileKey, dataFileKey)
	if err != nil {
		return nil, nil, err
	}
	byModel, err := buildSolvecSkeletons(top, models, skeletonDir, modelFileKey, dataFileKey, numComps)
	if err != nil {
		return nil, nil, err
	}

	return NewPFOverlayBuilder(byChannel), NewSolvecOverlayBuilder(byModel), nil
}

// buildPFSkeletons writes one pf_<dataFileKey>_<chFullNo>.data file per
// topology channel, and one shared pf_<modelFileKey>.model file (the model
// text depends only on the component/model universe, not on which channel
// a particular skeleton was rendered for, so it is written once from the
// first channel processed).
func buildPFSkeletons(top *topo.Topology, models map[string]*glpktext.Model, skeletonDir, modelFileKey, dataFileKey string) (map[string]*PFSkeletonInfo, error) {
	channels := append([]*topo.Channel(nil), top.AllChannels()...)
	sort.Slice(channels, func(i, j int) bool { return util.NaturalLess(channels[i].FullNo(), channels[j].FullNo()) })

	byChannel := map[string]*PFSkeletonInfo{}
	modelFile := filepath.Join(skeletonDir, fmt.Sprintf("pf_%s.model", modelFileKey))
	modelWritten := false

	for _, ch := range channels {
		out, err := BuildSkeletonData(&SkeletonInput{
			Topo:       top,
			Solvec:     false,
			WriteModel: !modelWritten,
			Channels:   []*topo.Channel{ch},
			Models:     models,
		})
		if err != nil {
			return nil, fmt.Errorf("pathfinder: building pf skeleton for %s: %w", ch.FullNo(), err)
		}

		dataPath := filepath.Join(skeletonDir, fmt.Sprintf("pf_%s_%s.data", dataFileKey, ch.FullNo()))
		if err := os.WriteFile(dataPath, []byte(out.Data), 0o644); err != nil {
			return nil, fmt.Errorf("pathfinder: writing %s: %w", dataPath, err)
		}
		if err := out.VarIdx.Save(dataPath + ".pickle"); err != nil {
			return nil, fmt.Errorf("pathfinder: persisting var index table for %s: %w", ch.FullNo(), err)
		}
		if !modelWritten {
			if err := os.WriteFile(modelFile, []byte(out.Model), 0o644); err != nil {
				return nil, fmt.Errorf("pathfinder: writing %s: %w", modelFile, err)
			}
			modelWritten = true
		}

		comps := PFTargetComponents(top, ch)
		byChannel[ch.FullNo()] = &PFSkeletonInfo{
			VarIdx:      out.VarIdx,
			TargetPorts: PFTargetPorts(top, comps, ch.ChannelTableID),
		}
	}
	return byChannel, nil
}

// buildSolvecSkeletons writes one solvec_<modelFileKey>_<model>.model file
// and a family of solvec_<dataFileKey>_<model>_<fileIdx>.data files per
// model, one per possible group-index a live request could address
// (orchestrator.go's partitionSolvecGroups numbers groups globally across
// every model used by a request, so the file family must cover indices up
// to the worst case of every controller-bearing component in the topology
// falling into its own request alongside this model's group). Every
// fileIdx's data file is identical: the skeleton spans the model's full
// component/port universe, and BuildSolvecOverlay (keyed only by model
// name) restricts each live solve to its own request's component subset,
// so one superset skeleton correctly serves any smaller live group.
func buildSolvecSkeletons(top *topo.Topology, models map[string]*glpktext.Model, skeletonDir, modelFileKey, dataFileKey string, numComps int) (map[string]*SolvecSkeletonInfo, error) {
	if numComps <= 0 {
		numComps = 1
	}
	byModelComps, modelOrder, totalControllers := solvecModelComponents(top)

	maxGroups := (totalControllers + numComps - 1) / numComps
	if maxGroups < 1 {
		maxGroups = 1
	}

	channels := top.AllChannels()
	byModel := map[string]*SolvecSkeletonInfo{}

	for _, model := range modelOrder {
		comps := append([]*topo.Component(nil), byModelComps[model]...)
		sort.Slice(comps, func(i, j int) bool { return util.NaturalLess(comps[i].Name, comps[j].Name) })
		target := &SolvecTarget{Model: model, Components: comps}

		out, err := BuildSkeletonData(&SkeletonInput{
			Topo:         top,
			Solvec:       true,
			WriteModel:   true,
			Channels:     channels,
			Models:       models,
			SolvecTarget: target,
		})
		if err != nil {
			return nil, fmt.Errorf("pathfinder: building solvec skeleton for model %s: %w", model, err)
		}

		modelFile := filepath.Join(skeletonDir, fmt.Sprintf("solvec_%s_%s.model", modelFileKey, model))
		if err := os.WriteFile(modelFile, []byte(out.Model), 0o644); err != nil {
			return nil, fmt.Errorf("pathfinder: writing %s: %w", modelFile, err)
		}
		if err := out.VarIdx.Save(modelFile + ".pickle"); err != nil {
			return nil, fmt.Errorf("pathfinder: persisting var index table for model %s: %w", model, err)
		}
		for fileIdx := 1; fileIdx <= maxGroups; fileIdx++ {
			dataPath := filepath.Join(skeletonDir, fmt.Sprintf("solvec_%s_%s_%d.data", dataFileKey, model, fileIdx))
			if err := os.WriteFile(dataPath, []byte(out.Data), 0o644); err != nil {
				return nil, fmt.Errorf("pathfinder: writing %s: %w", dataPath, err)
			}
		}

		byModel[model] = &SolvecSkeletonInfo{
			VarIdx:      out.VarIdx,
			TargetPorts: SolvecTargetPorts(target),
			Models:      models,
		}
	}
	return byModel, nil
}

// ModelFilesFor reports the AC paths acbuilder.Build must have already
// produced for a model; build-skeleton checks these exist before attempting
// to render that model's skeleton.
func ModelFilesFor(acDir, model string) (modelPath, connPath string) {
	return filepath.Join(acDir, acbuilder.ModelFilename(model)), filepath.Join(acDir, acbuilder.ConnFilename(model))
}

// solvecModelComponents groups every controller-bearing component by model
// name, in the same order buildSolvecSkeletons and LoadAllSkeletons both
// need to stay in sync on group numbering.
func solvecModelComponents(top *topo.Topology) (byModelComps map[string][]*topo.Component, modelOrder []string, totalControllers int) {
	byModelComps = map[string][]*topo.Component{}
	for _, c := range top.AllComponents() {
		if !c.HasController() {
			continue
		}
		totalControllers++
		if _, ok := byModelComps[c.Model]; !ok {
			modelOrder = append(modelOrder, c.Model)
		}
		byModelComps[c.Model] = append(byModelComps[c.Model], c)
	}
	sort.Strings(modelOrder)
	return byModelComps, modelOrder, totalControllers
}

// LoadAllSkeletons reloads the overlay builders from the VarIdxTable
// ".pickle" siblings BuildAllSkeletons wrote next to each skeleton file,
// skipping the GLPK constraint-text rendering pass entirely (spec §3: "a
// VarIdxTable is persisted per skeleton to disk; reloaded for overlay
// builds"). It fails fast on the first missing or unreadable sidecar, since
// a partially reusable skeleton set is as unsafe as none: callers should
// fall back to BuildAllSkeletons on error.
func LoadAllSkeletons(top *topo.Topology, acDir, skeletonDir, modelFileKey, dataFileKey string) (pfBuilder, solvecBuilder OverlayBuilder, err error) {
	models, err := LoadModels(top, acDir)
	if err != nil {
		return nil, nil, err
	}

	byChannel := map[string]*PFSkeletonInfo{}
	for _, ch := range top.AllChannels() {
		picklePath := filepath.Join(skeletonDir, fmt.Sprintf("pf_%s_%s.data.pickle", dataFileKey, ch.FullNo()))
		varIdx, err := LoadVarIdxTable(picklePath, top)
		if err != nil {
			return nil, nil, fmt.Errorf("pathfinder: reloading pf skeleton for %s: %w", ch.FullNo(), err)
		}
		comps := PFTargetComponents(top, ch)
		byChannel[ch.FullNo()] = &PFSkeletonInfo{
			VarIdx:      varIdx,
			TargetPorts: PFTargetPorts(top, comps, ch.ChannelTableID),
		}
	}

	byModelComps, modelOrder, _ := solvecModelComponents(top)
	byModel := map[string]*SolvecSkeletonInfo{}
	for _, model := range modelOrder {
		comps := append([]*topo.Component(nil), byModelComps[model]...)
		sort.Slice(comps, func(i, j int) bool { return util.NaturalLess(comps[i].Name, comps[j].Name) })
		target := &SolvecTarget{Model: model, Components: comps}

		picklePath := filepath.Join(skeletonDir, fmt.Sprintf("solvec_%s_%s.model.pickle", modelFileKey, model))
		varIdx, err := LoadVarIdxTable(picklePath, top)
		if err != nil {
			return nil, nil, fmt.Errorf("pathfinder: reloading solvec skeleton for model %s: %w", model, err)
		}
		byModel[model] = &SolvecSkeletonInfo{
			VarIdx:      varIdx,
			TargetPorts: SolvecTargetPorts(target),
			Models:      models,
		}
	}

	return NewPFOverlayBuilder(byChannel), NewSolvecOverlayBuilder(byModel), nil
}
