// Package acbuilder emits, per distinct device model, a standalone ILP
// model file describing that model's legal (in_pin,in_ch,out_pin,out_ch)
// tuples, solves it, and persists the solver's stdout verbatim as a
// ".conn.txt" file (spec §4.3). Topology.Load later scans those files to
// populate each Component's AvailableConnection table.
package acbuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/aist-nrm/nrm/pkg/glpktext"
	"github.com/aist-nrm/nrm/pkg/solver"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

const channelsDataFilename = "channels.data"

// AcBuildError reports that the solver exited non-zero while computing a
// device model's available connections (spec §4.3, §7). Build stops at the
// first one; models built before it keep the files already written.
type AcBuildError struct {
	Model  string
	Stderr string
	Stdout string
	Err    error
}

func (e *AcBuildError) Error() string {
	return fmt.Sprintf("acbuilder: model %s: %v\nstderr: %s\nstdout: %s", e.Model, e.Err, e.Stderr, e.Stdout)
}

func (e *AcBuildError) Unwrap() error { return e.Err }

// ModelFilename is the per-model ILP model file GLPK solves against.
func ModelFilename(model string) string {
	return glpktext.Escape(model) + ".model"
}

// ConnFilename is the per-model file the solver's stdout is persisted to,
// later scanned by Topology.Load. It uses the raw model name, the same name
// Topology.Load looks the file up by.
func ConnFilename(model string) string {
	return model + ".conn.txt"
}

// Build computes the channels.data file plus one .model/.conn.txt pair for
// every distinct device model with a non-empty constraint text, writing
// them all under acDir. Component models are visited in the topology's own
// component order; the first AcBuildError encountered is returned, but
// models visited before it have already been written to disk.
func Build(ctx context.Context, top *topo.Topology, acDir string, runner solver.DisplayRunner) error {
	if err := os.MkdirAll(acDir, 0o755); err != nil {
		return fmt.Errorf("acbuilder: creating %s: %w", acDir, err)
	}

	dataFile := filepath.Join(acDir, channelsDataFilename)
	if err := writeChannelsData(dataFile, top); err != nil {
		return err
	}
	chanDef := makeChannelsDef(top)

	seen := map[string]bool{}
	for _, comp := range top.AllComponents() {
		model := comp.Model
		if model == "" || seen[model] || comp.GLPKText == "" {
			continue
		}
		seen[model] = true

		modelFile := filepath.Join(acDir, ModelFilename(model))
		modelText, err := makeModelText(chanDef, comp)
		if err != nil {
			return fmt.Errorf("acbuilder: building model text for %s: %w", model, err)
		}
		if err := os.WriteFile(modelFile, []byte(modelText), 0o644); err != nil {
			return fmt.Errorf("acbuilder: writing %s: %w", modelFile, err)
		}

		stdout, stderr, err := runner.RunDisplay(ctx, modelFile, dataFile)
		if err != nil {
			return &AcBuildError{Model: model, Stderr: stderr, Stdout: stdout, Err: err}
		}

		connFile := filepath.Join(acDir, ConnFilename(model))
		if err := os.WriteFile(connFile, []byte(stdout), 0o644); err != nil {
			return fmt.Errorf("acbuilder: writing %s: %w", connFile, err)
		}
		util.WithFields(map[string]any{"model": model, "file": connFile}).Info("acbuilder: wrote available connections")
	}
	return nil
}

// makeChannelsDef emits the "set Channels_<id>;" declarations plus the
// shared AllChannels/chNo declarations every per-model .model file needs.
func makeChannelsDef(top *topo.Topology) string {
	var buf strings.Builder
	for _, tbl := range top.AllChannelTables() {
		fmt.Fprintf(&buf, "set Channels_%s;", tbl.ID)
	}
	buf.WriteString("set AllChannels;")
	buf.WriteString("param chNo{AllChannels};")
	return buf.String()
}

func makeChannelsData(top *topo.Topology) string {
	var names, all strings.Builder
	var chno strings.Builder
	for _, tbl := range top.AllChannelTables() {
		fmt.Fprintf(&names, "set Channels_%s :=", tbl.ID)
		for _, ch := range tbl.Channels {
			full := ch.FullNo()
			fmt.Fprintf(&names, " %s", full)
			fmt.Fprintf(&all, " %s", full)
			fmt.Fprintf(&chno, " %s %d", full, ch.Number)
		}
		names.WriteString(";")
	}

	var buf strings.Builder
	buf.WriteString(names.String())
	buf.WriteString("set AllChannels :=")
	buf.WriteString(all.String())
	buf.WriteString(";")
	buf.WriteString("param chNo :=")
	buf.WriteString(chno.String())
	buf.WriteString(";")
	return glpktext.FormatModel(buf.String())
}

func writeChannelsData(path string, top *topo.Topology) error {
	data := makeChannelsData(top) + "end;\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("acbuilder: writing %s: %w", path, err)
	}
	return nil
}

// acSetRegexp matches `set AvailableConnection[Suffix] := { ... };`
var acSetRegexp = regexp.MustCompile(`set +(AvailableConnection[^ ]*) *:= *\{([^}]+)\} *;?`)
var setConditionSplitRegexp = regexp.MustCompile(` *: *`)
var jOrLRegexp = regexp.MustCompile(`([jl])`)

// makeModelText assembles one device model's complete .model file: the
// shared channel-table declarations, its InputPort/OutputPort sets derived
// from port pins, its own constraint text (with j/l rewritten to chNo[j]/
// chNo[l] inside every AvailableConnection condition and Channels renamed
// to the component's actual table(s)), and the synthetic display statement
// the solver's stdout is scraped from.
func makeModelText(chanDef string, comp *topo.Component) (string, error) {
	glpk := comp.GLPKText

	m := acSetRegexp.FindAllStringSubmatchIndex(glpk, -1)
	var buf strings.Builder
	idx := 0
	acNames := map[string]bool{}
	var order []string
	for _, loc := range m {
		condStart, condEnd := loc[4], loc[5]
		buf.WriteString(glpk[idx:condStart])
		cond, err := fixSetCondition(glpk[condStart:condEnd])
		if err != nil {
			return "", err
		}
		buf.WriteString(cond)
		name := glpk[loc[2]:loc[3]]
		if !acNames[name] {
			acNames[name] = true
			order = append(order, name)
		}
		idx = condEnd
	}
	if idx < len(glpk) {
		buf.WriteString(glpk[idx:])
	}

	body := buf.String()
	if len(order) >= 2 && !strings.Contains(body, "set AvailableConnection :=") {
		body += "set AvailableConnection := " + strings.Join(order, " union ") + ";"
	}

	body = fixChannelsName(comp, body)
	inPorts, outPorts := makeIOPortDef(comp)

	full := chanDef +
		"set InputPort := {" + inPorts + "};" +
		"set OutputPort := {" + outPorts + "};" +
		body +
		"display AvailableConnection;end;"
	return glpktext.FormatModel(full), nil
}

// fixSetCondition rewrites "<name> : <cond>" so bare j/l references in the
// condition become chNo[j]/chNo[l] (the AvailableConnection domain is
// written against channel full-numbers, but glpsol compares chNo indices).
func fixSetCondition(set string) (string, error) {
	parts := setConditionSplitRegexp.Split(set, -1)
	if len(parts) == 1 {
		return set, nil
	}
	if len(parts) > 2 {
		return "", fmt.Errorf("acbuilder: malformed AvailableConnection condition %q", set)
	}
	cond := jOrLRegexp.ReplaceAllString(parts[1], "chNo[$1]")
	return parts[0] + "\n\t: " + cond, nil
}

// fixChannelsName replaces bare "Channels"/"Channels1"/"Channels2" tokens in
// glpk with the component's actual channel-table set name(s), taken from
// the supportChannel table ids of the component's ports.
func fixChannelsName(comp *topo.Component, glpk string) string {
	chmap := makeChannelConv(comp)
	// Replace longer keys first so "Channels1" isn't corrupted by a prior
	// "Channels" substitution.
	keys := make([]string, 0, len(chmap))
	for k := range chmap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		glpk = strings.ReplaceAll(glpk, k, chmap[k])
	}
	return glpk
}

func makeChannelConv(comp *topo.Component) map[string]string {
	ids := componentTableIDs(comp)
	chmap := map[string]string{}
	if len(ids) <= 1 {
		name := ""
		if len(ids) == 1 {
			name = ids[0]
		}
		chmap["Channels"] = "Channels_" + glpktext.Escape(name)
		return chmap
	}
	for i, id := range ids {
		chmap[fmt.Sprintf("Channels%d", i+1)] = "Channels_" + glpktext.Escape(id)
	}
	return chmap
}

// componentTableIDs returns the distinct channel-table ids this component's
// ports declare, in ascending-pin-number first-seen order.
func componentTableIDs(comp *topo.Component) []string {
	nums := make([]int, 0, len(comp.Ports))
	for n := range comp.Ports {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	seen := map[string]bool{}
	var ids []string
	for _, n := range nums {
		p := comp.Ports[n]
		if p.SupportChannel == "" || seen[p.SupportChannel] {
			continue
		}
		seen[p.SupportChannel] = true
		ids = append(ids, p.SupportChannel)
	}
	return ids
}

// makeIOPortDef returns the comma-separated pin numbers split into
// input/output sets, folding bidi ports into both.
func makeIOPortDef(comp *topo.Component) (string, string) {
	nums := make([]int, 0, len(comp.Ports))
	for n := range comp.Ports {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var in, out []string
	for _, n := range nums {
		p := comp.Ports[n]
		switch {
		case p.IsBidi():
			in = append(in, fmt.Sprintf("%d", n))
			out = append(out, fmt.Sprintf("%d", n))
		case p.IsIn():
			in = append(in, fmt.Sprintf("%d", n))
		case p.IsOut():
			out = append(out, fmt.Sprintf("%d", n))
		}
	}
	return strings.Join(in, ","), strings.Join(out, ",")
}
