package glpktext

import "fmt"

// GLPK holds the parsed contents of one component's GLPK constraint text:
// its set defs (InputPort, OutputPort, Channels_*, AvailableConnection) and
// its s.t. constraints.
type GLPK struct {
	Text    string
	SetDefs map[string]SetDef
	StDefs  []StDef
}

// Parse parses the raw constraint text carried in a Component's GLPKText
// field.
func Parse(txt string) (*GLPK, error) {
	setDefs, err := ParseAllSetDefs(txt)
	if err != nil {
		return nil, fmt.Errorf("glpktext: parsing set defs: %w", err)
	}
	stDefs, err := ParseAllStDefs(txt)
	if err != nil {
		return nil, fmt.Errorf("glpktext: parsing s.t. defs: %w", err)
	}
	return &GLPK{Text: txt, SetDefs: setDefs, StDefs: stDefs}, nil
}

// GetDomain returns the constraint's domain, substituting the canonical
// AvailableConnection product whenever the constraint names that set
// directly (spec's domain-canonicalization rule).
func (g *GLPK) GetDomain(st StDef) Domain {
	return st.ResolvedDomain()
}

// Model groups every Component sharing one device model under its shared
// GLPK constraint set, tracking whether any of them carries a live
// controller socket.
type Model struct {
	Name       string
	GLPK       *GLPK
	Components []string // component names, in addition order
	HasCon     bool

	onMixedController func(model, comp string)
}

// NewModel returns an empty Model bound to a parsed GLPK.
func NewModel(name string, g *GLPK) *Model {
	return &Model{Name: name, GLPK: g}
}

// AddComponent registers a component (by name) and its controller status.
// onMixed, if non-nil, is invoked when components sharing a model disagree
// on whether they carry a controller, mirroring the original's warning log.
func (m *Model) AddComponent(compName string, hasController bool, onMixed func(model, comp string)) {
	m.Components = append(m.Components, compName)
	if hasController {
		m.HasCon = true
		return
	}
	if m.HasCon && onMixed != nil {
		onMixed(m.Name, compName)
	}
}
