package glpktext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StDefStatement matches one "s.t. NAME{DOMAIN} : BODY;" constraint.
var StDefStatement = regexp.MustCompile(`s\.t\. +(` + varToken + `) *\{([^{}]+)\} *: *(.+);`)

var sumCondStatement = regexp.MustCompile(`sum *\{([^{}]+)\} *c\[([^\[\]]+)\] *([<>=]+) *([0-9]+)`)
var varCondStatement = regexp.MustCompile(`c\[([^\[\]]+)\] *([<>=]+) *([0-9]+|c\[([^\[\]]+)\])`)
var dim4SplitRegexp = regexp.MustCompile(` *, *`)

// VarDim4 is the four comma-separated index expressions inside a "c[...]"
// reference: always in the canonical order i, j, k, (l|j).
type VarDim4 struct {
	Index []string
}

// ParseVarDim4 validates and splits "i,j,k,l" (or "i,j,k,j") style text.
func ParseVarDim4(txt string) (VarDim4, error) {
	idx := dim4SplitRegexp.Split(strings.TrimSpace(txt), -1)
	if len(idx) != 4 {
		return VarDim4{}, fmt.Errorf("glpktext: c[...] must have 4 indices: %q", txt)
	}
	if !strings.HasPrefix(idx[0], "i") {
		return VarDim4{}, fmt.Errorf("glpktext: 1st index must be i: %q", txt)
	}
	if !strings.HasPrefix(idx[1], "j") {
		return VarDim4{}, fmt.Errorf("glpktext: 2nd index must be j: %q", txt)
	}
	if !strings.HasPrefix(idx[2], "k") {
		return VarDim4{}, fmt.Errorf("glpktext: 3rd index must be k: %q", txt)
	}
	if !strings.HasPrefix(idx[3], "l") && !strings.HasPrefix(idx[3], "j") {
		return VarDim4{}, fmt.Errorf("glpktext: 4th index must be l or j: %q", txt)
	}
	return VarDim4{Index: idx}, nil
}

// IsSelfLoop reports whether the 4th index reuses j (a "c[i,j,k,j]" style
// reference, meaning in-channel equals out-channel) rather than a free l.
func (v VarDim4) IsSelfLoop() bool {
	return strings.HasPrefix(v.Index[3], "j")
}

func (v VarDim4) String() string {
	return strings.Join(v.Index, ", ")
}

// SumCond is a "sum{DOMAIN} c[DIM4] OP NUM" constraint body.
type SumCond struct {
	Domain  Domain
	VarC    VarDim4
	CondOp  string
	CondNum int
}

// VarCond is a "c[DIM4] OP NUM" or "c[DIM4] OP c[DIM4]" constraint body.
type VarCond struct {
	Org      string
	Left     VarDim4
	CondOp   string
	Right    *VarDim4 // nil when comparing against a literal
	NumRight int
}

// StDef is one "s.t. NAME{DOMAIN} : BODY;" constraint.
type StDef struct {
	Org      string
	Name     string
	Domain   Domain
	BodyOrg  string
	SumCond  *SumCond
	VarCond  *VarCond
}

// ParseStDef builds an StDef from one regexp match of StDefStatement.
func ParseStDef(m []string) (StDef, error) {
	domain, err := ParseDomain(m[2])
	if err != nil {
		return StDef{}, err
	}
	st := StDef{Org: m[0], Name: m[1], Domain: domain, BodyOrg: m[3]}

	if strings.Contains(m[3], "sum") {
		sc, err := parseSumCond(m[3])
		if err != nil {
			return StDef{}, err
		}
		st.SumCond = &sc
		return st, nil
	}

	vc, err := parseVarCond(m[3])
	if err != nil {
		return StDef{}, err
	}
	st.VarCond = &vc
	return st, nil
}

func parseSumCond(body string) (SumCond, error) {
	m := sumCondStatement.FindStringSubmatch(body)
	if m == nil {
		return SumCond{}, fmt.Errorf("glpktext: syntax error (unsupported sum form): %q", body)
	}
	d, err := ParseDomain(m[1])
	if err != nil {
		return SumCond{}, err
	}
	varC, err := ParseVarDim4(m[2])
	if err != nil {
		return SumCond{}, err
	}
	n, err := strconv.Atoi(m[4])
	if err != nil {
		return SumCond{}, fmt.Errorf("glpktext: bad sum bound %q: %w", m[4], err)
	}
	return SumCond{Domain: d, VarC: varC, CondOp: m[3], CondNum: n}, nil
}

func parseVarCond(body string) (VarCond, error) {
	m := varCondStatement.FindStringSubmatch(body)
	if m == nil {
		return VarCond{}, fmt.Errorf("glpktext: syntax error (unsupported form): %q", body)
	}
	left, err := ParseVarDim4(m[1])
	if err != nil {
		return VarCond{}, err
	}
	right := m[3]
	if strings.HasPrefix(right, "c") {
		rightDim, err := ParseVarDim4(m[4])
		if err != nil {
			return VarCond{}, err
		}
		return VarCond{Org: body, Left: left, CondOp: m[2], Right: &rightDim}, nil
	}
	n, err := strconv.Atoi(right)
	if err != nil {
		return VarCond{}, fmt.Errorf("glpktext: bad rhs %q: %w", right, err)
	}
	return VarCond{Org: body, Left: left, CondOp: m[2], NumRight: n}, nil
}

// ResolvedDomain returns Domain with AvailableConnection substituted by
// its canonical product form, as used wherever this constraint is expanded.
func (s StDef) ResolvedDomain() Domain {
	return s.Domain.Resolve()
}

// ParseAllStDefs finds every "s.t. ...;" constraint in txt.
func ParseAllStDefs(txt string) ([]StDef, error) {
	var out []StDef
	for _, m := range StDefStatement.FindAllStringSubmatch(txt, -1) {
		st, err := ParseStDef(m)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
