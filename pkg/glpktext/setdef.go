package glpktext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SetDefStatement matches one "set NAME := {...};" declaration.
var SetDefStatement = regexp.MustCompile(`set +(` + varToken + `) *:= *\{([^{}]+)\};`)

var numsOnlyRegexp = regexp.MustCompile(`^[0-9, ]+$`)
var setdefWhitespaceRegexp = regexp.MustCompile(`[\t\r\n]+`)
var numListSplitRegexp = regexp.MustCompile(` *, *`)

// SetDef holds one "set XX := {...}" declaration. Either Nums is populated
// (a literal integer list) or Domain is (an "i in Port" style expression,
// used only by the synthetic AvailableConnection set).
type SetDef struct {
	Name   string
	Raw    string
	Nums   []int
	Domain *Domain
}

// ParseSetDef builds a SetDef from one regexp match of SetDefStatement.
func ParseSetDef(m []string) (SetDef, error) {
	name := m[1]
	raw := setdefWhitespaceRegexp.ReplaceAllString(m[2], "")

	sd := SetDef{Name: name, Raw: raw}
	if numsOnlyRegexp.MatchString(raw) {
		nums, err := parseNumList(raw)
		if err != nil {
			return SetDef{}, err
		}
		sd.Nums = nums
		return sd, nil
	}

	d, err := ParseDomain(raw)
	if err != nil {
		return SetDef{}, err
	}
	sd.Domain = &d
	return sd, nil
}

func parseNumList(txt string) ([]int, error) {
	parts := numListSplitRegexp.Split(strings.TrimSpace(txt), -1)
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("glpktext: bad integer %q in set literal: %w", p, err)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// ParseAllSetDefs finds every "set ... := {...};" declaration in txt.
func ParseAllSetDefs(txt string) (map[string]SetDef, error) {
	out := map[string]SetDef{}
	for _, m := range SetDefStatement.FindAllStringSubmatch(txt, -1) {
		sd, err := ParseSetDef(m)
		if err != nil {
			return nil, err
		}
		out[sd.Name] = sd
	}
	return out, nil
}
