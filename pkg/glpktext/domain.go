// Package glpktext parses the small per-device constraint language carried
// in a Component's GLPK field (set defs and s.t. constraints) into
// structured values the AC builder and skeleton compiler can walk without
// re-parsing text.
package glpktext

import (
	"fmt"
	"regexp"
	"strings"
)

const varToken = `[a-zA-Z0-9_]+`

var varInSetRegexp = regexp.MustCompile(`(` + varToken + `) in (` + varToken + `)`)
var colonSplitRegexp = regexp.MustCompile(` *: *`)

// AvailableConnectionDomainName is the synthetic set name an StDef's domain
// may reference in place of an explicit InputPort/Channels/OutputPort
// product; CanonicalACDomain is substituted for it wherever a constraint's
// domain is evaluated.
const AvailableConnectionDomainName = "AvailableConnection"

// CanonicalACDomain replaces a domain literally named AvailableConnection.
var CanonicalACDomain = Domain{
	Raw:      "i in InputPort, j in Channels, k in OutputPort, l in Channels : j = l",
	Domain:   "i in InputPort, j in Channels, k in OutputPort, l in Channels",
	Cond:     "j = l",
	VarInSet: map[string]string{"i": "InputPort", "j": "Channels", "k": "OutputPort", "l": "Channels"},
}

// Domain is a parsed "i in InputPort, j in Channels : cond" clause.
type Domain struct {
	Raw      string
	Domain   string
	Cond     string // empty if absent
	VarInSet map[string]string
}

// ParseDomain splits on the colon into the domain clause and the optional
// trailing condition (more than one colon is a syntax error), then extracts
// every "v in SET" pair.
func ParseDomain(txt string) (Domain, error) {
	parts := colonSplitRegexp.Split(txt, -1)
	d := Domain{Raw: txt, VarInSet: map[string]string{}}
	switch len(parts) {
	case 1:
		d.Domain = parts[0]
	case 2:
		d.Domain = parts[0]
		d.Cond = parts[1]
	default:
		return Domain{}, fmt.Errorf("glpktext: syntax error in domain %q", txt)
	}
	for _, m := range varInSetRegexp.FindAllStringSubmatch(d.Domain, -1) {
		d.VarInSet[m[1]] = m[2]
	}
	return d, nil
}

// HasVarInSet reports whether any "v in SET" pair was found.
func (d Domain) HasVarInSet() bool {
	return len(d.VarInSet) > 0
}

// IsAvailableConnection reports whether this domain is the bare
// AvailableConnection reference rather than an explicit product.
func (d Domain) IsAvailableConnection() bool {
	return strings.TrimSpace(d.Domain) == AvailableConnectionDomainName
}

// Resolve returns d, or CanonicalACDomain if d names AvailableConnection.
func (d Domain) Resolve() Domain {
	if d.IsAvailableConnection() {
		return CanonicalACDomain
	}
	return d
}
