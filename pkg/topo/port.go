package topo

import (
	"fmt"
	"regexp"
	"strings"
)

// IO classifies how a port is wired.
type IO string

const (
	Input  IO = "input"
	Output IO = "output"
	BiDi   IO = "BiDi"
)

// NoSocketPort is the sentinel pin number meaning "this component has no
// controller-attached socket port".
const NoSocketPort = -1

var typeRegexp = regexp.MustCompile(`.+[^A-Z]([A-Z]+)[^A-Z]*$`)

// PortType is the IN/OUT tag derived from a port's name, used to find its
// opposite by name substitution (e.g. "LINE_IN_1" <-> "LINE_OUT_1").
type PortType string

const (
	TypeIn      PortType = "IN"
	TypeOut     PortType = "OUT"
	TypeUnknown PortType = ""
)

// Port is one connector on a Component.
type Port struct {
	Number         int
	Name           string
	Component      *Component
	IO             IO
	SupportChannel string
	Type           PortType

	ConnectedPorts map[*Port]bool
	FlowIns        map[*Port]bool
	FlowOuts       map[*Port]bool

	opposite    *Port
	hasOpposite bool
}

// FullName is the component-qualified, globally unique port identifier.
func (p *Port) FullName() string {
	return fmt.Sprintf("%s_%d", p.Component.Name, p.Number)
}

func (p *Port) IsIn() bool {
	if p.IO == BiDi {
		return true
	}
	if p.Type != TypeUnknown {
		return p.Type == TypeIn
	}
	return p.IO == Input
}

func (p *Port) IsOut() bool {
	if p.IO == BiDi {
		return true
	}
	if p.Type != TypeUnknown {
		return p.Type == TypeOut
	}
	return p.IO == Output
}

func (p *Port) IsBidi() bool {
	return p.IO == BiDi
}

// DerivePortType extracts the trailing run of uppercase letters from name,
// used as the IN/OUT tag for opposite-port matching. Returns TypeUnknown
// when the pattern doesn't match or the tag isn't IN/OUT.
func DerivePortType(name string) PortType {
	m := typeRegexp.FindStringSubmatch(name)
	if m == nil {
		return TypeUnknown
	}
	switch m[1] {
	case string(TypeIn):
		return TypeIn
	case string(TypeOut):
		return TypeOut
	default:
		return TypeUnknown
	}
}

// IsOppositeName reports whether b is a could-be a's opposite by IN<->OUT
// substring substitution: b equals a with any one "IN" replaced by "OUT",
// or any one "OUT" replaced by "IN".
func IsOppositeName(a, b string) bool {
	for _, sub := range [][2]string{{string(TypeIn), string(TypeOut)}, {string(TypeOut), string(TypeIn)}} {
		for i := 0; i+len(sub[0]) <= len(a); i++ {
			if strings.HasPrefix(a[i:], sub[0]) && a[:i]+sub[1]+a[i+len(sub[0]):] == b {
				return true
			}
		}
	}
	return false
}

// AddConnectedPort records an externally-wired peer (from a net).
func (p *Port) AddConnectedPort(other *Port) {
	if p.ConnectedPorts == nil {
		p.ConnectedPorts = map[*Port]bool{}
	}
	p.ConnectedPorts[other] = true
}

func (p *Port) IsConnected(other *Port) bool {
	return p.ConnectedPorts[other]
}

// IsSameSupportChannel applies the ANY-wildcard compatibility rule.
func (p *Port) IsSameSupportChannel(other *Port) bool {
	return IsSupportChannelCompatible(p.SupportChannel, other.SupportChannel)
}

func (p *Port) SetOpposite(o *Port) {
	p.opposite = o
	p.hasOpposite = o != nil
}

func (p *Port) Opposite() *Port {
	return p.opposite
}

func (p *Port) HasOpposite() bool {
	return p.hasOpposite
}

func (p *Port) setFlowInOut(in, out map[*Port]bool) {
	p.FlowIns = in
	p.FlowOuts = out
}

// PortChannel pairs a port with one of its channels — the unit of
// src/dst addressing throughout requests and routes.
type PortChannel struct {
	Port    *Port
	Channel *Channel
}

// Key is the stable identifier used for route dedup and JSON persistence:
// "<port full name>@<channel full_no>".
func (pc PortChannel) Key() string {
	return fmt.Sprintf("%s@%s", pc.Port.FullName(), pc.Channel.FullNo())
}

// PortPair is one directed net edge, with the cost carried on the wire.
type PortPair struct {
	PairKey string
	Src     *Port
	Dst     *Port
	Cost    float64
}

var pairKeyRegexp = regexp.MustCompile(`(.+)-[01]$`)

// DerivePairKey strips a trailing "-0"/"-1" suffix from a net's "pair" XML
// attribute so the two directions of one bidirectional net share a key. An
// empty attribute (a unidirectional net with no paired sibling) yields an
// empty, null pair key — it is not a net "name" operation.
func DerivePairKey(pairAttr string) string {
	if pairAttr == "" {
		return ""
	}
	if m := pairKeyRegexp.FindStringSubmatch(pairAttr); m != nil {
		return m[1]
	}
	return pairAttr
}

// NewPortPair validates the support-channel invariant and builds a PortPair.
func NewPortPair(pairKey string, src, dst *Port, cost float64) (*PortPair, error) {
	if !src.IsSameSupportChannel(dst) {
		return nil, fmt.Errorf("port pair %s: support channel mismatch %s vs %s", pairKey, src.SupportChannel, dst.SupportChannel)
	}
	return &PortPair{PairKey: pairKey, Src: src, Dst: dst, Cost: cost}, nil
}
