package topo

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/aist-nrm/nrm/pkg/glpktext"
)

// PseudoPrefix marks application-endpoint components: they have no internal
// routing and participate only as net endpoints.
const PseudoPrefix = "P"

// Component is one physical or pseudo device instance in the topology.
type Component struct {
	Name       string
	Model      string
	GLPKText   string
	Controller string
	Socket     int
	CostJSON   string

	SupportChannels map[string]bool
	Ports           map[int]*Port

	AC *AvailableConnection

	cost       map[string]any
	costParsed bool

	glpk       *glpktext.GLPK
	glpkErr    error
	glpkParsed bool
}

// GLPK lazily parses this component's GLPKText into set defs and
// constraints, caching the result (and any parse error) for later calls.
func (c *Component) GLPK() (*glpktext.GLPK, error) {
	if !c.glpkParsed {
		c.glpkParsed = true
		c.glpk, c.glpkErr = glpktext.Parse(c.GLPKText)
	}
	return c.glpk, c.glpkErr
}

// IsPseudo reports whether this is an application endpoint with no
// internal routing (its name starts with "P").
func (c *Component) IsPseudo() bool {
	return strings.HasPrefix(c.Name, PseudoPrefix)
}

// HasController reports whether this component has a usable controller
// socket: non-empty, not the placeholder "TBD", and a real pin number.
func (c *Component) HasController() bool {
	return c.Controller != "" && c.Controller != "TBD" && c.Socket > NoSocketPort
}

// SetSupportChannels expands the ANY wildcard against the full channel
// table set and records the resolved per-table membership.
func (c *Component) SetSupportChannels(raw []string, allTableIDs []string) {
	c.SupportChannels = map[string]bool{}
	for _, id := range raw {
		if id == AnySupportChannel {
			for _, t := range allTableIDs {
				c.SupportChannels[t] = true
			}
			continue
		}
		c.SupportChannels[id] = true
	}
}

func (c *Component) parseCost() map[string]any {
	if c.costParsed {
		return c.cost
	}
	c.costParsed = true
	if c.CostJSON == "" {
		return nil
	}
	unescaped := strings.ReplaceAll(c.CostJSON, "&quot;", `"`)
	var m map[string]any
	if err := json.Unmarshal([]byte(unescaped), &m); err == nil {
		c.cost = m
	}
	return c.cost
}

// GetCost returns the component's "Cost" JSON field, or nil if absent/unparseable.
func (c *Component) GetCost() any {
	m := c.parseCost()
	if m == nil {
		return nil
	}
	return m["Cost"]
}

// GetOutOfService returns the component's "OutOfService" JSON field.
func (c *Component) GetOutOfService() any {
	m := c.parseCost()
	if m == nil {
		return nil
	}
	return m["OutOfService"]
}

func (c *Component) portByNumber(n int) *Port {
	return c.Ports[n]
}

// GetPort returns the port at pin number n, or nil if the component has no
// such pin.
func (c *Component) GetPort(n int) *Port {
	return c.Ports[n]
}

// AllPorts returns every port on this component, ordered by pin number.
func (c *Component) AllPorts() []*Port {
	nums := make([]int, 0, len(c.Ports))
	for n := range c.Ports {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	ports := make([]*Port, 0, len(nums))
	for _, n := range nums {
		ports = append(ports, c.Ports[n])
	}
	return ports
}
