package health

import (
	"context"

	"github.com/aist-nrm/nrm/pkg/reservation"
	"github.com/aist-nrm/nrm/pkg/topo"
)

// TopologyCheck reports whether a topology is loaded and has at least one
// channel table to solve against.
type TopologyCheck struct {
	Topo *topo.Topology
}

func (c *TopologyCheck) Name() string { return "topology" }

func (c *TopologyCheck) Run(ctx context.Context) Result {
	return timedResult(c.Name(), func(ctx context.Context) error {
		if c.Topo == nil {
			return errNotLoaded
		}
		if len(c.Topo.AllChannels()) == 0 {
			return errNoChannels
		}
		return nil
	})(ctx)
}

// StoreCheck reports whether the durable reservation store backing rsvMgr
// (Redis or file-backed) is reachable.
type StoreCheck struct {
	Store reservation.Store
}

func (c *StoreCheck) Name() string { return "reservation-store" }

func (c *StoreCheck) Run(ctx context.Context) Result {
	return timedResult(c.Name(), func(ctx context.Context) error {
		if c.Store == nil {
			return nil // no durable store configured: not an error, just absent
		}
		_, err := c.Store.Scan(ctx)
		return err
	})(ctx)
}

// SolverCheck reports whether the external LP solver binary the driver
// shells out to is present and executable.
type SolverCheck struct {
	// Lookup resolves the solver binary path; nil means "not wired".
	Lookup func() (string, error)
}

func (c *SolverCheck) Name() string { return "solver" }

func (c *SolverCheck) Run(ctx context.Context) Result {
	return timedResult(c.Name(), func(ctx context.Context) error {
		if c.Lookup == nil {
			return nil
		}
		_, err := c.Lookup()
		return err
	})(ctx)
}

var (
	errNotLoaded  = simpleErr("no topology loaded")
	errNoChannels = simpleErr("topology has no channels")
)

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
