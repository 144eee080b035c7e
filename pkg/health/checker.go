// Package health reports the server's own operational status — solver and
// reservation-store reachability — and exposes it over HTTP alongside
// Prometheus metrics for scrape-based monitoring (spec §11 DOMAIN STACK).
package health

import (
	"context"
	"fmt"
	"time"
)

// Status is the outcome of one health check.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Result is one check's outcome.
type Result struct {
	Check     string        `json:"check"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report aggregates every check's Result with a worst-wins overall Status.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Overall   Status        `json:"overall"`
	Results   []Result      `json:"results"`
	Duration  time.Duration `json:"duration"`
}

// Check is one independently pluggable health probe (solver reachability,
// store reachability, ...).
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Checker runs a fixed set of Checks and combines them into a Report.
type Checker struct {
	checks []Check
}

// NewChecker returns a Checker running the given checks.
func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks}
}

// Run executes every check and combines them worst-status-wins.
func (c *Checker) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{
		Timestamp: start,
		Results:   make([]Result, 0, len(c.checks)),
		Overall:   StatusOK,
	}
	for _, check := range c.checks {
		result := check.Run(ctx)
		report.Results = append(report.Results, result)
		switch {
		case result.Status == StatusCritical:
			report.Overall = StatusCritical
		case result.Status == StatusWarning && report.Overall != StatusCritical:
			report.Overall = StatusWarning
		}
	}
	report.Duration = time.Since(start)
	return report
}

// timedResult runs fn and wraps its error into a Result, for checks whose
// body is just "can I reach this dependency".
func timedResult(name string, fn func(ctx context.Context) error) func(ctx context.Context) Result {
	return func(ctx context.Context) Result {
		start := time.Now()
		r := Result{Check: name, Timestamp: start}
		if err := fn(ctx); err != nil {
			r.Status = StatusCritical
			r.Message = err.Error()
		} else {
			r.Status = StatusOK
			r.Message = fmt.Sprintf("%s reachable", name)
		}
		r.Duration = time.Since(start)
		return r
	}
}
