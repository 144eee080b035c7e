package solver

import (
	"context"
	"os"
	"time"
)

// Stub is a canned-answer Solver for unit tests that exercise callers of
// the Solver interface without shelling out to glpsol. SolFile, if set,
// is copied verbatim to the requested solFile path so ParseCost sees it.
type Stub struct {
	Stdout  string
	SolFile string // path to canned .sol contents, or "" to write nothing
	Err     error
}

// Solve satisfies Solver, ignoring modelFile/dataFile/timeout.
func (s *Stub) Solve(ctx context.Context, modelFile, dataFile, solFile string, timeout time.Duration) (string, error) {
	if s.Err != nil {
		return s.Stdout, s.Err
	}
	if s.SolFile != "" {
		data, err := os.ReadFile(s.SolFile)
		if err != nil {
			return s.Stdout, err
		}
		if err := os.WriteFile(solFile, data, 0o644); err != nil {
			return s.Stdout, err
		}
	}
	return s.Stdout, nil
}

// RunDisplay satisfies DisplayRunner, ignoring modelFile/dataFile.
func (s *Stub) RunDisplay(ctx context.Context, modelFile, dataFile string) (string, string, error) {
	return s.Stdout, "", s.Err
}
