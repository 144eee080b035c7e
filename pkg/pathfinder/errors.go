package pathfinder

import (
	"fmt"
	"math"
)

// NotFoundCost is the sentinel +Inf cost recorded for a sub-solve that
// timed out or returned no feasible solution (spec §7: SolverNoAnswer is
// recorded, not propagated as a hard error).
var NotFoundCost = math.Inf(1)

// BidiNotSupportedError reports that bidi was requested but an endpoint
// port has no opposite.
type BidiNotSupportedError struct {
	PortName string
}

func (e *BidiNotSupportedError) Error() string {
	return fmt.Sprintf("-bi option not supported for %s (no opposite port)", e.PortName)
}

// RequestError is a user-facing request parsing/validation failure: bad
// port name, bad channel, src==dst, missing required option.
type RequestError struct {
	Detail string
}

func (e *RequestError) Error() string { return e.Detail }

// MalformedSolverOutputError reports that solver stdout didn't match the
// expected line shape, or named a port/channel the topology doesn't have.
type MalformedSolverOutputError struct {
	Detail string
}

func (e *MalformedSolverOutputError) Error() string {
	return fmt.Sprintf("malformed solver output: %s", e.Detail)
}

// BuildError reports that the input of one solve could not be prepared: a
// skeleton file could not be copied, an overlay could not be rendered or
// appended, or the request lacks the channel or solvec target the solve
// needs. Skeleton defects such as a duplicate Cost entry or a missing port
// are not BuildErrors; they are only logged as warnings.
type BuildError struct {
	Detail string
}

func (e *BuildError) Error() string { return e.Detail }

// NoAnswerError reports that no candidate channel yielded a usable route.
// Orchestrator.Run returns it as the request's final failure, with every
// sub-request diagnostic joined into Reason; a single channel without a
// feasible solution is only recorded as a diagnostic.
type NoAnswerError struct {
	Reason string
}

func (e *NoAnswerError) Error() string {
	return fmt.Sprintf("PROBLEM HAS NO PRIMAL FEASIBLE SOLUTION: %s", e.Reason)
}
