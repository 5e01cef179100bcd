package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors - fatal, surfaced immediately, never defaulted around
	ErrConfiguration    = errors.New("invalid configuration")
	ErrCarryoverRange   = fmt.Errorf("%w: carryover rate must be in [0, 1)", ErrConfiguration)
	ErrHalfSatRange     = fmt.Errorf("%w: half-saturation point must be > 0", ErrConfiguration)
	ErrShapeRange       = fmt.Errorf("%w: saturation shape must be > 0", ErrConfiguration)
	ErrSeriesLength     = fmt.Errorf("%w: series length mismatch", ErrConfiguration)
	ErrUnknownChannel   = fmt.Errorf("%w: unknown channel", ErrConfiguration)
	ErrZeroIntervention = fmt.Errorf("%w: intervention size is zero", ErrConfiguration)
	ErrEmptySeries      = fmt.Errorf("%w: empty series", ErrConfiguration)
)

// NumericalInstabilityError reports a non-finite bound or gradient during an
// iterative numeric procedure. Fatal for that run; callers must not mask it.
type NumericalInstabilityError struct {
	Stage     string
	Iteration int
	Value     float64
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("numerical instability in %s at iteration %d: non-finite value %v", e.Stage, e.Iteration, e.Value)
}

// NewNumericalInstability creates an instability error for a named stage.
func NewNumericalInstability(stage string, iteration int, value float64) error {
	return &NumericalInstabilityError{Stage: stage, Iteration: iteration, Value: value}
}

// IsNumericalInstability reports whether err is a NumericalInstabilityError.
func IsNumericalInstability(err error) bool {
	var nie *NumericalInstabilityError
	return errors.As(err, &nie)
}

// Error constructors with context
func NewConfigurationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, field, reason)
}

func NewLengthMismatchError(what string, got, want int) error {
	return fmt.Errorf("%w: %s has length %d, want %d", ErrSeriesLength, what, got, want)
}

func NewUnknownChannelError(channel string) error {
	return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
}

// IsConfigurationError reports whether err is fatal configuration misuse.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// FitStatus enumerates the outcome of an iterative fitting procedure.
// MaxIterationsReached is a non-fatal warning: the best-effort result is
// still returned but callers must be able to distinguish it from Converged.
type FitStatus string

const (
	FitConverged     FitStatus = "converged"
	FitMaxIterations FitStatus = "max_iterations_reached"
	FitDiverged      FitStatus = "diverged"
)

// Converged reports whether the fit satisfied its tolerance.
func (s FitStatus) Converged() bool { return s == FitConverged }

// SolveStatus enumerates the outcome of a constrained optimization run.
// NoImprovementFound is a first-class outcome, not an error: the current
// allocation was already optimal or the solver could not escape it.
type SolveStatus string

const (
	SolveConverged     SolveStatus = "converged"
	SolveMaxIterations SolveStatus = "max_iterations_reached"
	SolveInfeasible    SolveStatus = "infeasible"
	SolveNoImprovement SolveStatus = "no_improvement_found"
)

// Improved reports whether the solver produced a usable new allocation.
func (s SolveStatus) Improved() bool {
	return s == SolveConverged || s == SolveMaxIterations
}
