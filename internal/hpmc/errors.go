package hpmc

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAttached indicates the integrator has not been attached to a run.
	ErrNotAttached = errors.New("hpmc: integrator not attached")

	// ErrOverlap indicates the initial configuration has overlapping particles.
	ErrOverlap = errors.New("hpmc: overlapping particles")

	// ErrInvalidState indicates a particle with NaN or Inf coordinates.
	ErrInvalidState = errors.New("hpmc: invalid particle state (NaN or Inf detected)")

	// ErrInvalidEnergy indicates the installed evaluator returned NaN or Inf.
	ErrInvalidEnergy = errors.New("hpmc: patch energy is not finite")
)

// StepError wraps an error with the step it happened on.
type StepError struct {
	Step    uint64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
