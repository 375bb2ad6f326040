package model

import (
	"errors"
	"fmt"
)

// Configuration and solver errors.
var (
	// ErrUnknownVariable indicates a value was set for a name the model does not declare.
	ErrUnknownVariable = errors.New("model: unknown variable")

	// ErrUnknownParameter indicates a parameter override for an undeclared parameter.
	ErrUnknownParameter = errors.New("model: unknown parameter")

	// ErrInvalidModel indicates a broken definition: duplicate names, an equation
	// for an undeclared variable, or an equation reading an undeclared name.
	ErrInvalidModel = errors.New("model: invalid model definition")

	// ErrSingular indicates the equation system produced a non-finite value or
	// a singular Jacobian and cannot be solved from the current state.
	ErrSingular = errors.New("model: equation system is singular or inconsistent")
)

// SolveError wraps a solver failure with the equation and sweep where it happened.
type SolveError struct {
	Equation string
	Sweep    int
	Value    float64
	Err      error
}

func (e *SolveError) Error() string {
	if e.Equation == "" {
		return fmt.Sprintf("sweep %d: %v", e.Sweep, e.Err)
	}
	return fmt.Sprintf("equation %s, sweep %d (value %g): %v", e.Equation, e.Sweep, e.Value, e.Err)
}

func (e *SolveError) Unwrap() error {
	return e.Err
}
