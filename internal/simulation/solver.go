package simulation

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/nvandessel/sfcsim/internal/model"
)

// ScriptedSolver replays a fixed sequence of solutions. Call k (1-based)
// appends a copy of Script[k-1], or of the last entry once the script is
// exhausted. It satisfies driver.Solver.
type ScriptedSolver struct {
	// Script is the sequence of solutions returned by successive solves.
	Script []model.Solution

	// FailAt makes the FailAt-th call (1-based) return Err. Zero never fails.
	FailAt int
	Err    error

	// Calls counts Solve invocations, including failed ones.
	Calls int

	// Seeded holds the values passed to SetValues.
	Seeded map[string]float64

	// LastIterations and LastThreshold record the budget of the latest call.
	LastIterations int
	LastThreshold  float64

	history []model.Solution
}

// FixedPoint returns a solver whose every solve yields the same values.
func FixedPoint(values map[string]float64) *ScriptedSolver {
	return &ScriptedSolver{Script: []model.Solution{model.Solution(values).Clone()}}
}

// Growing returns a solver whose k-th solve multiplies the trending values of
// base by (1+rate)^k and repeats the rest. With no trending names every value
// grows.
func Growing(base map[string]float64, rate float64, steps int, trending ...string) *ScriptedSolver {
	grows := func(name string) bool {
		return len(trending) == 0 || slices.Contains(trending, name)
	}
	script := make([]model.Solution, steps)
	factor := 1.0
	for k := range script {
		factor *= 1 + rate
		sol := make(model.Solution, len(base))
		for name, v := range base {
			if grows(name) {
				v *= factor
			}
			sol[name] = v
		}
		script[k] = sol
	}
	return &ScriptedSolver{Script: script}
}

// names returns the variable names the solver knows about.
func (s *ScriptedSolver) names() map[string]bool {
	known := make(map[string]bool)
	if len(s.Script) > 0 {
		for name := range s.Script[0] {
			known[name] = true
		}
	}
	return known
}

// SetValues records values after checking every name appears in the script.
func (s *ScriptedSolver) SetValues(values map[string]float64) error {
	known := s.names()
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if !known[name] {
			return fmt.Errorf("%w: %s", model.ErrUnknownVariable, name)
		}
	}
	s.Seeded = maps.Clone(values)
	return nil
}

// Solve appends the next scripted solution.
func (s *ScriptedSolver) Solve(ctx context.Context, iterations int, threshold float64) (model.Solution, error) {
	s.Calls++
	s.LastIterations = iterations
	s.LastThreshold = threshold
	if s.FailAt > 0 && s.Calls == s.FailAt {
		return nil, s.Err
	}
	if len(s.Script) == 0 {
		return nil, fmt.Errorf("scripted solver has no solutions")
	}
	idx := min(s.Calls-1, len(s.Script)-1)
	sol := s.Script[idx].Clone()
	s.history = append(s.history, sol)
	return sol, nil
}

// Solutions returns the live history.
func (s *ScriptedSolver) Solutions() []model.Solution {
	return s.history
}
