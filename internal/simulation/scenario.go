package simulation

import (
	"context"

	"github.com/nvandessel/sfcsim/internal/driver"
	"github.com/nvandessel/sfcsim/internal/rescale"
	"github.com/nvandessel/sfcsim/internal/store"
)

// Scenario defines one driver run.
type Scenario struct {
	Name   string
	Solver driver.Solver

	// Options overrides driver.DefaultOptions when non-nil. Its Table,
	// Logger and Observer fields are replaced by the runner.
	Options *driver.Options

	// Table rescales each solution. Nil runs without rescaling.
	Table *rescale.Table

	InitialValues map[string]float64

	// Context, when non-nil, is passed to the driver instead of a
	// background context.
	Context context.Context

	// Save persists the run and its trace to the runner's store.
	Save bool
}

// SimulationResult captures everything observed during a scenario.
type SimulationResult struct {
	Name   string
	Result driver.Result
	Err    error

	// Trace holds one entry per outer iteration, in order.
	Trace []store.Iteration

	// Log is the text log output of the run.
	Log string

	// RunID is set when the scenario was saved.
	RunID string
	Store store.RunStore
}
