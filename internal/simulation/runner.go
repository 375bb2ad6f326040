package simulation

import (
	"bytes"
	"context"
	"testing"

	"github.com/nvandessel/sfcsim/internal/driver"
	"github.com/nvandessel/sfcsim/internal/logging"
	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/store"
)

// Runner executes scenarios against the real driver with an isolated run store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteRunStore
}

// NewRunner creates a runner whose run store lives under t.TempDir().
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	s, err := store.NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &Runner{t: t, store: s}
}

// Run executes the scenario. Driver errors are captured in the result rather
// than failing the test; store errors fail it.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()

	ctx := scenario.Context
	if ctx == nil {
		ctx = context.Background()
	}

	opts := driver.DefaultOptions()
	if scenario.Options != nil {
		opts = *scenario.Options
	}
	var logBuf bytes.Buffer
	var rec store.Recorder
	opts.Table = scenario.Table
	opts.InitialValues = scenario.InitialValues
	opts.Logger = logging.NewLogger("debug", &logBuf)
	opts.Observer = rec.Observe

	res, err := driver.Run(ctx, scenario.Solver, opts)

	out := SimulationResult{
		Name:   scenario.Name,
		Result: res,
		Err:    err,
		Trace:  rec.Iterations(),
		Log:    logBuf.String(),
		Store:  r.store,
	}

	if scenario.Save && err == nil {
		id, saveErr := r.store.SaveRun(ctx, store.Run{
			Model:      scenario.Name,
			Converged:  res.Converged,
			Iterations: res.Iterations,
			Settings:   store.SettingsFrom(methodOf(scenario.Solver), opts),
			Overrides:  scenario.InitialValues,
			Values:     res.Values,
		}, out.Trace)
		if saveErr != nil {
			r.t.Fatalf("%s: SaveRun: %v", scenario.Name, saveErr)
		}
		out.RunID = id
	}
	return out
}

func methodOf(s driver.Solver) string {
	if m, ok := s.(interface{ Method() model.Method }); ok {
		return string(m.Method())
	}
	return "scripted"
}
