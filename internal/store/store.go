// Package store persists driver runs and their per-iteration traces.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nvandessel/sfcsim/internal/driver"
	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/rescale"
)

// ErrNotFound is returned when no run matches the requested ID.
var ErrNotFound = errors.New("run not found")

// Settings records the solver settings a run was made with.
type Settings struct {
	Method             string  `json:"method"`
	MaxOuterIterations int     `json:"max_outer_iterations"`
	InnerIterations    int     `json:"inner_iterations"`
	InnerTolerance     float64 `json:"inner_tolerance"`
	ConvergenceRTol    float64 `json:"convergence_rtol"`
	ConvergenceATol    float64 `json:"convergence_atol"`
	Decimals           int     `json:"decimals"`
	Rescale            bool    `json:"rescale"`
}

// SettingsFrom captures the numeric settings of driver options.
func SettingsFrom(method string, opts driver.Options) Settings {
	return Settings{
		Method:             method,
		MaxOuterIterations: opts.MaxOuterIterations,
		InnerIterations:    opts.InnerIterations,
		InnerTolerance:     opts.InnerTolerance,
		ConvergenceRTol:    opts.ConvergenceRTol,
		ConvergenceATol:    opts.ConvergenceATol,
		Decimals:           opts.Decimals,
		Rescale:            opts.Table != nil,
	}
}

// Run is a completed driver run.
type Run struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	CreatedAt  time.Time          `json:"created_at"`
	Converged  bool               `json:"converged"`
	Iterations int                `json:"iterations"`
	Settings   Settings           `json:"settings"`
	Overrides  map[string]float64 `json:"overrides,omitempty"`
	Params     map[string]float64 `json:"params,omitempty"`
	Values     model.Solution     `json:"values"`
}

// Iteration is one traced outer iteration of a run.
type Iteration struct {
	Iteration int             `json:"iteration"`
	Factors   rescale.Factors `json:"factors"`
	Close     bool            `json:"close"`
	Values    model.Solution  `json:"values"`
}

// RunStore stores runs and their iteration traces.
type RunStore interface {
	// SaveRun stores run and its trace. An empty run.ID is assigned a new
	// UUID. Returns the ID used.
	SaveRun(ctx context.Context, run Run, trace []Iteration) (string, error)

	// GetRun returns the run with the given ID or a unique ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Trace returns the iterations of a run in order.
	Trace(ctx context.Context, id string) ([]Iteration, error)

	// DeleteRun removes a run and its trace.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}

// Recorder collects iteration records from the driver for later storage.
type Recorder struct {
	mu    sync.Mutex
	iters []Iteration
}

// Observe copies rec into the recorder. It satisfies driver.Observer.
func (r *Recorder) Observe(rec driver.IterationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iters = append(r.iters, Iteration{
		Iteration: rec.Iteration,
		Factors:   rec.Factors,
		Close:     rec.Close,
		Values:    rec.Values.Clone(),
	})
}

// Iterations returns the recorded trace.
func (r *Recorder) Iterations() []Iteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Iteration, len(r.iters))
	copy(out, r.iters)
	return out
}

// Chain combines observers into one. Nil entries are skipped.
func Chain(observers ...driver.Observer) driver.Observer {
	return func(rec driver.IterationRecord) {
		for _, o := range observers {
			if o != nil {
				o(rec)
			}
		}
	}
}
