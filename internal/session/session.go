// Package session runs the developmentalist model end to end: it builds a
// fresh model, applies parameter and seed overrides, drives it to its
// steady state and optionally persists the run.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nvandessel/sfcsim/internal/config"
	"github.com/nvandessel/sfcsim/internal/developmentalist"
	"github.com/nvandessel/sfcsim/internal/driver"
	"github.com/nvandessel/sfcsim/internal/logging"
	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/store"
)

const tracerName = "github.com/nvandessel/sfcsim/internal/session"

// ErrNoStore is returned when a run asks to be saved but the session has no
// run store.
var ErrNoStore = errors.New("no run store configured")

// Request describes one simulation.
type Request struct {
	// Overrides seed the model's variables before the first solve.
	Overrides map[string]float64

	// Params replace parameter values.
	Params map[string]float64

	Solver config.SolverConfig
	Save   bool
}

// Outcome is the result of a simulation.
type Outcome struct {
	// RunID tags the iteration log lines and, when Saved, the stored run.
	RunID  string
	Saved  bool
	Result driver.Result
	Trace  []store.Iteration

	// RescaleSafe is false when the parameters break the rescaling
	// assumptions (non-zero labor-force growth).
	RescaleSafe bool
}

// Session holds the collaborators shared across runs. All fields are
// optional.
type Session struct {
	Store      store.RunStore
	Logger     *slog.Logger
	Iterations *logging.IterationLogger
}

// Run executes one simulation.
func (s *Session) Run(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.Run")
	defer span.End()

	out, err := s.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sfcsim.run_id", out.RunID),
		attribute.Bool("sfcsim.saved", out.Saved),
	)
	return out, nil
}

func (s *Session) run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Save && s.Store == nil {
		return nil, ErrNoStore
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	method, err := model.ParseMethod(req.Solver.Method)
	if err != nil {
		return nil, err
	}

	m := developmentalist.New()
	m.SetLogger(logger)
	m.SetMethod(method)
	if err := m.SetParams(req.Params); err != nil {
		return nil, fmt.Errorf("set params: %w", err)
	}
	safe := developmentalist.CheckRescaling(m, logger)

	cfg := config.Config{Solver: req.Solver}
	opts := cfg.DriverOptions()
	opts.InitialValues = req.Overrides
	opts.Logger = logger
	if req.Solver.Rescale {
		opts.Table = developmentalist.Table()
	}

	runID := uuid.NewString()
	var rec store.Recorder
	opts.Observer = store.Chain(rec.Observe, s.Iterations.Observer(runID))

	logger.Debug("starting run", "run_id", runID, "method", string(method), "rescale", req.Solver.Rescale)
	res, err := driver.Run(ctx, m, opts)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:       runID,
		Result:      res,
		Trace:       rec.Iterations(),
		RescaleSafe: safe,
	}
	if !req.Save {
		return out, nil
	}

	if _, err := s.Store.SaveRun(ctx, store.Run{
		ID:         runID,
		Model:      developmentalist.Name,
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Settings:   store.SettingsFrom(string(method), opts),
		Overrides:  maps.Clone(req.Overrides),
		Params:     maps.Clone(req.Params),
		Values:     res.Values,
	}, out.Trace); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	out.Saved = true
	logger.Info("saved run", "run_id", runID)
	return out, nil
}
