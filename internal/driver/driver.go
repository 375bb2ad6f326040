// Package driver repeatedly solves a model, rescales each new solution and
// stops once two consecutive solutions are close, i.e. the model has settled
// on its balanced-growth path.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/rescale"
)

// ErrInvalidOptions indicates a driver option outside its valid range.
var ErrInvalidOptions = errors.New("driver: invalid options")

const tracerName = "github.com/nvandessel/sfcsim/internal/driver"

// Solver is the capability the driver needs from an equation-system model.
type Solver interface {
	// SetValues overrides starting values. Unknown names are an error.
	SetValues(values map[string]float64) error
	// Solve solves one period and appends exactly one Solution to the history.
	Solve(ctx context.Context, iterations int, threshold float64) (model.Solution, error)
	// Solutions returns the live solution history, oldest first.
	Solutions() []model.Solution
}

// IterationRecord describes one outer iteration after rescaling.
type IterationRecord struct {
	Iteration int             `json:"iteration"`
	Factors   rescale.Factors `json:"factors"`
	Close     bool            `json:"close"`
	Values    model.Solution  `json:"values"`
	Elapsed   time.Duration   `json:"elapsed_ns"`
}

// Observer is called once per outer iteration. Values must not be retained
// past the call; the driver may still be holding the map.
type Observer func(rec IterationRecord)

// Options configures a run.
type Options struct {
	// InitialValues optionally overrides starting values before the first solve.
	InitialValues map[string]float64

	// MaxOuterIterations bounds the number of solver calls. Default: 5000.
	MaxOuterIterations int

	// InnerIterations is the sweep budget handed to each solve. Default: 1000.
	InnerIterations int

	// InnerTolerance is the per-solve convergence threshold. Default: 1e-4.
	InnerTolerance float64

	// ConvergenceRTol is the relative tolerance of the closeness check. Default: 1e-5.
	ConvergenceRTol float64

	// ConvergenceATol is the absolute floor of the closeness check. Default: 1e-8.
	ConvergenceATol float64

	// Decimals is the rounding applied to the returned values. Default: 4.
	Decimals int

	// Table rescales each new solution. Nil disables rescaling.
	Table *rescale.Table

	// Logger receives the convergence and warning lines. Default: slog.Default().
	Logger *slog.Logger

	// Observer sees every outer iteration after rescaling. Nil disables it.
	Observer Observer
}

// DefaultOptions returns the settings used when converging the
// developmentalist model.
func DefaultOptions() Options {
	return Options{
		MaxOuterIterations: 5000,
		InnerIterations:    1000,
		InnerTolerance:     1e-4,
		ConvergenceRTol:    1e-5,
		ConvergenceATol:    1e-8,
		Decimals:           4,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	var errs []error
	if o.MaxOuterIterations <= 0 {
		errs = append(errs, fmt.Errorf("max outer iterations must be positive, got %d", o.MaxOuterIterations))
	}
	if o.InnerIterations <= 0 {
		errs = append(errs, fmt.Errorf("inner iterations must be positive, got %d", o.InnerIterations))
	}
	if o.InnerTolerance < 0 || math.IsNaN(o.InnerTolerance) {
		errs = append(errs, fmt.Errorf("inner tolerance must be non-negative, got %g", o.InnerTolerance))
	}
	if o.ConvergenceRTol < 0 || math.IsNaN(o.ConvergenceRTol) {
		errs = append(errs, fmt.Errorf("convergence rtol must be non-negative, got %g", o.ConvergenceRTol))
	}
	if o.ConvergenceATol < 0 || math.IsNaN(o.ConvergenceATol) {
		errs = append(errs, fmt.Errorf("convergence atol must be non-negative, got %g", o.ConvergenceATol))
	}
	if o.Decimals < 0 || o.Decimals > 15 {
		errs = append(errs, fmt.Errorf("decimals must be in [0, 15], got %d", o.Decimals))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
	}
	return nil
}

// Result is the outcome of a run.
type Result struct {
	// Values holds every variable of the final solution, rounded.
	Values model.Solution `json:"values"`

	// Iterations is the number of solver calls made.
	Iterations int `json:"iterations"`

	// Converged reports whether the closeness check passed before the budget ran out.
	Converged bool `json:"converged"`
}

// Run drives solver to a steady state.
//
// Each outer iteration solves one period, rescales the new solution in place
// and compares it with the previous one. The first iteration has nothing to
// compare against. Exhausting MaxOuterIterations is not an error: the last
// solution is returned with Converged false.
func Run(ctx context.Context, solver Solver, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "driver.Run", trace.WithAttributes(
		attribute.Int("driver.max_outer_iterations", opts.MaxOuterIterations),
		attribute.Int("driver.inner_iterations", opts.InnerIterations),
		attribute.Float64("driver.rtol", opts.ConvergenceRTol),
	))
	defer span.End()

	res, err := run(ctx, solver, opts, logger)
	span.SetAttributes(
		attribute.Int("driver.iterations", res.Iterations),
		attribute.Bool("driver.converged", res.Converged),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func run(ctx context.Context, solver Solver, opts Options, logger *slog.Logger) (Result, error) {
	if len(opts.InitialValues) > 0 {
		if err := solver.SetValues(opts.InitialValues); err != nil {
			return Result{}, fmt.Errorf("set initial values: %w", err)
		}
	}

	var (
		latest    model.Solution
		converged bool
		calls     int
	)
	for k := 0; k < opts.MaxOuterIterations; k++ {
		if err := ctx.Err(); err != nil {
			return Result{Iterations: calls}, fmt.Errorf("outer iteration %d: %w", k, err)
		}

		start := time.Now()
		calls++
		if _, err := solver.Solve(ctx, opts.InnerIterations, opts.InnerTolerance); err != nil {
			return Result{Iterations: calls}, fmt.Errorf("outer iteration %d: %w", k, err)
		}

		history := solver.Solutions()
		if len(history) == 0 {
			return Result{Iterations: calls}, fmt.Errorf("outer iteration %d: solver recorded no solution", k)
		}
		latest = history[len(history)-1]

		var factors rescale.Factors
		if opts.Table != nil {
			f, err := opts.Table.Apply(latest)
			if err != nil {
				return Result{Iterations: calls}, fmt.Errorf("outer iteration %d: %w", k, err)
			}
			factors = f
		}

		settled := len(history) >= 2 &&
			IsClose(history[len(history)-2], latest, opts.ConvergenceRTol, opts.ConvergenceATol)

		if opts.Observer != nil {
			opts.Observer(IterationRecord{
				Iteration: k,
				Factors:   factors,
				Close:     settled,
				Values:    latest,
				Elapsed:   time.Since(start),
			})
		}

		if settled {
			converged = true
			logger.InfoContext(ctx, "converged", "iteration", k, "solves", calls)
			break
		}
	}

	if !converged {
		logger.WarnContext(ctx, "did not converge",
			"max_outer_iterations", opts.MaxOuterIterations,
			"rtol", opts.ConvergenceRTol)
	}

	return Result{
		Values:     Round(latest, opts.Decimals),
		Iterations: calls,
		Converged:  converged,
	}, nil
}
