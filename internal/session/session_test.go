package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/sfcsim/internal/config"
	"github.com/nvandessel/sfcsim/internal/logging"
	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/store"
)

func shortSolver(outer int) config.SolverConfig {
	s := config.Default().Solver
	s.MaxOuterIterations = outer
	return s
}

func TestRun_SavesRun(t *testing.T) {
	ctx := context.Background()
	rs := store.NewInMemoryRunStore()
	s := &Session{Store: rs}

	out, err := s.Run(ctx, Request{
		Overrides: map[string]float64{"Y": 110},
		Params:    map[string]float64{"c": 0.79},
		Solver:    shortSolver(3),
		Save:      true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Saved || out.RunID == "" {
		t.Fatalf("Outcome = %+v, want saved with ID", out)
	}
	if out.Result.Converged || out.Result.Iterations != 3 || len(out.Trace) != 3 {
		t.Errorf("Result = %+v, trace %d", out.Result, len(out.Trace))
	}
	if !out.RescaleSafe {
		t.Error("default parameters should be rescale-safe")
	}

	got, err := rs.GetRun(ctx, out.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Model != "new-developmentalist" || got.Iterations != 3 {
		t.Errorf("stored run = %+v", got)
	}
	if got.Overrides["Y"] != 110 || got.Params["c"] != 0.79 {
		t.Errorf("stored overrides/params = %v / %v", got.Overrides, got.Params)
	}
	if got.Settings.Method != "gauss-seidel" || !got.Settings.Rescale {
		t.Errorf("stored settings = %+v", got.Settings)
	}
	trace, err := rs.Trace(ctx, out.RunID)
	if err != nil || len(trace) != 3 {
		t.Errorf("Trace() = %d entries, %v", len(trace), err)
	}
}

func TestRun_WithoutRescaling(t *testing.T) {
	solver := shortSolver(2)
	solver.Rescale = false

	out, err := (&Session{}).Run(context.Background(), Request{Solver: solver})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Saved {
		t.Error("run without Save should not be saved")
	}
	for _, it := range out.Trace {
		if it.Factors.Output != 0 || it.Factors.Price != 0 {
			t.Errorf("iteration %d has factors %+v without a table", it.Iteration, it.Factors)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		req     Request
		wantIs  error
		wantMsg string
	}{
		{
			name:    "save without store",
			session: &Session{},
			req:     Request{Solver: shortSolver(1), Save: true},
			wantIs:  ErrNoStore,
		},
		{
			name:    "unknown parameter",
			session: &Session{},
			req:     Request{Solver: shortSolver(1), Params: map[string]float64{"zeta": 1}},
			wantIs:  model.ErrUnknownParameter,
		},
		{
			name:    "unknown seed variable",
			session: &Session{},
			req:     Request{Solver: shortSolver(1), Overrides: map[string]float64{"nope": 1}},
			wantIs:  model.ErrUnknownVariable,
		},
		{
			name:    "unknown method",
			session: &Session{},
			req: func() Request {
				s := shortSolver(1)
				s.Method = "bisection"
				return Request{Solver: s}
			}(),
			wantMsg: "unknown solve method",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.session.Run(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestRun_LaborGrowthWarning(t *testing.T) {
	var buf bytes.Buffer
	s := &Session{Logger: logging.NewLogger("info", &buf)}

	out, err := s.Run(context.Background(), Request{
		Params: map[string]float64{"n": 0.01},
		Solver: shortSolver(1),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.RescaleSafe {
		t.Error("RescaleSafe should be false with labor-force growth")
	}
	if !strings.Contains(buf.String(), "rescaling assumes zero labor-force growth") {
		t.Errorf("log missing warning:\n%s", buf.String())
	}
}

func TestRun_IterationLog(t *testing.T) {
	dir := t.TempDir()
	il := logging.NewIterationLogger(dir, "debug")
	if il == nil {
		t.Fatal("NewIterationLogger returned nil at debug")
	}
	s := &Session{Iterations: il}

	out, err := s.Run(context.Background(), Request{Solver: shortSolver(4)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	il.Close()

	data, err := os.ReadFile(filepath.Join(dir, logging.TraceFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d log lines, want 4", len(lines))
	}
	if !strings.Contains(lines[0], out.RunID) {
		t.Errorf("log line missing run ID %s: %s", out.RunID, lines[0])
	}
}

func TestRun_Converges(t *testing.T) {
	if testing.Short() {
		t.Skip("full steady-state run")
	}
	out, err := (&Session{}).Run(context.Background(), Request{Solver: config.Default().Solver})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Result.Converged {
		t.Fatalf("did not converge in %d iterations", out.Result.Iterations)
	}
	if got := out.Result.Values["N"]; got != 100 {
		t.Errorf("N = %v, want the labor anchor 100", got)
	}
}
