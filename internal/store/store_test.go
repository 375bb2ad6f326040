package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/sfcsim/internal/driver"
	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/rescale"
)

// forEachStore runs fn against both implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s RunStore)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteRunStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewSQLiteRunStore() error = %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewInMemoryRunStore())
	})
}

func sampleRun() (Run, []Iteration) {
	run := Run{
		Model:      "new-developmentalist",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Converged:  true,
		Iterations: 2,
		Settings: Settings{
			Method:             "gauss-seidel",
			MaxOuterIterations: 5000,
			InnerIterations:    1000,
			InnerTolerance:     1e-4,
			ConvergenceRTol:    1e-5,
			ConvergenceATol:    1e-8,
			Decimals:           4,
			Rescale:            true,
		},
		Overrides: map[string]float64{"h": 0.3},
		Params:    map[string]float64{"q": 2.5},
		Values:    model.Solution{"Y": 100, "u": 0.7},
	}
	trace := []Iteration{
		{Iteration: 0, Factors: rescale.Factors{Output: 0.94, Labor: 1, Price: 1}, Values: model.Solution{"Y": 100, "u": 0.69}},
		{Iteration: 1, Factors: rescale.Factors{Output: 0.96, Labor: 1, Price: 0.99}, Close: true, Values: model.Solution{"Y": 100, "u": 0.7}},
	}
	return run, trace
}

func TestRunStore_SaveGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()
		run, trace := sampleRun()

		id, err := s.SaveRun(ctx, run, trace)
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		if id == "" {
			t.Fatal("SaveRun() returned empty id")
		}

		got, err := s.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.ID != id || got.Model != run.Model || !got.Converged || got.Iterations != 2 {
			t.Errorf("GetRun() = %+v", got)
		}
		if !got.CreatedAt.Equal(run.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
		}
		if got.Settings != run.Settings {
			t.Errorf("Settings = %+v, want %+v", got.Settings, run.Settings)
		}
		if got.Overrides["h"] != 0.3 || got.Params["q"] != 2.5 || got.Values["u"] != 0.7 {
			t.Errorf("maps not round-tripped: %+v", got)
		}

		gotTrace, err := s.Trace(ctx, id)
		if err != nil {
			t.Fatalf("Trace() error = %v", err)
		}
		if len(gotTrace) != 2 {
			t.Fatalf("Trace() returned %d iterations, want 2", len(gotTrace))
		}
		if !gotTrace[1].Close || gotTrace[1].Factors.Price != 0.99 || gotTrace[0].Values["u"] != 0.69 {
			t.Errorf("Trace() = %+v", gotTrace)
		}
	})
}

func TestRunStore_PrefixLookup(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()
		run, _ := sampleRun()
		run.ID = "abc-123"
		if _, err := s.SaveRun(ctx, run, nil); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		run.ID = "abd-456"
		if _, err := s.SaveRun(ctx, run, nil); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}

		got, err := s.GetRun(ctx, "abc")
		if err != nil {
			t.Fatalf("GetRun(prefix) error = %v", err)
		}
		if got.ID != "abc-123" {
			t.Errorf("GetRun(prefix).ID = %s", got.ID)
		}
		if _, err := s.GetRun(ctx, "ab"); err == nil {
			t.Error("expected ambiguity error for prefix ab")
		}
		if _, err := s.GetRun(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestRunStore_ListAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()
		base, trace := sampleRun()
		var ids []string
		for i := 0; i < 3; i++ {
			run := base
			run.CreatedAt = base.CreatedAt.Add(time.Duration(i) * time.Hour)
			id, err := s.SaveRun(ctx, run, trace)
			if err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}
			ids = append(ids, id)
		}

		runs, err := s.ListRuns(ctx, 2)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("ListRuns(2) returned %d runs", len(runs))
		}
		if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
			t.Errorf("ListRuns order = [%s %s], want newest first", runs[0].ID, runs[1].ID)
		}

		if err := s.DeleteRun(ctx, ids[2]); err != nil {
			t.Fatalf("DeleteRun() error = %v", err)
		}
		if _, err := s.GetRun(ctx, ids[2]); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetRun after delete error = %v, want ErrNotFound", err)
		}
		if _, err := s.Trace(ctx, ids[2]); !errors.Is(err, ErrNotFound) {
			t.Errorf("Trace after delete error = %v, want ErrNotFound", err)
		}
		all, _ := s.ListRuns(ctx, 0)
		if len(all) != 2 {
			t.Errorf("ListRuns(0) after delete = %d runs, want 2", len(all))
		}
	})
}

func TestSQLiteRunStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteRunStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	run, trace := sampleRun()
	id, err := s.SaveRun(ctx, run, trace)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	s2, err := NewSQLiteRunStore(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()
	got, err := s2.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if got.Values["Y"] != 100 {
		t.Errorf("Values after reopen = %v", got.Values)
	}
}

func TestRecorder(t *testing.T) {
	var rec Recorder
	values := model.Solution{"Y": 100}

	var calls int
	obs := Chain(rec.Observe, nil, func(driver.IterationRecord) { calls++ })
	obs(driver.IterationRecord{Iteration: 0, Values: values})
	values["Y"] = 50 // the driver may mutate later
	obs(driver.IterationRecord{Iteration: 1, Close: true, Values: values})

	got := rec.Iterations()
	if len(got) != 2 || calls != 2 {
		t.Fatalf("recorded %d iterations, chained calls %d", len(got), calls)
	}
	if got[0].Values["Y"] != 100 {
		t.Errorf("recorder kept a shared map: Y = %v", got[0].Values["Y"])
	}
	if !got[1].Close {
		t.Error("Close flag lost")
	}
}
