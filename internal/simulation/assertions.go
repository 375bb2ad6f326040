package simulation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
)

// AssertConvergedAt asserts the run converged after exactly calls solver calls.
func AssertConvergedAt(t *testing.T, result SimulationResult, calls int) {
	t.Helper()
	if result.Err != nil {
		t.Fatalf("AssertConvergedAt: %s: unexpected error: %v", result.Name, result.Err)
	}
	if !result.Result.Converged {
		t.Errorf("AssertConvergedAt: %s: did not converge after %d calls", result.Name, result.Result.Iterations)
		return
	}
	if result.Result.Iterations != calls {
		t.Errorf("AssertConvergedAt: %s: converged after %d calls, want %d", result.Name, result.Result.Iterations, calls)
	}
}

// AssertNotConverged asserts the budget ran out without error.
func AssertNotConverged(t *testing.T, result SimulationResult, calls int) {
	t.Helper()
	if result.Err != nil {
		t.Fatalf("AssertNotConverged: %s: unexpected error: %v", result.Name, result.Err)
	}
	if result.Result.Converged {
		t.Errorf("AssertNotConverged: %s: converged after %d calls", result.Name, result.Result.Iterations)
	}
	if result.Result.Iterations != calls {
		t.Errorf("AssertNotConverged: %s: made %d calls, want %d", result.Name, result.Result.Iterations, calls)
	}
	if len(result.Trace) != calls {
		t.Errorf("AssertNotConverged: %s: traced %d iterations, want %d", result.Name, len(result.Trace), calls)
	}
}

// AssertErrorIs asserts the run failed with an error matching target.
func AssertErrorIs(t *testing.T, result SimulationResult, target error) {
	t.Helper()
	if !errors.Is(result.Err, target) {
		t.Errorf("AssertErrorIs: %s: error = %v, want %v", result.Name, result.Err, target)
	}
}

// AssertValue asserts a returned value within tol.
func AssertValue(t *testing.T, result SimulationResult, name string, want, tol float64) {
	t.Helper()
	got, ok := result.Result.Values[name]
	if !ok {
		t.Errorf("AssertValue: %s: %s missing from result", result.Name, name)
		return
	}
	if math.Abs(got-want) > tol {
		t.Errorf("AssertValue: %s: %s = %.6f, want %.6f ± %g", result.Name, name, got, want, tol)
	}
}

// AssertRounded asserts every returned value has at most decimals digits
// after the decimal point.
func AssertRounded(t *testing.T, result SimulationResult, decimals int) {
	t.Helper()
	for name, v := range result.Result.Values {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > decimals {
			t.Errorf("AssertRounded: %s: %s = %s has more than %d decimals", result.Name, name, s, decimals)
		}
	}
}

// AssertWithinRounding asserts every returned value differs from the last
// traced solution by at most half a unit in the last kept decimal.
func AssertWithinRounding(t *testing.T, result SimulationResult, decimals int) {
	t.Helper()
	if len(result.Trace) == 0 {
		t.Fatalf("AssertWithinRounding: %s: empty trace", result.Name)
	}
	last := result.Trace[len(result.Trace)-1].Values
	bound := 0.5*math.Pow(10, -float64(decimals)) + 1e-12
	for name, v := range last {
		if d := math.Abs(result.Result.Values[name] - v); d > bound {
			t.Errorf("AssertWithinRounding: %s: %s off by %g (> %g)", result.Name, name, d, bound)
		}
	}
}

// AssertLogContains asserts the run's log output contains substr.
func AssertLogContains(t *testing.T, result SimulationResult, substr string) {
	t.Helper()
	if !strings.Contains(result.Log, substr) {
		t.Errorf("AssertLogContains: %s: log does not contain %q:\n%s", result.Name, substr, result.Log)
	}
}
