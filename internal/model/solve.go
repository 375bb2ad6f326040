package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// newtonStep is the relative forward-difference step for the Jacobian.
const newtonStep = 1e-7

// Solve runs up to iterations fixed-point sweeps for one period and appends
// exactly one Solution to the history. Lagged values come from the latest
// history entry (or the starting values on the first call). The period is
// converged when no variable moves by more than threshold in a sweep; hitting
// the sweep cap is not an error. A non-finite value or a singular Jacobian
// returns an error wrapping ErrSingular and leaves the history unchanged.
func (m *Model) Solve(ctx context.Context, iterations int, threshold float64) (Solution, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("solve: iterations must be positive, got %d", iterations)
	}

	cur, lag := m.startingPoint()

	var (
		sweeps    int
		converged bool
		err       error
	)
	switch m.method {
	case MethodNewton:
		sweeps, converged, err = m.newton(cur, lag, iterations, threshold)
	default:
		sweeps, converged, err = m.gaussSeidel(cur, lag, iterations, threshold)
	}
	if err != nil {
		return nil, err
	}

	sol := make(Solution, len(m.vars))
	for i, v := range m.vars {
		sol[v.Name] = cur[i]
	}
	m.solutions = append(m.solutions, sol)
	copy(m.current, cur)
	clear(m.pending)

	m.logger.DebugContext(ctx, "period solved",
		"model", m.Name,
		"method", string(m.method),
		"sweeps", sweeps,
		"converged", converged,
		"history", len(m.solutions),
	)
	return sol, nil
}

// startingPoint returns the initial guess and the lagged values for the next
// period. Both are fresh slices indexed like m.vars.
func (m *Model) startingPoint() (cur, lag []float64) {
	if len(m.solutions) == 0 {
		return slices.Clone(m.current), slices.Clone(m.current)
	}
	last := m.solutions[len(m.solutions)-1]
	lag = make([]float64, len(m.vars))
	for i, v := range m.vars {
		lag[i] = last[v.Name]
	}
	cur = slices.Clone(lag)
	for i, v := range m.pending {
		cur[i] = v
	}
	return cur, lag
}

func (m *Model) gaussSeidel(cur, lag []float64, iterations int, threshold float64) (int, bool, error) {
	st := &evalState{m: m, cur: cur, lag: lag}
	for sweep := 1; sweep <= iterations; sweep++ {
		maxDelta := 0.0
		for _, eq := range m.equations {
			v := eq.Fn(st)
			if st.err != nil {
				return sweep, false, st.err
			}
			if !finite(v) {
				return sweep, false, &SolveError{Equation: eq.Target, Sweep: sweep, Value: v, Err: ErrSingular}
			}
			i := m.varIndex[eq.Target]
			if d := math.Abs(v - cur[i]); d > maxDelta {
				maxDelta = d
			}
			cur[i] = v
		}
		if maxDelta <= threshold {
			return sweep, true, nil
		}
	}
	return iterations, false, nil
}

// newton solves x - g(x) = 0 over the equation targets with a forward-difference
// Jacobian. Variables without an equation stay fixed.
func (m *Model) newton(cur, lag []float64, iterations int, threshold float64) (int, bool, error) {
	n := len(m.equations)
	if n == 0 {
		return 1, true, nil
	}
	targets := make([]int, n)
	for k, eq := range m.equations {
		targets[k] = m.varIndex[eq.Target]
	}

	st := &evalState{m: m, cur: cur, lag: lag}
	residual := func(out []float64, sweep int) error {
		for k, eq := range m.equations {
			v := eq.Fn(st)
			if st.err != nil {
				return st.err
			}
			out[k] = cur[targets[k]] - v
			if !finite(out[k]) {
				return &SolveError{Equation: eq.Target, Sweep: sweep, Value: v, Err: ErrSingular}
			}
		}
		return nil
	}

	f := make([]float64, n)
	fh := make([]float64, n)
	jac := mat.NewDense(n, n, nil)

	for iter := 1; iter <= iterations; iter++ {
		if err := residual(f, iter); err != nil {
			return iter, false, err
		}

		for j := 0; j < n; j++ {
			x := cur[targets[j]]
			h := newtonStep * math.Max(1, math.Abs(x))
			cur[targets[j]] = x + h
			err := residual(fh, iter)
			cur[targets[j]] = x
			if err != nil {
				return iter, false, err
			}
			for i := 0; i < n; i++ {
				jac.Set(i, j, (fh[i]-f[i])/h)
			}
		}

		var dx mat.VecDense
		if err := dx.SolveVec(jac, mat.NewVecDense(n, f)); err != nil {
			// A finite condition number is only a precision warning.
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
				return iter, false, &SolveError{Sweep: iter, Err: fmt.Errorf("%w (jacobian: %v)", ErrSingular, err)}
			}
		}

		maxStep := 0.0
		for k := 0; k < n; k++ {
			step := dx.AtVec(k)
			if !finite(step) {
				return iter, false, &SolveError{Equation: m.equations[k].Target, Sweep: iter, Value: step, Err: ErrSingular}
			}
			cur[targets[k]] -= step
			maxStep = math.Max(maxStep, math.Abs(step))
		}
		if maxStep <= threshold {
			return iter, true, nil
		}
	}
	return iterations, false, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
