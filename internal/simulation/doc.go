// Package simulation is a test harness for the convergence driver.
//
// Scenarios pair a solver (either a ScriptedSolver replaying fixed solutions
// or a real model) with driver options, run the driver, and capture the result,
// the per-iteration trace, the number of solver calls and the log output.
// Runs are persisted to an isolated SQLite run store under t.TempDir() so the
// store round trip is exercised as well.
//
// Usage:
//
//	func TestFixedPoint(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "fixed-point",
//	        Solver: simulation.FixedPoint(map[string]float64{"Y": 100, "N": 100, "p": 1}),
//	    })
//	    simulation.AssertConvergedAt(t, result, 1)
//	}
package simulation
