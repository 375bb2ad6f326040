package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sfcsim/internal/config"
	"github.com/nvandessel/sfcsim/internal/logging"
	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/session"
	"github.com/nvandessel/sfcsim/internal/store"
	"github.com/nvandessel/sfcsim/internal/telemetry"
)

// runOutput is the JSON shape of a finished run.
type runOutput struct {
	RunID       string         `json:"run_id,omitempty"`
	Converged   bool           `json:"converged"`
	Iterations  int            `json:"iterations"`
	RescaleSafe bool           `json:"rescale_safe"`
	Values      model.Solution `json:"values"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve the model to its steady state",
		Long: `Solve the new developmentalist model period by period until two consecutive
periods agree within tolerance.

Examples:
  sfcsim run                                   # Defaults from config
  sfcsim run --param q=3 --param c=0.78        # Change parameters
  sfcsim run --set Y=120 --show Y,u,gamma      # Seed a variable, print a few
  sfcsim run --method newton --save            # Newton inner solve, store the run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			sets, _ := cmd.Flags().GetStringArray("set")
			params, _ := cmd.Flags().GetStringArray("param")
			save, _ := cmd.Flags().GetBool("save")
			show, _ := cmd.Flags().GetStringSlice("show")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, &cfg.Solver); err != nil {
				return err
			}

			overrides, err := parseAssignments(sets)
			if err != nil {
				return fmt.Errorf("--set: %w", err)
			}
			paramValues, err := parseAssignments(params)
			if err != nil {
				return fmt.Errorf("--param: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
			if err != nil {
				return fmt.Errorf("failed to set up telemetry: %w", err)
			}
			defer shutdown(context.Background())

			logger := newLogger(cmd, cfg)
			sess := &session.Session{Logger: logger}
			if save {
				rs, err := store.NewSQLiteRunStore(cfg.Store.Dir)
				if err != nil {
					return fmt.Errorf("failed to open run store: %w", err)
				}
				defer rs.Close()
				sess.Store = rs
			}
			if il := logging.NewIterationLogger(cfg.Store.Dir, cfg.Logging.Level); il != nil {
				defer il.Close()
				sess.Iterations = il
			}

			out, err := sess.Run(ctx, session.Request{
				Overrides: overrides,
				Params:    paramValues,
				Solver:    cfg.Solver,
				Save:      save,
			})
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			result := runOutput{
				Converged:   out.Result.Converged,
				Iterations:  out.Result.Iterations,
				RescaleSafe: out.RescaleSafe,
				Values:      selectValues(out.Result.Values, show),
			}
			if out.Saved {
				result.RunID = out.RunID
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			printRun(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringArray("set", nil, "Initial variable value NAME=VALUE (repeatable)")
	cmd.Flags().StringArray("param", nil, "Parameter value NAME=VALUE (repeatable)")
	cmd.Flags().String("method", "", "Inner solve method: gauss-seidel or newton")
	cmd.Flags().Int("max-outer", 0, "Maximum periods to solve")
	cmd.Flags().Int("inner", 0, "Maximum sweeps per period")
	cmd.Flags().Int("decimals", 0, "Decimal places of the reported values")
	cmd.Flags().Bool("no-rescale", false, "Do not rescale trending variables between periods")
	cmd.Flags().Bool("save", false, "Store the run and its trace")
	cmd.Flags().StringSlice("show", nil, "Variables to print (default all)")

	return cmd
}

// applyRunFlags overrides solver settings with flags the user set, then
// re-validates them.
func applyRunFlags(cmd *cobra.Command, s *config.SolverConfig) error {
	flags := cmd.Flags()
	if flags.Changed("method") {
		s.Method, _ = flags.GetString("method")
	}
	if flags.Changed("max-outer") {
		s.MaxOuterIterations, _ = flags.GetInt("max-outer")
	}
	if flags.Changed("inner") {
		s.InnerIterations, _ = flags.GetInt("inner")
	}
	if flags.Changed("decimals") {
		s.Decimals, _ = flags.GetInt("decimals")
	}
	if flags.Changed("no-rescale") {
		noRescale, _ := flags.GetBool("no-rescale")
		s.Rescale = !noRescale
	}
	check := config.Config{Solver: *s}
	if err := check.DriverOptions().Validate(); err != nil {
		return err
	}
	if _, err := model.ParseMethod(s.Method); err != nil {
		return err
	}
	return nil
}

// selectValues keeps only the named variables. Empty names keeps everything.
func selectValues(values model.Solution, names []string) model.Solution {
	if len(names) == 0 {
		return values
	}
	out := make(model.Solution, len(names))
	for _, name := range names {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

func printRun(w io.Writer, r runOutput) {
	if r.Converged {
		fmt.Fprintf(w, "Converged after %d iterations.\n", r.Iterations)
	} else {
		fmt.Fprintf(w, "Did not converge within %d iterations.\n", r.Iterations)
	}
	if !r.RescaleSafe {
		fmt.Fprintln(w, "Warning: labor-force growth is non-zero; rescaled values may be inconsistent.")
	}
	fmt.Fprintln(w)

	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %g\n", name, r.Values[name])
	}

	if r.RunID != "" {
		fmt.Fprintf(w, "\nSaved run %s\n", r.RunID)
	}
}
