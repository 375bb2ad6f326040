package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sfcsim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved runs",
		Long: `List, show and delete runs saved with 'sfcsim run --save'.

Runs can be addressed by full ID or any unique ID prefix.

Examples:
  sfcsim runs list
  sfcsim runs show 3f2a
  sfcsim runs delete 3f2a`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
	)
	return cmd
}

// openStore opens the configured run store.
func openStore(cmd *cobra.Command) (*store.SQLiteRunStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	rs, err := store.NewSQLiteRunStore(cfg.Store.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return rs, nil
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			rs, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			runs, err := rs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"runs":  runs,
					"count": len(runs),
				})
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved runs. Use 'sfcsim run --save' to store one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tCONVERGED\tITERATIONS\tMETHOD")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%s\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Converged, r.Iterations, r.Settings.Method)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rs, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			run, err := rs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(run)
			}
			printStoredRun(cmd, run)
			return nil
		},
	}
}

func printStoredRun(cmd *cobra.Command, run *store.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Model)
	fmt.Fprintf(out, "  created:    %s\n", run.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "  converged:  %v after %d iterations\n", run.Converged, run.Iterations)
	s := run.Settings
	fmt.Fprintf(out, "  method:     %s (inner %d, tol %g)\n", s.Method, s.InnerIterations, s.InnerTolerance)
	fmt.Fprintf(out, "  check:      rtol %g, atol %g, rescale %v\n", s.ConvergenceRTol, s.ConvergenceATol, s.Rescale)

	printAssignments(cmd, "Overrides", run.Overrides)
	printAssignments(cmd, "Parameters", run.Params)
	printAssignments(cmd, "Values", run.Values)
}

func printAssignments(cmd *cobra.Command, title string, values map[string]float64) {
	if len(values) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s:\n", title)
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s %g\n", name, values[name])
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run and its trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rs, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			run, err := rs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if err := rs.DeleteRun(cmd.Context(), run.ID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     run.ID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
			return nil
		},
	}
}
