package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sfcsim/internal/export"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved run and its iteration trace",
		Long: `Export a saved run as an Arrow IPC file (one row per outer iteration,
one column per variable) or as a JSON document.

Examples:
  sfcsim export 3f2a -o run.arrow
  sfcsim export 3f2a --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if format == export.FormatArrow && output == "" {
				return fmt.Errorf("arrow export needs --output")
			}

			rs, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			run, err := rs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			trace, err := rs.Trace(cmd.Context(), run.ID)
			if err != nil {
				return fmt.Errorf("failed to read trace: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer func() {
					if err := f.Close(); err != nil && retErr == nil {
						retErr = fmt.Errorf("failed to close %s: %w", output, err)
					}
				}()
				// Arrow files seek back to patch the footer, so write to the file directly.
				w = f
			}

			if err := export.Write(w, format, run, trace); err != nil {
				return err
			}

			if output != "" {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"id":         run.ID,
						"format":     format,
						"output":     output,
						"iterations": len(trace),
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported run %s (%d iterations) to %s\n", run.ID, len(trace), output)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("format", "arrow", "Export format: arrow or json")
	cmd.Flags().StringP("output", "o", "", "Output file (required for arrow; json defaults to stdout)")
	return cmd
}
