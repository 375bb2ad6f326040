package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/sfcsim/internal/developmentalist"
)

func newVarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "List model variables and parameters",
		Long: `List the model's variables with their defaults, rescaling roles and
equations, followed by its parameters.

Examples:
  sfcsim vars                    # Table of variables and parameters
  sfcsim vars --params=false     # Variables only
  sfcsim vars --yaml             # YAML listing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			yamlOut, _ := cmd.Flags().GetBool("yaml")
			withParams, _ := cmd.Flags().GetBool("params")

			d := developmentalist.Describe(developmentalist.New(), developmentalist.Table())
			if !withParams {
				d.Parameters = nil
			}

			switch {
			case jsonOut:
				return json.NewEncoder(cmd.OutOrStdout()).Encode(d)
			case yamlOut:
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(d); err != nil {
					return fmt.Errorf("failed to encode yaml: %w", err)
				}
				return enc.Close()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Model %s: %d variables\n\n", d.Model, len(d.Variables))
			fmt.Fprintln(w, "NAME\tDEFAULT\tROLE\tDESCRIPTION")
			for _, v := range d.Variables {
				fmt.Fprintf(w, "%s\t%g\t%s\t%s\n", v.Name, v.Default, v.Role, v.Desc)
			}
			if len(d.Parameters) > 0 {
				fmt.Fprintln(w)
				fmt.Fprintln(w, "PARAMETER\tVALUE\tDESCRIPTION")
				for _, p := range d.Parameters {
					fmt.Fprintf(w, "%s\t%g\t%s\n", p.Name, p.Default, p.Desc)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().Bool("yaml", false, "Output as YAML")
	cmd.Flags().Bool("params", true, "Include parameters")
	return cmd
}
