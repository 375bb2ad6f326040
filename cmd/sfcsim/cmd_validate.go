package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sfcsim/internal/developmentalist"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the model, its rescaling table and the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			var issues []string
			m := developmentalist.New()
			if err := m.Validate(); err != nil {
				issues = append(issues, fmt.Sprintf("model: %v", err))
			}
			if err := developmentalist.Table().Validate(m.Names()); err != nil {
				issues = append(issues, fmt.Sprintf("rescaling table: %v", err))
			}
			if _, err := loadConfig(cmd); err != nil {
				issues = append(issues, err.Error())
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"valid":  len(issues) == 0,
					"issues": issues,
				})
			} else if len(issues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Model, rescaling table and configuration are valid")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d issue(s):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue)
				}
			}

			if len(issues) > 0 {
				return fmt.Errorf("validation failed with %d issue(s)", len(issues))
			}
			return nil
		},
	}
}
