package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"photo-triage/internal/diagnostics"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the analyzer and local state before a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			report := diagnostics.NewChecker().Run(settings, ctx.stateDir())
			rows := make([][]string, 0, len(report.Items))
			for _, item := range report.Items {
				message := item.Message
				if item.Hint != "" {
					message += " " + item.Hint
				}
				rows = append(rows, []string{item.Name, strings.ToUpper(string(item.Status)), message})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Details"}, rows, nil))
			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
