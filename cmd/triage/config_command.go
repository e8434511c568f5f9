package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if write {
				if err := ctx.store.Save(settings); err != nil {
					return fmt.Errorf("write settings: %w", err)
				}
				fmt.Fprintf(out, "Wrote settings to %s\n", ctx.store.Path())
				return nil
			}

			data, err := toml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			fmt.Fprintf(out, "# %s\n%s", ctx.store.Path(), data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Write the effective settings to the settings file")
	return cmd
}
