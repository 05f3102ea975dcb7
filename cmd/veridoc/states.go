package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "states",
		Short: "Manage lifecycle state reference data",
	}
	cmd.AddCommand(newStatesSeedCmd(configPath), newStatesListCmd(configPath))
	return cmd
}

func newStatesSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert any missing lifecycle state definitions",
		Long: `Seed inserts the lifecycle state reference rows. States already
present are left untouched, so seeding is safe to repeat and never
duplicates rows a restore or an earlier seed created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			created, err := seedStates(cmd.Context(), app.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d states\n", created)
			return nil
		},
	}
}

func newStatesListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List lifecycle state definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			states, err := app.store.ListStates(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range states {
				terminal := ""
				if s.Terminal {
					terminal = " (terminal)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s%s\n", s.Code, s.Name, terminal)
			}
			return nil
		},
	}
}
