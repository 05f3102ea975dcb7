package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(configPath *string) *cobra.Command {
	var cutoff string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Activate workflows whose effective or obsoleting date has arrived",
		Long: `Sweep finds workflows in APPROVED_PENDING_EFFECTIVE or
PENDING_OBSOLETION whose date is due and applies the scheduled transition
to each. A failure on one workflow never stops the sweep. Run it from cron
or a systemd timer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if cutoff != "" {
				parsed, err := time.Parse(time.RFC3339, cutoff)
				if err != nil {
					return fmt.Errorf("parse --cutoff: %w", err)
				}
				now = parsed.UTC()
			}

			app, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.sweeper.Sweep(cmd.Context(), now)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "swept at %s: activated=%d skipped=%d failed=%d\n",
				now.Format(time.RFC3339), len(report.Activated), len(report.Skipped), len(report.Failures))
			for _, key := range report.Activated {
				fmt.Fprintf(cmd.OutOrStdout(), "  activated %s\n", key)
			}
			for _, f := range report.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "  failed %s: %s\n", f.Key, f.Reason)
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("sweep completed with %d failures", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cutoff, "cutoff", "", "sweep as of this RFC3339 time instead of now")
	return cmd
}
