package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veridoc/veridoc/internal/archive"
)

func newRestoreCmd(configPath *string) *cobra.Command {
	var (
		mode           string
		dryRun         bool
		force          bool
		updateExisting bool
	)

	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Load a natural-key archive into the store",
		Long: `Restore verifies the archive checksum, then applies records in load
order. Records whose references do not resolve are skipped and reported;
restoring the same archive twice is a no-op on the second run.

The command exits non-zero when any record hard-fails. Unresolved
references count as skips, not failures.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if !force && !dryRun {
				if !confirm(cmd, fmt.Sprintf("restore %s into the configured store? [y/N] ", path)) {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			app, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.store.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("store health check: %w", err)
			}

			proc := archive.NewRestoreProcessor(app.store, app.audit, app.logger, app.metrics)
			report, err := proc.Restore(cmd.Context(), path, archive.Options{
				Mode:           archive.Mode(mode),
				DryRun:         dryRun,
				UpdateExisting: updateExisting,
			})
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), report.Summary())
			if report.HasFailures() {
				return fmt.Errorf("restore completed with %d failed records", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(archive.ModeInfraPreserved), "restore mode: full or infra-preserved")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and report without writing")
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&updateExisting, "update-existing", false, "overwrite documents and workflows that already exist")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
