package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corpadmin/migration-api/internal/applier"
	"github.com/corpadmin/migration-api/internal/config"
)

var applyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Apply every migration script not yet recorded in the ledger, in
filename order. Stops at the first failing script. Supports dry-run mode.`,
	RunE: runApply,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	applyCmd.Flags().Bool("dry-run", false, "show what would be applied without executing")
	applyCmd.Flags().Duration("lock-timeout", 0, "per-script lock timeout, 0 leaves the datastore default (e.g., 10s, 1m)")
	applyCmd.Flags().Duration("statement-timeout", 0, "per-script statement timeout, 0 leaves the datastore default (e.g., 30s, 5m)")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if cmd.Flags().Changed("lock-timeout") {
		cfg.LockTimeout, _ = cmd.Flags().GetDuration("lock-timeout")
	}

	if cmd.Flags().Changed("statement-timeout") {
		cfg.StatementTimeout, _ = cmd.Flags().GetDuration("statement-timeout")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, closeStore, err := openStore(ctx, cfg, AppLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	return executeMigrations(ctx, cmd.OutOrStdout(), cfg, store, AppLogger, dryRun)
}

func executeMigrations(
	ctx context.Context,
	out io.Writer,
	cfg *config.Config,
	store applier.Store,
	log logrus.FieldLogger,
	dryRun bool,
) error {
	a := newApplier(cfg, store, log,
		applier.WithDryRun(dryRun),
		applier.WithProgressCallback(func(event applier.ProgressEvent) {
			switch event.Status {
			case applier.StatusStarting:
				fmt.Fprintf(out, "  Applying %s ... ", event.Script.Filename)
			case applier.StatusCompleted:
				fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
			case applier.StatusSkipped:
				fmt.Fprintf(out, "  Pending %s\n", event.Script.Filename)
			case applier.StatusFailed:
				fmt.Fprintf(out, "FAILED\n")
				fmt.Fprintf(out, "    Error: %v\n", event.Error)
			}
		}),
	)

	if dryRun {
		fmt.Fprintln(out, "--- DRY RUN (no changes will be made) ---")
	}

	res, err := a.ApplyPending(ctx)

	if res != nil {
		for _, d := range res.Drift {
			fmt.Fprintf(out, "  WARNING: %s changed on disk after it was applied\n", d.Filename)
		}
	}

	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintf(out, "\nDry run complete: %d migration(s) would be applied.\n", len(res.Pending))
	} else {
		fmt.Fprintf(out, "\n%d migrations executed\n", res.Count)
	}

	return nil
}
