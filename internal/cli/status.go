package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpadmin/migration-api/internal/applier"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show migration status",
	Long: `Display the current migration status showing applied and pending
migrations, and applied scripts whose file changed since.`,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	statusCmd.Flags().String("format", formatText, "output format (text, json)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != formatText && format != formatJSON {
		return fmt.Errorf("unsupported format %q", format)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, closeStore, err := openStore(ctx, AppConfig, AppLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := newApplier(AppConfig, store, AppLogger).Status(ctx)
	if err != nil {
		return err
	}

	return printStatus(cmd.OutOrStdout(), report, format)
}

type statusJSON struct {
	Applied []appliedJSON   `json:"applied"`
	Pending []string        `json:"pending"`
	Drift   []applier.Drift `json:"drift"`
}

type appliedJSON struct {
	Filename   string    `json:"filename"`
	Checksum   string    `json:"checksum"`
	DurationMs int       `json:"duration_ms"`
	ExecutedAt time.Time `json:"executed_at"`
}

func printStatus(out io.Writer, report *applier.StatusReport, format string) error {
	if format == formatJSON {
		doc := statusJSON{
			Applied: make([]appliedJSON, 0, len(report.Applied)),
			Pending: report.Pending,
			Drift:   report.Drift,
		}

		if doc.Drift == nil {
			doc.Drift = []applier.Drift{}
		}

		for _, r := range report.Applied {
			doc.Applied = append(doc.Applied, appliedJSON{
				Filename:   r.Filename,
				Checksum:   r.Checksum,
				DurationMs: r.DurationMs,
				ExecutedAt: r.ExecutedAt,
			})
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding status: %w", err)
		}

		return nil
	}

	drifted := make(map[string]bool, len(report.Drift))
	for _, d := range report.Drift {
		drifted[d.Filename] = true
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tFILENAME\tEXECUTED AT")

	for _, r := range report.Applied {
		state := "applied"
		if drifted[r.Filename] {
			state = "changed"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\n", state, r.Filename, r.ExecutedAt.UTC().Format(time.RFC3339))
	}

	for _, name := range report.Pending {
		fmt.Fprintf(tw, "pending\t%s\t-\n", name)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}

	fmt.Fprintf(out, "\n%d applied, %d pending.\n", len(report.Applied), len(report.Pending))

	return nil
}
