package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/corpadmin/migration-api/internal/config"
	"github.com/corpadmin/migration-api/internal/inspect"
	"github.com/corpadmin/migration-api/internal/migration"
)

var checkCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "check [migration-dir]",
	Short: "Inspect migrations for risky statements",
	Long: `Parse every migration script with the PostgreSQL parser and report
statements that drop data, rewrite tables, or take long locks. Findings are
warnings; use --fail-on-high to turn high and critical ones into a failure.`,
	RunE: runCheck,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	checkCmd.Flags().Bool("fail-on-high", false, "exit with non-zero code if high/critical findings exist")
	rootCmd.AddCommand(checkCmd)
}

// errHighSeverityFindings is returned when --fail-on-high is set and high/critical findings exist.
var errHighSeverityFindings = errors.New("high or critical severity findings detected")

func runCheck(cmd *cobra.Command, args []string) error {
	dir := AppConfig.MigrationsDir
	if len(args) > 0 {
		dir = args[0]
	}

	out := cmd.OutOrStdout()

	if AppConfig.Driver != config.DriverPostgres {
		fmt.Fprintf(out, "Inspection is only available for the %s driver.\n", config.DriverPostgres)

		return nil
	}

	failOnHigh, _ := cmd.Flags().GetBool("fail-on-high")

	return checkDir(out, dir, AppConfig.Extension, failOnHigh)
}

func checkDir(out io.Writer, dir, ext string, failOnHigh bool) error {
	scripts, err := migration.LoadFromDir(dir, ext)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	if len(scripts) == 0 {
		fmt.Fprintln(out, "No migration files found.")

		return nil
	}

	var reports []*inspect.Report

	for i := range scripts {
		report, err := inspect.Inspect(&scripts[i])
		if err != nil {
			return err
		}

		reports = append(reports, report)
	}

	if printFindings(out, reports) >= inspect.High && failOnHigh {
		return errHighSeverityFindings
	}

	return nil
}

// printFindings writes the findings grouped by file and returns the highest severity seen.
func printFindings(out io.Writer, reports []*inspect.Report) inspect.Severity {
	var (
		total, files int
		highest      inspect.Severity
	)

	for _, r := range reports {
		if len(r.Findings) == 0 && !r.NoTransaction {
			continue
		}

		fmt.Fprintf(out, "\n=== %s ===\n", r.Filename)

		if r.NoTransaction {
			fmt.Fprintln(out, "  Note: runs outside a transaction, one statement at a time")
		}

		if len(r.Findings) > 0 {
			files++
		}

		for _, f := range r.Findings {
			fmt.Fprintf(out, "  [%s] %s\n", f.Severity, f.Message)

			if f.Table != "" {
				fmt.Fprintf(out, "    Table: %s\n", f.Table)
			}

			fmt.Fprintf(out, "    Rule:  %s\n", f.Rule)

			if f.Statement != "" {
				fmt.Fprintf(out, "    SQL:   %s\n", f.Statement)
			}

			if f.Suggestion != "" {
				fmt.Fprintf(out, "    Fix:   %s\n", f.Suggestion)
			}
		}

		total += len(r.Findings)

		if m := r.Max(); m > highest {
			highest = m
		}
	}

	if total == 0 {
		fmt.Fprintln(out, "No risky statements detected.")
	} else {
		fmt.Fprintf(out, "\nFound %d finding(s) across %d migration(s).\n", total, files)
	}

	return highest
}
