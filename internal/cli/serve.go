package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corpadmin/migration-api/internal/httpapi"
)

var serveCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "serve",
	Short: "Serve the migration endpoint over HTTP",
	Long: `Start the HTTP server exposing POST /api/migrations/run and
GET /api/migrations/status behind bearer-token authentication, plus an
unauthenticated GET /health. Shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	serveCmd.Flags().String("addr", "", "listen address (overrides http_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig
	log := AppLogger

	if cmd.Flags().Changed("addr") {
		cfg.HTTPAddr, _ = cmd.Flags().GetString("addr")
	}

	if cfg.MigrationSecret == "" {
		log.Warn("no migration secret configured; every migration request will be rejected")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := httpapi.New(httpapi.Config{
		Addr:           cfg.HTTPAddr,
		Secret:         cfg.MigrationSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		ForceHTTPS:     cfg.ForceHTTPS,
	}, log, store, newApplier(cfg, store, log))

	return srv.Start(ctx)
}
