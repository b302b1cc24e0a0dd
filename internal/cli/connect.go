package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/corpadmin/migration-api/internal/applier"
	"github.com/corpadmin/migration-api/internal/config"
	"github.com/corpadmin/migration-api/internal/database"
	"github.com/corpadmin/migration-api/internal/ledger"
)

// errDatabaseURLRequired is returned when no database URL is configured.
var errDatabaseURLRequired = errors.New( //nolint:gochecknoglobals // sentinel error
	"database URL is required (set --database-url, MIGRATE_DATABASE_URL, or database_url in config)",
)

// datastore is a ledger backend that can also report its health.
type datastore interface {
	applier.Store
	Ping(ctx context.Context) error
}

// openStore connects to the configured database and returns its ledger.
// The returned func closes the connection.
func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (datastore, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errDatabaseURLRequired
	}

	log.WithFields(logrus.Fields{
		"driver":   cfg.Driver,
		"database": config.RedactURL(cfg.DatabaseURL),
	}).Info("connecting to database")

	opts := ledger.Options{
		Table:            cfg.LedgerTable,
		LockTimeout:      cfg.LockTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}

	switch cfg.Driver {
	case config.DriverMySQL:
		db, err := database.OpenMySQL(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}

		return ledger.NewMySQL(db, opts), func() { _ = db.Close() }, nil
	default:
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}

		return ledger.NewPostgres(pool, opts), pool.Close, nil
	}
}

// newApplier builds an applier for cfg on top of store.
func newApplier(cfg *config.Config, store applier.Store, log logrus.FieldLogger, opts ...applier.Option) *applier.Applier {
	base := []applier.Option{
		applier.WithExtension(cfg.Extension),
		applier.WithInspection(cfg.Driver == config.DriverPostgres),
		applier.WithLogger(log),
	}

	return applier.New(store, cfg.MigrationsDir, append(base, opts...)...)
}
