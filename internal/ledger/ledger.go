package ledger

import (
	"context"
	"time"

	"github.com/corpadmin/migration-api/internal/migration"
)

// DefaultTable is the ledger table name used when Options.Table is empty.
const DefaultTable = "migrations"

// Record is one row of the ledger.
type Record struct {
	ID         int64
	Filename   string
	Checksum   string
	DurationMs int
	ExecutedAt time.Time
}

// Options configures a ledger backend.
type Options struct {
	Table            string
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

func (o Options) table() string {
	if o.Table == "" {
		return DefaultTable
	}

	return o.Table
}

// Releaser is a held migration lock.
type Releaser interface {
	Release(ctx context.Context) error
}

// Outcome describes how a script was applied.
type Outcome struct {
	Duration      time.Duration
	Transactional bool
}

// runScript executes the body unless it is blank, timing the call.
func runScript(s *migration.Script, exec func(body string) error) (time.Duration, error) {
	start := time.Now()

	if s.IsBlank() {
		return time.Since(start), nil
	}

	err := exec(s.Body)

	return time.Since(start), err
}
