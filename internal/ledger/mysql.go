package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/corpadmin/migration-api/internal/database"
	"github.com/corpadmin/migration-api/internal/migration"
)

const mysqlDuplicateEntry = 1062

// MySQL keeps the ledger in a MySQL table. The connection must be opened with
// multiStatements enabled so a script body can be sent in one call.
//
// MySQL commits implicitly around DDL, so the transaction only protects
// scripts made of DML.
type MySQL struct {
	db   *sql.DB
	opts Options
}

// NewMySQL creates a ledger backed by db.
func NewMySQL(db *sql.DB, opts Options) *MySQL {
	return &MySQL{db: db, opts: opts}
}

// EnsureTable creates the ledger table if it does not exist.
func (l *MySQL) EnsureTable(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, mysqlSchema(l.opts.table())); err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// GetApplied returns every ledger record ordered by filename.
func (l *MySQL) GetApplied(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, filename, checksum, duration_ms, executed_at FROM %s ORDER BY filename",
		quoteMySQL(l.opts.table()),
	))
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Filename, &r.Checksum, &r.DurationMs, &r.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applied migrations: %w", err)
	}

	return records, nil
}

// Apply executes the script and records it in one transaction, on a
// dedicated connection whose session settings are restored afterwards.
func (l *MySQL) Apply(ctx context.Context, s *migration.Script) (Outcome, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck // returns the connection to the pool

	restore, err := l.setTimeouts(ctx, conn)
	if err != nil {
		return Outcome{}, err
	}
	defer restore()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck // no-op after commit

	d, err := runScript(s, func(body string) error {
		_, execErr := tx.ExecContext(ctx, body)

		return execErr
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %w", ErrExecution, s.Filename, err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (filename, checksum, duration_ms) VALUES (?, ?, ?)", quoteMySQL(l.opts.table())),
		s.Filename, s.Checksum, d.Milliseconds(),
	)
	if err != nil {
		return Outcome{}, classifyMySQLInsertError(s.Filename, err)
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("committing transaction: %w", err)
	}

	return Outcome{Duration: d, Transactional: true}, nil
}

// TryLock takes a GET_LOCK named lock.
func (l *MySQL) TryLock(ctx context.Context, name string) (Releaser, error) {
	h, err := database.TryAcquireMySQLLock(ctx, l.db, name)
	if err != nil {
		return nil, err
	}

	return h, nil
}

// Ping checks the database is reachable.
func (l *MySQL) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// setTimeouts maps LockTimeout onto the session lock_wait_timeout. MySQL has
// no statement timeout for DDL. The returned func puts the previous value
// back, discarding the connection when that fails.
func (l *MySQL) setTimeouts(ctx context.Context, conn *sql.Conn) (func(), error) {
	if l.opts.LockTimeout <= 0 {
		return func() {}, nil
	}

	var previous int64

	if err := conn.QueryRowContext(ctx, "SELECT @@SESSION.lock_wait_timeout").Scan(&previous); err != nil {
		return nil, fmt.Errorf("reading lock_wait_timeout: %w", err)
	}

	set := fmt.Sprintf("SET SESSION lock_wait_timeout = %d", lockWaitSeconds(l.opts.LockTimeout))
	if _, err := conn.ExecContext(ctx, set); err != nil {
		return nil, fmt.Errorf("setting lock_wait_timeout: %w", err)
	}

	restore := func() {
		rctx := context.WithoutCancel(ctx)
		if _, err := conn.ExecContext(rctx, fmt.Sprintf("SET SESSION lock_wait_timeout = %d", previous)); err != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}

	return restore, nil
}

// lockWaitSeconds rounds d up to whole seconds, the unit lock_wait_timeout uses.
func lockWaitSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}

func classifyMySQLInsertError(filename string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %w: %s: %w", ErrRecord, ErrDuplicateRecord, filename, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrRecord, filename, err)
}
