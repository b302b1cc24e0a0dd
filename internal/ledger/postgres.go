package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corpadmin/migration-api/internal/database"
	"github.com/corpadmin/migration-api/internal/migration"
	"github.com/corpadmin/migration-api/internal/parser"
)

const pgUniqueViolation = "23505"

// Postgres keeps the ledger in a PostgreSQL table and applies scripts through pgx.
type Postgres struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPostgres creates a ledger backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, opts Options) *Postgres {
	return &Postgres{pool: pool, opts: opts}
}

// EnsureTable creates the ledger table if it does not exist.
func (l *Postgres) EnsureTable(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, postgresSchema(l.opts.table())); err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// GetApplied returns every ledger record ordered by filename.
func (l *Postgres) GetApplied(ctx context.Context) ([]Record, error) {
	rows, err := l.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, filename, checksum, duration_ms, executed_at FROM %s ORDER BY filename`,
		quotePostgres(l.opts.table()),
	))
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		if scanErr := row.Scan(&r.ID, &r.Filename, &r.Checksum, &r.DurationMs, &r.ExecutedAt); scanErr != nil {
			return Record{}, fmt.Errorf("scanning ledger row: %w", scanErr)
		}

		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning applied migrations: %w", err)
	}

	return records, nil
}

// Apply executes the script and records it. Both happen in one transaction,
// so a failing script leaves neither a ledger row nor partial DDL. Scripts
// containing statements that refuse a transaction block are executed one
// statement at a time on a single connection and recorded afterwards.
func (l *Postgres) Apply(ctx context.Context, s *migration.Script) (Outcome, error) {
	if statements, ok := splitNonTransactional(s.Body); ok {
		return l.applyWithoutTransaction(ctx, s, statements)
	}

	var out Outcome

	err := execInTransaction(ctx, l.pool, func(tx pgx.Tx) error {
		if err := l.setTimeouts(ctx, tx); err != nil {
			return err
		}

		d, err := runScript(s, func(body string) error {
			_, execErr := tx.Exec(ctx, body)

			return execErr
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExecution, s.Filename, err)
		}

		out = Outcome{Duration: d, Transactional: true}

		return l.insert(ctx, tx, s, d.Milliseconds())
	})

	return out, err
}

// TryLock takes a session-level advisory lock named name.
func (l *Postgres) TryLock(ctx context.Context, name string) (Releaser, error) {
	h, err := database.TryAcquireLock(ctx, l.pool, name)
	if err != nil {
		return nil, err
	}

	return h, nil
}

// Ping checks the pool is reachable.
func (l *Postgres) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func (l *Postgres) applyWithoutTransaction(ctx context.Context, s *migration.Script, statements []string) (Outcome, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	reset, err := l.setSessionTimeouts(ctx, conn)
	if err != nil {
		return Outcome{}, err
	}
	defer reset()

	d, err := runScript(s, func(string) error {
		for _, stmt := range statements {
			if _, execErr := conn.Exec(ctx, stmt); execErr != nil {
				return execErr
			}
		}

		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %w", ErrExecution, s.Filename, err)
	}

	if err := l.insert(ctx, conn, s, d.Milliseconds()); err != nil {
		return Outcome{}, err
	}

	return Outcome{Duration: d}, nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (l *Postgres) insert(ctx context.Context, q pgExecer, s *migration.Script, durationMs int64) error {
	_, err := q.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (filename, checksum, duration_ms) VALUES ($1, $2, $3)`, quotePostgres(l.opts.table())),
		s.Filename, s.Checksum, durationMs,
	)
	if err != nil {
		return classifyInsertError(s.Filename, err)
	}

	return nil
}

// setTimeouts applies lock_timeout and statement_timeout for the current
// transaction only.
func (l *Postgres) setTimeouts(ctx context.Context, tx pgx.Tx) error {
	for _, stmt := range l.timeoutStatements("SET LOCAL") {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("setting timeouts: %w", err)
		}
	}

	return nil
}

// setSessionTimeouts applies the timeouts to a connection outside a
// transaction. The returned func resets them before the connection goes back
// to the pool, closing it instead when the reset fails.
func (l *Postgres) setSessionTimeouts(ctx context.Context, conn *pgxpool.Conn) (func(), error) {
	stmts := l.timeoutStatements("SET")
	if len(stmts) == 0 {
		return func() {}, nil
	}

	reset := func() {
		rctx := context.WithoutCancel(ctx)
		if _, err := conn.Exec(rctx, "RESET lock_timeout; RESET statement_timeout"); err != nil {
			_ = conn.Conn().Close(rctx)
		}
	}

	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			reset()

			return nil, fmt.Errorf("setting timeouts: %w", err)
		}
	}

	return reset, nil
}

// timeoutStatements renders the configured timeouts with the given SET form.
func (l *Postgres) timeoutStatements(set string) []string {
	var stmts []string

	if l.opts.LockTimeout > 0 {
		stmts = append(stmts, fmt.Sprintf("%s lock_timeout = '%dms'", set, l.opts.LockTimeout.Milliseconds()))
	}

	if l.opts.StatementTimeout > 0 {
		stmts = append(stmts, fmt.Sprintf("%s statement_timeout = '%dms'", set, l.opts.StatementTimeout.Milliseconds()))
	}

	return stmts
}

// execInTransaction runs fn inside a database transaction.
// On success the transaction is committed; on error it is rolled back.
func execInTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // rollback on committed tx returns ErrTxClosed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// splitNonTransactional returns the individual statements of body when it
// must run outside a transaction block. Scripts the parser cannot read are
// left to the server, which reports the real syntax error.
func splitNonTransactional(body string) ([]string, bool) {
	result, err := parser.Parse(body)
	if err != nil || !result.RequiresNoTransaction() {
		return nil, false
	}

	statements := make([]string, 0, len(result.Stmts))

	for i := range result.Stmts {
		if stmt := result.StatementSQL(i); stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements, true
}

func classifyInsertError(filename string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %w: %s: %w", ErrRecord, ErrDuplicateRecord, filename, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrRecord, filename, err)
}
