package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockName derives the advisory lock name for a migrations directory, so two
// appliers pointed at different directories never contend.
func LockName(dir string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(dir))

	return "migrate:" + hex.EncodeToString(h.Sum(nil))
}

// lockKey maps a lock name onto the bigint key space of pg advisory locks.
func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))

	return int64(h.Sum64()) //nolint:gosec // wrap-around is fine for a lock key
}

// LockHandle wraps a dedicated pooled connection that holds a
// session-level advisory lock. Call Release to unlock and return
// the connection to the pool.
type LockHandle struct {
	conn *pgxpool.Conn
	key  int64
}

// TryAcquireLock attempts to acquire a session-level advisory lock for name.
// Returns ErrLockNotAcquired if the lock is already held by another session.
// The caller must call handle.Release() when done.
func TryAcquireLock(ctx context.Context, pool *pgxpool.Pool, name string) (*LockHandle, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	key := lockKey(name)

	var acquired bool

	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired)
	if err != nil {
		conn.Release()

		return nil, fmt.Errorf("executing pg_try_advisory_lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return nil, ErrLockNotAcquired
	}

	return &LockHandle{conn: conn, key: key}, nil
}

// Release unlocks the advisory lock and returns the connection to the pool.
// Safe to call multiple times; subsequent calls are no-ops.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}

	_, err := h.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", h.key)
	h.conn.Release()
	h.conn = nil

	if err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}

	return nil
}

// MySQLLockHandle holds a GET_LOCK named lock on a dedicated connection.
type MySQLLockHandle struct {
	conn *sql.Conn
	name string
}

// TryAcquireMySQLLock attempts GET_LOCK(name, 0) on a dedicated connection.
// Returns ErrLockNotAcquired if another session holds the lock.
func TryAcquireMySQLLock(ctx context.Context, db *sql.DB, name string) (*MySQLLockHandle, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for named lock: %w", err)
	}

	var acquired sql.NullInt64

	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&acquired); err != nil {
		conn.Close()

		return nil, fmt.Errorf("executing GET_LOCK: %w", err)
	}

	if !acquired.Valid || acquired.Int64 != 1 {
		conn.Close()

		return nil, ErrLockNotAcquired
	}

	return &MySQLLockHandle{conn: conn, name: name}, nil
}

// Release frees the named lock and returns the connection to the pool.
// Safe to call multiple times.
func (h *MySQLLockHandle) Release(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}

	_, err := h.conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", h.name)
	closeErr := h.conn.Close()
	h.conn = nil

	if err != nil {
		return fmt.Errorf("releasing named lock: %w", err)
	}

	if closeErr != nil {
		return fmt.Errorf("closing lock connection: %w", closeErr)
	}

	return nil
}
