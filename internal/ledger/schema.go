package ledger

import (
	"fmt"
	"strings"
)

// postgresSchema returns the DDL for the ledger table on PostgreSQL.
func postgresSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id           BIGSERIAL PRIMARY KEY,
    filename     TEXT NOT NULL UNIQUE,
    checksum     TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    executed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, quotePostgres(table))
}

// mysqlSchema returns the DDL for the ledger table on MySQL.
func mysqlSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id           INT AUTO_INCREMENT PRIMARY KEY,
    filename     VARCHAR(255) NOT NULL UNIQUE,
    checksum     VARCHAR(64) NOT NULL DEFAULT '',
    duration_ms  INT NOT NULL DEFAULT 0,
    executed_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB`, quoteMySQL(table))
}

func quotePostgres(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteMySQL(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
