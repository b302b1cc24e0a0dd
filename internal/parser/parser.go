package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseResult holds the parsed AST and original SQL.
type ParseResult struct {
	Stmts []*pg_query.RawStmt
	SQL   string
}

// Parse parses a PostgreSQL script and returns the AST.
// Returns an empty result (zero statements) for empty or whitespace-only input.
func Parse(sql string) (*ParseResult, error) {
	if strings.TrimSpace(sql) == "" {
		return &ParseResult{SQL: sql}, nil
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	return &ParseResult{
		Stmts: tree.Stmts,
		SQL:   sql,
	}, nil
}

// StatementSQL returns the trimmed source text of the statement at idx.
func (r *ParseResult) StatementSQL(idx int) string {
	if idx < 0 || idx >= len(r.Stmts) {
		return ""
	}

	start := int(r.Stmts[idx].StmtLocation)

	end := len(r.SQL)
	if r.Stmts[idx].StmtLen > 0 {
		end = start + int(r.Stmts[idx].StmtLen)
	}

	if start > len(r.SQL) || end > len(r.SQL) || start >= end {
		return ""
	}

	return strings.TrimSpace(r.SQL[start:end])
}

// RequiresNoTransaction reports whether any statement in the script refuses
// to run inside a transaction block (CREATE/DROP INDEX CONCURRENTLY, VACUUM,
// CREATE/DROP DATABASE, ALTER SYSTEM).
func (r *ParseResult) RequiresNoTransaction() bool {
	for _, stmt := range r.Stmts {
		if stmt.Stmt == nil {
			continue
		}

		switch node := stmt.Stmt.Node.(type) {
		case *pg_query.Node_IndexStmt:
			if node.IndexStmt != nil && node.IndexStmt.Concurrent {
				return true
			}
		case *pg_query.Node_DropStmt:
			if node.DropStmt != nil && node.DropStmt.Concurrent {
				return true
			}
		case *pg_query.Node_VacuumStmt,
			*pg_query.Node_CreatedbStmt,
			*pg_query.Node_DropdbStmt,
			*pg_query.Node_AlterSystemStmt:
			return true
		}
	}

	return false
}
