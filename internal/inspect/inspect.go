package inspect

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/corpadmin/migration-api/internal/migration"
	"github.com/corpadmin/migration-api/internal/parser"
)

const maxStatementLen = 120

// Finding is a warning about a single risky statement in a script.
type Finding struct {
	Filename  string   `json:"filename"`
	Rule      string   `json:"rule"`
	Severity  Severity `json:"severity"`
	Table     string   `json:"table,omitempty"`
	Statement string   `json:"statement,omitempty"`
	Message   string   `json:"message"`
	// Suggestion is a safer way to reach the same schema.
	Suggestion string `json:"suggestion,omitempty"`
}

// Report is the outcome of inspecting one script.
type Report struct {
	Filename string
	Findings []Finding
	// NoTransaction is set when the script contains a statement that cannot
	// run inside a transaction block.
	NoTransaction bool
}

// Max returns the highest severity in the report, or zero when there are no findings.
func (r *Report) Max() Severity {
	var highest Severity

	for _, f := range r.Findings {
		if f.Severity > highest {
			highest = f.Severity
		}
	}

	return highest
}

// Inspect parses a PostgreSQL script and runs every rule against each statement.
func Inspect(s *migration.Script) (*Report, error) {
	result, err := parser.Parse(s.Body)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", s.Filename, err)
	}

	report := &Report{Filename: s.Filename, NoTransaction: result.RequiresNoTransaction()}

	for i, stmt := range result.Stmts {
		if stmt.Stmt == nil {
			continue
		}

		for _, rule := range rules {
			for _, f := range rule(stmt.Stmt) {
				f.Filename = s.Filename
				f.Statement = truncate(result.StatementSQL(i), maxStatementLen)
				f.Suggestion = suggestions[f.Rule]
				report.Findings = append(report.Findings, f)
			}
		}
	}

	return report, nil
}

// tableName extracts a qualified table name from a RangeVar.
func tableName(rv *pg_query.RangeVar) string {
	if rv == nil {
		return ""
	}

	if rv.Schemaname != "" {
		return rv.Schemaname + "." + rv.Relname
	}

	return rv.Relname
}

func truncate(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}

	return sql[:maxLen-3] + "..."
}
