package inspect

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// rule examines one statement and returns zero or more findings. Filename and
// Statement are filled in by Inspect.
type rule func(node *pg_query.Node) []Finding

//nolint:gochecknoglobals // fixed rule set
var rules = []rule{
	dropTable,
	truncateTable,
	unfilteredWrite,
	createIndex,
	alterTable,
	lockTable,
	vacuumFull,
	rename,
}

//nolint:gochecknoglobals // fixed rule set
var suggestions = map[string]string{
	"drop-table":                  "Take a backup and confirm no code still reads the table",
	"truncate":                    "Take a backup before truncating production tables",
	"unfiltered-write":            "Add a WHERE clause or batch the change",
	"create-index-not-concurrent": "Use CREATE INDEX CONCURRENTLY in a script of its own",
	"alter-column-type":           "Add a new column, backfill it, then swap the columns",
	"set-not-null":                "Add a CHECK (col IS NOT NULL) NOT VALID constraint and validate it first",
	"add-column-not-null":         "Add the column with a DEFAULT, or nullable and backfill before SET NOT NULL",
	"add-constraint":              "Add the constraint NOT VALID, then VALIDATE CONSTRAINT in a later statement",
	"drop-column":                 "Stop reading the column in code first, then drop it in a later release",
	"lock-table":                  "Let PostgreSQL take the locks the statements need",
	"vacuum-full":                 "Use plain VACUUM, which does not block reads or writes",
	"rename":                      "Add the new name alongside the old one and migrate callers first",
}

func dropTable(node *pg_query.Node) []Finding {
	n, ok := node.Node.(*pg_query.Node_DropStmt)
	if !ok || n.DropStmt.RemoveType != pg_query.ObjectType_OBJECT_TABLE {
		return nil
	}

	var tables []string

	for _, obj := range n.DropStmt.Objects {
		list, ok := obj.Node.(*pg_query.Node_List)
		if !ok {
			continue
		}

		var parts []string

		for _, item := range list.List.Items {
			if s, ok := item.Node.(*pg_query.Node_String_); ok {
				parts = append(parts, s.String_.Sval)
			}
		}

		tables = append(tables, strings.Join(parts, "."))
	}

	return []Finding{{
		Rule:     "drop-table",
		Severity: Critical,
		Table:    strings.Join(tables, ", "),
		Message:  "DROP TABLE permanently deletes the table and its data",
	}}
}

func truncateTable(node *pg_query.Node) []Finding {
	n, ok := node.Node.(*pg_query.Node_TruncateStmt)
	if !ok {
		return nil
	}

	var tables []string

	for _, rel := range n.TruncateStmt.Relations {
		if rv, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
			tables = append(tables, tableName(rv.RangeVar))
		}
	}

	return []Finding{{
		Rule:     "truncate",
		Severity: Critical,
		Table:    strings.Join(tables, ", "),
		Message:  "TRUNCATE removes every row and cannot be undone once committed",
	}}
}

func unfilteredWrite(node *pg_query.Node) []Finding {
	switch n := node.Node.(type) {
	case *pg_query.Node_DeleteStmt:
		if n.DeleteStmt.WhereClause != nil {
			return nil
		}

		return []Finding{{
			Rule:     "unfiltered-write",
			Severity: High,
			Table:    tableName(n.DeleteStmt.Relation),
			Message:  "DELETE without WHERE removes every row",
		}}
	case *pg_query.Node_UpdateStmt:
		if n.UpdateStmt.WhereClause != nil {
			return nil
		}

		return []Finding{{
			Rule:     "unfiltered-write",
			Severity: Medium,
			Table:    tableName(n.UpdateStmt.Relation),
			Message:  "UPDATE without WHERE rewrites every row",
		}}
	default:
		return nil
	}
}

func createIndex(node *pg_query.Node) []Finding {
	n, ok := node.Node.(*pg_query.Node_IndexStmt)
	if !ok || n.IndexStmt.Concurrent {
		return nil
	}

	return []Finding{{
		Rule:     "create-index-not-concurrent",
		Severity: Medium,
		Table:    tableName(n.IndexStmt.Relation),
		Message:  "CREATE INDEX without CONCURRENTLY blocks writes to the table while it builds",
	}}
}

func alterTable(node *pg_query.Node) []Finding {
	n, ok := node.Node.(*pg_query.Node_AlterTableStmt)
	if !ok {
		return nil
	}

	table := tableName(n.AlterTableStmt.Relation)

	var findings []Finding

	for _, c := range n.AlterTableStmt.Cmds {
		cmd, ok := c.Node.(*pg_query.Node_AlterTableCmd)
		if !ok {
			continue
		}

		switch cmd.AlterTableCmd.Subtype {
		case pg_query.AlterTableType_AT_AlterColumnType:
			findings = append(findings, Finding{
				Rule:     "alter-column-type",
				Severity: High,
				Table:    table,
				Message:  "ALTER COLUMN TYPE rewrites the table under an ACCESS EXCLUSIVE lock",
			})
		case pg_query.AlterTableType_AT_SetNotNull:
			findings = append(findings, Finding{
				Rule:     "set-not-null",
				Severity: Medium,
				Table:    table,
				Message:  "SET NOT NULL scans the whole table and fails if any row holds NULL",
			})
		case pg_query.AlterTableType_AT_AddColumn:
			if addsNotNullWithoutDefault(cmd.AlterTableCmd) {
				findings = append(findings, Finding{
					Rule:     "add-column-not-null",
					Severity: High,
					Table:    table,
					Message:  "ADD COLUMN ... NOT NULL without DEFAULT fails on a table that already has rows",
				})
			}
		case pg_query.AlterTableType_AT_AddConstraint:
			if validatesExistingRows(cmd.AlterTableCmd) {
				findings = append(findings, Finding{
					Rule:     "add-constraint",
					Severity: High,
					Table:    table,
					Message:  "ADD CONSTRAINT without NOT VALID scans every row while holding a lock",
				})
			}
		case pg_query.AlterTableType_AT_DropColumn:
			findings = append(findings, Finding{
				Rule:     "drop-column",
				Severity: High,
				Table:    table,
				Message:  "DROP COLUMN permanently deletes the column's data",
			})
		}
	}

	return findings
}

func addsNotNullWithoutDefault(cmd *pg_query.AlterTableCmd) bool {
	if cmd.Def == nil {
		return false
	}

	col, ok := cmd.Def.Node.(*pg_query.Node_ColumnDef)
	if !ok {
		return false
	}

	var notNull, hasDefault bool

	for _, c := range col.ColumnDef.Constraints {
		cn, ok := c.Node.(*pg_query.Node_Constraint)
		if !ok {
			continue
		}

		switch cn.Constraint.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			notNull = true
		case pg_query.ConstrType_CONSTR_DEFAULT:
			hasDefault = true
		}
	}

	return notNull && !hasDefault
}

// validatesExistingRows reports whether a CHECK or FOREIGN KEY constraint is
// added without NOT VALID.
func validatesExistingRows(cmd *pg_query.AlterTableCmd) bool {
	if cmd.Def == nil {
		return false
	}

	cn, ok := cmd.Def.Node.(*pg_query.Node_Constraint)
	if !ok {
		return false
	}

	switch cn.Constraint.Contype {
	case pg_query.ConstrType_CONSTR_CHECK, pg_query.ConstrType_CONSTR_FOREIGN:
		return !cn.Constraint.SkipValidation
	default:
		return false
	}
}

func lockTable(node *pg_query.Node) []Finding {
	n, ok := node.Node.(*pg_query.Node_LockStmt)
	if !ok {
		return nil
	}

	var findings []Finding

	for _, rel := range n.LockStmt.Relations {
		rv, ok := rel.Node.(*pg_query.Node_RangeVar)
		if !ok {
			continue
		}

		findings = append(findings, Finding{
			Rule:     "lock-table",
			Severity: High,
			Table:    tableName(rv.RangeVar),
			Message:  "explicit LOCK TABLE blocks other sessions until the script finishes",
		})
	}

	return findings
}

func vacuumFull(node *pg_query.Node) []Finding {
	n, ok := node.Node.(*pg_query.Node_VacuumStmt)
	if !ok {
		return nil
	}

	full := false

	for _, opt := range n.VacuumStmt.Options {
		if de, ok := opt.Node.(*pg_query.Node_DefElem); ok && de.DefElem.Defname == "full" {
			full = true
		}
	}

	if !full {
		return nil
	}

	table := "<all tables>"

	for _, rel := range n.VacuumStmt.Rels {
		if vr, ok := rel.Node.(*pg_query.Node_VacuumRelation); ok && vr.VacuumRelation.Relation != nil {
			table = tableName(vr.VacuumRelation.Relation)

			break
		}
	}

	return []Finding{{
		Rule:     "vacuum-full",
		Severity: High,
		Table:    table,
		Message:  "VACUUM FULL rewrites the table under an ACCESS EXCLUSIVE lock",
	}}
}

func rename(node *pg_query.Node) []Finding {
	n, ok := node.Node.(*pg_query.Node_RenameStmt)
	if !ok {
		return nil
	}

	switch n.RenameStmt.RenameType {
	case pg_query.ObjectType_OBJECT_TABLE:
		return []Finding{{
			Rule:     "rename",
			Severity: Medium,
			Table:    tableName(n.RenameStmt.Relation),
			Message:  "RENAME TABLE breaks code still using the old name",
		}}
	case pg_query.ObjectType_OBJECT_COLUMN:
		return []Finding{{
			Rule:     "rename",
			Severity: Medium,
			Table:    tableName(n.RenameStmt.Relation),
			Message:  "RENAME COLUMN breaks code still using the old column name",
		}}
	default:
		return nil
	}
}
