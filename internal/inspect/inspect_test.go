package inspect_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpadmin/migration-api/internal/inspect"
	"github.com/corpadmin/migration-api/internal/migration"
)

func script(body string) *migration.Script {
	return &migration.Script{Filename: "010_test.sql", Body: body, Checksum: migration.ComputeChecksum(body)}
}

func TestInspect_rules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sql      string
		rule     string
		severity inspect.Severity
		table    string
	}{
		{name: "drop table", sql: "DROP TABLE legacy_sessions;", rule: "drop-table", severity: inspect.Critical, table: "legacy_sessions"},
		{name: "drop schema-qualified table", sql: "DROP TABLE IF EXISTS hr.old_staff;", rule: "drop-table", severity: inspect.Critical, table: "hr.old_staff"},
		{name: "truncate", sql: "TRUNCATE departments;", rule: "truncate", severity: inspect.Critical, table: "departments"},
		{name: "delete without where", sql: "DELETE FROM password_resets;", rule: "unfiltered-write", severity: inspect.High, table: "password_resets"},
		{name: "update without where", sql: "UPDATE users SET active = true;", rule: "unfiltered-write", severity: inspect.Medium, table: "users"},
		{name: "non-concurrent index", sql: "CREATE INDEX idx_users_email ON users (email);", rule: "create-index-not-concurrent", severity: inspect.Medium, table: "users"},
		{name: "alter column type", sql: "ALTER TABLE users ALTER COLUMN phone TYPE VARCHAR(32);", rule: "alter-column-type", severity: inspect.High, table: "users"},
		{name: "set not null", sql: "ALTER TABLE users ALTER COLUMN office_id SET NOT NULL;", rule: "set-not-null", severity: inspect.Medium, table: "users"},
		{name: "add not null column without default", sql: "ALTER TABLE users ADD COLUMN photo_url TEXT NOT NULL;", rule: "add-column-not-null", severity: inspect.High, table: "users"},
		{name: "add check constraint", sql: "ALTER TABLE users ADD CONSTRAINT chk_age CHECK (age > 0);", rule: "add-constraint", severity: inspect.High, table: "users"},
		{name: "add foreign key", sql: "ALTER TABLE users ADD CONSTRAINT fk_office FOREIGN KEY (office_id) REFERENCES offices (id);", rule: "add-constraint", severity: inspect.High, table: "users"},
		{name: "drop column", sql: "ALTER TABLE users DROP COLUMN fax;", rule: "drop-column", severity: inspect.High, table: "users"},
		{name: "lock table", sql: "LOCK TABLE offices IN ACCESS EXCLUSIVE MODE;", rule: "lock-table", severity: inspect.High, table: "offices"},
		{name: "vacuum full", sql: "VACUUM FULL offices;", rule: "vacuum-full", severity: inspect.High, table: "offices"},
		{name: "rename table", sql: "ALTER TABLE depts RENAME TO departments;", rule: "rename", severity: inspect.Medium, table: "depts"},
		{name: "rename column", sql: "ALTER TABLE users RENAME COLUMN mail TO email;", rule: "rename", severity: inspect.Medium, table: "users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report, err := inspect.Inspect(script(tt.sql))
			require.NoError(t, err)
			require.Len(t, report.Findings, 1)

			f := report.Findings[0]
			assert.Equal(t, tt.rule, f.Rule)
			assert.Equal(t, tt.severity, f.Severity)
			assert.Equal(t, tt.table, f.Table)
			assert.Equal(t, "010_test.sql", f.Filename)
			assert.NotEmpty(t, f.Statement)
			assert.NotEmpty(t, f.Suggestion)
			assert.Equal(t, tt.severity, report.Max())
		})
	}
}

func TestInspect_safeStatements_noFindings(t *testing.T) {
	t.Parallel()

	tests := []string{
		"CREATE TABLE offices (id SERIAL PRIMARY KEY, name TEXT NOT NULL);",
		"ALTER TABLE users ADD COLUMN photo_url TEXT;",
		"ALTER TABLE users ADD COLUMN active BOOLEAN NOT NULL DEFAULT true;",
		"CREATE INDEX CONCURRENTLY idx_users_office ON users (office_id);",
		"ALTER TABLE users ADD CONSTRAINT chk_age CHECK (age > 0) NOT VALID;",
		"ALTER TABLE users ADD CONSTRAINT uq_email UNIQUE (email);",
		"DELETE FROM password_resets WHERE expires_at < now();",
		"UPDATE users SET active = false WHERE id = 7;",
		"VACUUM offices;",
		"ALTER INDEX idx_a RENAME TO idx_b;",
		"",
	}

	for _, sql := range tests {
		t.Run(sql, func(t *testing.T) {
			t.Parallel()

			report, err := inspect.Inspect(script(sql))
			require.NoError(t, err)
			assert.Empty(t, report.Findings)
			assert.Zero(t, report.Max())
		})
	}
}

func TestInspect_multipleStatements_reportsEach(t *testing.T) {
	t.Parallel()

	sql := `CREATE TABLE departments (id SERIAL PRIMARY KEY, office_id INT);
DROP TABLE old_departments;
CREATE INDEX CONCURRENTLY idx_departments_office ON departments (office_id);`

	report, err := inspect.Inspect(script(sql))
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, "drop-table", report.Findings[0].Rule)
	assert.Equal(t, "DROP TABLE old_departments", report.Findings[0].Statement)
	assert.True(t, report.NoTransaction)
	assert.Equal(t, "010_test.sql", report.Filename)
}

func TestInspect_invalidSQL_returnsError(t *testing.T) {
	t.Parallel()

	_, err := inspect.Inspect(script("CREATE TABEL nope;"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "inspecting 010_test.sql")
}

func TestSeverity_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "LOW", inspect.Low.String())
	assert.Equal(t, "MEDIUM", inspect.Medium.String())
	assert.Equal(t, "HIGH", inspect.High.String())
	assert.Equal(t, "CRITICAL", inspect.Critical.String())
	assert.Equal(t, "UNKNOWN", inspect.Severity(0).String())
}

func TestFinding_jsonUsesSeverityLabel(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(inspect.Finding{Rule: "truncate", Severity: inspect.Critical, Message: "m"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"filename":"","rule":"truncate","severity":"CRITICAL","message":"m"}`, string(data))
}
