package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpadmin/migration-api/internal/config"
)

func TestNew_returnsDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.New()

	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.MigrationSecret)
	assert.Equal(t, config.DefaultDriver, cfg.Driver)
	assert.Equal(t, config.DefaultMigrationsDir, cfg.MigrationsDir)
	assert.Equal(t, config.DefaultExtension, cfg.Extension)
	assert.Equal(t, config.DefaultLedgerTable, cfg.LedgerTable)
	assert.Equal(t, config.DefaultLockTimeout, cfg.LockTimeout)
	assert.Equal(t, config.DefaultStatementTimeout, cfg.StatementTimeout)
	assert.Equal(t, config.DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultLogFormat, cfg.LogFormat)
	assert.False(t, cfg.ForceHTTPS)
}

func TestNew_timeoutsDisabledByDefault(t *testing.T) {
	t.Parallel()

	cfg := config.New()

	assert.Zero(t, cfg.LockTimeout)
	assert.Zero(t, cfg.StatementTimeout)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		content      string
		allowMissing bool
		writeFile    bool
		wantErr      bool
		errContains  string
		check        func(t *testing.T, cfg *config.Config)
	}{
		{
			name:      "valid file parses all fields",
			writeFile: true,
			content: `database_url: "app:secret@tcp(localhost:3306)/corp"
driver: "MySQL"
migrations_dir: "./db/migrations"
extension: ".ddl"
ledger_table: "schema_ledger"
lock_timeout: "10s"
statement_timeout: "1m"
http_addr: ":9090"
migration_secret: "s3cret"
allowed_origins:
  - "https://admin.example.com"
force_https: true
log_level: "debug"
log_format: "json"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "app:secret@tcp(localhost:3306)/corp", cfg.DatabaseURL)
				assert.Equal(t, config.DriverMySQL, cfg.Driver)
				assert.Equal(t, "./db/migrations", cfg.MigrationsDir)
				assert.Equal(t, ".ddl", cfg.Extension)
				assert.Equal(t, "schema_ledger", cfg.LedgerTable)
				assert.Equal(t, 10*time.Second, cfg.LockTimeout)
				assert.Equal(t, time.Minute, cfg.StatementTimeout)
				assert.Equal(t, ":9090", cfg.HTTPAddr)
				assert.Equal(t, "s3cret", cfg.MigrationSecret)
				assert.Equal(t, []string{"https://admin.example.com"}, cfg.AllowedOrigins)
				assert.True(t, cfg.ForceHTTPS)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "json", cfg.LogFormat)
			},
		},
		{
			name:      "partial file applies defaults",
			writeFile: true,
			content:   `database_url: "postgres://localhost/mydb"`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "postgres://localhost/mydb", cfg.DatabaseURL)
				assert.Equal(t, config.DefaultDriver, cfg.Driver)
				assert.Equal(t, config.DefaultMigrationsDir, cfg.MigrationsDir)
				assert.Equal(t, config.DefaultLedgerTable, cfg.LedgerTable)
				assert.Equal(t, config.DefaultLockTimeout, cfg.LockTimeout)
				assert.Equal(t, config.DefaultStatementTimeout, cfg.StatementTimeout)
			},
		},
		{
			name:      "empty file returns defaults",
			writeFile: true,
			content:   "",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.DefaultMigrationsDir, cfg.MigrationsDir)
				assert.Equal(t, config.DefaultLockTimeout, cfg.LockTimeout)
			},
		},
		{
			name:         "missing file with allowMissing returns defaults",
			writeFile:    false,
			allowMissing: true,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.DefaultMigrationsDir, cfg.MigrationsDir)
				assert.Equal(t, config.DefaultLockTimeout, cfg.LockTimeout)
			},
		},
		{
			name:         "missing file without allowMissing returns error",
			writeFile:    false,
			allowMissing: false,
			wantErr:      true,
			errContains:  "reading config file",
		},
		{
			name:        "invalid YAML returns error",
			writeFile:   true,
			content:     "{{{invalid yaml",
			wantErr:     true,
			errContains: "parsing config file",
		},
		{
			name:        "invalid lock_timeout duration returns error",
			writeFile:   true,
			content:     `lock_timeout: "not-a-duration"`,
			wantErr:     true,
			errContains: "parsing lock_timeout",
		},
		{
			name:        "invalid statement_timeout duration returns error",
			writeFile:   true,
			content:     `statement_timeout: "garbage"`,
			wantErr:     true,
			errContains: "parsing statement_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := filepath.Join(dir, "migrate.yml")

			if tt.writeFile {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			}

			cfg, err := config.Load(path, tt.allowMissing)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestMergeEnv_overridesFields(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "overrides database URL",
			env:  map[string]string{"MIGRATE_DATABASE_URL": "postgres://env-host/db"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "postgres://env-host/db", cfg.DatabaseURL)
			},
		},
		{
			name: "overrides driver case-insensitively",
			env:  map[string]string{"MIGRATE_DRIVER": "MYSQL"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.DriverMySQL, cfg.Driver)
			},
		},
		{
			name: "overrides migrations dir",
			env:  map[string]string{"MIGRATE_MIGRATIONS_DIR": "/custom/path"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/custom/path", cfg.MigrationsDir)
			},
		},
		{
			name: "reads shared secret",
			env:  map[string]string{"MIGRATE_SECRET": "from-env"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "from-env", cfg.MigrationSecret)
			},
		},
		{
			name: "splits allowed origins",
			env:  map[string]string{"MIGRATE_ALLOWED_ORIGINS": "https://a.example.com, ,https://b.example.com"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
			},
		},
		{
			name: "enables force https",
			env:  map[string]string{"MIGRATE_FORCE_HTTPS": "true"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.True(t, cfg.ForceHTTPS)
			},
		},
		{
			name: "overrides lock timeout",
			env:  map[string]string{"MIGRATE_LOCK_TIMEOUT": "15s"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, 15*time.Second, cfg.LockTimeout)
			},
		},
		{
			name: "overrides statement timeout",
			env:  map[string]string{"MIGRATE_STATEMENT_TIMEOUT": "2m"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, 2*time.Minute, cfg.StatementTimeout)
			},
		},
		{
			name: "invalid duration preserves original",
			env:  map[string]string{"MIGRATE_LOCK_TIMEOUT": "not-valid"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.DefaultLockTimeout, cfg.LockTimeout)
			},
		},
		{
			name: "unset env vars preserve original",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.DefaultMigrationsDir, cfg.MigrationsDir)
				assert.Equal(t, config.DefaultLockTimeout, cfg.LockTimeout)
				assert.Empty(t, cfg.MigrationSecret)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{
				"MIGRATE_DATABASE_URL", "MIGRATE_DRIVER", "MIGRATE_MIGRATIONS_DIR", "MIGRATE_SECRET",
				"MIGRATE_ALLOWED_ORIGINS", "MIGRATE_FORCE_HTTPS", "MIGRATE_LOCK_TIMEOUT",
				"MIGRATE_STATEMENT_TIMEOUT", "MIGRATE_HTTP_ADDR", "MIGRATE_LOG_LEVEL", "MIGRATE_LOG_FORMAT",
			} {
				t.Setenv(k, "")
			}

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := config.New()
			config.MergeEnv(cfg)

			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*config.Config) {}},
		{name: "mysql driver is valid", mutate: func(cfg *config.Config) { cfg.Driver = config.DriverMySQL }},
		{name: "unknown driver", mutate: func(cfg *config.Config) { cfg.Driver = "sqlite" }, wantErr: true},
		{name: "extension without dot", mutate: func(cfg *config.Config) { cfg.Extension = "sql" }, wantErr: true},
		{name: "ledger table with quote", mutate: func(cfg *config.Config) { cfg.LedgerTable = `m"; DROP` }, wantErr: true},
		{name: "ledger table starting with digit", mutate: func(cfg *config.Config) { cfg.LedgerTable = "1ledger" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, config.ErrInvalidConfig)

				return
			}

			require.NoError(t, err)
		})
	}
}
