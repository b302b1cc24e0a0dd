package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported datastore drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Default values for configuration fields. A zero timeout leaves the
// datastore's own setting in force.
const (
	DefaultDriver           = DriverPostgres
	DefaultMigrationsDir    = "./migrations"
	DefaultExtension        = ".sql"
	DefaultLedgerTable      = "migrations"
	DefaultLockTimeout      = time.Duration(0)
	DefaultStatementTimeout = time.Duration(0)
	DefaultHTTPAddr         = ":8080"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// ErrInvalidConfig indicates a configuration value failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`) //nolint:gochecknoglobals // compiled once

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	DatabaseURL      string
	Driver           string
	MigrationsDir    string
	Extension        string
	LedgerTable      string
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	HTTPAddr         string
	MigrationSecret  string
	AllowedOrigins   []string
	ForceHTTPS       bool
	LogLevel         string
	LogFormat        string
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseURL      string   `yaml:"database_url"`
	Driver           string   `yaml:"driver"`
	MigrationsDir    string   `yaml:"migrations_dir"`
	Extension        string   `yaml:"extension"`
	LedgerTable      string   `yaml:"ledger_table"`
	LockTimeout      string   `yaml:"lock_timeout"`
	StatementTimeout string   `yaml:"statement_timeout"`
	HTTPAddr         string   `yaml:"http_addr"`
	MigrationSecret  string   `yaml:"migration_secret"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	ForceHTTPS       *bool    `yaml:"force_https"`
	LogLevel         string   `yaml:"log_level"`
	LogFormat        string   `yaml:"log_format"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		Driver:           DefaultDriver,
		MigrationsDir:    DefaultMigrationsDir,
		Extension:        DefaultExtension,
		LedgerTable:      DefaultLedgerTable,
		LockTimeout:      DefaultLockTimeout,
		StatementTimeout: DefaultStatementTimeout,
		HTTPAddr:         DefaultHTTPAddr,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.Driver, strings.ToLower(raw.Driver))
	setString(&cfg.MigrationsDir, raw.MigrationsDir)
	setString(&cfg.Extension, raw.Extension)
	setString(&cfg.LedgerTable, raw.LedgerTable)
	setString(&cfg.HTTPAddr, raw.HTTPAddr)
	setString(&cfg.MigrationSecret, raw.MigrationSecret)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)

	if len(raw.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = raw.AllowedOrigins
	}

	if raw.ForceHTTPS != nil {
		cfg.ForceHTTPS = *raw.ForceHTTPS
	}

	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing lock_timeout %q: %w", raw.LockTimeout, err)
		}

		cfg.LockTimeout = d
	}

	if raw.StatementTimeout != "" {
		d, err := time.ParseDuration(raw.StatementTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing statement_timeout %q: %w", raw.StatementTimeout, err)
		}

		cfg.StatementTimeout = d
	}

	return cfg, nil
}

// MergeEnv overrides config fields from MIGRATE_* environment variables.
func MergeEnv(cfg *Config) {
	setString(&cfg.DatabaseURL, os.Getenv("MIGRATE_DATABASE_URL"))
	setString(&cfg.Driver, strings.ToLower(os.Getenv("MIGRATE_DRIVER")))
	setString(&cfg.MigrationsDir, os.Getenv("MIGRATE_MIGRATIONS_DIR"))
	setString(&cfg.HTTPAddr, os.Getenv("MIGRATE_HTTP_ADDR"))
	setString(&cfg.MigrationSecret, os.Getenv("MIGRATE_SECRET"))
	setString(&cfg.LogLevel, os.Getenv("MIGRATE_LOG_LEVEL"))
	setString(&cfg.LogFormat, os.Getenv("MIGRATE_LOG_FORMAT"))

	if v := os.Getenv("MIGRATE_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitAndTrim(v)
	}

	if v := os.Getenv("MIGRATE_FORCE_HTTPS"); v != "" {
		cfg.ForceHTTPS = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("MIGRATE_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockTimeout = d
		}
	}

	if v := os.Getenv("MIGRATE_STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatementTimeout = d
		}
	}
}

// Validate checks the fields every command relies on. The database URL and
// shared secret are checked by the commands that need them.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, c.Driver)
	}

	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("%w: extension %q must start with a dot", ErrInvalidConfig, c.Extension)
	}

	if !tableNamePattern.MatchString(c.LedgerTable) {
		return fmt.Errorf("%w: ledger_table %q is not a valid identifier", ErrInvalidConfig, c.LedgerTable)
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
