package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpadmin/migration-api/internal/config"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("database-url", "", "")
	cmd.Flags().String("driver", "", "")
	cmd.Flags().String("migrations-dir", "", "")
	cmd.Flags().Bool("verbose", false, "")

	return cmd
}

func TestMergeFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flags map[string]string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name:  "database url overrides config",
			flags: map[string]string{"database-url": "postgres://test:5432/db"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "postgres://test:5432/db", cfg.DatabaseURL)
			},
		},
		{
			name:  "driver is lowercased",
			flags: map[string]string{"driver": "MySQL"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.DriverMySQL, cfg.Driver)
			},
		},
		{
			name:  "migrations dir overrides config",
			flags: map[string]string{"migrations-dir": "/custom/migrations"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/custom/migrations", cfg.MigrationsDir)
			},
		},
		{
			name:  "unchanged flags preserve config",
			flags: map[string]string{},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.DefaultMigrationsDir, cfg.MigrationsDir)
				assert.Equal(t, config.DefaultDriver, cfg.Driver)
				assert.Empty(t, cfg.DatabaseURL)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New()
			cmd := newFlagCommand()

			for k, v := range tt.flags {
				require.NoError(t, cmd.Flags().Set(k, v))
			}

			mergeFlags(cmd, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_missingFile_usesDefaults(t *testing.T) { // not parallel: mutates global AppConfig
	oldCfg, oldLog := AppConfig, AppLogger
	t.Cleanup(func() { AppConfig, AppLogger = oldCfg, oldLog })

	cmd := newFlagCommand()

	err := loadConfig(cmd)
	require.NoError(t, err)
	require.NotNil(t, AppConfig)
	require.NotNil(t, AppLogger)
	assert.Equal(t, config.DefaultMigrationsDir, AppConfig.MigrationsDir)
	assert.Equal(t, config.DefaultLedgerTable, AppConfig.LedgerTable)
}

func TestLoadConfig_validFile_loadsValues(t *testing.T) { // not parallel: mutates global AppConfig
	oldCfg, oldLog := AppConfig, AppLogger
	t.Cleanup(func() { AppConfig, AppLogger = oldCfg, oldLog })

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "test-config.yml")

	yamlContent := "migrations_dir: /from/yaml\ndriver: mysql\nlog_format: json\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0o600))

	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Set("config", cfgPath))
	require.NoError(t, cmd.Flags().Set("verbose", "true"))

	err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/from/yaml", AppConfig.MigrationsDir)
	assert.Equal(t, config.DriverMySQL, AppConfig.Driver)
	assert.Equal(t, logrus.DebugLevel, AppLogger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, AppLogger.Formatter)
}

func TestLoadConfig_invalidFile_returnsError(t *testing.T) { // not parallel: mutates global AppConfig
	oldCfg, oldLog := AppConfig, AppLogger
	t.Cleanup(func() { AppConfig, AppLogger = oldCfg, oldLog })

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad-config.yml")

	require.NoError(t, os.WriteFile(cfgPath, []byte("allowed_origins: [unclosed"), 0o600))

	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Set("config", cfgPath))

	err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestLoadConfig_invalidDriver_returnsError(t *testing.T) { // not parallel: mutates global AppConfig
	oldCfg, oldLog := AppConfig, AppLogger
	t.Cleanup(func() { AppConfig, AppLogger = oldCfg, oldLog })

	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Set("driver", "sqlite"))

	err := loadConfig(cmd)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
