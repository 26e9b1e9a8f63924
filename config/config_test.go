package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/policymaker/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POLICYMAKER_ADMIN", "0xOwner")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "0xOwner", cfg.Admin)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, config.DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "policymaker", cfg.MongoDatabase)
	assert.Equal(t, "policymaker", cfg.RedisPrefix)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.PluginTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("POLICYMAKER_ADMIN", " 0xOwner ")
	t.Setenv("POLICYMAKER_CURRENCY", "eur")
	t.Setenv("POLICYMAKER_STORE_DRIVER", "SQLite")
	t.Setenv("POLICYMAKER_STORE_DSN", "/var/lib/policymaker.db")
	t.Setenv("POLICYMAKER_LOG_LEVEL", "debug")
	t.Setenv("POLICYMAKER_LOG_FORMAT", "JSON")
	t.Setenv("POLICYMAKER_METRICS_NAMESPACE", "insure")
	t.Setenv("POLICYMAKER_PLUGIN_TIMEOUT", "250ms")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "0xOwner", cfg.Admin)
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, config.DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/var/lib/policymaker.db", cfg.StoreDSN)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "insure", cfg.MetricsNamespace)
	assert.Equal(t, 250*time.Millisecond, cfg.PluginTimeout)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policymaker.env")
	require.NoError(t, os.WriteFile(path, []byte("POLICYMAKER_ADMIN=0xFromFile\nPOLICYMAKER_CURRENCY=gbp\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("POLICYMAKER_ADMIN")
		_ = os.Unsetenv("POLICYMAKER_CURRENCY")
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0xFromFile", cfg.Admin)
	assert.Equal(t, "gbp", cfg.Currency)
}

func TestLoadRejectsMalformedSettings(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr []string
	}{
		{
			name:    "unparsable plugin timeout",
			env:     map[string]string{"POLICYMAKER_PLUGIN_TIMEOUT": "soon"},
			wantErr: []string{"POLICYMAKER_PLUGIN_TIMEOUT", "soon"},
		},
		{
			name:    "zero plugin timeout",
			env:     map[string]string{"POLICYMAKER_PLUGIN_TIMEOUT": "0s"},
			wantErr: []string{"POLICYMAKER_PLUGIN_TIMEOUT", "positive"},
		},
		{
			name:    "invalid currency",
			env:     map[string]string{"POLICYMAKER_CURRENCY": "us-dollar"},
			wantErr: []string{"POLICYMAKER_CURRENCY", "us-dollar"},
		},
		{
			name: "every malformed setting is reported",
			env: map[string]string{
				"POLICYMAKER_PLUGIN_TIMEOUT": "5 seconds",
				"POLICYMAKER_CURRENCY":       "e",
			},
			wantErr: []string{"POLICYMAKER_PLUGIN_TIMEOUT", "POLICYMAKER_CURRENCY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("POLICYMAKER_ADMIN", "0xOwner")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := config.Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr []string
	}{
		{
			name: "valid memory",
			cfg:  config.Config{Admin: "a", StoreDriver: config.DriverMemory, LogFormat: "text"},
		},
		{
			name:    "missing admin",
			cfg:     config.Config{StoreDriver: config.DriverMemory, LogFormat: "text"},
			wantErr: []string{"POLICYMAKER_ADMIN"},
		},
		{
			name:    "dsn required",
			cfg:     config.Config{Admin: "a", StoreDriver: config.DriverPostgres, LogFormat: "text"},
			wantErr: []string{"POLICYMAKER_STORE_DSN", "postgres"},
		},
		{
			name:    "invalid currency",
			cfg:     config.Config{Admin: "a", Currency: "dollars", StoreDriver: config.DriverMemory, LogFormat: "text"},
			wantErr: []string{"POLICYMAKER_CURRENCY", "dollars"},
		},
		{
			name:    "numeric currency",
			cfg:     config.Config{Admin: "a", Currency: "840", StoreDriver: config.DriverMemory, LogFormat: "text"},
			wantErr: []string{"POLICYMAKER_CURRENCY"},
		},
		{
			name:    "negative plugin timeout",
			cfg:     config.Config{Admin: "a", StoreDriver: config.DriverMemory, LogFormat: "text", PluginTimeout: -time.Second},
			wantErr: []string{"POLICYMAKER_PLUGIN_TIMEOUT"},
		},
		{
			name:    "unknown driver and format",
			cfg:     config.Config{Admin: "a", StoreDriver: "cassandra", LogFormat: "xml"},
			wantErr: []string{"cassandra", "xml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
