package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TURNOS_DB", "test.db")
	path := writeConfig(t, `
app:
  name: "cancha"
court:
  name: "Cancha 1"
  span_slots: 3
  timezone: "UTC"
  pricing:
    day_rate: "25000"
storage:
  backend: sqlite
database:
  path: "${TURNOS_DB}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cancha", cfg.App.Name)
	assert.Equal(t, "test.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Court.SpanSlots)
	assert.Equal(t, 30, cfg.Court.UpcomingLimit)
	assert.Equal(t, "Reservas", cfg.Google.SheetName)

	pricing, err := cfg.Pricing()
	require.NoError(t, err)
	assert.Equal(t, 16, pricing.ThresholdHour)
	assert.True(t, decimal.NewFromInt(25000).Equal(pricing.DayRate))
	assert.True(t, decimal.NewFromInt(30000).Equal(pricing.EveningRate))

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "data/turnos.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Court.SpanSlots)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, "turnos", cfg.Redis.KeyPrefix)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		c := Config{Storage: StorageConfig{Backend: BackendMemory}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid memory", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, true},
		{"fallback equals backend", func(c *Config) { c.Storage.Fallback = BackendMemory }, true},
		{"sheets fallback unsupported", func(c *Config) { c.Storage.Fallback = BackendSheets }, true},
		{"redis without address", func(c *Config) { c.Storage.Backend = BackendRedis }, true},
		{"redis with address", func(c *Config) {
			c.Storage.Backend = BackendRedis
			c.Redis.Address = "localhost:6379"
		}, false},
		{"sheets without credentials", func(c *Config) { c.Storage.Backend = BackendSheets }, true},
		{"mirror without database", func(c *Config) {
			c.Google.Mirror = true
			c.Google.CredentialsFile = "creds.json"
			c.Google.SpreadsheetID = "sheet"
		}, true},
		{"span too long", func(c *Config) { c.Court.SpanSlots = 40 }, true},
		{"bad rate", func(c *Config) { c.Court.Pricing.DayRate = "mucho" }, true},
		{"negative rate", func(c *Config) { c.Court.Pricing.EveningRate = "-1" }, true},
		{"bad timezone", func(c *Config) { c.Court.Timezone = "Mars/Olympus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
