package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timeline-engine/config"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * *", cfg.Sweep.Cron)
	assert.Equal(t, time.April, cfg.FiscalYearStart())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
listen: ":9090"
log:
  level: DEBUG
sweep:
  enabled: false
  cron: ""
redis:
  addr: "localhost:6379"
  lock_ttl: 30s
fiscal_year:
  start_month: 7
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Sweep.Enabled)
	assert.Equal(t, "0 0 * * *", cfg.Sweep.Cron)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, time.July, cfg.FiscalYearStart())
	assert.NotEmpty(t, cfg.Database)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad cron", "sweep:\n  cron: \"every day\"\n"},
		{"bad month", "fiscal_year:\n  start_month: 13\n"},
		{"bad level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := config.DefaultConfig()
	cfg.Sweep.Cron = "@every 1h"
	cfg.Redis.LockTTL = 2 * time.Minute
	require.NoError(t, config.Save(path, cfg))

	back, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := config.Load("")
	assert.Error(t, err)
}
