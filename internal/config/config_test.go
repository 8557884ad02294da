package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, 3.0, cfg.Thresholds.DefaultBootstrap)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.LeadOffset.Std())
	assert.Equal(t, -110.0, cfg.Backtest.ReferencePrice)
	assert.Equal(t, 6*time.Hour, cfg.Pipeline.SampleWindow.Std())
	assert.Empty(t, cfg.Telegram.Token, "telegram stays off unless configured")
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverridesAndDurationStrings(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
database:
  dsn: postgres://db:5432/mlb?sslmode=disable
  query_timeout: 3s
scheduler:
  lead_offset: 45m
  backtest_every: 12h
thresholds:
  default_bootstrap: 4.5
  bootstrap_minimums:
    sharp_action: 5.0
strategies:
  enabled: [sharp_action, public_fade]
  source_reliability:
    vsin: 85
cache:
  splits_ttl: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.Database.QueryTimeout.Std())
	assert.Equal(t, 45*time.Minute, cfg.Scheduler.LeadOffset.Std())
	assert.Equal(t, 12*time.Hour, cfg.Scheduler.BacktestEvery.Std())
	assert.Equal(t, 4.5, cfg.Thresholds.DefaultBootstrap)
	assert.Equal(t, 5.0, cfg.Thresholds.BootstrapMinimums["sharp_action"])
	assert.Equal(t, []string{"sharp_action", "public_fade"}, cfg.Strategies.Enabled)
	assert.Equal(t, 85.0, cfg.Strategies.SourceReliability["vsin"])
	assert.Equal(t, 10*time.Second, cfg.Cache.SplitsTTL.Std())

	// Untouched sections keep their defaults.
	assert.Equal(t, 20, cfg.Backtest.MinTrials)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.SetupHorizon.Std())
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"log level":   "log_level: loud",
		"duration":    "scheduler:\n  lead_offset: soon",
		"reliability": "strategies:\n  source_reliability:\n    vsin: 150",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestConversionsCarryValuesThrough(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	mgr := cfg.Thresholds.Manager()
	assert.Equal(t, 5*time.Minute, mgr.CacheTTL)
	assert.Equal(t, 25, mgr.SampleBucketWidth)

	bt := cfg.Backtest.Backtest()
	assert.Equal(t, -110.0, bt.ReferencePrice)
	assert.Equal(t, 20, bt.MinTrials)

	sched := cfg.Scheduler.Scheduler()
	assert.Equal(t, 90*24*time.Hour, sched.BacktestLookback)

	cache := cfg.Cache.Cache()
	assert.Equal(t, 2048, cache.MaxEntries)
}
