// Package config loads the engine configuration from YAML, applies struct
// defaults, and validates the result. A missing file yields the built-in
// defaults so the binary runs with zero setup against a local database.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/samlafell/mlb-betting-sub012/internal/backtest"
	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/pipeline"
	"github.com/samlafell/mlb-betting-sub012/internal/scheduler"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

// Duration is a YAML-friendly time.Duration accepting "30s", "5m", "24h".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full engine configuration tree.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info" validate:"oneof=trace debug info warn error"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Telegram TelegramConfig `yaml:"telegram"`

	Strategies StrategiesConfig `yaml:"strategies"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Cache      CacheConfig      `yaml:"cache"`
}

type DatabaseConfig struct {
	DSN          string   `yaml:"dsn" default:"postgres://localhost:5432/mlb_betting?sslmode=disable" validate:"required"`
	QueryTimeout Duration `yaml:"query_timeout" default:"10s"`
}

type RedisConfig struct {
	// Addr empty disables the warm cache layer entirely.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr" default:":8080"`
}

type TelegramConfig struct {
	// Token empty disables Telegram delivery; the log notifier remains.
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type StrategiesConfig struct {
	// Enabled lists strategy identifiers to run; empty means all
	// registered strategies.
	Enabled []string `yaml:"enabled"`

	// SourceReliability maps a data source name to its 0-100 trust
	// score used by the confidence scorer.
	SourceReliability map[string]float64 `yaml:"source_reliability" validate:"dive,gte=0,lte=100"`
}

type ThresholdsConfig struct {
	BootstrapMinimums map[string]float64 `yaml:"bootstrap_minimums" validate:"dive,gt=0"`
	DefaultBootstrap  float64            `yaml:"default_bootstrap" default:"3.0" validate:"gt=0"`
	MinTrialVolume    int                `yaml:"min_trial_volume" default:"5" validate:"gte=1"`
	CacheTTL          Duration           `yaml:"cache_ttl" default:"5m"`
	SampleBucketWidth int                `yaml:"sample_bucket_width" default:"25" validate:"gte=1"`
}

// Manager converts to the threshold manager's runtime configuration.
func (c ThresholdsConfig) Manager() thresholds.ManagerConfig {
	return thresholds.ManagerConfig{
		BootstrapMinimums: c.BootstrapMinimums,
		DefaultBootstrap:  c.DefaultBootstrap,
		MinTrialVolume:    c.MinTrialVolume,
		CacheTTL:          c.CacheTTL.Std(),
		SampleBucketWidth: c.SampleBucketWidth,
	}
}

type PipelineConfig struct {
	PassTimeout  Duration `yaml:"pass_timeout" default:"45s"`
	SampleWindow Duration `yaml:"sample_window" default:"6h"`
}

func (c PipelineConfig) Pipeline() pipeline.Config {
	return pipeline.Config{
		PassTimeout:  c.PassTimeout.Std(),
		SampleWindow: c.SampleWindow.Std(),
	}
}

type SchedulerConfig struct {
	LeadOffset       Duration `yaml:"lead_offset" default:"30m"`
	SetupHorizon     Duration `yaml:"setup_horizon" default:"24h"`
	SetupEvery       Duration `yaml:"setup_every" default:"6h"`
	BacktestEvery    Duration `yaml:"backtest_every" default:"24h"`
	BacktestLookback Duration `yaml:"backtest_lookback" default:"2160h"`
	HousekeepEvery   Duration `yaml:"housekeep_every" default:"5m"`
}

func (c SchedulerConfig) Scheduler() scheduler.Config {
	return scheduler.Config{
		LeadOffset:       c.LeadOffset.Std(),
		SetupHorizon:     c.SetupHorizon.Std(),
		SetupEvery:       c.SetupEvery.Std(),
		BacktestEvery:    c.BacktestEvery.Std(),
		BacktestLookback: c.BacktestLookback.Std(),
		HousekeepEvery:   c.HousekeepEvery.Std(),
	}
}

type BacktestConfig struct {
	ReferencePrice float64  `yaml:"reference_price" default:"-110"`
	MinROIPer100   float64  `yaml:"min_roi_per_100" default:"5.0"`
	MinTrials      int      `yaml:"min_trials" default:"20" validate:"gte=1"`
	SampleWindow   Duration `yaml:"sample_window" default:"6h"`
}

func (c BacktestConfig) Backtest() backtest.Config {
	return backtest.Config{
		ReferencePrice: c.ReferencePrice,
		MinROIPer100:   c.MinROIPer100,
		MinTrials:      c.MinTrials,
		SampleWindow:   c.SampleWindow.Std(),
	}
}

type CacheConfig struct {
	SplitsTTL        Duration `yaml:"splits_ttl" default:"30s"`
	EventTTL         Duration `yaml:"event_ttl" default:"5m"`
	UpcomingTTL      Duration `yaml:"upcoming_ttl" default:"1m"`
	OutcomesTTL      Duration `yaml:"outcomes_ttl" default:"10m"`
	MaxEntries       int      `yaml:"max_entries" default:"2048" validate:"gte=16"`
	QueriesPerSecond float64  `yaml:"queries_per_second" default:"20" validate:"gt=0"`
}

func (c CacheConfig) Cache() data.CacheConfig {
	return data.CacheConfig{
		SplitsTTL:        c.SplitsTTL.Std(),
		EventTTL:         c.EventTTL.Std(),
		UpcomingTTL:      c.UpcomingTTL.Std(),
		OutcomesTTL:      c.OutcomesTTL.Std(),
		MaxEntries:       c.MaxEntries,
		QueriesPerSecond: c.QueriesPerSecond,
	}
}

// Load reads the file at path. An empty path or a missing file is not an
// error: the built-in defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
