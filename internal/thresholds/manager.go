package thresholds

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/cache"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// Phase multipliers over the per-family bootstrap minimum.
const (
	learningMultiplier    = 1.30
	calibrationMultiplier = 1.80
)

// Optimization grid bounds, in percentage points of magnitude.
const (
	gridMin  = 2.0
	gridMax  = 25.0
	gridStep = 0.5
)

// ManagerConfig tunes the dynamic threshold manager.
type ManagerConfig struct {
	// BootstrapMinimums maps a strategy logic family to its loose
	// bootstrap threshold. Families absent from the map use Default.
	BootstrapMinimums map[string]float64 `yaml:"bootstrap_minimums"`
	DefaultBootstrap  float64            `yaml:"default_bootstrap" default:"3.0"`

	// MinTrialVolume is the minimum trial count a grid candidate must
	// retain to be eligible during optimization.
	MinTrialVolume int `yaml:"min_trial_volume" default:"5"`

	CacheTTL        time.Duration `yaml:"cache_ttl" default:"5m"`
	CacheMaxEntries int           `yaml:"cache_max_entries" default:"512"`

	// SampleBucketWidth groups sample sizes for cache keying so small
	// sample drift does not defeat the cache.
	SampleBucketWidth int `yaml:"sample_bucket_width" default:"25"`
}

// Manager computes the active detection threshold for a strategy given its
// phase and trial history. Results are cached with a short TTL; the cache
// exposes hit/miss counters for observability.
type Manager struct {
	cfg   ManagerConfig
	store *Store
	cache *cache.TTLCache
}

// NewManager wires a manager over the shared store. A nil clock defaults to
// the wall clock.
func NewManager(cfg ManagerConfig, store *Store, clock cache.Clock) *Manager {
	if cfg.DefaultBootstrap <= 0 {
		cfg.DefaultBootstrap = 3.0
	}
	if cfg.MinTrialVolume <= 0 {
		cfg.MinTrialVolume = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 512
	}
	if cfg.SampleBucketWidth <= 0 {
		cfg.SampleBucketWidth = 25
	}
	return &Manager{
		cfg:   cfg,
		store: store,
		cache: cache.NewTTLCache(cfg.CacheMaxEntries, clock),
	}
}

// CacheStats exposes the threshold cache counters.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

// Purge drops expired threshold entries; called from housekeeping.
func (m *Manager) Purge() int {
	return m.cache.Purge()
}

// Bootstrap returns the loose bootstrap minimum for a strategy family.
func (m *Manager) Bootstrap(logicID string) float64 {
	if v, ok := m.cfg.BootstrapMinimums[logicID]; ok && v > 0 {
		return v
	}
	return m.cfg.DefaultBootstrap
}

// Threshold returns the active detection threshold for a strategy. It never
// returns an error: when the optimization grid cannot be evaluated it falls
// back to the calibration value and logs a degraded-mode warning.
func (m *Manager) Threshold(strategyID, logicID string) float64 {
	profile := m.store.Profile(strategyID)
	phase := profile.Phase
	bucket := profile.SampleSize / m.cfg.SampleBucketWidth

	key := fmt.Sprintf("%s|%s|%d", strategyID, phase, bucket)
	if v, ok := m.cache.Get(key); ok {
		return v.(float64)
	}

	threshold := m.compute(strategyID, logicID, phase)
	m.cache.Set(key, threshold, m.cfg.CacheTTL)
	m.store.SetActiveThreshold(strategyID, threshold)
	return threshold
}

func (m *Manager) compute(strategyID, logicID string, phase models.Phase) float64 {
	bootstrap := m.Bootstrap(logicID)
	calibration := bootstrap * calibrationMultiplier

	switch phase {
	case models.PhaseBootstrap:
		return bootstrap
	case models.PhaseLearning:
		return bootstrap * learningMultiplier
	case models.PhaseCalibration:
		return calibration
	}

	optimized, err := m.optimize(strategyID, calibration)
	if err != nil {
		log.Warn().
			Err(err).
			Str("strategy", strategyID).
			Float64("fallback", calibration).
			Msg("threshold optimization degraded, using calibration value")
		return calibration
	}
	return optimized
}

// optimize grid-searches candidate thresholds and picks the one maximizing
// realized ROI subject to the minimum trial-volume constraint. Ties break
// toward higher volume. The grid floor is clamped to the calibration value
// so optimization can never be looser than calibration.
func (m *Manager) optimize(strategyID string, calibration float64) (float64, error) {
	trials := m.store.TrialHistory(strategyID)
	if len(trials) < m.cfg.MinTrialVolume {
		return 0, fmt.Errorf("%w: %d trials for %s", models.ErrInsufficientHistory, len(trials), strategyID)
	}

	floor := gridMin
	if calibration > floor {
		floor = calibration
	}

	best := -1.0
	bestROI := 0.0
	bestVolume := 0
	for t := floor; t <= gridMax+1e-9; t += gridStep {
		profit := 0.0
		volume := 0
		for _, tr := range trials {
			mag := tr.Magnitude
			if mag < 0 {
				mag = -mag
			}
			if mag >= t {
				profit += tr.Profit
				volume++
			}
		}
		if volume < m.cfg.MinTrialVolume {
			continue
		}
		roi := profit / float64(volume)
		if best < 0 || roi > bestROI || (roi == bestROI && volume > bestVolume) {
			best = t
			bestROI = roi
			bestVolume = volume
		}
	}

	if best < 0 {
		return 0, fmt.Errorf("%w: no grid candidate kept %d trials for %s",
			models.ErrInsufficientHistory, m.cfg.MinTrialVolume, strategyID)
	}
	return best, nil
}
