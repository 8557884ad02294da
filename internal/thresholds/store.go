// Package thresholds holds per-strategy historical performance and computes
// the active detection threshold for each strategy from its phase ladder.
package thresholds

import (
	"fmt"
	"sync"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// TrialRecord is one historical trial: the magnitude the strategy saw and
// the realized profit on a 100-unit stake.
type TrialRecord struct {
	Magnitude float64
	Won       bool
	Profit    float64
}

// Store is the shared, mutex-guarded home of strategy profiles and their
// trial histories. It is one of only two pieces of shared mutable state in
// the engine (the other is the scheduler's job registry).
type Store struct {
	mu       sync.RWMutex
	profiles map[string]models.StrategyProfile
	trials   map[string][]TrialRecord
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]models.StrategyProfile),
		trials:   make(map[string][]TrialRecord),
	}
}

// Profile returns the current profile for a strategy. The zero profile sits
// in bootstrap with no samples.
func (s *Store) Profile(strategyID string) models.StrategyProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[strategyID]; ok {
		return p
	}
	return models.StrategyProfile{StrategyID: strategyID, Phase: models.PhaseBootstrap}
}

// Profiles returns a copy of every known profile.
func (s *Store) Profiles() []models.StrategyProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StrategyProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

// TrialHistory returns a copy of the recorded trials for a strategy.
func (s *Store) TrialHistory(strategyID string) []TrialRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.trials[strategyID]
	out := make([]TrialRecord, len(src))
	copy(out, src)
	return out
}

// ApplyBacktest folds a backtest result plus its trial records into the
// store. Sample size never decreases and phase never regresses; a result
// that would shrink either is rejected.
func (s *Store) ApplyBacktest(result models.BacktestResult, trials []TrialRecord, qualified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.profiles[result.StrategyID]
	if exists && result.TotalTrials < prev.SampleSize {
		return fmt.Errorf("sample size regression for %s: %d < %d",
			result.StrategyID, result.TotalTrials, prev.SampleSize)
	}

	next := models.StrategyProfile{
		StrategyID:      result.StrategyID,
		SampleSize:      result.TotalTrials,
		WinRate:         result.WinRate,
		ROIPerUnit:      result.ROIPer100 / 100.0,
		ActiveThreshold: prev.ActiveThreshold,
	}

	// Unqualified strategies stay pinned at learning regardless of volume.
	phase := models.PhaseForSample(result.TotalTrials)
	if !qualified && phase > models.PhaseLearning {
		phase = models.PhaseLearning
	}
	if exists && phase < prev.Phase {
		phase = prev.Phase
	}
	next.Phase = phase

	s.profiles[result.StrategyID] = next
	s.trials[result.StrategyID] = append([]TrialRecord(nil), trials...)
	return nil
}

// SetActiveThreshold records the threshold currently in force for a
// strategy so downstream reporting can show it.
func (s *Store) SetActiveThreshold(strategyID string, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[strategyID]
	if !ok {
		p = models.StrategyProfile{StrategyID: strategyID, Phase: models.PhaseBootstrap}
	}
	p.ActiveThreshold = threshold
	s.profiles[strategyID] = p
}
