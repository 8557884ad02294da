// Package scheduler times detection passes relative to first pitch. Each
// upcoming game gets one job that fires a fixed lead offset before the
// scheduled start, plus an independent periodic backtest job and a
// housekeeping tick.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/cache"
	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/metrics"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// JobState is the lifecycle of one scheduled detection pass.
type JobState string

const (
	JobScheduled JobState = "SCHEDULED"
	JobTriggered JobState = "TRIGGERED"
	JobExecuting JobState = "EXECUTING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
	JobSkipped   JobState = "SKIPPED"
)

// Terminal reports whether a job can no longer change state.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobSkipped
}

// Job tracks one event's detection pass through its lifecycle.
type Job struct {
	ID         string
	EventID    string
	State      JobState
	RunAt      time.Time
	FinishedAt time.Time
	Reason     string
}

// PassRunner executes one detection pass for one event.
type PassRunner interface {
	RunEvent(ctx context.Context, event models.EventContext) ([]models.RecommendationBundle, error)
}

// Backtester re-evaluates every registered strategy against history.
type Backtester interface {
	RunAll(ctx context.Context, tr data.TimeRange) []models.BacktestResult
}

// Housekeeper is anything with expired state worth sweeping on a tick.
type Housekeeper interface {
	Purge() int
}

// Config tunes the scheduler.
type Config struct {
	// LeadOffset is how long before first pitch the pass fires.
	LeadOffset time.Duration `yaml:"lead_offset" default:"30m"`

	// SetupHorizon is how far ahead daily setup looks for games.
	SetupHorizon time.Duration `yaml:"setup_horizon" default:"24h"`

	// SetupEvery is how often the job registry is refreshed.
	SetupEvery time.Duration `yaml:"setup_every" default:"6h"`

	// BacktestEvery is the period of the independent backtest job.
	BacktestEvery time.Duration `yaml:"backtest_every" default:"24h"`

	// BacktestLookback bounds the history window each backtest replays.
	BacktestLookback time.Duration `yaml:"backtest_lookback" default:"2160h"`

	// HousekeepEvery is the cache sweep period.
	HousekeepEvery time.Duration `yaml:"housekeep_every" default:"5m"`
}

func (c *Config) fill() {
	if c.LeadOffset <= 0 {
		c.LeadOffset = 30 * time.Minute
	}
	if c.SetupHorizon <= 0 {
		c.SetupHorizon = 24 * time.Hour
	}
	if c.SetupEvery <= 0 {
		c.SetupEvery = 6 * time.Hour
	}
	if c.BacktestEvery <= 0 {
		c.BacktestEvery = 24 * time.Hour
	}
	if c.BacktestLookback <= 0 {
		c.BacktestLookback = 90 * 24 * time.Hour
	}
	if c.HousekeepEvery <= 0 {
		c.HousekeepEvery = 5 * time.Minute
	}
}

// Scheduler owns the job registry and the timers that drive it.
type Scheduler struct {
	cfg        Config
	source     data.Source
	runner     PassRunner
	backtester Backtester
	clock      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*Job      // job ID -> job
	pending map[string]struct{}  // event IDs with a non-terminal job
	settled map[string]time.Time // finished event IDs -> scheduled start

	housekeepers map[string]Housekeeper
}

// New builds a scheduler. backtester may be nil when backtesting runs out
// of band; clock nil defaults to time.Now.
func New(cfg Config, source data.Source, runner PassRunner, backtester Backtester, clock func() time.Time) *Scheduler {
	cfg.fill()
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		cfg:          cfg,
		source:       source,
		runner:       runner,
		backtester:   backtester,
		clock:        clock,
		jobs:         make(map[string]*Job),
		pending:      make(map[string]struct{}),
		settled:      make(map[string]time.Time),
		housekeepers: make(map[string]Housekeeper),
	}
}

// AddHousekeeper registers a cache-like component for the periodic sweep.
// The name labels its stats in metrics.
func (s *Scheduler) AddHousekeeper(name string, h Housekeeper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.housekeepers[name] = h
}

// Jobs returns a snapshot of the registry, newest RunAt first.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].RunAt.After(out[k].RunAt) })
	return out
}

// SetupDay schedules one job per upcoming game inside the horizon. Events
// that already hold a non-terminal job are left alone, so repeated setup is
// idempotent. Games whose fire time has already passed fire immediately.
func (s *Scheduler) SetupDay(ctx context.Context) (int, error) {
	events, err := s.source.UpcomingEvents(ctx, s.cfg.SetupHorizon)
	if err != nil {
		return 0, err
	}

	s.pruneSettled()

	added := 0
	for _, event := range events {
		if s.schedule(ctx, event) {
			added++
		}
	}
	log.Info().Int("games", len(events)).Int("scheduled", added).
		Msg("daily schedule set up")
	return added, nil
}

// pruneSettled drops settled markers for games already under way. Their
// event IDs can never come back inside the lead window.
func (s *Scheduler) pruneSettled() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for eventID, start := range s.settled {
		if !now.Before(start) {
			delete(s.settled, eventID)
		}
	}
}

// schedule registers one job and arms its timer. Returns false when the
// event already has a live job, or finished one whose first pitch has not
// passed yet. Without the settled check a setup refresh inside the lead
// window would re-create a job for a just-skipped game.
func (s *Scheduler) schedule(ctx context.Context, event models.EventContext) bool {
	runAt := event.ScheduledStart.Add(-s.cfg.LeadOffset)

	s.mu.Lock()
	if _, live := s.pending[event.EventID]; live {
		s.mu.Unlock()
		return false
	}
	if start, done := s.settled[event.EventID]; done {
		if s.clock().Before(start) {
			s.mu.Unlock()
			return false
		}
		delete(s.settled, event.EventID)
	}
	job := &Job{
		ID:      uuid.NewString(),
		EventID: event.EventID,
		State:   JobScheduled,
		RunAt:   runAt,
	}
	s.jobs[job.ID] = job
	s.pending[event.EventID] = struct{}{}
	s.mu.Unlock()

	go s.await(ctx, job.ID, runAt, event)
	return true
}

// await sleeps until the job's fire time and then runs it. Cancelling the
// context abandons the timer without a terminal state transition.
func (s *Scheduler) await(ctx context.Context, jobID string, runAt time.Time, event models.EventContext) {
	delay := runAt.Sub(s.clock())
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}
	s.runJob(ctx, jobID, event)
}

// runJob drives one job through TRIGGERED, EXECUTING and a terminal state.
// A failing pass never touches sibling jobs.
func (s *Scheduler) runJob(ctx context.Context, jobID string, event models.EventContext) {
	s.transition(jobID, JobTriggered, "")
	s.transition(jobID, JobExecuting, "")

	bundles, err := s.runner.RunEvent(ctx, event)
	switch {
	case errors.Is(err, models.ErrDataUnavailable):
		// No raw rows for the window. Terminal; no retry, the data is
		// not going to appear after first pitch.
		s.finish(jobID, event, JobSkipped, "no split data for window")
		log.Info().Str("event", event.EventID).Msg("pass skipped, no data")
	case err != nil:
		s.finish(jobID, event, JobFailed, err.Error())
		log.Error().Err(err).Str("event", event.EventID).Msg("pass failed")
	default:
		s.finish(jobID, event, JobCompleted, "")
		log.Info().Str("event", event.EventID).Int("recommendations", len(bundles)).
			Msg("pass completed")
	}
}

func (s *Scheduler) transition(jobID string, state JobState, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.State.Terminal() {
		return
	}
	job.State = state
	job.Reason = reason
}

// finish moves a job to a terminal state. The event stays blocked from
// rescheduling until its first pitch passes.
func (s *Scheduler) finish(jobID string, event models.EventContext, state JobState, reason string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok && !job.State.Terminal() {
		job.State = state
		job.Reason = reason
		job.FinishedAt = s.clock()
		delete(s.pending, event.EventID)
		s.settled[event.EventID] = event.ScheduledStart
	}
	s.mu.Unlock()
	metrics.JobsFinished.WithLabelValues(string(state)).Inc()
}

// RunBacktests executes the periodic backtest job once.
func (s *Scheduler) RunBacktests(ctx context.Context) {
	if s.backtester == nil {
		return
	}
	now := s.clock()
	results := s.backtester.RunAll(ctx, data.TimeRange{
		From: now.Add(-s.cfg.BacktestLookback),
		To:   now,
	})
	log.Info().Int("strategies", len(results)).Msg("periodic backtest finished")
}

// Housekeep sweeps expired cache entries and publishes cache stats.
func (s *Scheduler) Housekeep() {
	s.mu.Lock()
	keepers := make(map[string]Housekeeper, len(s.housekeepers))
	for name, h := range s.housekeepers {
		keepers[name] = h
	}
	s.mu.Unlock()

	for name, h := range keepers {
		if swept := h.Purge(); swept > 0 {
			log.Debug().Str("cache", name).Int("swept", swept).Msg("expired entries purged")
		}
		if hs, ok := h.(interface{ CacheStats() cache.Stats }); ok {
			metrics.ObserveCache(name, hs.CacheStats())
		}
	}
}

// Run blocks, refreshing the schedule, firing backtests and housekeeping on
// their periods until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.SetupDay(ctx); err != nil {
		log.Error().Err(err).Msg("initial schedule setup failed")
	}

	setup := time.NewTicker(s.cfg.SetupEvery)
	backtest := time.NewTicker(s.cfg.BacktestEvery)
	housekeep := time.NewTicker(s.cfg.HousekeepEvery)
	defer setup.Stop()
	defer backtest.Stop()
	defer housekeep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-setup.C:
			if _, err := s.SetupDay(ctx); err != nil {
				log.Error().Err(err).Msg("schedule refresh failed")
			}
		case <-backtest.C:
			s.RunBacktests(ctx)
		case <-housekeep.C:
			s.Housekeep()
		}
	}
}
