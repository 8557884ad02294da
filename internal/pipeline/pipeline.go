// Package pipeline runs one live detection pass: parallel signal
// processors over the shared raw rows, validation, deduplication, conflict
// resolution, and hand-off to the persistence and notification
// collaborators.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/dedup"
	"github.com/samlafell/mlb-betting-sub012/internal/ensemble"
	"github.com/samlafell/mlb-betting-sub012/internal/metrics"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/strategies"
)

// Config tunes a detection pass.
type Config struct {
	// PassTimeout bounds one full pass; stragglers are abandoned, not
	// waited on.
	PassTimeout time.Duration `yaml:"pass_timeout" default:"45s"`

	// SampleWindow is how far back raw rows are pulled before first
	// pitch.
	SampleWindow time.Duration `yaml:"sample_window" default:"6h"`
}

func (c *Config) fill() {
	if c.PassTimeout <= 0 {
		c.PassTimeout = 45 * time.Second
	}
	if c.SampleWindow <= 0 {
		c.SampleWindow = 6 * time.Hour
	}
}

// Pipeline wires the detection stages together.
type Pipeline struct {
	cfg      Config
	source   data.Source
	procs    []strategies.Processor
	dedup    *dedup.Engine
	resolver *ensemble.Resolver
	sink     data.Sink
	notifier data.Notifier
}

// New assembles a pipeline. sink and notifier may be nil for dry runs.
func New(cfg Config, source data.Source, procs []strategies.Processor,
	dd *dedup.Engine, resolver *ensemble.Resolver, sink data.Sink, notifier data.Notifier) *Pipeline {
	cfg.fill()
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		procs:    procs,
		dedup:    dd,
		resolver: resolver,
		sink:     sink,
		notifier: notifier,
	}
}

// RunEvent executes one pass for one upcoming game. It returns
// models.ErrDataUnavailable when no raw rows exist for the window, which the
// scheduler maps to SKIPPED rather than FAILED.
func (p *Pipeline) RunEvent(ctx context.Context, event models.EventContext) ([]models.RecommendationBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PassTimeout)
	defer cancel()

	started := time.Now()
	defer func() { metrics.PassDuration.Observe(time.Since(started).Seconds()) }()

	rows, err := p.source.RawSignalData(ctx, data.TimeRange{
		From: event.ScheduledStart.Add(-p.cfg.SampleWindow),
		To:   event.ScheduledStart,
	}, data.Filters{EventIDs: []string{event.EventID}})
	if errors.Is(err, models.ErrDataUnavailable) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load raw rows for %s: %w", event.EventID, err)
	}

	signals := p.detectParallel(ctx, rows, event)
	if len(signals) == 0 {
		log.Debug().Str("event", event.EventID).Msg("no admitted signals this pass")
		return nil, nil
	}

	deduped := p.dedup.Deduplicate(signals)
	pooled := p.dedup.PooledProfiles(signals)
	bundles := p.resolver.ResolveWithProfiles(deduped, pooled)

	for _, bundle := range bundles {
		metrics.Recommendations.WithLabelValues(string(bundle.Market)).Inc()
		if p.sink != nil {
			if err := p.sink.PersistRecommendation(ctx, bundle); err != nil {
				log.Error().Err(err).Str("event", bundle.EventID).
					Str("market", string(bundle.Market)).
					Msg("recommendation not persisted")
			}
		}
		if p.notifier != nil {
			if err := p.notifier.Notify(ctx, bundle); err != nil {
				log.Warn().Err(err).Str("event", bundle.EventID).Msg("notification failed")
			}
		}
	}

	log.Info().Str("event", event.EventID).
		Int("signals", len(signals)).
		Int("deduped", len(deduped)).
		Int("recommendations", len(bundles)).
		Dur("elapsed", time.Since(started)).
		Msg("detection pass completed")
	return bundles, nil
}

// detectParallel fans the processors out over the shared read-only rows and
// merges their outputs after all have finished or the pass deadline hits.
// A panic or error inside one processor is isolated to that processor.
func (p *Pipeline) detectParallel(ctx context.Context, rows []models.RawSplitRow, event models.EventContext) []models.Signal {
	type batch struct {
		strategy string
		signals  []models.Signal
	}
	results := make(chan batch, len(p.procs))

	var wg sync.WaitGroup
	for _, proc := range p.procs {
		wg.Add(1)
		go func(proc strategies.Processor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					metrics.ProcessorFailures.WithLabelValues(proc.ID()).Inc()
					log.Error().Interface("panic", r).Str("strategy", proc.ID()).
						Msg("processor panicked, excluded from batch")
				}
			}()
			signals, err := proc.Detect(ctx, rows, event)
			if err != nil {
				metrics.ProcessorFailures.WithLabelValues(proc.ID()).Inc()
				log.Warn().Err(err).Str("strategy", proc.ID()).
					Msg("processor failed, excluded from batch")
				return
			}
			results <- batch{strategy: proc.ID(), signals: signals}
		}(proc)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Str("event", event.EventID).
			Msg("pass deadline hit, merging completed processors only")
	}

	// The channel is buffered to len(procs) so stragglers never block on
	// send; drain whatever finished in time.
	var merged []models.Signal
drain:
	for {
		var b batch
		select {
		case b = <-results:
		default:
			break drain
		}
		admitted := 0
		for _, s := range b.signals {
			if err := s.Validate(); err != nil {
				log.Warn().Err(err).Str("strategy", b.strategy).
					Msg("malformed signal dropped")
				continue
			}
			merged = append(merged, s)
			admitted++
		}
		if admitted > 0 {
			metrics.SignalsDetected.WithLabelValues(b.strategy).Add(float64(admitted))
		}
	}
	return merged
}

