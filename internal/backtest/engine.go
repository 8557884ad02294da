// Package backtest replays historical market data through the live signal
// processors and scores their picks against recorded outcomes. Its results
// seed the threshold store and gate which strategies are qualified for live
// promotion.
package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/metrics"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/strategies"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

// Config tunes the backtesting engine.
type Config struct {
	// ReferencePrice is the fixed American price every trial is settled
	// at, keeping ROI comparable across strategies and books.
	ReferencePrice float64 `yaml:"reference_price" default:"-110"`

	// Qualification gate for live promotion.
	MinROIPer100 float64 `yaml:"min_roi_per_100" default:"5.0"`
	MinTrials    int     `yaml:"min_trials" default:"20"`

	// SampleWindow is how far before first pitch raw rows are replayed
	// from, mirroring the live trigger offset.
	SampleWindow time.Duration `yaml:"sample_window" default:"6h"`
}

func (c *Config) fill() {
	if c.ReferencePrice == 0 {
		c.ReferencePrice = -110
	}
	if c.MinROIPer100 == 0 {
		c.MinROIPer100 = 5.0
	}
	if c.MinTrials <= 0 {
		c.MinTrials = 20
	}
	if c.SampleWindow <= 0 {
		c.SampleWindow = 6 * time.Hour
	}
}

// Engine replays one strategy at a time over a historical range.
type Engine struct {
	cfg    Config
	source data.Source
	store  *thresholds.Store
	sink   data.Sink
	deps   strategies.Deps
	clock  func() time.Time
}

// New builds a backtesting engine. sink may be nil to skip persistence.
func New(cfg Config, source data.Source, store *thresholds.Store, sink data.Sink, deps strategies.Deps) *Engine {
	cfg.fill()
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{cfg: cfg, source: source, store: store, sink: sink, deps: deps, clock: clock}
}

// Run replays one strategy over the range and folds the result into the
// threshold store. Divergent results are discarded and flagged, never
// stored.
func (e *Engine) Run(ctx context.Context, strategyID string, tr data.TimeRange) (models.BacktestResult, error) {
	procs, err := strategies.Build([]string{strategyID}, e.deps)
	if err != nil {
		metrics.BacktestRuns.WithLabelValues(strategyID, "failed").Inc()
		return models.BacktestResult{}, err
	}
	proc := procs[0]

	outcomes, err := e.source.HistoricalOutcomes(ctx, tr)
	if err != nil {
		metrics.BacktestRuns.WithLabelValues(strategyID, "failed").Inc()
		return models.BacktestResult{}, fmt.Errorf("load outcomes: %w", err)
	}

	trials := make([]thresholds.TrialRecord, 0, len(outcomes))
	wins := 0
	profit := 0.0

	for _, outcome := range outcomes {
		records, err := e.replayEvent(ctx, proc, outcome)
		if err != nil {
			log.Debug().Err(err).Str("event", outcome.EventID).
				Str("strategy", strategyID).Msg("event skipped in replay")
			continue
		}
		for _, rec := range records {
			trials = append(trials, rec)
			profit += rec.Profit
			if rec.Won {
				wins++
			}
		}
	}

	result := models.BacktestResult{
		StrategyID:     strategyID,
		EvaluationDate: e.clock().Truncate(24 * time.Hour),
		TotalTrials:    len(trials),
		Wins:           wins,
		Category:       models.CategoryForTrials(len(trials)),
	}
	if len(trials) > 0 {
		result.WinRate = float64(wins) / float64(len(trials))
		result.ROIPer100 = profit / float64(len(trials))
	}
	result.ConfidenceLevel = confidenceLevel(result.Category)

	if err := validate(result); err != nil {
		log.Error().Err(err).Str("strategy", strategyID).
			Int("trials", result.TotalTrials).Int("wins", result.Wins).
			Msg("backtest result discarded, flagged for manual review")
		metrics.BacktestRuns.WithLabelValues(strategyID, "discarded").Inc()
		return models.BacktestResult{}, err
	}

	qualified := e.Qualified(result)
	if err := e.store.ApplyBacktest(result, trials, qualified); err != nil {
		metrics.BacktestRuns.WithLabelValues(strategyID, "failed").Inc()
		return models.BacktestResult{}, fmt.Errorf("apply backtest: %w", err)
	}
	if e.sink != nil {
		if err := e.sink.PersistStrategyPerformance(ctx, result); err != nil {
			log.Warn().Err(err).Str("strategy", strategyID).Msg("backtest result not persisted")
		}
	}

	log.Info().Str("strategy", strategyID).
		Int("trials", result.TotalTrials).
		Float64("win_rate", result.WinRate).
		Float64("roi_per_100", result.ROIPer100).
		Str("category", string(result.Category)).
		Bool("qualified", qualified).
		Msg("backtest completed")
	metrics.BacktestRuns.WithLabelValues(strategyID, "completed").Inc()
	return result, nil
}

// RunAll backtests every registered strategy over the range. One strategy's
// failure never blocks the others.
func (e *Engine) RunAll(ctx context.Context, tr data.TimeRange) []models.BacktestResult {
	ids := make([]string, 0, len(strategies.BuiltinFactories()))
	for id := range strategies.BuiltinFactories() {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]models.BacktestResult, 0, len(ids))
	for _, id := range ids {
		result, err := e.Run(ctx, id, tr)
		if err != nil {
			log.Warn().Err(err).Str("strategy", id).Msg("backtest failed, continuing with siblings")
			continue
		}
		results = append(results, result)
	}
	return results
}

// Qualified reports whether a result clears the live-promotion gate.
func (e *Engine) Qualified(result models.BacktestResult) bool {
	return result.ROIPer100 >= e.cfg.MinROIPer100 && result.TotalTrials >= e.cfg.MinTrials
}

// replayEvent runs the processor over the rows leading up to one completed
// game and settles each emitted signal against the recorded outcome.
func (e *Engine) replayEvent(ctx context.Context, proc strategies.Processor, outcome models.Outcome) ([]thresholds.TrialRecord, error) {
	event, err := e.source.EventContext(ctx, outcome.EventID)
	if err != nil {
		return nil, err
	}

	rows, err := e.source.RawSignalData(ctx, data.TimeRange{
		From: event.ScheduledStart.Add(-e.cfg.SampleWindow),
		To:   event.ScheduledStart,
	}, data.Filters{EventIDs: []string{outcome.EventID}})
	if err != nil {
		return nil, err
	}

	signals, err := proc.Detect(ctx, rows, event)
	if err != nil {
		return nil, err
	}

	records := make([]thresholds.TrialRecord, 0, len(signals))
	for _, sig := range signals {
		line := settlementLine(event, rows, sig.Market)
		won := outcome.Covered(sig.Market, sig.Side, line)
		rec := thresholds.TrialRecord{
			Magnitude: math.Abs(sig.Magnitude),
			Won:       won,
			Profit:    -100.0,
		}
		if won {
			rec.Profit = WinProfit(e.cfg.ReferencePrice)
		}
		records = append(records, rec)
	}
	return records, nil
}

// settlementLine picks the line a signal settles against: the event
// snapshot when present, otherwise the latest raw row for the market.
func settlementLine(event models.EventContext, rows []models.RawSplitRow, market models.MarketType) float64 {
	if l, ok := event.LineFor(market); ok {
		return l.Line
	}
	line := 0.0
	var latest time.Time
	for _, row := range rows {
		if row.Market != market {
			continue
		}
		if row.CapturedAt.After(latest) {
			latest = row.CapturedAt
			line = row.Line
		}
	}
	return line
}

// WinProfit converts an American price into the profit on a 100-unit stake.
func WinProfit(american float64) float64 {
	if american < 0 {
		return 100.0 * (100.0 / -american)
	}
	return american
}

// validate rejects impossible metrics before they can poison the store.
func validate(result models.BacktestResult) error {
	if result.Wins > result.TotalTrials {
		return fmt.Errorf("%w: %d wins over %d trials", models.ErrBacktestDivergence, result.Wins, result.TotalTrials)
	}
	if result.WinRate < 0 || result.WinRate > 1 {
		return fmt.Errorf("%w: win rate %.4f", models.ErrBacktestDivergence, result.WinRate)
	}
	if result.TotalTrials < 0 || result.Wins < 0 {
		return fmt.Errorf("%w: negative counts", models.ErrBacktestDivergence)
	}
	return nil
}

func confidenceLevel(category models.SampleSizeCategory) float64 {
	switch category {
	case models.SampleRobust:
		return 0.95
	case models.SampleReliable:
		return 0.80
	case models.SampleBasic:
		return 0.50
	default:
		return 0.25
	}
}
