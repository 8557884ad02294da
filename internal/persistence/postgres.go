// Package persistence writes the engine's outputs downstream: strategy
// performance records and final recommendations.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// PostgresSink persists results to PostgreSQL. Transient write failures are
// retried with exponential backoff; duplicates are treated as success so
// re-runs stay idempotent.
type PostgresSink struct {
	db       *sqlx.DB
	timeout  time.Duration
	maxRetry time.Duration
}

// NewPostgresSink wraps an open sqlx handle.
func NewPostgresSink(db *sqlx.DB, timeout time.Duration) *PostgresSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresSink{db: db, timeout: timeout, maxRetry: 30 * time.Second}
}

// PersistStrategyPerformance appends one backtest result. The table keys on
// (strategy_id, evaluation_date); a duplicate insert is a no-op.
func (s *PostgresSink) PersistStrategyPerformance(ctx context.Context, result models.BacktestResult) error {
	return s.withRetry(ctx, "strategy_performance", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO strategy_performance
				(strategy_id, evaluation_date, total_trials, wins, win_rate,
				 roi_per_100, sample_size_category, confidence_level)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (strategy_id, evaluation_date) DO NOTHING`,
			result.StrategyID, result.EvaluationDate, result.TotalTrials,
			result.Wins, result.WinRate, result.ROIPer100,
			string(result.Category), result.ConfidenceLevel)
		return err
	})
}

// PersistRecommendation stores one bundle with its alternates as JSONB.
func (s *PostgresSink) PersistRecommendation(ctx context.Context, bundle models.RecommendationBundle) error {
	alternates, err := json.Marshal(bundle.Alternates)
	if err != nil {
		return fmt.Errorf("encode alternates: %w", err)
	}
	return s.withRetry(ctx, "recommendations", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO recommendations
				(event_id, market_type, strategy_id, side, magnitude,
				 confidence, quality_score, consensus, conflicting,
				 alternates, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			bundle.EventID, string(bundle.Market), bundle.Winner.StrategyID,
			string(bundle.Winner.Side), bundle.Winner.Magnitude,
			bundle.Winner.Confidence, bundle.QualityScore,
			pq.Array(bundle.Consensus), pq.Array(bundle.Conflicting),
			alternates, bundle.Winner.DetectedAt)
		return err
	})
}

// withRetry runs one write with per-attempt timeouts under exponential
// backoff until the retry budget is spent.
func (s *PostgresSink) withRetry(ctx context.Context, table string, op func(context.Context) error) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(s.maxRetry),
	), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := op(opCtx); err != nil {
			log.Warn().Err(err).Str("table", table).Int("attempt", attempt).
				Msg("persist failed, will retry")
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return fmt.Errorf("persist to %s: %w", table, err)
	}
	return nil
}
