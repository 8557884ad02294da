package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// PostgresSource reads raw betting-split data, event contexts, and
// historical outcomes from PostgreSQL.
type PostgresSource struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresSource wraps an open sqlx handle. Queries time out after the
// given duration.
func NewPostgresSource(db *sqlx.DB, timeout time.Duration) *PostgresSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresSource{db: db, timeout: timeout}
}

// RawSignalData returns split rows captured inside the window, newest last.
func (s *PostgresSource) RawSignalData(ctx context.Context, tr TimeRange, f Filters) ([]models.RawSplitRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT event_id, market_type, side, bet_pct, money_pct,
		       line, opening_line, book, source, captured_at
		FROM betting_splits
		WHERE captured_at >= $1 AND captured_at < $2
		  AND ($3::text[] IS NULL OR event_id = ANY($3))
		  AND ($4::text[] IS NULL OR market_type = ANY($4))
		  AND ($5::text[] IS NULL OR source = ANY($5))
		ORDER BY captured_at ASC`

	rows := []models.RawSplitRow{}
	err := s.db.SelectContext(ctx, &rows, query,
		tr.From, tr.To,
		textArray(f.EventIDs), marketArray(f.Markets), textArray(f.Sources))
	if err != nil {
		return nil, fmt.Errorf("query betting splits: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrDataUnavailable
	}
	return rows, nil
}

// EventContext loads one game and its line snapshot.
func (s *PostgresSource) EventContext(ctx context.Context, eventID string) (models.EventContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var ec models.EventContext
	err := s.db.GetContext(ctx, &ec, `
		SELECT event_id, home_team, away_team, scheduled_start
		FROM games WHERE event_id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EventContext{}, fmt.Errorf("event %s: %w", eventID, models.ErrDataUnavailable)
	}
	if err != nil {
		return models.EventContext{}, fmt.Errorf("query event %s: %w", eventID, err)
	}

	err = s.db.SelectContext(ctx, &ec.Lines, `
		SELECT market_type, book, line, opening_line
		FROM market_lines WHERE event_id = $1
		ORDER BY market_type, book`, eventID)
	if err != nil {
		return models.EventContext{}, fmt.Errorf("query lines for %s: %w", eventID, err)
	}
	return ec, nil
}

// UpcomingEvents lists games starting within the horizon, soonest first.
func (s *PostgresSource) UpcomingEvents(ctx context.Context, horizon time.Duration) ([]models.EventContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events := []models.EventContext{}
	err := s.db.SelectContext(ctx, &events, `
		SELECT event_id, home_team, away_team, scheduled_start
		FROM games
		WHERE scheduled_start > now() AND scheduled_start <= now() + $1::interval
		ORDER BY scheduled_start ASC`,
		fmt.Sprintf("%d seconds", int(horizon.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("query upcoming games: %w", err)
	}
	return events, nil
}

// HistoricalOutcomes returns final scores for completed games in the window.
func (s *PostgresSource) HistoricalOutcomes(ctx context.Context, tr TimeRange) ([]models.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outcomes := []models.Outcome{}
	err := s.db.SelectContext(ctx, &outcomes, `
		SELECT event_id, home_score, away_score, completed_at
		FROM game_results
		WHERE completed_at >= $1 AND completed_at < $2
		ORDER BY completed_at ASC`, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	return outcomes, nil
}

// textArray maps an optional filter slice to a nullable pq array.
func textArray(values []string) interface{} {
	if len(values) == 0 {
		return nil
	}
	return pq.Array(values)
}

func marketArray(markets []models.MarketType) interface{} {
	if len(markets) == 0 {
		return nil
	}
	out := make([]string, len(markets))
	for i, m := range markets {
		out[i] = string(m)
	}
	return pq.Array(out)
}
