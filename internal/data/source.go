// Package data defines the collaborator contracts the engine consumes and
// produces: the read-only upstream market-data source and the downstream
// persistence and notification sinks.
package data

import (
	"context"
	"time"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// TimeRange bounds a query window. From is inclusive, To exclusive.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Filters narrows a raw-data query.
type Filters struct {
	EventIDs []string
	Markets  []models.MarketType
	Sources  []string
}

// Source is the upstream data collaborator. All methods are read-only.
type Source interface {
	// RawSignalData returns betting-split rows captured inside the window.
	RawSignalData(ctx context.Context, tr TimeRange, f Filters) ([]models.RawSplitRow, error)

	// EventContext returns one scheduled game with its line snapshot.
	EventContext(ctx context.Context, eventID string) (models.EventContext, error)

	// UpcomingEvents lists games starting within the horizon, soonest
	// first. Daily scheduler setup drives off this.
	UpcomingEvents(ctx context.Context, horizon time.Duration) ([]models.EventContext, error)

	// HistoricalOutcomes returns final results for completed games in the
	// window. Used only by the backtesting engine.
	HistoricalOutcomes(ctx context.Context, tr TimeRange) ([]models.Outcome, error)
}

// Sink receives the engine's outputs for persistence.
type Sink interface {
	PersistStrategyPerformance(ctx context.Context, result models.BacktestResult) error
	PersistRecommendation(ctx context.Context, bundle models.RecommendationBundle) error
}

// Notifier delivers a recommendation bundle to whoever is listening.
// Formatting and delivery are entirely the implementation's business.
type Notifier interface {
	Notify(ctx context.Context, bundle models.RecommendationBundle) error
}
