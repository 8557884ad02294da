package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

func newMockSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sink := NewPostgresSink(sqlx.NewDb(db, "sqlmock"), time.Second)
	sink.maxRetry = 50 * time.Millisecond
	return sink, mock
}

func backtestResult() models.BacktestResult {
	return models.BacktestResult{
		StrategyID:     "sharp_action",
		EvaluationDate: time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
		TotalTrials:    100,
		Wins:           60,
		WinRate:        0.60,
		ROIPer100:      14.55,
		Category:       models.SampleRobust,
	}
}

func TestPersistStrategyPerformance(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectExec("INSERT INTO strategy_performance").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sink.PersistStrategyPerformance(context.Background(), backtestResult()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRetriesTransientFailure(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectExec("INSERT INTO strategy_performance").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("INSERT INTO strategy_performance").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sink.PersistStrategyPerformance(context.Background(), backtestResult()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRecommendation(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectExec("INSERT INTO recommendations").
		WillReturnResult(sqlmock.NewResult(1, 1))

	bundle := models.RecommendationBundle{
		EventID: "e1",
		Market:  models.MarketMoneyline,
		Winner: models.Signal{
			ID: "sig1", StrategyID: "sharp_action", EventID: "e1",
			Market: models.MarketMoneyline, Side: models.SideHome,
			Magnitude: 8.5, Confidence: 74,
			DetectedAt: time.Date(2024, 7, 4, 16, 0, 0, 0, time.UTC),
		},
		Consensus:    []string{"sharp_action", "reverse_line_movement"},
		QualityScore: 84,
	}
	require.NoError(t, sink.PersistRecommendation(context.Background(), bundle))
	assert.NoError(t, mock.ExpectationsWereMet())
}
