package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

type countingRunner struct {
	runCalls    []string
	runAllCalls int
}

func (c *countingRunner) Run(ctx context.Context, strategyID string, tr data.TimeRange) (models.BacktestResult, error) {
	c.runCalls = append(c.runCalls, strategyID)
	return models.BacktestResult{StrategyID: strategyID, TotalTrials: 25, Wins: 14}, nil
}

func (c *countingRunner) RunAll(ctx context.Context, tr data.TimeRange) []models.BacktestResult {
	c.runAllCalls++
	return []models.BacktestResult{
		{StrategyID: "sharp_action"},
		{StrategyID: "public_fade"},
	}
}

func testRange() data.TimeRange {
	to := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	return data.TimeRange{From: to.Add(-90 * 24 * time.Hour), To: to}
}

func TestCollectBacktestsSingleStrategyLeavesSiblingsAlone(t *testing.T) {
	bt := &countingRunner{}

	results, err := collectBacktests(context.Background(), bt, "sharp_action", testRange())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sharp_action", results[0].StrategyID)

	assert.Equal(t, []string{"sharp_action"}, bt.runCalls)
	assert.Zero(t, bt.runAllCalls, "a single-strategy request must not replay the registry")
}

func TestCollectBacktestsDefaultsToRegistry(t *testing.T) {
	bt := &countingRunner{}

	results, err := collectBacktests(context.Background(), bt, "", testRange())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, bt.runAllCalls)
	assert.Empty(t, bt.runCalls)
}
