package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

type backtestRunner interface {
	Run(ctx context.Context, strategyID string, tr data.TimeRange) (models.BacktestResult, error)
	RunAll(ctx context.Context, tr data.TimeRange) []models.BacktestResult
}

// collectBacktests runs either the one requested strategy or the whole
// registry. A single-strategy request must not touch the others' records.
func collectBacktests(ctx context.Context, bt backtestRunner, strategyID string, tr data.TimeRange) ([]models.BacktestResult, error) {
	if strategyID != "" {
		result, err := bt.Run(ctx, strategyID, tr)
		if err != nil {
			return nil, err
		}
		return []models.BacktestResult{result}, nil
	}
	return bt.RunAll(ctx, tr), nil
}

// newBacktestCmd replays strategies against recorded outcomes and prints
// the qualification table.
func newBacktestCmd(cfgPath *string) *cobra.Command {
	var lookback time.Duration
	var strategyID string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay strategies against historical outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			now := time.Now()
			tr := data.TimeRange{From: now.Add(-lookback), To: now}

			results, err := collectBacktests(ctx, app.backtester, strategyID, tr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-24s %8s %8s %10s %10s %-12s %s\n",
				"STRATEGY", "TRIALS", "WINS", "WIN%", "ROI/100", "CATEGORY", "QUALIFIED")
			for _, r := range results {
				fmt.Fprintf(out, "%-24s %8d %8d %9.1f%% %10.2f %-12s %v\n",
					r.StrategyID, r.TotalTrials, r.Wins, r.WinRate*100,
					r.ROIPer100, r.Category, app.backtester.Qualified(r))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&lookback, "lookback", 90*24*time.Hour, "History window to replay")
	cmd.Flags().StringVar(&strategyID, "strategy", "", "Backtest a single strategy")
	return cmd
}
