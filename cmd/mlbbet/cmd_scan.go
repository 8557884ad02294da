package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/notify"
)

// newScanCmd runs one detection pass over every upcoming game right now,
// regardless of lead offsets. The automation shim for cron and debugging.
func newScanCmd(cfgPath *string) *cobra.Command {
	var horizon time.Duration
	var eventID string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one detection pass over upcoming games",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			events, err := upcomingOrOne(ctx, app, eventID, horizon)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				log.Info().Dur("horizon", horizon).Msg("no upcoming games")
				return nil
			}

			pipe := app.pipe
			if dryRun {
				pipe = dryRunPipeline(app)
			}

			var produced int
			for _, event := range events {
				bundles, err := pipe.RunEvent(ctx, event)
				switch {
				case errors.Is(err, models.ErrDataUnavailable):
					log.Info().Str("event", event.EventID).Msg("no split data yet")
				case err != nil:
					log.Error().Err(err).Str("event", event.EventID).Msg("pass failed")
				default:
					produced += len(bundles)
					for _, b := range bundles {
						fmt.Fprint(cmd.OutOrStdout(), notify.FormatBundle(b))
					}
				}
			}
			log.Info().Int("games", len(events)).Int("recommendations", produced).
				Msg("scan finished")
			return nil
		},
	}

	cmd.Flags().DurationVar(&horizon, "horizon", 24*time.Hour, "How far ahead to look for games")
	cmd.Flags().StringVar(&eventID, "event", "", "Scan a single event ID instead of the horizon")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip persistence and notification")
	return cmd
}

func upcomingOrOne(ctx context.Context, app *app, eventID string, horizon time.Duration) ([]models.EventContext, error) {
	if eventID != "" {
		event, err := app.source.EventContext(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return []models.EventContext{event}, nil
	}
	return app.source.UpcomingEvents(ctx, horizon)
}
