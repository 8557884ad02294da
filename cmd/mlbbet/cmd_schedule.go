package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/samlafell/mlb-betting-sub012/internal/httpapi"
)

// newScheduleCmd runs the long-lived daemon: per-game timers, periodic
// backtests, cache housekeeping, and the operational HTTP surface.
func newScheduleCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the detection daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := httpapi.NewServer(app.cfg.HTTP.ListenAddr, app.sched)

			errc := make(chan error, 2)
			go func() { errc <- srv.Start(ctx) }()
			go func() { errc <- app.sched.Run(ctx) }()

			log.Info().Str("version", version).Msg("daemon started")

			// First failure or signal stops both halves; drain the
			// second exit before returning.
			err = <-errc
			stop()
			<-errc
			if err != nil && err != context.Canceled {
				return err
			}
			log.Info().Msg("daemon stopped")
			return nil
		},
	}
}
