package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCmd checks connectivity to the database and, when configured,
// the redis warm layer. Exit code reflects overall health.
func newHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database and cache connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			out := cmd.OutOrStdout()
			healthy := true

			if err := app.db.PingContext(ctx); err != nil {
				healthy = false
				fmt.Fprintf(out, "database: FAIL (%v)\n", err)
			} else {
				fmt.Fprintln(out, "database: ok")
			}

			if app.redis != nil {
				if err := app.redis.Ping(ctx).Err(); err != nil {
					healthy = false
					fmt.Fprintf(out, "redis: FAIL (%v)\n", err)
				} else {
					fmt.Fprintln(out, "redis: ok")
				}
			} else {
				fmt.Fprintln(out, "redis: disabled")
			}

			if !healthy {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}
}
