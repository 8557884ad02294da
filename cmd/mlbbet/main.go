package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "mlbbet"
	version = "v1.2.0"
)

// flagLogLevel, when set, wins over the config file's log_level.
var flagLogLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Adaptive MLB betting-split signal engine",
		Version: version,
		Long: `mlbbet detects sharp-money signals in MLB betting splits, validates
strategies against historical outcomes, and schedules detection passes
relative to first pitch.`,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "Path to YAML config")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override config log level (trace|debug|info|warn|error)")

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return setupLogging(flagLogLevel)
	}

	rootCmd.AddCommand(newScanCmd(&cfgPath))
	rootCmd.AddCommand(newBacktestCmd(&cfgPath))
	rootCmd.AddCommand(newScheduleCmd(&cfgPath))
	rootCmd.AddCommand(newHealthCmd(&cfgPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging picks console output on a TTY and JSON otherwise, so piped
// and systemd-captured output stays machine readable.
func setupLogging(level string) error {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	if level == "" {
		return nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}
