package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the detection pipeline. Per-strategy failures are
// isolated and logged; only total upstream unavailability escalates.
var (
	// ErrDataUnavailable means no raw rows exist for the requested window.
	// A processor short-circuits on it; the scheduler marks the job SKIPPED.
	ErrDataUnavailable = errors.New("raw signal data unavailable")

	// ErrInsufficientHistory means the optimization grid search had too few
	// trials to evaluate; callers fall back to the calibration threshold.
	ErrInsufficientHistory = errors.New("insufficient history for threshold optimization")

	// ErrBacktestDivergence means a replay produced impossible metrics
	// (e.g. wins > trials). The result is discarded, never stored.
	ErrBacktestDivergence = errors.New("backtest produced divergent metrics")
)

// ValidationError marks a malformed or out-of-range signal field. The signal
// is dropped and excluded from the ensemble.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal field %s: %s", e.Field, e.Reason)
}
