// Package confidence converts a raw detected magnitude plus contextual
// factors into a normalized 0-100 score. Scoring is a pure function: the
// same inputs always produce the same score.
package confidence

import "math"

// Factor weights. Signal strength dominates; the rest season it.
const (
	weightStrength    = 0.50
	weightReliability = 0.25
	weightPerformance = 0.15
	weightOther       = 0.10
)

// Input carries the sub-factors for one candidate signal.
type Input struct {
	// SignalStrength is the absolute detected magnitude in percentage
	// points (e.g. money% minus bet% divergence).
	SignalStrength float64

	// SourceReliability is the historical trust in the reporting
	// source/book, 0-100.
	SourceReliability float64

	// StrategyWinRate is the strategy's historical win rate, 0-1.
	StrategyWinRate float64

	// SampleSize is the strategy's accumulated trial count.
	SampleSize int

	// LineSupport is true when observed line movement agrees with the
	// recommended side.
	LineSupport bool
}

// Score maps the weighted sub-factors onto [0,100]. Each sub-factor passes
// through a monotonic step function first so raw magnitudes from different
// strategies land in comparable bands.
func Score(in Input) int {
	composite := weightStrength*strengthBand(in.SignalStrength) +
		weightReliability*clamp(in.SourceReliability, 0, 100) +
		weightPerformance*performanceBand(in.StrategyWinRate, in.SampleSize) +
		weightOther*otherBand(in.LineSupport)

	return int(clamp(math.Round(composite), 0, 100))
}

// strengthBand places the raw magnitude into a confidence band.
func strengthBand(strength float64) float64 {
	s := math.Abs(strength)
	switch {
	case s >= 25.0:
		return bandValue(90, 100, s, 25.0, 40.0)
	case s >= 18.0:
		return bandValue(80, 89, s, 18.0, 25.0)
	case s >= 12.0:
		return bandValue(65, 79, s, 12.0, 18.0)
	case s >= 8.0:
		return bandValue(50, 64, s, 8.0, 12.0)
	case s >= 4.0:
		return bandValue(30, 49, s, 4.0, 8.0)
	default:
		return bandValue(0, 29, s, 0.0, 4.0)
	}
}

// performanceBand rewards a proven win rate, discounted by sample depth.
func performanceBand(winRate float64, sampleSize int) float64 {
	var base float64
	switch {
	case winRate >= 0.60:
		base = 90
	case winRate >= 0.55:
		base = 75
	case winRate >= 0.52:
		base = 60
	case winRate >= 0.50:
		base = 50
	default:
		base = 30
	}

	// Thin histories earn at most a neutral contribution.
	switch {
	case sampleSize < 10:
		return math.Min(base, 50)
	case sampleSize < 30:
		return math.Min(base, 70)
	default:
		return base
	}
}

func otherBand(lineSupport bool) float64 {
	if lineSupport {
		return 80
	}
	return 40
}

// bandValue interpolates linearly inside [lo,hi] as the measure moves
// across [from,to], keeping banding monotonic rather than cliffed.
func bandValue(lo, hi, v, from, to float64) float64 {
	if to <= from {
		return hi
	}
	frac := (v - from) / (to - from)
	return clamp(lo+frac*(hi-lo), lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
