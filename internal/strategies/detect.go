package strategies

import (
	"math"

	"github.com/samlafell/mlb-betting-sub012/internal/confidence"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// candidate is a raw detection before thresholding and scoring.
type candidate struct {
	market      models.MarketType
	side        models.Side
	magnitude   float64
	source      string
	book        string
	lineSupport bool
}

// admit filters candidates through the active threshold and scores the
// survivors. Zero candidates short-circuits before any threshold or scorer
// work, which matters at scale.
func admit(d Deps, strategyID, logicID string, event models.EventContext, cands []candidate) []models.Signal {
	if len(cands) == 0 {
		return nil
	}

	threshold := d.Thresholds.Threshold(strategyID, logicID)
	profile := d.Store.Profile(strategyID)

	var out []models.Signal
	for _, c := range cands {
		if math.Abs(c.magnitude) < threshold {
			continue
		}
		score := confidence.Score(confidence.Input{
			SignalStrength:    c.magnitude,
			SourceReliability: d.reliability(c.source),
			StrategyWinRate:   profile.WinRate,
			SampleSize:        profile.SampleSize,
			LineSupport:       c.lineSupport,
		})
		out = append(out, newSignal(d, strategyID, logicID, event, c.market, c.side, c.magnitude, score, c.source, c.book))
	}
	return out
}

// canonicalSide is the side split rows are normalized on for line math.
func canonicalSide(market models.MarketType) models.Side {
	if market == models.MarketTotal {
		return models.SideOver
	}
	return models.SideHome
}

// movementToward reports whether a line delta (current minus opening, on
// the canonical side's line) moved the market toward the given side.
// Totals drop when money favors the under; home-centric lines drop when
// money favors the home side.
func movementToward(market models.MarketType, side models.Side, delta float64) bool {
	if delta == 0 {
		return false
	}
	switch market {
	case models.MarketTotal:
		if side == models.SideUnder {
			return delta < 0
		}
		return delta > 0
	default:
		if side == models.SideHome {
			return delta < 0
		}
		return delta > 0
	}
}

// lineScale converts a raw line delta into magnitude percentage points.
// Moneyline deltas arrive in American-odds cents; spreads and totals in
// runs.
func lineScale(market models.MarketType) float64 {
	if market == models.MarketMoneyline {
		return 0.25
	}
	return 10.0
}
