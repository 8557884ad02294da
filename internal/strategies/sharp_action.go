package strategies

import (
	"context"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// SharpAction detects sides where the money percentage runs well ahead of
// the ticket percentage: a few large, presumably informed wagers against a
// crowd of small ones.
type SharpAction struct {
	deps Deps
}

func (p *SharpAction) ID() string      { return LogicSharpAction }
func (p *SharpAction) LogicID() string { return LogicSharpAction }

func (p *SharpAction) Detect(ctx context.Context, rows []models.RawSplitRow, event models.EventContext) ([]models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cands []candidate
	for _, row := range rows {
		if row.BetPct <= 0 || row.MoneyPct <= 0 {
			continue
		}
		divergence := row.MoneyPct - row.BetPct
		if divergence <= 0 {
			continue
		}
		cands = append(cands, candidate{
			market:      row.Market,
			side:        row.Side,
			magnitude:   divergence,
			source:      row.Source,
			book:        row.Book,
			lineSupport: movementToward(row.Market, row.Side, deltaOnSide(row)),
		})
	}

	return admit(p.deps, p.ID(), p.LogicID(), event, cands), nil
}

// deltaOnSide normalizes a row's line movement onto the canonical side so
// movementToward sees a consistent sign. Total rows carry the same number
// on both sides; home-centric markets flip sign for away rows.
func deltaOnSide(row models.RawSplitRow) float64 {
	delta := row.Line - row.OpeningLine
	if row.Market != models.MarketTotal && row.Side != models.SideHome {
		return -delta
	}
	return delta
}
