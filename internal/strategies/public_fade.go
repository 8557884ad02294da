package strategies

import (
	"context"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// fadeTriggerPct is the ticket share beyond which the crowd is lopsided
// enough to bet against.
const fadeTriggerPct = 65.0

// PublicFade bets against heavily one-sided public ticket counts. The
// magnitude is the crowd's excess over a coin flip, so a 72% public side
// yields a 22-point differential.
type PublicFade struct {
	deps Deps
}

func (p *PublicFade) ID() string      { return LogicPublicFade }
func (p *PublicFade) LogicID() string { return LogicPublicFade }

func (p *PublicFade) Detect(ctx context.Context, rows []models.RawSplitRow, event models.EventContext) ([]models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cands []candidate
	for _, row := range rows {
		if row.BetPct < fadeTriggerPct {
			continue
		}
		fade := row.Side.Opposite()
		cands = append(cands, candidate{
			market:      row.Market,
			side:        fade,
			magnitude:   row.BetPct - 50.0,
			source:      row.Source,
			book:        row.Book,
			lineSupport: movementToward(row.Market, fade, deltaOnSide(row)),
		})
	}

	return admit(p.deps, p.ID(), p.LogicID(), event, cands), nil
}
