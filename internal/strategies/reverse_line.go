package strategies

import (
	"context"
	"math"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// publicMajorityPct is the ticket share that marks a side as the public
// side for reverse-line-movement purposes.
const publicMajorityPct = 55.0

// ReverseLineMovement detects books moving a line against the side holding
// the ticket majority. Books do not willingly worsen their position against
// the crowd unless respected money arrived on the other side.
type ReverseLineMovement struct {
	deps Deps
}

func (p *ReverseLineMovement) ID() string      { return LogicReverseLine }
func (p *ReverseLineMovement) LogicID() string { return LogicReverseLine }

func (p *ReverseLineMovement) Detect(ctx context.Context, rows []models.RawSplitRow, event models.EventContext) ([]models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cands []candidate
	for _, row := range rows {
		if row.BetPct < publicMajorityPct {
			continue
		}
		delta := deltaOnSide(row)
		fade := row.Side.Opposite()
		if !movementToward(row.Market, fade, delta) {
			continue
		}
		cands = append(cands, candidate{
			market:      row.Market,
			side:        fade,
			magnitude:   math.Abs(delta) * lineScale(row.Market),
			source:      row.Source,
			book:        row.Book,
			lineSupport: true, // the movement is the signal
		})
	}

	return admit(p.deps, p.ID(), p.LogicID(), event, cands), nil
}
