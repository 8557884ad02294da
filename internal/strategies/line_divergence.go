package strategies

import (
	"context"
	"math"
	"sort"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// LineDivergence compares each book's posted line against the cross-book
// consensus and reads a lone dissenter as information: the divergent book
// has seen something the market has not priced yet.
type LineDivergence struct {
	deps Deps
}

func (p *LineDivergence) ID() string      { return LogicLineDivergence }
func (p *LineDivergence) LogicID() string { return LogicLineDivergence }

func (p *LineDivergence) Detect(ctx context.Context, rows []models.RawSplitRow, event models.EventContext) ([]models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type bookLine struct {
		line   float64
		source string
	}
	byMarket := make(map[models.MarketType]map[string]bookLine)
	for _, row := range rows {
		if row.Side != canonicalSide(row.Market) {
			continue
		}
		if byMarket[row.Market] == nil {
			byMarket[row.Market] = make(map[string]bookLine)
		}
		byMarket[row.Market][row.Book] = bookLine{line: row.Line, source: row.Source}
	}

	var cands []candidate
	for market, books := range byMarket {
		if len(books) < 3 {
			continue // no meaningful consensus from fewer than three books
		}
		lines := make([]float64, 0, len(books))
		for _, bl := range books {
			lines = append(lines, bl.line)
		}
		consensus := median(lines)

		for book, bl := range books {
			delta := bl.line - consensus
			if delta == 0 {
				continue
			}
			side := impliedSide(market, delta)
			cands = append(cands, candidate{
				market:    market,
				side:      side,
				magnitude: math.Abs(delta) * lineScale(market),
				source:    bl.source,
				book:      book,
			})
		}
	}

	return admit(p.deps, p.ID(), p.LogicID(), event, cands), nil
}

// impliedSide reads which side a book's deviation from consensus endorses:
// a total below consensus endorses the under, a home-centric line below
// consensus endorses the home side.
func impliedSide(market models.MarketType, delta float64) models.Side {
	if market == models.MarketTotal {
		if delta < 0 {
			return models.SideUnder
		}
		return models.SideOver
	}
	if delta < 0 {
		return models.SideHome
	}
	return models.SideAway
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
