// Package strategies houses the signal-processor family. Each processor
// detects candidate signals from raw betting-split rows, consults the
// dynamic threshold manager to admit or reject candidates, and the
// confidence scorer to score admitted ones.
package strategies

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

// Logic family identifiers. Variants of the same family (different source
// or book) share a logic ID so the deduplication engine can pool them.
const (
	LogicSharpAction    = "sharp_action"
	LogicReverseLine    = "reverse_line_movement"
	LogicLineDivergence = "line_divergence"
	LogicPublicFade     = "public_fade"
)

// Processor detects candidate signals for one event from raw split rows.
// Implementations must be read-only against the shared rows and safe to run
// in parallel with siblings.
type Processor interface {
	ID() string
	LogicID() string
	Detect(ctx context.Context, rows []models.RawSplitRow, event models.EventContext) ([]models.Signal, error)
}

// Deps is everything a processor needs beyond the raw rows.
type Deps struct {
	Thresholds *thresholds.Manager
	Store      *thresholds.Store

	// SourceReliability maps a source name to its 0-100 trust score.
	SourceReliability map[string]float64

	// Clock stamps DetectedAt; nil defaults to time.Now.
	Clock func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d Deps) reliability(source string) float64 {
	if v, ok := d.SourceReliability[source]; ok {
		return v
	}
	return 60 // unranked sources get a middling trust score
}

// Factory builds a processor for one registered strategy identifier.
type Factory func(deps Deps) Processor

// BuiltinFactories is the static registry mapping strategy identifiers to
// implementations. Built at startup; no runtime discovery.
func BuiltinFactories() map[string]Factory {
	return map[string]Factory{
		LogicSharpAction:    func(d Deps) Processor { return &SharpAction{deps: d} },
		LogicReverseLine:    func(d Deps) Processor { return &ReverseLineMovement{deps: d} },
		LogicLineDivergence: func(d Deps) Processor { return &LineDivergence{deps: d} },
		LogicPublicFade:     func(d Deps) Processor { return &PublicFade{deps: d} },
	}
}

// Build instantiates the requested strategies in a stable order. Unknown
// identifiers are an error: the registry is the single source of truth.
func Build(ids []string, deps Deps) ([]Processor, error) {
	factories := BuiltinFactories()
	if len(ids) == 0 {
		for id := range factories {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	out := make([]Processor, 0, len(ids))
	for _, id := range ids {
		f, ok := factories[id]
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", id)
		}
		out = append(out, f(deps))
	}
	return out, nil
}

// newSignal assembles an admitted, scored signal.
func newSignal(d Deps, strategyID, logicID string, event models.EventContext,
	market models.MarketType, side models.Side, magnitude float64, confidence int,
	source, book string) models.Signal {

	return models.Signal{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		LogicID:    logicID,
		EventID:    event.EventID,
		Market:     market,
		Side:       side,
		Magnitude:  magnitude,
		Confidence: confidence,
		Source:     source,
		Book:       book,
		DetectedAt: d.now(),
	}
}
