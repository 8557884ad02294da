// Package ensemble reconciles the admitted signals for one event: it
// detects agreement and contradiction across strategies and produces the
// final ranked recommendation set, exactly one winner per market.
package ensemble

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

// ConflictKind classifies the relationship between two admitted signals.
type ConflictKind string

const (
	NoConflict              ConflictKind = "NO_CONFLICT"
	SameMarketOpposing      ConflictKind = "SAME_MARKET_OPPOSING"
	CrossMarketIllogical    ConflictKind = "CROSS_MARKET_ILLOGICAL"
	SameSourceContradiction ConflictKind = "SAME_SOURCE_SELF_CONTRADICTION"
)

// Consensus and penalty tuning, in confidence points.
const (
	consensusBonusPerStrategy = 10.0
	consensusBonusCap         = 30.0
	highPerformerBonus        = 10.0
	highPerformerMinROI       = 0.15
	highPerformerMinTrials    = 20

	selfContradictionPenalty = 20.0
	crossMarketPenalty       = 5.0

	multiplierFloor = 0.5
	multiplierCeil  = 1.1
)

// Resolver combines signals into recommendation bundles using the shared
// profile store for performance context.
type Resolver struct {
	store *thresholds.Store
}

// NewResolver creates a resolver over the profile store.
func NewResolver(store *thresholds.Store) *Resolver {
	return &Resolver{store: store}
}

// Classify names the relationship between two signals. Order of arguments
// does not matter.
func Classify(a, b models.Signal) ConflictKind {
	if a.EventID != b.EventID {
		return NoConflict
	}
	if a.Market == b.Market {
		if a.Side == b.Side.Opposite() {
			if a.Source != "" && a.Source == b.Source {
				return SameSourceContradiction
			}
			return SameMarketOpposing
		}
		return NoConflict
	}
	// Moneyline and runline both express a team pick; opposite teams
	// across them is incoherent. Totals are unrelated to either.
	if teamMarket(a.Market) && teamMarket(b.Market) && a.Side == b.Side.Opposite() {
		return CrossMarketIllogical
	}
	return NoConflict
}

func teamMarket(m models.MarketType) bool {
	return m == models.MarketMoneyline || m == models.MarketRunline
}

// Resolve produces one bundle per market present in the batch. Inputs are
// assumed validated and deduplicated. Identical inputs always yield
// identical winners and quality scores.
func (r *Resolver) Resolve(signals []models.Signal) []models.RecommendationBundle {
	return r.ResolveWithProfiles(signals, nil)
}

// ResolveWithProfiles resolves with pooled performance profiles, keyed by
// signal ID, overriding the store for the signals that carried a merge.
// The deduplication engine produces the map; a nil map means no variant
// pooled and every lookup falls through to the store.
func (r *Resolver) ResolveWithProfiles(signals []models.Signal, pooled map[string]models.StrategyProfile) []models.RecommendationBundle {
	if len(signals) == 0 {
		return nil
	}

	type marketKey struct {
		eventID string
		market  models.MarketType
	}
	groups := make(map[marketKey][]models.Signal)
	for _, s := range signals {
		k := marketKey{s.EventID, s.Market}
		groups[k] = append(groups[k], s)
	}

	keys := make([]marketKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].eventID != keys[j].eventID {
			return keys[i].eventID < keys[j].eventID
		}
		return keys[i].market < keys[j].market
	})

	bundles := make([]models.RecommendationBundle, 0, len(keys))
	for _, k := range keys {
		bundles = append(bundles, r.resolveMarket(groups[k], signals, pooled))
	}
	return bundles
}

// profileFor returns the pooled profile when the signal represents a merged
// variant group, the store profile otherwise.
func (r *Resolver) profileFor(s models.Signal, pooled map[string]models.StrategyProfile) models.StrategyProfile {
	if p, ok := pooled[s.ID]; ok {
		return p
	}
	return r.store.Profile(s.StrategyID)
}

// sideGroup aggregates the agreeing signals on one side of one market.
type sideGroup struct {
	side    models.Side
	signals []models.Signal
	quality float64
	sample  int
}

func (r *Resolver) resolveMarket(group []models.Signal, all []models.Signal, pooled map[string]models.StrategyProfile) models.RecommendationBundle {
	bySide := make(map[models.Side][]models.Signal)
	for _, s := range group {
		bySide[s.Side] = append(bySide[s.Side], s)
	}

	sides := make([]*sideGroup, 0, len(bySide))
	for side, sigs := range bySide {
		sort.SliceStable(sigs, func(i, j int) bool { return signalLess(sigs[i], sigs[j]) })
		sides = append(sides, &sideGroup{side: side, signals: sigs})
	}
	sort.Slice(sides, func(i, j int) bool { return sides[i].side < sides[j].side })

	penalty := r.marketPenalty(group, all)
	for _, sg := range sides {
		sg.quality = r.sideQuality(sg, penalty, pooled)
		sg.sample = r.profileFor(sg.signals[0], pooled).SampleSize
	}

	winner := sides[0]
	for _, sg := range sides[1:] {
		if betterSide(sg, winner) {
			winner = sg
		}
	}

	top := winner.signals[0]
	bundle := models.RecommendationBundle{
		EventID:      top.EventID,
		Market:       top.Market,
		Winner:       top,
		QualityScore: winner.quality,
	}
	for _, s := range winner.signals {
		bundle.Consensus = append(bundle.Consensus, s.StrategyID)
	}
	for _, sg := range sides {
		if sg == winner {
			for _, s := range sg.signals[1:] {
				bundle.Alternates = append(bundle.Alternates, s)
			}
			continue
		}
		for _, s := range sg.signals {
			bundle.Conflicting = append(bundle.Conflicting, s.StrategyID)
			bundle.Alternates = append(bundle.Alternates, s)
		}
	}

	if len(bundle.Conflicting) > 0 {
		log.Debug().
			Str("event", top.EventID).
			Str("market", string(top.Market)).
			Strs("conflicting", bundle.Conflicting).
			Float64("quality", bundle.QualityScore).
			Msg("conflict resolved")
	}
	return bundle
}

// sideQuality implements the quality formula: clamp(base + consensus bonus
// - |penalty|, 0, 100) scaled by the best performance multiplier among the
// agreeing strategies. Taking the best keeps the score monotonic: another
// agreeing strategy can only raise base, bonus, and multiplier, never
// lower any of them.
func (r *Resolver) sideQuality(sg *sideGroup, penalty float64, pooled map[string]models.StrategyProfile) float64 {
	base := 0.0
	for _, s := range sg.signals {
		if float64(s.Confidence) > base {
			base = float64(s.Confidence)
		}
	}

	bonus := consensusBonusPerStrategy * float64(len(sg.signals)-1)
	if bonus > consensusBonusCap {
		bonus = consensusBonusCap
	}
	if r.highPerformers(sg.signals, pooled) >= 2 {
		bonus += highPerformerBonus
	}

	quality := base + bonus - penalty
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}

	return quality * r.performanceMultiplier(sg.signals, pooled)
}

func (r *Resolver) highPerformers(signals []models.Signal, pooled map[string]models.StrategyProfile) int {
	n := 0
	for _, s := range signals {
		p := r.profileFor(s, pooled)
		if p.ROIPerUnit >= highPerformerMinROI && p.SampleSize >= highPerformerMinTrials {
			n++
		}
	}
	return n
}

// performanceMultiplier derives the [0.5, 1.1] scale from the best ROI
// among the agreeing strategies.
func (r *Resolver) performanceMultiplier(signals []models.Signal, pooled map[string]models.StrategyProfile) float64 {
	best := multiplierFloor
	for _, s := range signals {
		m := 1.0 + r.profileFor(s, pooled).ROIPerUnit
		if m > best {
			best = m
		}
	}
	if best > multiplierCeil {
		return multiplierCeil
	}
	return best
}

// marketPenalty sums conflict penalties affecting one market's signals:
// self-contradiction inside the market and illogical picks across related
// markets in the same batch.
func (r *Resolver) marketPenalty(group []models.Signal, all []models.Signal) float64 {
	penalty := 0.0
	selfContradiction := false
	crossMarket := false

	for i := 0; i < len(group) && !selfContradiction; i++ {
		for j := i + 1; j < len(group); j++ {
			if Classify(group[i], group[j]) == SameSourceContradiction {
				selfContradiction = true
				break
			}
		}
	}
	for _, a := range group {
		for _, b := range all {
			if a.Market == b.Market {
				continue
			}
			if Classify(a, b) == CrossMarketIllogical {
				crossMarket = true
			}
		}
	}

	if selfContradiction {
		penalty += selfContradictionPenalty
	}
	if crossMarket {
		penalty += crossMarketPenalty
	}
	return penalty
}

// betterSide orders candidate sides: higher quality wins; ties prefer the
// strategy with the larger sample, then the earliest detected signal.
// Deterministic and reproducible for identical inputs.
func betterSide(a, b *sideGroup) bool {
	if a.quality != b.quality {
		return a.quality > b.quality
	}
	if a.sample != b.sample {
		return a.sample > b.sample
	}
	at, bt := a.signals[0].DetectedAt, b.signals[0].DetectedAt
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.side < b.side
}

// signalLess orders signals inside a side group: highest confidence first,
// then earliest detection, then ID.
func signalLess(a, b models.Signal) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.DetectedAt.Equal(b.DetectedAt) {
		return a.DetectedAt.Before(b.DetectedAt)
	}
	return a.ID < b.ID
}
