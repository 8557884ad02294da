// Package dedup merges structurally identical strategy variants so sample
// sizes and performance metrics pool instead of fragmenting across sources
// and books.
package dedup

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

// Fingerprint identifies a strategy variant: same logic, same market, same
// source or book means the same underlying edge.
func Fingerprint(logicID string, market models.MarketType, sourceOrBook string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", logicID, market, sourceOrBook)
	return h.Sum64()
}

// SignalFingerprint computes the fingerprint for a signal, preferring the
// book over the source when both are present.
func SignalFingerprint(s models.Signal) uint64 {
	venue := s.Book
	if venue == "" {
		venue = s.Source
	}
	return Fingerprint(s.LogicID, s.Market, venue)
}

// Engine deduplicates signal batches against the shared profile store.
type Engine struct {
	store *thresholds.Store
}

// NewEngine creates a deduplication engine over the profile store.
func NewEngine(store *thresholds.Store) *Engine {
	return &Engine{store: store}
}

// Deduplicate collapses each fingerprint group to a single representative
// signal. The operation is idempotent: running it on an already-deduplicated
// batch returns the same batch.
func (e *Engine) Deduplicate(signals []models.Signal) []models.Signal {
	if len(signals) <= 1 {
		return append([]models.Signal(nil), signals...)
	}

	groups, order := groupByFingerprint(signals)

	out := make([]models.Signal, 0, len(order))
	for _, fp := range order {
		out = append(out, representative(groups[fp]))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		if out[i].Market != out[j].Market {
			return out[i].Market < out[j].Market
		}
		return SignalFingerprint(out[i]) < SignalFingerprint(out[j])
	})
	return out
}

func groupByFingerprint(signals []models.Signal) (map[uint64][]models.Signal, []uint64) {
	groups := make(map[uint64][]models.Signal)
	order := make([]uint64, 0, len(signals))
	for _, s := range signals {
		fp := SignalFingerprint(s)
		if _, seen := groups[fp]; !seen {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], s)
	}
	return groups, order
}

// PooledProfiles merges the performance evidence of every fingerprint group
// in the batch, keyed by the representative signal's ID so the resolver can
// score the representative against the pooled sample rather than one
// variant's slice of it.
func (e *Engine) PooledProfiles(signals []models.Signal) map[string]models.StrategyProfile {
	if len(signals) == 0 {
		return nil
	}
	groups, order := groupByFingerprint(signals)

	out := make(map[string]models.StrategyProfile, len(order))
	for _, fp := range order {
		group := groups[fp]
		rep := representative(group)
		pooled, _ := e.PooledProfile(group)
		pooled.StrategyID = rep.StrategyID
		out[rep.ID] = pooled
	}
	return out
}

// PooledProfile recomputes performance metrics for a fingerprint group as a
// trial-weighted average over the distinct strategies in it, with the
// sample-size category recalculated from the pooled sample.
func (e *Engine) PooledProfile(group []models.Signal) (models.StrategyProfile, models.SampleSizeCategory) {
	seen := make(map[string]bool)
	pooled := models.StrategyProfile{}
	var weightedWin, weightedROI float64

	for _, s := range group {
		if seen[s.StrategyID] {
			continue
		}
		seen[s.StrategyID] = true
		p := e.store.Profile(s.StrategyID)
		pooled.SampleSize += p.SampleSize
		weightedWin += p.WinRate * float64(p.SampleSize)
		weightedROI += p.ROIPerUnit * float64(p.SampleSize)
		if p.Phase > pooled.Phase {
			pooled.Phase = p.Phase
		}
	}

	if pooled.SampleSize > 0 {
		pooled.WinRate = weightedWin / float64(pooled.SampleSize)
		pooled.ROIPerUnit = weightedROI / float64(pooled.SampleSize)
	}
	if len(group) > 0 {
		pooled.StrategyID = group[0].StrategyID
	}
	return pooled, models.CategoryForTrials(pooled.SampleSize)
}

// representative picks the signal that survives a merge: highest confidence
// first, then earliest detection, then lowest ID for a stable final word.
func representative(group []models.Signal) models.Signal {
	best := group[0]
	for _, s := range group[1:] {
		switch {
		case s.Confidence > best.Confidence:
			best = s
		case s.Confidence == best.Confidence && s.DetectedAt.Before(best.DetectedAt):
			best = s
		case s.Confidence == best.Confidence && s.DetectedAt.Equal(best.DetectedAt) && s.ID < best.ID:
			best = s
		}
	}
	return best
}
