package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

func sig(id, strategyID, logicID, book string, confidence int, detected time.Time) models.Signal {
	return models.Signal{
		ID:         id,
		StrategyID: strategyID,
		LogicID:    logicID,
		EventID:    "2024-07-04-NYY-BOS",
		Market:     models.MarketMoneyline,
		Side:       models.SideHome,
		Magnitude:  8.0,
		Confidence: confidence,
		Source:     "vsin",
		Book:       book,
		DetectedAt: detected,
	}
}

func TestDeduplicateMergesSameFingerprint(t *testing.T) {
	e := NewEngine(thresholds.NewStore())
	t0 := time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC)

	in := []models.Signal{
		sig("a", "sharp_vsin", "sharp_action", "draftkings", 70, t0),
		sig("b", "sharp_actionnetwork", "sharp_action", "draftkings", 80, t0.Add(time.Minute)),
		sig("c", "sharp_vsin", "sharp_action", "fanduel", 65, t0),
	}

	out := e.Deduplicate(in)
	require.Len(t, out, 2, "draftkings variants must merge, fanduel stays")

	var books []string
	for _, s := range out {
		books = append(books, s.Book)
	}
	assert.ElementsMatch(t, []string{"draftkings", "fanduel"}, books)

	for _, s := range out {
		if s.Book == "draftkings" {
			assert.Equal(t, "b", s.ID, "higher confidence variant survives")
		}
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	e := NewEngine(thresholds.NewStore())
	t0 := time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC)

	in := []models.Signal{
		sig("a", "sharp_vsin", "sharp_action", "draftkings", 70, t0),
		sig("b", "sharp_actionnetwork", "sharp_action", "draftkings", 80, t0),
		sig("c", "rlm", "reverse_line_movement", "draftkings", 60, t0),
		sig("d", "fade", "public_fade", "", 55, t0),
	}

	once := e.Deduplicate(in)
	twice := e.Deduplicate(once)
	assert.Equal(t, once, twice, "deduplicate(deduplicate(S)) == deduplicate(S)")
}

func TestFingerprintSeparatesLogicMarketVenue(t *testing.T) {
	base := Fingerprint("sharp_action", models.MarketMoneyline, "draftkings")
	assert.NotEqual(t, base, Fingerprint("public_fade", models.MarketMoneyline, "draftkings"))
	assert.NotEqual(t, base, Fingerprint("sharp_action", models.MarketTotal, "draftkings"))
	assert.NotEqual(t, base, Fingerprint("sharp_action", models.MarketMoneyline, "fanduel"))
	assert.Equal(t, base, Fingerprint("sharp_action", models.MarketMoneyline, "draftkings"))
}

func TestOutputNeverRepeatsFingerprint(t *testing.T) {
	e := NewEngine(thresholds.NewStore())
	t0 := time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC)

	in := []models.Signal{
		sig("a", "s1", "sharp_action", "dk", 70, t0),
		sig("b", "s2", "sharp_action", "dk", 71, t0),
		sig("c", "s3", "sharp_action", "dk", 72, t0),
	}
	out := e.Deduplicate(in)

	seen := make(map[uint64]bool)
	for _, s := range out {
		fp := SignalFingerprint(s)
		assert.False(t, seen[fp], "duplicate fingerprint in output")
		seen[fp] = true
	}
}

func TestPooledProfileWeightsBySample(t *testing.T) {
	store := thresholds.NewStore()
	require.NoError(t, store.ApplyBacktest(models.BacktestResult{
		StrategyID: "s1", TotalTrials: 30, Wins: 21, WinRate: 0.70, ROIPer100: 20,
	}, nil, true))
	require.NoError(t, store.ApplyBacktest(models.BacktestResult{
		StrategyID: "s2", TotalTrials: 90, Wins: 45, WinRate: 0.50, ROIPer100: -5,
	}, nil, true))

	e := NewEngine(store)
	t0 := time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC)
	group := []models.Signal{
		sig("a", "s1", "sharp_action", "dk", 70, t0),
		sig("b", "s2", "sharp_action", "dk", 71, t0),
	}

	pooled, category := e.PooledProfile(group)
	assert.Equal(t, 120, pooled.SampleSize)
	assert.InDelta(t, (0.70*30+0.50*90)/120, pooled.WinRate, 1e-9)
	assert.Equal(t, models.SampleRobust, category)
}

func TestPooledProfilesKeyedByRepresentative(t *testing.T) {
	store := thresholds.NewStore()
	require.NoError(t, store.ApplyBacktest(models.BacktestResult{
		StrategyID: "s1", TotalTrials: 30, Wins: 21, WinRate: 0.70, ROIPer100: 20,
	}, nil, true))
	require.NoError(t, store.ApplyBacktest(models.BacktestResult{
		StrategyID: "s2", TotalTrials: 90, Wins: 45, WinRate: 0.50, ROIPer100: -5,
	}, nil, true))
	require.NoError(t, store.ApplyBacktest(models.BacktestResult{
		StrategyID: "rlm", TotalTrials: 40, Wins: 22, WinRate: 0.55, ROIPer100: 8,
	}, nil, true))

	e := NewEngine(store)
	t0 := time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC)
	in := []models.Signal{
		sig("a", "s1", "sharp_action", "dk", 70, t0),
		sig("b", "s2", "sharp_action", "dk", 80, t0),
		sig("c", "rlm", "reverse_line_movement", "dk", 60, t0),
	}

	out := e.PooledProfiles(in)
	require.Len(t, out, 2)

	merged, ok := out["b"]
	require.True(t, ok, "pooled entry keyed by the surviving variant's ID")
	assert.Equal(t, "s2", merged.StrategyID)
	assert.Equal(t, 120, merged.SampleSize)

	solo, ok := out["c"]
	require.True(t, ok)
	assert.Equal(t, 40, solo.SampleSize, "singleton group carries its own record")
}

func TestPooledProfilesEmptyInput(t *testing.T) {
	e := NewEngine(thresholds.NewStore())
	assert.Nil(t, e.PooledProfiles(nil))
}
