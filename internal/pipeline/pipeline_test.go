package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/dedup"
	"github.com/samlafell/mlb-betting-sub012/internal/ensemble"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
	"github.com/samlafell/mlb-betting-sub012/internal/strategies"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

var passClock = func() time.Time {
	return time.Date(2026, 4, 12, 18, 0, 0, 0, time.UTC)
}

type scriptedSource struct {
	rows  []models.RawSplitRow
	calls int
}

func (s *scriptedSource) RawSignalData(_ context.Context, _ data.TimeRange, _ data.Filters) ([]models.RawSplitRow, error) {
	s.calls++
	if len(s.rows) == 0 {
		return nil, models.ErrDataUnavailable
	}
	return s.rows, nil
}

func (s *scriptedSource) EventContext(_ context.Context, eventID string) (models.EventContext, error) {
	return models.EventContext{EventID: eventID}, nil
}

func (s *scriptedSource) UpcomingEvents(context.Context, time.Duration) ([]models.EventContext, error) {
	return nil, nil
}

func (s *scriptedSource) HistoricalOutcomes(context.Context, data.TimeRange) ([]models.Outcome, error) {
	return nil, nil
}

type memorySink struct {
	bundles []models.RecommendationBundle
}

func (m *memorySink) PersistStrategyPerformance(context.Context, models.BacktestResult) error {
	return nil
}

func (m *memorySink) PersistRecommendation(_ context.Context, b models.RecommendationBundle) error {
	m.bundles = append(m.bundles, b)
	return nil
}

type memoryNotifier struct {
	bundles []models.RecommendationBundle
	err     error
}

func (m *memoryNotifier) Notify(_ context.Context, b models.RecommendationBundle) error {
	if m.err != nil {
		return m.err
	}
	m.bundles = append(m.bundles, b)
	return nil
}

// stubProc lets a test inject a misbehaving sibling next to real processors.
type stubProc struct {
	id     string
	detect func(context.Context, []models.RawSplitRow, models.EventContext) ([]models.Signal, error)
}

func (s stubProc) ID() string      { return s.id }
func (s stubProc) LogicID() string { return s.id }
func (s stubProc) Detect(ctx context.Context, rows []models.RawSplitRow, ev models.EventContext) ([]models.Signal, error) {
	return s.detect(ctx, rows, ev)
}

func passEvent() models.EventContext {
	return models.EventContext{
		EventID:        "NYY@BOS-2026-04-12",
		HomeTeam:       "BOS",
		AwayTeam:       "NYY",
		ScheduledStart: passClock().Add(2 * time.Hour),
		Lines: []models.MarketLine{
			{Market: models.MarketMoneyline, Line: -120},
		},
	}
}

func sharpRow(event models.EventContext) models.RawSplitRow {
	return models.RawSplitRow{
		EventID:     event.EventID,
		Market:      models.MarketMoneyline,
		Side:        models.SideHome,
		BetPct:      35,
		MoneyPct:    62,
		Line:        -120,
		OpeningLine: -115,
		Book:        "draftkings",
		Source:      "vsin",
		CapturedAt:  passClock().Add(-time.Hour),
	}
}

func newTestPipeline(t *testing.T, source data.Source, procs []strategies.Processor,
	sink data.Sink, notifier data.Notifier) *Pipeline {
	t.Helper()
	store := thresholds.NewStore()
	return New(Config{}, source, procs,
		dedup.NewEngine(store), ensemble.NewResolver(store), sink, notifier)
}

func TestRunEventFullPass(t *testing.T) {
	event := passEvent()
	source := &scriptedSource{rows: []models.RawSplitRow{sharpRow(event)}}

	store := thresholds.NewStore()
	procs, err := strategies.Build([]string{strategies.LogicSharpAction}, strategies.Deps{
		Thresholds: thresholds.NewManager(thresholds.ManagerConfig{}, store, passClock),
		Store:      store,
		Clock:      passClock,
	})
	require.NoError(t, err)

	sink := &memorySink{}
	notifier := &memoryNotifier{}
	p := New(Config{}, source, procs,
		dedup.NewEngine(store), ensemble.NewResolver(store), sink, notifier)

	bundles, err := p.RunEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	bundle := bundles[0]
	assert.Equal(t, models.MarketMoneyline, bundle.Market)
	assert.Equal(t, models.SideHome, bundle.Winner.Side)
	assert.Equal(t, strategies.LogicSharpAction, bundle.Winner.StrategyID)

	require.Len(t, sink.bundles, 1)
	require.Len(t, notifier.bundles, 1)
	assert.Equal(t, bundle.EventID, sink.bundles[0].EventID)
}

func TestRunEventNoRowsIsDataUnavailable(t *testing.T) {
	source := &scriptedSource{}
	p := newTestPipeline(t, source, nil, &memorySink{}, nil)

	_, err := p.RunEvent(context.Background(), passEvent())
	require.ErrorIs(t, err, models.ErrDataUnavailable)
	assert.Equal(t, 1, source.calls)
}

func TestMisbehavingProcessorsAreIsolated(t *testing.T) {
	event := passEvent()
	source := &scriptedSource{rows: []models.RawSplitRow{sharpRow(event)}}

	store := thresholds.NewStore()
	deps := strategies.Deps{
		Thresholds: thresholds.NewManager(thresholds.ManagerConfig{}, store, passClock),
		Store:      store,
		Clock:      passClock,
	}
	healthy, err := strategies.Build([]string{strategies.LogicSharpAction}, deps)
	require.NoError(t, err)

	procs := append(healthy,
		stubProc{id: "panics", detect: func(context.Context, []models.RawSplitRow, models.EventContext) ([]models.Signal, error) {
			panic("boom")
		}},
		stubProc{id: "errors", detect: func(context.Context, []models.RawSplitRow, models.EventContext) ([]models.Signal, error) {
			return nil, errors.New("upstream parse failure")
		}},
	)

	sink := &memorySink{}
	p := New(Config{}, source, procs,
		dedup.NewEngine(store), ensemble.NewResolver(store), sink, nil)

	bundles, err := p.RunEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, bundles, 1, "healthy processor output must survive sibling failures")
	assert.Equal(t, strategies.LogicSharpAction, bundles[0].Winner.StrategyID)
}

func TestMalformedSignalsAreDropped(t *testing.T) {
	event := passEvent()
	source := &scriptedSource{rows: []models.RawSplitRow{sharpRow(event)}}

	broken := stubProc{id: "broken", detect: func(context.Context, []models.RawSplitRow, models.EventContext) ([]models.Signal, error) {
		return []models.Signal{{ID: "x", Market: "parlay"}}, nil
	}}

	p := newTestPipeline(t, source, []strategies.Processor{broken}, &memorySink{}, nil)

	bundles, err := p.RunEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, bundles)
}

func TestNotifierFailureDoesNotFailPass(t *testing.T) {
	event := passEvent()
	source := &scriptedSource{rows: []models.RawSplitRow{sharpRow(event)}}

	store := thresholds.NewStore()
	procs, err := strategies.Build([]string{strategies.LogicSharpAction}, strategies.Deps{
		Thresholds: thresholds.NewManager(thresholds.ManagerConfig{}, store, passClock),
		Store:      store,
		Clock:      passClock,
	})
	require.NoError(t, err)

	sink := &memorySink{}
	notifier := &memoryNotifier{err: errors.New("telegram down")}
	p := New(Config{}, source, procs,
		dedup.NewEngine(store), ensemble.NewResolver(store), sink, notifier)

	bundles, err := p.RunEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Len(t, sink.bundles, 1, "persistence must not be skipped when notify fails")
}
