package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

type stubSource struct {
	events []models.EventContext
	err    error
}

func (s *stubSource) RawSignalData(context.Context, data.TimeRange, data.Filters) ([]models.RawSplitRow, error) {
	return nil, models.ErrDataUnavailable
}

func (s *stubSource) EventContext(_ context.Context, eventID string) (models.EventContext, error) {
	return models.EventContext{EventID: eventID}, nil
}

func (s *stubSource) UpcomingEvents(context.Context, time.Duration) ([]models.EventContext, error) {
	return s.events, s.err
}

func (s *stubSource) HistoricalOutcomes(context.Context, data.TimeRange) ([]models.Outcome, error) {
	return nil, nil
}

type stubRunner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (r *stubRunner) RunEvent(_ context.Context, event models.EventContext) ([]models.RecommendationBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, event.EventID)
	if r.err != nil {
		return nil, r.err
	}
	return []models.RecommendationBundle{{EventID: event.EventID}}, nil
}

func (r *stubRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func game(id string, startsIn time.Duration) models.EventContext {
	return models.EventContext{
		EventID:        id,
		ScheduledStart: time.Now().Add(startsIn),
	}
}

// waitTerminal polls until every job in the registry is terminal.
func waitTerminal(t *testing.T, s *Scheduler, want int) []Job {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		jobs := s.Jobs()
		terminal := 0
		for _, j := range jobs {
			if j.State.Terminal() {
				terminal++
			}
		}
		if len(jobs) == want && terminal == want {
			return jobs
		}
		select {
		case <-deadline:
			t.Fatalf("jobs never settled: %+v", jobs)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSetupDaySchedulesAndFires(t *testing.T) {
	// Lead offset larger than start offset puts the fire time in the
	// past, so the job fires immediately.
	source := &stubSource{events: []models.EventContext{
		game("NYY@BOS", time.Minute),
		game("LAD@SF", time.Minute),
	}}
	runner := &stubRunner{}
	s := New(Config{LeadOffset: time.Hour}, source, runner, nil, nil)

	added, err := s.SetupDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	jobs := waitTerminal(t, s, 2)
	for _, j := range jobs {
		assert.Equal(t, JobCompleted, j.State)
		assert.False(t, j.FinishedAt.IsZero())
	}
	assert.ElementsMatch(t, []string{"NYY@BOS", "LAD@SF"}, runner.ran())
}

func TestSetupDayIsIdempotentWhileJobLive(t *testing.T) {
	// Fire time is ~1h out, so the first job stays SCHEDULED.
	source := &stubSource{events: []models.EventContext{game("NYY@BOS", 90*time.Minute)}}
	s := New(Config{LeadOffset: 30 * time.Minute}, source, &stubRunner{}, nil, nil)

	added, err := s.SetupDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = s.SetupDay(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added, "live job must not be double scheduled")
	assert.Len(t, s.Jobs(), 1)
}

func TestDataUnavailableSkipsWithoutRetry(t *testing.T) {
	source := &stubSource{events: []models.EventContext{game("NYY@BOS", time.Minute)}}
	runner := &stubRunner{err: models.ErrDataUnavailable}
	s := New(Config{LeadOffset: time.Hour}, source, runner, nil, nil)

	_, err := s.SetupDay(context.Background())
	require.NoError(t, err)

	jobs := waitTerminal(t, s, 1)
	assert.Equal(t, JobSkipped, jobs[0].State)
	assert.Len(t, runner.ran(), 1, "SKIPPED is terminal, no retry")
}

func TestPassErrorFailsOnlyItsOwnJob(t *testing.T) {
	source := &stubSource{events: []models.EventContext{game("NYY@BOS", time.Minute)}}
	runner := &stubRunner{err: errors.New("resolver blew up")}
	s := New(Config{LeadOffset: time.Hour}, source, runner, nil, nil)

	_, err := s.SetupDay(context.Background())
	require.NoError(t, err)

	jobs := waitTerminal(t, s, 1)
	assert.Equal(t, JobFailed, jobs[0].State)
	assert.Equal(t, "resolver blew up", jobs[0].Reason)
}

func TestCancelledContextAbandonsTimerSilently(t *testing.T) {
	source := &stubSource{events: []models.EventContext{game("NYY@BOS", 2*time.Hour)}}
	runner := &stubRunner{}
	s := New(Config{LeadOffset: 30 * time.Minute}, source, runner, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.SetupDay(ctx)
	require.NoError(t, err)
	cancel()

	time.Sleep(20 * time.Millisecond)
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobScheduled, jobs[0].State, "abandoned timer leaves no terminal state")
	assert.Empty(t, runner.ran())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFinishedEventBlockedUntilFirstPitch(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC)}
	start := clk.Now().Add(time.Minute)
	source := &stubSource{events: []models.EventContext{
		{EventID: "NYY@BOS", ScheduledStart: start},
	}}
	runner := &stubRunner{err: models.ErrDataUnavailable}
	s := New(Config{LeadOffset: time.Hour}, source, runner, nil, clk.Now)

	_, err := s.SetupDay(context.Background())
	require.NoError(t, err)
	jobs := waitTerminal(t, s, 1)
	require.Equal(t, JobSkipped, jobs[0].State)

	// A setup refresh inside the lead window sees the same upcoming game.
	// Its job already settled, so nothing gets re-created.
	added, err := s.SetupDay(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added, "skipped game must not be retried before first pitch")
	assert.Len(t, s.Jobs(), 1)
	assert.Len(t, runner.ran(), 1)

	// Once first pitch passes the event ID is fair game again, covering a
	// postponed game that reappears with a later start.
	clk.Advance(2 * time.Minute)
	added, err = s.SetupDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	waitTerminal(t, s, 2)
	assert.Len(t, runner.ran(), 2)
}

type countingKeeper struct{ purges int }

func (c *countingKeeper) Purge() int { c.purges++; return 3 }

func TestHousekeepSweepsRegisteredCaches(t *testing.T) {
	s := New(Config{}, &stubSource{}, &stubRunner{}, nil, nil)
	keeper := &countingKeeper{}
	s.AddHousekeeper("hot", keeper)

	s.Housekeep()
	s.Housekeep()
	assert.Equal(t, 2, keeper.purges)
}

type countingBacktester struct{ calls int }

func (c *countingBacktester) RunAll(_ context.Context, tr data.TimeRange) []models.BacktestResult {
	c.calls++
	return nil
}

func TestRunBacktestsUsesLookbackWindow(t *testing.T) {
	bt := &countingBacktester{}
	s := New(Config{BacktestLookback: 24 * time.Hour}, &stubSource{}, &stubRunner{}, bt, nil)

	s.RunBacktests(context.Background())
	assert.Equal(t, 1, bt.calls)
}
