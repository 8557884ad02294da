package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/samlafell/mlb-betting-sub012/internal/cache"
	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// CacheConfig tunes the read-through layers in front of the raw source.
type CacheConfig struct {
	SplitsTTL   time.Duration `yaml:"splits_ttl" default:"30s"`
	EventTTL    time.Duration `yaml:"event_ttl" default:"5m"`
	UpcomingTTL time.Duration `yaml:"upcoming_ttl" default:"1m"`
	OutcomesTTL time.Duration `yaml:"outcomes_ttl" default:"10m"`
	MaxEntries  int           `yaml:"max_entries" default:"2048"`

	// QueriesPerSecond rate-limits trips to the origin; bursts of up to
	// twice the rate are allowed.
	QueriesPerSecond float64 `yaml:"queries_per_second" default:"20"`
}

func (c *CacheConfig) fill() {
	if c.SplitsTTL <= 0 {
		c.SplitsTTL = 30 * time.Second
	}
	if c.EventTTL <= 0 {
		c.EventTTL = 5 * time.Minute
	}
	if c.UpcomingTTL <= 0 {
		c.UpcomingTTL = time.Minute
	}
	if c.OutcomesTTL <= 0 {
		c.OutcomesTTL = 10 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 2048
	}
	if c.QueriesPerSecond <= 0 {
		c.QueriesPerSecond = 20
	}
}

// CachedSource decorates a Source with an in-process TTL cache, an optional
// redis warm layer, a circuit breaker, and a rate limiter. The query layer
// is read-heavy; most detection passes should be served from cache.
type CachedSource struct {
	origin  Source
	cfg     CacheConfig
	hot     *cache.TTLCache
	warm    *redis.Client // nil when unconfigured
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewCachedSource builds the decorated source. warm may be nil to run
// without redis.
func NewCachedSource(origin Source, cfg CacheConfig, warm *redis.Client, clock cache.Clock) *CachedSource {
	cfg.fill()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "raw-data-source",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("data source circuit state changed")
		},
	})
	return &CachedSource{
		origin:  origin,
		cfg:     cfg,
		hot:     cache.NewTTLCache(cfg.MaxEntries, clock),
		warm:    warm,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), int(cfg.QueriesPerSecond*2)),
	}
}

// CacheStats exposes the hot-layer counters for observability.
func (s *CachedSource) CacheStats() cache.Stats {
	return s.hot.Stats()
}

// Purge drops expired hot entries; called from the daemon housekeeping tick.
func (s *CachedSource) Purge() int {
	return s.hot.Purge()
}

func (s *CachedSource) RawSignalData(ctx context.Context, tr TimeRange, f Filters) ([]models.RawSplitRow, error) {
	key := queryKey("splits", tr, filterKey(f))
	var rows []models.RawSplitRow
	err := s.through(ctx, key, s.cfg.SplitsTTL, &rows, func() (interface{}, error) {
		got, err := s.origin.RawSignalData(ctx, tr, f)
		if errors.Is(err, models.ErrDataUnavailable) {
			// An empty window is data, not an outage; cache it and do
			// not count it against the breaker.
			return []models.RawSplitRow{}, nil
		}
		return got, err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrDataUnavailable
	}
	return rows, nil
}

func (s *CachedSource) EventContext(ctx context.Context, eventID string) (models.EventContext, error) {
	var ec models.EventContext
	err := s.through(ctx, "event|"+eventID, s.cfg.EventTTL, &ec, func() (interface{}, error) {
		return s.origin.EventContext(ctx, eventID)
	})
	return ec, err
}

func (s *CachedSource) UpcomingEvents(ctx context.Context, horizon time.Duration) ([]models.EventContext, error) {
	key := fmt.Sprintf("upcoming|%s", horizon)
	var events []models.EventContext
	err := s.through(ctx, key, s.cfg.UpcomingTTL, &events, func() (interface{}, error) {
		return s.origin.UpcomingEvents(ctx, horizon)
	})
	return events, err
}

func (s *CachedSource) HistoricalOutcomes(ctx context.Context, tr TimeRange) ([]models.Outcome, error) {
	key := queryKey("outcomes", tr, "")
	var outcomes []models.Outcome
	err := s.through(ctx, key, s.cfg.OutcomesTTL, &outcomes, func() (interface{}, error) {
		return s.origin.HistoricalOutcomes(ctx, tr)
	})
	return outcomes, err
}

// through implements the hot -> warm -> origin read path. dst must be a
// pointer; values round-trip through JSON so both layers store the same
// representation.
func (s *CachedSource) through(ctx context.Context, key string, ttl time.Duration, dst interface{}, fetch func() (interface{}, error)) error {
	if raw, ok := s.hot.Get(key); ok {
		return json.Unmarshal(raw.([]byte), dst)
	}

	if s.warm != nil {
		if payload, err := s.warm.Get(ctx, "mlb:"+key).Bytes(); err == nil {
			s.hot.Set(key, payload, ttl)
			return json.Unmarshal(payload, dst)
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	value, err := s.breaker.Execute(func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}
	s.hot.Set(key, payload, ttl)
	if s.warm != nil {
		if err := s.warm.Set(ctx, "mlb:"+key, payload, ttl).Err(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("warm cache write failed")
		}
	}
	return json.Unmarshal(payload, dst)
}

func queryKey(kind string, tr TimeRange, extra string) string {
	return fmt.Sprintf("%s|%d|%d|%s", kind, tr.From.Unix(), tr.To.Unix(), extra)
}

func filterKey(f Filters) string {
	parts := make([]string, 0, 3)
	parts = append(parts, strings.Join(sortedCopy(f.EventIDs), ","))
	markets := make([]string, len(f.Markets))
	for i, m := range f.Markets {
		markets[i] = string(m)
	}
	parts = append(parts, strings.Join(sortedCopy(markets), ","))
	parts = append(parts, strings.Join(sortedCopy(f.Sources), ","))
	return strings.Join(parts, ";")
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
