package main

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/backtest"
	"github.com/samlafell/mlb-betting-sub012/internal/config"
	"github.com/samlafell/mlb-betting-sub012/internal/data"
	"github.com/samlafell/mlb-betting-sub012/internal/dedup"
	"github.com/samlafell/mlb-betting-sub012/internal/ensemble"
	"github.com/samlafell/mlb-betting-sub012/internal/notify"
	"github.com/samlafell/mlb-betting-sub012/internal/persistence"
	"github.com/samlafell/mlb-betting-sub012/internal/pipeline"
	"github.com/samlafell/mlb-betting-sub012/internal/scheduler"
	"github.com/samlafell/mlb-betting-sub012/internal/strategies"
	"github.com/samlafell/mlb-betting-sub012/internal/thresholds"
)

// app holds every wired component for one process lifetime.
type app struct {
	cfg *config.Config

	db    *sqlx.DB
	redis *redis.Client

	source     *data.CachedSource
	store      *thresholds.Store
	procs      []strategies.Processor
	sink       data.Sink
	notifier   data.Notifier
	pipe       *pipeline.Pipeline
	backtester *backtest.Engine
	sched      *scheduler.Scheduler
}

func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if flagLogLevel == "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	db, err := sqlx.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var warm *redis.Client
	if cfg.Redis.Addr != "" {
		warm = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("warm cache layer enabled")
	}

	origin := data.NewPostgresSource(db, cfg.Database.QueryTimeout.Std())
	source := data.NewCachedSource(origin, cfg.Cache.Cache(), warm, nil)

	store := thresholds.NewStore()
	manager := thresholds.NewManager(cfg.Thresholds.Manager(), store, nil)

	deps := strategies.Deps{
		Thresholds:        manager,
		Store:             store,
		SourceReliability: cfg.Strategies.SourceReliability,
	}
	procs, err := strategies.Build(cfg.Strategies.Enabled, deps)
	if err != nil {
		return nil, err
	}

	sink := persistence.NewPostgresSink(db, cfg.Database.QueryTimeout.Std())

	a := &app{
		cfg:        cfg,
		db:         db,
		redis:      warm,
		source:     source,
		store:      store,
		procs:      procs,
		sink:       sink,
	}

	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		a.notifier = tg
	} else {
		a.notifier = notify.LogNotifier{}
	}

	a.pipe = pipeline.New(cfg.Pipeline.Pipeline(), source, procs,
		dedup.NewEngine(store), ensemble.NewResolver(store), sink, a.notifier)
	a.backtester = backtest.New(cfg.Backtest.Backtest(), source, store, sink, deps)

	a.sched = scheduler.New(cfg.Scheduler.Scheduler(), source, a.pipe, a.backtester, nil)
	a.sched.AddHousekeeper("source", source)
	a.sched.AddHousekeeper("thresholds", manager)

	return a, nil
}

// dryRunPipeline rebuilds the pass pipeline without sink or notifier.
func dryRunPipeline(a *app) *pipeline.Pipeline {
	return pipeline.New(a.cfg.Pipeline.Pipeline(), a.source, a.procs,
		dedup.NewEngine(a.store), ensemble.NewResolver(a.store), nil, nil)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("database close")
	}
}
