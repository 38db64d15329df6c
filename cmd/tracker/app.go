package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"token-call-tracker/internal/breaker"
	"token-call-tracker/internal/cache"
	"token-call-tracker/internal/config"
	"token-call-tracker/internal/deadletter"
	"token-call-tracker/internal/fetcher"
	"token-call-tracker/internal/logging"
	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/orchestrator"
	"token-call-tracker/internal/provider"
	"token-call-tracker/internal/storage"
	chstore "token-call-tracker/internal/storage/clickhouse"
	"token-call-tracker/internal/storage/memory"
	"token-call-tracker/internal/storage/migrations"
	pgstore "token-call-tracker/internal/storage/postgres"
	sqlitestore "token-call-tracker/internal/storage/sqlite"
)

// app holds every component of one tracker invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	repo        storage.Repository
	deadLetters storage.DeadLetterStore
	queue       *deadletter.Queue
	archive     storage.HistoryArchive
	cache       *cache.Cache
	orch        *orchestrator.Orchestrator

	closers []func() error
}

// newApp opens storage, builds the provider stack and wires the orchestrator.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.openArchive(ctx)

	a.deadLetters = a.repo.Stores().DeadLetters
	if cfg.DeadLetter.Path != "" {
		a.deadLetters = deadletter.NewFileStore(cfg.DeadLetter.Path)
	}
	a.queue = deadletter.NewQueue(a.deadLetters, deadletter.WithMaxEntries(cfg.DeadLetter.MaxEntries))

	f, err := a.newFetcher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orch = orchestrator.New(orchestrator.Options{
		Repository:      a.repo,
		Fetcher:         f,
		DeadLetters:     a.queue,
		Archive:         a.archive,
		Workers:         cfg.Tracker.Workers,
		Sequential:      cfg.Tracker.Sequential,
		HitThresholdPct: cfg.Tracker.HitThresholdPct,
		Logger:          logging.WithComponent(logger, "orchestrator"),
	})
	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	backend, target, err := a.cfg.Database.Backend()
	if err != nil {
		return err
	}
	logger := a.logger.With(zap.String("backend", backend))

	switch backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, target, a.cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		a.repo = pgstore.NewRepository(pool)

	case config.BackendSQLite:
		db, err := sqlitestore.Open(ctx, target, a.cfg.Database.BusyTimeoutMs)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			return fmt.Errorf("sqlite migrations: %w", err)
		}
		a.repo = sqlitestore.NewRepository(db)
		logger = logger.With(zap.String("path", target))

	case config.BackendMemory:
		a.repo = memory.NewRepository()
		logger.Warn("using in-memory storage, nothing will persist")

	default:
		return fmt.Errorf("unsupported storage backend %q", backend)
	}

	if err := a.repo.Ping(ctx); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}
	logger.Info("storage ready")
	return nil
}

// openArchive connects the optional ClickHouse mirror. The tracker runs
// without it when it cannot be reached.
func (a *app) openArchive(ctx context.Context) {
	if a.cfg.ClickHouse.DSN == "" {
		return
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, a.cfg.ClickHouse.DSN)
	if err != nil {
		a.logger.Error("clickhouse archive disabled", zap.Error(err))
		return
	}
	a.closers = append(a.closers, conn.Close)
	a.archive = chstore.NewHistoryArchive(conn)
	a.logger.Info("clickhouse archive enabled")
}

func (a *app) newFetcher(ctx context.Context) (*fetcher.Fetcher, error) {
	cfg := a.cfg
	logger := logging.WithComponent(a.logger, "fetcher")

	httpClient := provider.NewHTTPClient(
		provider.WithTimeout(cfg.HTTP.Timeout),
		provider.WithRetries(cfg.HTTP.Retries),
		provider.WithRetryDelay(cfg.HTTP.RetryDelay),
		provider.WithMaxDelay(cfg.HTTP.MaxRetryDelay),
		provider.WithAttemptHook(observability.RecordProviderAttempt),
	)

	birdeye := provider.NewBirdeye(httpClient, cfg.Birdeye.BaseURL, cfg.Birdeye.APIKey)
	if !birdeye.Configured() {
		logger.Warn("birdeye api key not set, running fallback-only")
	}

	onStateChange := func(name string, from, to breaker.State) {
		observability.RecordBreakerState(name, to.String(), int(to))
		logger.Warn("circuit breaker state change",
			zap.String("provider", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	c, err := cache.New(ctx, cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}
	a.cache = c
	a.closers = append(a.closers, c.Close)

	return fetcher.New(fetcher.Options{
		Primary:  birdeye,
		Fallback: provider.NewDexScreener(httpClient, cfg.DexScreener.BaseURL),
		Security: provider.NewGoPlus(httpClient, cfg.GoPlus.BaseURL),
		PrimaryBreaker: breaker.NewEscalating(breaker.Settings{
			Name:             provider.NameBirdeye,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			BaseCooldown:     cfg.Breaker.BaseCooldown,
			Escalation:       cfg.Breaker.Escalation,
			MaxCooldown:      cfg.Breaker.MaxCooldown,
			OnStateChange:    onStateChange,
		}),
		FallbackBreaker: breaker.NewDegraded(provider.NameDexScreener, cfg.Breaker.FailureThreshold, cfg.Breaker.DegradedCooldown, onStateChange),
		SecurityBreaker: breaker.NewDegraded(provider.NameGoPlus, cfg.Breaker.FailureThreshold, cfg.Breaker.DegradedCooldown, onStateChange),
		Cache:           c,
		Logger:          logger,
	}), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
