// Package orchestrator runs a tracking batch: it selects open positions,
// updates each one through a bounded worker pool or sequentially, and then
// recomputes per-source statistics for the sources it touched.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"token-call-tracker/internal/deadletter"
	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/fetcher"
	"token-call-tracker/internal/history"
	"token-call-tracker/internal/metrics"
	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/performance"
	"token-call-tracker/internal/provider"
	"token-call-tracker/internal/risk"
	"token-call-tracker/internal/storage"
)

// DefaultWorkers is the pool size when Options.Workers is unset.
const DefaultWorkers = 4

// MarketFetcher is the market data surface the orchestrator needs.
// *fetcher.Fetcher implements it.
type MarketFetcher interface {
	Fetch(ctx context.Context, token domain.TokenKey) (*domain.MarketSnapshot, error)
	FetchSecurity(ctx context.Context, token domain.TokenKey) (*domain.SecuritySignals, error)
	Probe(ctx context.Context, chain domain.Chain) ([]fetcher.ProbeResult, error)
}

var _ MarketFetcher = (*fetcher.Fetcher)(nil)

// Outcome is the result of updating one token.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCancelled marks a token left unprocessed because the run
	// context ended. Unlike a skip it makes the run unsuccessful.
	OutcomeCancelled Outcome = "cancelled"
)

// Orchestrator coordinates batch runs.
type Orchestrator struct {
	repo        storage.Repository
	fetcher     MarketFetcher
	deadLetters *deadletter.Queue
	archive     storage.HistoryArchive
	recorder    *history.Recorder

	workers         int
	sequential      bool
	hitThresholdPct float64

	clock  func() time.Time
	logger *zap.Logger
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Repository  storage.Repository
	Fetcher     MarketFetcher
	DeadLetters *deadletter.Queue

	// Archive receives committed history rows after a run. Optional.
	Archive storage.HistoryArchive

	Workers         int
	Sequential      bool
	HitThresholdPct float64

	Clock  func() time.Time
	Logger *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		repo:            opts.Repository,
		fetcher:         opts.Fetcher,
		deadLetters:     opts.DeadLetters,
		archive:         opts.Archive,
		recorder:        history.NewRecorder(),
		workers:         opts.Workers,
		sequential:      opts.Sequential,
		hitThresholdPct: opts.HitThresholdPct,
		clock:           opts.Clock,
		logger:          opts.Logger,
	}
	if o.workers < 1 {
		o.workers = DefaultWorkers
	}
	if o.hitThresholdPct <= 0 {
		o.hitThresholdPct = metrics.DefaultHitThresholdPct
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// RunOptions narrows the set of positions a run updates.
type RunOptions struct {
	// Limit keeps the N most recently created positions. Zero means all.
	Limit int
	// MinAgeHours skips positions younger than this.
	MinAgeHours float64
}

// TokenResult describes what happened to one position in a run.
type TokenResult struct {
	PositionID int64
	Token      domain.TokenKey
	Outcome    Outcome
	Class      provider.Class // set when failed
	Err        error
}

// RunSummary contains results from one run.
type RunSummary struct {
	RunID      string
	Mode       string
	Dispatched int
	Updated    int
	Failed     int
	Skipped    int
	Cancelled  int
	Duration   time.Duration
	Results    []TokenResult
	Stats      []*domain.SourceStats
}

// OK reports whether every dispatched token was updated or skipped for a
// permanent reason (invalid key, no baseline, no longer tracked).
func (s *RunSummary) OK() bool {
	return s.Failed == 0 && s.Cancelled == 0
}

func (s *RunSummary) add(r TokenResult) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeFailed:
		s.Failed++
	case OutcomeCancelled:
		s.Cancelled++
	default:
		s.Skipped++
	}
}

// Run updates every open position that passes opts.
// Token failures never abort the batch; they are counted and dead-lettered.
// The returned error is reserved for failures that prevent the run itself.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	start := o.clock()
	positions, err := o.repo.Stores().Positions.ListOpen(ctx, storage.PositionFilter{
		Limit:       opts.Limit,
		MinAgeHours: opts.MinAgeHours,
		NowMs:       start.UnixMilli(),
	})
	if err != nil {
		observability.RecordRun("run", "error", 0)
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	return o.runPositions(ctx, "run", positions, nil)
}

// runPositions dispatches positions to workers and finishes the run.
// onResult, when set, is called once per token after it is processed.
func (o *Orchestrator) runPositions(ctx context.Context, mode string, positions []*domain.Position, onResult func(*domain.Position, TokenResult)) (*RunSummary, error) {
	start := o.clock()
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("mode", mode))

	wallets, err := o.repo.Stores().Wallets.List(ctx)
	if err != nil {
		logger.Warn("load tracked wallets failed, smart money bonus disabled", zap.Error(err))
		wallets = nil
	}

	logger.Info("run started",
		zap.Int("positions", len(positions)),
		zap.Bool("sequential", o.sequential),
		zap.Int("workers", o.workers))

	w := &worker{o: o, runID: runID, wallets: wallets, logger: logger}
	summary := &RunSummary{RunID: runID, Mode: mode, Dispatched: len(positions)}

	var (
		mu        sync.Mutex
		committed []*domain.PerformanceHistoryEntry
	)
	collect := func(pos *domain.Position, res TokenResult, entry *domain.PerformanceHistoryEntry) {
		mu.Lock()
		defer mu.Unlock()
		summary.add(res)
		if entry != nil {
			committed = append(committed, entry)
		}
		if onResult != nil {
			onResult(pos, res)
		}
		observability.RecordToken(string(res.Outcome))
	}

	if o.sequential {
		for _, pos := range positions {
			res, entry := w.process(ctx, pos)
			collect(pos, res, entry)
		}
	} else {
		// Workers never return an error, so one token cannot cancel its siblings.
		var g errgroup.Group
		g.SetLimit(o.workers)
		for _, pos := range positions {
			g.Go(func() error {
				res, entry := w.process(ctx, pos)
				collect(pos, res, entry)
				return nil
			})
		}
		_ = g.Wait()
	}

	summary.Stats = o.recomputeStats(ctx, logger, positions)
	o.archiveEntries(ctx, logger, committed)

	summary.Duration = o.clock().Sub(start)
	status := "ok"
	if !summary.OK() {
		status = "failed"
	} else {
		observability.MarkSuccessfulRun(o.clock().Unix())
	}
	observability.RecordRun(mode, status, summary.Duration.Seconds())

	logger.Info("run finished",
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("cancelled", summary.Cancelled),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// recomputeStats refreshes SourceStats for every source in the batch.
// Failures are logged; the token outcomes already stand.
func (o *Orchestrator) recomputeStats(ctx context.Context, logger *zap.Logger, positions []*domain.Position) []*domain.SourceStats {
	sources := metrics.SourcesOf(positions)
	if len(sources) == 0 {
		return nil
	}

	agg := metrics.NewAggregator(o.repo.Stores(), o.hitThresholdPct).WithClock(o.clock)
	stats, err := agg.RecomputeAll(ctx, sources)
	if err != nil {
		logger.Error("recompute source stats failed", zap.Error(err))
	}
	if missing := agg.GetMissingRollupWarnings(); len(missing) > 0 {
		logger.Debug("positions without rollup", zap.Strings("positions", missing))
	}
	return stats
}

// archiveEntries mirrors committed history rows to the archive, if any.
func (o *Orchestrator) archiveEntries(ctx context.Context, logger *zap.Logger, entries []*domain.PerformanceHistoryEntry) {
	if o.archive == nil || len(entries) == 0 {
		return
	}
	if err := o.archive.InsertBulk(ctx, entries); err != nil {
		logger.Error("archive history failed", zap.Int("entries", len(entries)), zap.Error(err))
		return
	}
	logger.Debug("history archived", zap.Int("entries", len(entries)))
}

// errNotTracked means the position left WATCH/TRADE after it was selected.
var errNotTracked = errors.New("position is no longer tracked")

// worker processes one token at a time. It is shared by all goroutines of
// a run and holds only read-only state.
type worker struct {
	o       *Orchestrator
	runID   string
	wallets []*domain.TrackedWallet
	logger  *zap.Logger
}

// process runs fetch, score and persist for one position.
// Persistence happens in a transaction of its own; fetches stay outside it.
func (w *worker) process(ctx context.Context, pos *domain.Position) (TokenResult, *domain.PerformanceHistoryEntry) {
	res := TokenResult{PositionID: pos.ID, Token: pos.Token}
	logger := w.logger.With(
		zap.Int64("position_id", pos.ID),
		zap.String("chain", string(pos.Token.Chain)),
		zap.String("address", pos.Token.Address))

	if err := ctx.Err(); err != nil {
		res.Outcome, res.Err = OutcomeCancelled, err
		return res, nil
	}
	if err := pos.Token.Validate(); err != nil {
		// No provider can serve the chain, so the position would never update.
		if errors.Is(err, domain.ErrUnsupportedChain) {
			return w.fail(ctx, logger, pos, provider.ClassConfiguration, err), nil
		}
		logger.Warn("skipping token with invalid key", zap.Error(err))
		res.Outcome, res.Err = OutcomeSkipped, err
		return res, nil
	}
	if !performance.HasBaseline(pos) {
		logger.Warn("skipping position without baseline price")
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	obs, err := w.observe(ctx, logger, pos.Token)
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome, res.Err = OutcomeCancelled, ctx.Err()
			return res, nil
		}
		return w.fail(ctx, logger, pos, provider.CauseClass(err), err), nil
	}

	var entry *domain.PerformanceHistoryEntry
	nowMs := w.o.clock().UnixMilli()
	err = w.o.repo.InTx(ctx, func(stores storage.Stores) error {
		current, err := stores.Positions.GetByID(ctx, pos.ID)
		if err != nil {
			return fmt.Errorf("reload position: %w", err)
		}
		if !current.IsTracked() {
			return errNotTracked
		}
		entry, err = w.o.recorder.Checkpoint(ctx, stores, current, obs, nowMs)
		return err
	})
	if errors.Is(err, errNotTracked) {
		logger.Info("position closed during run, skipping")
		res.Outcome = OutcomeSkipped
		return res, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome, res.Err = OutcomeCancelled, ctx.Err()
			return res, nil
		}
		return w.fail(ctx, logger, pos, provider.ClassPersistence, err), nil
	}

	logger.Debug("position updated",
		zap.Bool("delisted", obs.Delisted),
		zap.Bool("rug", entry.Rug))
	res.Outcome = OutcomeUpdated
	return res, entry
}

// observe fetches market data, security signals and the risk score.
// A delisted token is an observation, not an error.
func (w *worker) observe(ctx context.Context, logger *zap.Logger, token domain.TokenKey) (history.Observation, error) {
	snap, err := w.o.fetcher.Fetch(ctx, token)
	if err != nil {
		if provider.IsDelisted(err) {
			logger.Info("token reported delisted", zap.Error(err))
			return history.Observation{Delisted: true}, nil
		}
		return history.Observation{}, err
	}

	s := *snap
	sec, err := w.o.fetcher.FetchSecurity(ctx, token)
	if err != nil {
		logger.Warn("security fetch failed, scoring without it",
			zap.String("provider", provider.NameGoPlus), zap.Error(err))
	} else {
		s.Security = sec
	}

	smart := 0
	if sec != nil {
		smart = len(risk.MatchSmartMoney(sec.TopHolders, w.wallets))
	}
	result := risk.Score(risk.Input{
		Snapshot:     &s,
		Security:     s.Security,
		SmartWallets: smart,
		NowMs:        w.o.clock().UnixMilli(),
	})
	return history.Observation{Snapshot: &s, Risk: &result}, nil
}

// fail records a failed token in the dead-letter queue.
func (w *worker) fail(ctx context.Context, logger *zap.Logger, pos *domain.Position, class provider.Class, cause error) TokenResult {
	logger.Warn("token update failed", zap.String("class", string(class)), zap.Error(cause))

	if w.o.deadLetters != nil {
		// The run context may already be cancelled; the record must still land.
		_, err := w.o.deadLetters.Record(context.WithoutCancel(ctx), deadletter.Failure{
			PositionID: pos.ID,
			Token:      pos.Token,
			Class:      string(class),
			Reason:     cause.Error(),
			RunID:      w.runID,
		})
		if err != nil {
			logger.Error("dead letter record failed", zap.Error(err))
		}
	}

	return TokenResult{
		PositionID: pos.ID,
		Token:      pos.Token,
		Outcome:    OutcomeFailed,
		Class:      class,
		Err:        cause,
	}
}
