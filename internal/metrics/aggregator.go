// Package metrics recomputes per-source performance statistics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// ErrNoCalls is returned when no positions are attributed to a source.
var ErrNoCalls = errors.New("no calls attributed to source")

// Aggregator computes SourceStats from the full set of positions of a source.
// Stats are always recomputed, never patched incrementally.
type Aggregator struct {
	positions   storage.PositionStore
	rollups     storage.RollupStore
	sourceStats storage.SourceStatsStore

	hitThresholdPct float64
	clock           func() time.Time

	// MissingRollups counts positions with no rollup yet, per source
	// (for data quality reporting).
	MissingRollups map[string]int
}

// NewAggregator creates a new source stats aggregator over stores.
func NewAggregator(stores storage.Stores, hitThresholdPct float64) *Aggregator {
	if hitThresholdPct <= 0 {
		hitThresholdPct = DefaultHitThresholdPct
	}
	return &Aggregator{
		positions:       stores.Positions,
		rollups:         stores.Rollups,
		sourceStats:     stores.SourceStats,
		hitThresholdPct: hitThresholdPct,
		clock:           time.Now,
		MissingRollups:  make(map[string]int),
	}
}

// WithClock sets the time source for LastUpdated.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

// Compute loads every position attributed to source and computes its stats.
// Returns ErrNoCalls if the source has no positions.
func (a *Aggregator) Compute(ctx context.Context, source string) (*domain.SourceStats, error) {
	positions, err := a.positions.ListBySource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("list positions for %s: %w", source, err)
	}
	if len(positions) == 0 {
		return nil, ErrNoCalls
	}

	calls := make([]callRecord, 0, len(positions))
	for _, p := range positions {
		r, err := a.rollups.Get(ctx, p.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("get rollup %d: %w", p.ID, err)
			}
			a.MissingRollups[source]++
			r = nil
		}
		calls = append(calls, callRecord{position: p, rollup: r})
	}

	stats := computeFromCalls(source, calls, a.hitThresholdPct)
	stats.LastUpdated = a.clock().UnixMilli()
	return stats, nil
}

// Recompute computes and persists stats for source.
func (a *Aggregator) Recompute(ctx context.Context, source string) (*domain.SourceStats, error) {
	stats, err := a.Compute(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := a.sourceStats.Upsert(ctx, stats); err != nil {
		return nil, fmt.Errorf("upsert source stats %s: %w", source, err)
	}
	return stats, nil
}

// RecomputeAll recomputes every source in sources. It keeps going past
// failures and returns them joined.
func (a *Aggregator) RecomputeAll(ctx context.Context, sources []string) ([]*domain.SourceStats, error) {
	var (
		out  []*domain.SourceStats
		errs []error
	)
	for _, s := range sources {
		stats, err := a.Recompute(ctx, s)
		if err != nil {
			if errors.Is(err, ErrNoCalls) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, stats)
	}
	return out, errors.Join(errs...)
}

// SourcesOf returns the distinct sources named by positions, sorted.
func SourcesOf(positions []*domain.Position) []string {
	seen := make(map[string]struct{})
	for _, p := range positions {
		for _, s := range domain.SplitSources(p.Source) {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// GetMissingRollupWarnings returns data quality warnings for positions
// without rollups, sorted by source for deterministic output.
func (a *Aggregator) GetMissingRollupWarnings() []string {
	if len(a.MissingRollups) == 0 {
		return nil
	}

	keys := make([]string, 0, len(a.MissingRollups))
	for k := range a.MissingRollups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	warnings := make([]string, len(keys))
	for i, source := range keys {
		warnings[i] = fmt.Sprintf("source %s has %d call(s) without performance data", source, a.MissingRollups[source])
	}
	return warnings
}
