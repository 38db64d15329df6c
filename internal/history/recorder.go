// Package history writes performance checkpoints and maintains the
// per-position rollup.
package history

import (
	"context"
	"errors"
	"fmt"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/performance"
	"token-call-tracker/internal/risk"
	"token-call-tracker/internal/storage"
)

// Observation is what a run learned about a token.
type Observation struct {
	// Snapshot is nil when no market data was obtained.
	Snapshot *domain.MarketSnapshot
	// Delisted is set when a provider reported the token has no market.
	Delisted bool
	// Risk is the safety score for Snapshot, if computed.
	Risk *risk.Result
}

// Recorder appends history rows and merges rollups. It holds no state;
// all writes go through the stores it is given, which callers bind to a
// transaction.
type Recorder struct{}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Checkpoint appends a PERIODIC history row for pos and merges the rollup.
func (r *Recorder) Checkpoint(ctx context.Context, stores storage.Stores, pos *domain.Position, obs Observation, nowMs int64) (*domain.PerformanceHistoryEntry, error) {
	return r.record(ctx, stores, pos, obs, nowMs, domain.CheckpointPeriodic)
}

// Transition appends a TRANSITION history row after a decision change.
// pos must already carry the new decision, so the row's baseline reflects it.
func (r *Recorder) Transition(ctx context.Context, stores storage.Stores, pos *domain.Position, obs Observation, nowMs int64) (*domain.PerformanceHistoryEntry, error) {
	return r.record(ctx, stores, pos, obs, nowMs, domain.CheckpointTransition)
}

func (r *Recorder) record(ctx context.Context, stores storage.Stores, pos *domain.Position, obs Observation, nowMs int64, kind domain.CheckpointKind) (*domain.PerformanceHistoryEntry, error) {
	prev, err := stores.History.GetLatest(ctx, pos.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get latest history: %w", err)
	}
	// Two checkpoints in the same millisecond still need distinct, ordered timestamps.
	ts := nowMs
	if prev != nil && ts <= prev.Timestamp {
		ts = prev.Timestamp + 1
	}

	existing, err := stores.Rollups.Get(ctx, pos.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get rollup: %w", err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		existing = nil
	}

	entry := buildEntry(pos, obs, prev, ts, kind)
	update := buildRollup(pos, obs, entry, ts)
	merged := MergeRollup(existing, update)
	entry.Rug = merged.Rug

	if err := stores.History.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}
	if err := stores.Rollups.Upsert(ctx, merged); err != nil {
		return nil, fmt.Errorf("upsert rollup: %w", err)
	}
	return entry, nil
}

func buildEntry(pos *domain.Position, obs Observation, prev *domain.PerformanceHistoryEntry, ts int64, kind domain.CheckpointKind) *domain.PerformanceHistoryEntry {
	baseline := performance.Baseline(pos)
	entry := &domain.PerformanceHistoryEntry{
		PositionID:    pos.ID,
		Timestamp:     ts,
		Kind:          kind,
		Decision:      pos.Decision,
		BaselinePrice: baseline,
	}

	if obs.Risk != nil {
		score := obs.Risk.Score
		entry.SafetyScore = &score
		entry.RedFlags = obs.Risk.FlagStrings()
	}

	snap := obs.Snapshot
	if snap == nil {
		if obs.Delisted {
			entry.Alive = boolPtr(false)
		}
		return entry
	}

	entry.Provider = snap.Provider
	entry.Alive = boolPtr(true)
	entry.Price = floatPtr(snap.Price)
	entry.Liquidity = floatPtr(snap.Liquidity)
	entry.TotalLiquidity = snap.TotalLiquidity
	entry.MarketCap = floatPtr(snap.MarketCap)

	if pct, ok := performance.GainLossPct(snap.Price, baseline); ok {
		entry.GainLossPct = &pct
	}
	if prev != nil {
		entry.PriceChangePct = changePct(snap.Price, prev.Price)
		entry.LiquidityChangePct = changePct(snap.EffectiveLiquidity(), effectiveLiquidity(prev))
		entry.MarketCapChangePct = changePct(snap.MarketCap, prev.MarketCap)
	}
	return entry
}

func buildRollup(pos *domain.Position, obs Observation, entry *domain.PerformanceHistoryEntry, ts int64) *domain.PerformanceRollup {
	elapsed := ts - pos.CreatedAt
	elapsedHours := float64(elapsed) / float64(domain.Horizon1h)

	r := &domain.PerformanceRollup{
		PositionID:      pos.ID,
		LastUpdated:     ts,
		Alive:           entry.Alive,
		CheckpointType:  CheckpointType(elapsed),
		LastSafetyScore: entry.SafetyScore,
	}

	snap := obs.Snapshot
	if snap == nil {
		return r
	}

	price := snap.Price
	for _, h := range horizons {
		if elapsed >= h.offsetMs {
			*h.field(r) = floatPtr(price)
		}
	}

	r.CurrentMarketCap = floatPtr(snap.MarketCap)
	r.CurrentLiquidity = floatPtr(snap.EffectiveLiquidity())

	if entry.GainLossPct != nil {
		gain := *entry.GainLossPct
		r.MaxGainPct = floatPtr(gain)
		r.MaxGainAt = &ts
		r.TimeToMaxGainHours = floatPtr(elapsedHours)
		r.MaxLossPct = floatPtr(performance.CapLoss(gain))
	}

	if pos.Decision == domain.DecisionTrade && pos.EntryTime != nil && ts >= *pos.EntryTime {
		r.MaxPriceSinceEntry = floatPtr(price)
		r.MinPriceSinceEntry = floatPtr(price)
	}

	if performance.IsRug(snap, performance.Baseline(pos)) {
		r.Rug = true
		r.TimeToRugHours = floatPtr(elapsedHours)
	}
	return r
}

func changePct(cur float64, prev *float64) *float64 {
	if prev == nil {
		return nil
	}
	pct, ok := performance.ChangePct(cur, *prev)
	if !ok {
		return nil
	}
	return &pct
}

func effectiveLiquidity(e *domain.PerformanceHistoryEntry) *float64 {
	if e.TotalLiquidity != nil {
		return e.TotalLiquidity
	}
	return e.Liquidity
}

func floatPtr(v float64) *float64 {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}
