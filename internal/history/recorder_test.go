package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/risk"
	"token-call-tracker/internal/storage"
	"token-call-tracker/internal/storage/memory"
)

const (
	minuteMs = int64(60 * 1000)
	hourMs   = 60 * minuteMs
	callTime = int64(1_700_000_000_000)
)

func ptr[T any](v T) *T {
	return &v
}

func setup(t *testing.T, pos *domain.Position) (*memory.Repository, *domain.Position) {
	t.Helper()
	repo := memory.NewRepository()
	require.NoError(t, repo.Stores().Positions.Insert(context.Background(), pos))
	return repo, pos
}

func watchPosition() *domain.Position {
	return &domain.Position{
		Token:     domain.TokenKey{Chain: domain.ChainSolana, Address: "So11111111111111111111111111111111111111112"},
		Source:    "alpha",
		Decision:  domain.DecisionWatch,
		CallPrice: 1.0,
		CreatedAt: callTime,
		UpdatedAt: callTime,
	}
}

func snapshot(price, liquidity float64) Observation {
	return Observation{Snapshot: &domain.MarketSnapshot{
		Provider:  "birdeye",
		Price:     price,
		Liquidity: liquidity,
		MarketCap: price * 1_000_000,
	}}
}

func checkpoint(t *testing.T, repo *memory.Repository, pos *domain.Position, obs Observation, at int64) *domain.PerformanceHistoryEntry {
	t.Helper()
	var entry *domain.PerformanceHistoryEntry
	err := repo.InTx(context.Background(), func(s storage.Stores) error {
		var err error
		entry, err = NewRecorder().Checkpoint(context.Background(), s, pos, obs, at)
		return err
	})
	require.NoError(t, err)
	return entry
}

func rollup(t *testing.T, repo *memory.Repository, id int64) *domain.PerformanceRollup {
	t.Helper()
	r, err := repo.Stores().Rollups.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestCheckpoint_WritesEntryAndRollup(t *testing.T) {
	repo, pos := setup(t, watchPosition())
	score := &risk.Result{Score: 7.5, Flags: []risk.Flag{risk.FlagMintActive}}
	obs := snapshot(1.5, 50_000)
	obs.Risk = score

	entry := checkpoint(t, repo, pos, obs, callTime+20*minuteMs)

	assert.NotZero(t, entry.ID)
	assert.Equal(t, domain.CheckpointPeriodic, entry.Kind)
	assert.Equal(t, 1.0, entry.BaselinePrice)
	assert.Equal(t, 50.0, *entry.GainLossPct)
	assert.True(t, *entry.Alive)
	assert.False(t, entry.Rug)
	assert.Equal(t, 7.5, *entry.SafetyScore)
	assert.Equal(t, []string{"CRITICAL_MINT_ACTIVE"}, entry.RedFlags)
	assert.Nil(t, entry.PriceChangePct, "first entry has nothing to compare with")

	r := rollup(t, repo, pos.ID)
	assert.Equal(t, 1.5, *r.Price15m)
	assert.Nil(t, r.Price30m)
	assert.Equal(t, 50.0, *r.MaxGainPct)
	assert.Equal(t, 50.0, *r.MaxLossPct)
	assert.Equal(t, "15m", r.CheckpointType)
	assert.Equal(t, 7.5, *r.LastSafetyScore)
}

func TestCheckpoint_HorizonFirstAtOrAfter(t *testing.T) {
	repo, pos := setup(t, watchPosition())

	checkpoint(t, repo, pos, snapshot(1.1, 50_000), callTime+30*minuteMs)
	checkpoint(t, repo, pos, snapshot(1.3, 50_000), callTime+90*minuteMs)
	checkpoint(t, repo, pos, snapshot(0.9, 50_000), callTime+120*minuteMs)

	r := rollup(t, repo, pos.ID)
	assert.Equal(t, 1.1, *r.Price15m)
	assert.Equal(t, 1.1, *r.Price30m)
	assert.Equal(t, 1.3, *r.Price1h, "1h comes from the +90m checkpoint and is never overwritten")
	assert.Nil(t, r.Price24h)
	assert.Equal(t, "1h", r.CheckpointType)

	assert.InDelta(t, 30.0, *r.MaxGainPct, 1e-9)
	assert.Equal(t, callTime+90*minuteMs, *r.MaxGainAt)
	assert.InDelta(t, 1.5, *r.TimeToMaxGainHours, 1e-9)
	assert.InDelta(t, -10.0, *r.MaxLossPct, 1e-9)
}

func TestCheckpoint_ChangeVsPreviousEntry(t *testing.T) {
	repo, pos := setup(t, watchPosition())

	checkpoint(t, repo, pos, snapshot(1.0, 40_000), callTime+hourMs)
	entry := checkpoint(t, repo, pos, snapshot(1.2, 30_000), callTime+2*hourMs)

	assert.InDelta(t, 20.0, *entry.PriceChangePct, 1e-9)
	assert.InDelta(t, -25.0, *entry.LiquidityChangePct, 1e-9)
	assert.InDelta(t, 20.0, *entry.MarketCapChangePct, 1e-9)
}

func TestCheckpoint_RugIsSticky(t *testing.T) {
	repo, pos := setup(t, watchPosition())

	rugged := checkpoint(t, repo, pos, snapshot(0.002, 500), callTime+hourMs)
	assert.True(t, rugged.Rug)

	recovered := checkpoint(t, repo, pos, snapshot(2.0, 80_000), callTime+3*hourMs)
	assert.True(t, recovered.Rug, "rug stays set on later entries")

	r := rollup(t, repo, pos.ID)
	assert.True(t, r.Rug)
	assert.InDelta(t, 1.0, *r.TimeToRugHours, 1e-9)
	assert.True(t, *r.Alive, "alive is independent of rug")
	assert.InDelta(t, -99.8, *r.MaxLossPct, 1e-9)
}

func TestCheckpoint_LossCappedAtMinus100(t *testing.T) {
	repo, pos := setup(t, watchPosition())
	checkpoint(t, repo, pos, snapshot(0.0, 50_000), callTime+hourMs)

	r := rollup(t, repo, pos.ID)
	assert.Equal(t, -100.0, *r.MaxLossPct)
}

func TestCheckpoint_Delisted(t *testing.T) {
	repo, pos := setup(t, watchPosition())
	checkpoint(t, repo, pos, snapshot(1.0, 50_000), callTime+hourMs)

	entry := checkpoint(t, repo, pos, Observation{Delisted: true}, callTime+2*hourMs)
	assert.Nil(t, entry.Price)
	require.NotNil(t, entry.Alive)
	assert.False(t, *entry.Alive)
	assert.False(t, entry.Rug)

	r := rollup(t, repo, pos.ID)
	assert.False(t, *r.Alive)
	assert.False(t, r.Rug)
	assert.Equal(t, 1.0, *r.Price1h, "horizons survive a delisted checkpoint")
}

func TestCheckpoint_SameMillisecondStaysOrdered(t *testing.T) {
	repo, pos := setup(t, watchPosition())
	at := callTime + hourMs

	first := checkpoint(t, repo, pos, snapshot(1.0, 50_000), at)
	second := checkpoint(t, repo, pos, snapshot(1.1, 50_000), at)
	assert.Greater(t, second.Timestamp, first.Timestamp)

	entries, err := repo.Stores().History.GetByPosition(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTransition_UsesNewBaseline(t *testing.T) {
	repo, pos := setup(t, watchPosition())
	checkpoint(t, repo, pos, snapshot(1.5, 50_000), callTime+hourMs)

	entryAt := callTime + 2*hourMs
	pos.Decision = domain.DecisionTrade
	pos.EntryPrice = ptr(2.0)
	pos.EntryTime = &entryAt

	var entry *domain.PerformanceHistoryEntry
	err := repo.InTx(context.Background(), func(s storage.Stores) error {
		var err error
		entry, err = NewRecorder().Transition(context.Background(), s, pos, snapshot(2.0, 50_000), entryAt)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CheckpointTransition, entry.Kind)
	assert.Equal(t, domain.DecisionTrade, entry.Decision)
	assert.Equal(t, 2.0, entry.BaselinePrice)
	assert.Equal(t, 0.0, *entry.GainLossPct)

	r := rollup(t, repo, pos.ID)
	assert.Equal(t, 2.0, *r.MaxPriceSinceEntry)
	assert.Equal(t, 2.0, *r.MinPriceSinceEntry)
	assert.Equal(t, 50.0, *r.MaxGainPct, "earlier max gain is kept")
}

func TestTransition_WithoutSnapshot(t *testing.T) {
	repo, pos := setup(t, watchPosition())
	pos.Decision = domain.DecisionPass

	var entry *domain.PerformanceHistoryEntry
	err := repo.InTx(context.Background(), func(s storage.Stores) error {
		var err error
		entry, err = NewRecorder().Transition(context.Background(), s, pos, Observation{}, callTime+hourMs)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, entry.Price)
	assert.Nil(t, entry.Alive)
	assert.Equal(t, domain.DecisionPass, entry.Decision)
}
