package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
	"token-call-tracker/internal/storage/migrations"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tracker.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))
	// Migrations are idempotent.
	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))

	return NewRepository(db)
}

func newPosition(address, source string, createdAt int64) *domain.Position {
	return &domain.Position{
		Token:     domain.TokenKey{Chain: domain.ChainSolana, Address: address},
		Symbol:    "TKN",
		Source:    source,
		Decision:  domain.DecisionWatch,
		CallPrice: 0.5,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestPositionStore(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	positions := repo.Stores().Positions

	a := newPosition("MintA", "alphabet, beta", 1000)
	b := newPosition("MintB", "alpha", 2000)
	c := newPosition("MintC", "alpha", 3000)
	for _, p := range []*domain.Position{a, b, c} {
		require.NoError(t, positions.Insert(ctx, p))
	}
	assert.ErrorIs(t, positions.Insert(ctx, newPosition("MintA", "x", 1)), storage.ErrDuplicateKey)

	c.Decision = domain.DecisionTrade
	c.EntryPrice = ptr(0.6)
	c.EntryTime = ptr(int64(3500))
	c.ExitPrice = ptr(0.9)
	c.UpdatedAt = 4000
	require.NoError(t, positions.UpdateDecision(ctx, c))

	got, err := positions.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionTrade, got.Decision)
	assert.InDelta(t, 0.9, *got.ExitPrice, 1e-9)
	assert.Equal(t, int64(3500), *got.EntryTime)

	open, err := positions.ListOpen(ctx, storage.PositionFilter{})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, b.ID, open[0].ID)
	assert.Equal(t, a.ID, open[1].ID)
	assert.Nil(t, open[0].EntryPrice)

	limited, err := positions.ListOpen(ctx, storage.PositionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, b.ID, limited[0].ID)

	aged, err := positions.ListOpen(ctx, storage.PositionFilter{MinAgeHours: 1, NowMs: 1500 + 3600*1000})
	require.NoError(t, err)
	require.Len(t, aged, 1)
	assert.Equal(t, a.ID, aged[0].ID)

	alpha, err := positions.ListBySource(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	assert.Equal(t, b.ID, alpha[0].ID)
	assert.Equal(t, c.ID, alpha[1].ID)

	_, err = positions.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, positions.UpdateDecision(ctx, &domain.Position{ID: 12345, Decision: domain.DecisionPass}), storage.ErrNotFound)
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	stores := repo.Stores()

	p := newPosition("MintH", "alpha", 1000)
	require.NoError(t, stores.Positions.Insert(ctx, p))

	first := &domain.PerformanceHistoryEntry{
		PositionID: p.ID, Timestamp: 2000, Kind: domain.CheckpointPeriodic,
		Decision: domain.DecisionWatch, BaselinePrice: 0.5, Provider: "dexscreener",
		Price: ptr(1.0), TotalLiquidity: ptr(5000.0), GainLossPct: ptr(100.0),
		RedFlags: []string{"LOW_LIQUIDITY", "NO_MINT_REVOKE"}, Alive: ptr(true),
	}
	require.NoError(t, stores.History.Insert(ctx, first))
	assert.NotZero(t, first.ID)

	assert.ErrorIs(t, stores.History.Insert(ctx, &domain.PerformanceHistoryEntry{
		PositionID: p.ID, Timestamp: 1999, Kind: domain.CheckpointPeriodic, Decision: domain.DecisionWatch,
	}), storage.ErrOutOfOrder)

	require.NoError(t, stores.History.Insert(ctx, &domain.PerformanceHistoryEntry{
		PositionID: p.ID, Timestamp: 3000, Kind: domain.CheckpointPeriodic,
		Decision: domain.DecisionWatch, BaselinePrice: 0.5, Alive: ptr(false), Rug: true,
	}))

	latest, err := stores.History.GetLatest(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), latest.Timestamp)
	assert.False(t, *latest.Alive)
	assert.True(t, latest.Rug)
	assert.Nil(t, latest.RedFlags)

	all, err := stores.History.GetByPosition(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"LOW_LIQUIDITY", "NO_MINT_REVOKE"}, all[0].RedFlags)
	assert.InDelta(t, 5000.0, *all[0].TotalLiquidity, 1e-9)
	assert.Nil(t, all[0].Liquidity)
}

func TestRollupAndSourceStats(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	stores := repo.Stores()

	p := newPosition("MintR", "alpha", 1000)
	require.NoError(t, stores.Positions.Insert(ctx, p))

	_, err := stores.Rollups.Get(ctx, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	r := &domain.PerformanceRollup{
		PositionID: p.ID, LastUpdated: 10, Price15m: ptr(1.0),
		MaxGainPct: ptr(50.0), MaxGainAt: ptr(int64(9)), Alive: ptr(true), CheckpointType: "15m",
	}
	require.NoError(t, stores.Rollups.Upsert(ctx, r))
	r.Rug = true
	r.TimeToRugHours = ptr(2.0)
	require.NoError(t, stores.Rollups.Upsert(ctx, r))

	list, err := stores.Rollups.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Rug)
	assert.Equal(t, int64(9), *list[0].MaxGainAt)
	assert.Equal(t, "15m", list[0].CheckpointType)
	assert.Nil(t, list[0].Price1h)

	require.NoError(t, stores.SourceStats.Upsert(ctx, &domain.SourceStats{Source: "beta", TotalCalls: 1, Tier: domain.TierC, LastUpdated: 1}))
	require.NoError(t, stores.SourceStats.Upsert(ctx, &domain.SourceStats{Source: "alpha", TotalCalls: 4, HitRate: 0.75, Tier: domain.TierA, LastUpdated: 1}))

	stats, err := stores.SourceStats.List(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "alpha", stats[0].Source)
	assert.InDelta(t, 0.75, stats[0].HitRate, 1e-9)
}

func TestInTx(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	p := newPosition("MintT", "alpha", 1000)
	require.NoError(t, repo.Stores().Positions.Insert(ctx, p))

	errBoom := errors.New("boom")
	err := repo.InTx(ctx, func(tx storage.Stores) error {
		require.NoError(t, tx.History.Insert(ctx, &domain.PerformanceHistoryEntry{
			PositionID: p.ID, Timestamp: 2000, Kind: domain.CheckpointPeriodic, Decision: domain.DecisionWatch,
		}))
		require.NoError(t, tx.Rollups.Upsert(ctx, &domain.PerformanceRollup{PositionID: p.ID, LastUpdated: 2000}))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	_, err = repo.Stores().History.GetLatest(ctx, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.Stores().Rollups.Get(ctx, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Concurrent writers serialize on the write lock.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.InTx(ctx, func(tx storage.Stores) error {
				return tx.DeadLetters.Put(ctx, &domain.DeadLetterEntry{
					ID: string(rune('a' + i)), Class: "TIMEOUT", Timestamp: int64(i),
				})
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	entries, err := repo.Stores().DeadLetters.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 8)

	n, err := repo.Stores().DeadLetters.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.ErrorIs(t, repo.Stores().DeadLetters.Delete(ctx, "a"), storage.ErrNotFound)
}
