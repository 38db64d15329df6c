package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

func TestRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepository(pool)
	stores := repo.Stores()

	t.Run("position insert and duplicate", func(t *testing.T) {
		p := insertPosition(t, ctx, repo, "DupMint1111111111111111111111111111111111", "alpha", 1000)
		assert.NotZero(t, p.ID)

		dup := *p
		err := stores.Positions.Insert(ctx, &dup)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		got, err := stores.Positions.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ChainSolana, got.Token.Chain)
		assert.Equal(t, "alpha", got.Source)
		assert.Nil(t, got.EntryPrice)

		_, err = stores.Positions.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list open and by source", func(t *testing.T) {
		older := insertPosition(t, ctx, repo, "OpenMint111111111111111111111111111111111", "alphabet, beta", 2000)
		newer := insertPosition(t, ctx, repo, "OpenMint222222222222222222222222222222222", "alpha", 3000)

		closed := insertPosition(t, ctx, repo, "OpenMint333333333333333333333333333333333", "alpha", 4000)
		closed.Decision = domain.DecisionPass
		closed.UpdatedAt = 4001
		require.NoError(t, stores.Positions.UpdateDecision(ctx, closed))

		open, err := stores.Positions.ListOpen(ctx, storage.PositionFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, newer.ID, open[0].ID)
		assert.Equal(t, older.ID, open[1].ID)

		aged, err := stores.Positions.ListOpen(ctx, storage.PositionFilter{MinAgeHours: 1, NowMs: 2000 + 3600*1000})
		require.NoError(t, err)
		for _, p := range aged {
			assert.LessOrEqual(t, p.CreatedAt, int64(2000))
		}

		bySource, err := stores.Positions.ListBySource(ctx, "alpha")
		require.NoError(t, err)
		for _, p := range bySource {
			assert.NotEqual(t, older.ID, p.ID, "alphabet must not match alpha")
		}

		beta, err := stores.Positions.ListBySource(ctx, "beta")
		require.NoError(t, err)
		require.Len(t, beta, 1)
		assert.Equal(t, older.ID, beta[0].ID)
	})

	t.Run("history ordering", func(t *testing.T) {
		p := insertPosition(t, ctx, repo, "HistMint111111111111111111111111111111111", "gamma", 5000)

		first := &domain.PerformanceHistoryEntry{
			PositionID: p.ID, Timestamp: 6000, Kind: domain.CheckpointPeriodic,
			Decision: domain.DecisionWatch, BaselinePrice: 1, Provider: "birdeye",
			Price: ptr(1.5), RedFlags: []string{"LOW_LIQUIDITY"}, Alive: ptr(true),
		}
		require.NoError(t, stores.History.Insert(ctx, first))
		assert.NotZero(t, first.ID)

		stale := &domain.PerformanceHistoryEntry{
			PositionID: p.ID, Timestamp: 6000, Kind: domain.CheckpointPeriodic,
			Decision: domain.DecisionWatch, BaselinePrice: 1,
		}
		assert.ErrorIs(t, stores.History.Insert(ctx, stale), storage.ErrOutOfOrder)

		second := &domain.PerformanceHistoryEntry{
			PositionID: p.ID, Timestamp: 7000, Kind: domain.CheckpointTransition,
			Decision: domain.DecisionTrade, BaselinePrice: 1, Rug: true,
		}
		require.NoError(t, stores.History.Insert(ctx, second))

		latest, err := stores.History.GetLatest(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(7000), latest.Timestamp)
		assert.True(t, latest.Rug)
		assert.Nil(t, latest.Price)

		all, err := stores.History.GetByPosition(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, []string{"LOW_LIQUIDITY"}, all[0].RedFlags)
		assert.InDelta(t, 1.5, *all[0].Price, 1e-9)

		_, err = stores.History.GetLatest(ctx, 424242)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("rollup upsert updates", func(t *testing.T) {
		p := insertPosition(t, ctx, repo, "RollMint111111111111111111111111111111111", "delta", 5000)

		r := &domain.PerformanceRollup{PositionID: p.ID, LastUpdated: 1, Price15m: ptr(2.0), MaxGainPct: ptr(100.0)}
		require.NoError(t, stores.Rollups.Upsert(ctx, r))

		r.LastUpdated = 2
		r.Rug = true
		r.TimeToRugHours = ptr(3.5)
		r.CheckpointType = "1h"
		require.NoError(t, stores.Rollups.Upsert(ctx, r))

		got, err := stores.Rollups.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.LastUpdated)
		assert.True(t, got.Rug)
		assert.Equal(t, "1h", got.CheckpointType)
		assert.InDelta(t, 2.0, *got.Price15m, 1e-9)
	})

	t.Run("rollup upsert never regresses on a stale write", func(t *testing.T) {
		p := insertPosition(t, ctx, repo, "RollMint222222222222222222222222222222222", "delta", 5000)

		// Two writers read the same empty rollup; the ruggy one commits first.
		rugged := &domain.PerformanceRollup{
			PositionID: p.ID, LastUpdated: 20,
			Price1h: ptr(0.5), MaxGainPct: ptr(40.0), MaxGainAt: ptr(int64(10)), MaxLossPct: ptr(-90.0),
			Rug: true, TimeToRugHours: ptr(2.0), Alive: ptr(false), CheckpointType: "1h",
		}
		require.NoError(t, stores.Rollups.Upsert(ctx, rugged))

		stale := &domain.PerformanceRollup{
			PositionID: p.ID, LastUpdated: 10,
			Price15m: ptr(1.2), MaxGainPct: ptr(20.0), MaxGainAt: ptr(int64(5)), MaxLossPct: ptr(-10.0),
			CurrentMarketCap: ptr(5000.0), Alive: ptr(true), CheckpointType: "15m",
		}
		require.NoError(t, stores.Rollups.Upsert(ctx, stale))

		got, err := stores.Rollups.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.Rug)
		require.NotNil(t, got.TimeToRugHours)
		assert.InDelta(t, 2.0, *got.TimeToRugHours, 1e-9)
		require.NotNil(t, got.Price1h)
		assert.InDelta(t, 0.5, *got.Price1h, 1e-9)
		require.NotNil(t, got.Price15m)
		assert.InDelta(t, 1.2, *got.Price15m, 1e-9)
		assert.InDelta(t, 40.0, *got.MaxGainPct, 1e-9)
		assert.Equal(t, int64(10), *got.MaxGainAt)
		assert.InDelta(t, -90.0, *got.MaxLossPct, 1e-9)
		assert.Equal(t, int64(20), got.LastUpdated)
		assert.False(t, *got.Alive)
		assert.Equal(t, "1h", got.CheckpointType)
		require.NotNil(t, got.CurrentMarketCap, "older side fills a missing current value")
		assert.InDelta(t, 5000.0, *got.CurrentMarketCap, 1e-9)
	})

	t.Run("source stats upsert", func(t *testing.T) {
		st := &domain.SourceStats{Source: "alpha", TotalCalls: 3, HitRate: 0.5, Tier: domain.TierB, LastUpdated: 10}
		require.NoError(t, stores.SourceStats.Upsert(ctx, st))
		st.Tier = domain.TierA
		require.NoError(t, stores.SourceStats.Upsert(ctx, st))

		got, err := stores.SourceStats.Get(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, domain.TierA, got.Tier)

		list, err := stores.SourceStats.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		p := insertPosition(t, ctx, repo, "TxMint1111111111111111111111111111111111", "eps", 5000)
		errBoom := errors.New("boom")

		err := repo.InTx(ctx, func(tx storage.Stores) error {
			require.NoError(t, tx.History.Insert(ctx, &domain.PerformanceHistoryEntry{
				PositionID: p.ID, Timestamp: 8000, Kind: domain.CheckpointPeriodic,
				Decision: domain.DecisionWatch, BaselinePrice: 1,
			}))
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)

		_, err = stores.History.GetLatest(ctx, p.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = repo.InTx(ctx, func(tx storage.Stores) error {
			return tx.Rollups.Upsert(ctx, &domain.PerformanceRollup{PositionID: p.ID, LastUpdated: 9})
		})
		require.NoError(t, err)

		_, err = stores.Rollups.Get(ctx, p.ID)
		assert.NoError(t, err)
	})

	t.Run("dead letters", func(t *testing.T) {
		e := &domain.DeadLetterEntry{
			ID: "dl-1", PositionID: 1,
			Token: domain.TokenKey{Chain: domain.ChainBSC, Address: "0xabc"},
			Class: "TIMEOUT", Reason: "deadline", Timestamp: 20,
		}
		require.NoError(t, stores.DeadLetters.Put(ctx, e))
		e.RetryCount = 1
		e.Timestamp = 30
		require.NoError(t, stores.DeadLetters.Put(ctx, e))
		require.NoError(t, stores.DeadLetters.Put(ctx, &domain.DeadLetterEntry{ID: "dl-2", Timestamp: 25, Class: "RATE_LIMITED"}))

		list, err := stores.DeadLetters.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "dl-2", list[0].ID)
		assert.Equal(t, 1, list[1].RetryCount)
		assert.Equal(t, domain.ChainBSC, list[1].Token.Chain)

		require.NoError(t, stores.DeadLetters.Delete(ctx, "dl-2"))
		assert.ErrorIs(t, stores.DeadLetters.Delete(ctx, "dl-2"), storage.ErrNotFound)

		n, err := stores.DeadLetters.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}
