package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/storage"
)

// HistoryArchive implements storage.HistoryArchive using ClickHouse.
// Rows are keyed by history_id, so re-sending a batch is harmless once
// ReplacingMergeTree merges.
type HistoryArchive struct {
	conn *Conn
}

// NewHistoryArchive creates a new HistoryArchive.
func NewHistoryArchive(conn *Conn) *HistoryArchive {
	return &HistoryArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.HistoryArchive = (*HistoryArchive)(nil)

// InsertBulk appends entries in a single batch. Entries without a storage ID are rejected.
func (a *HistoryArchive) InsertBulk(ctx context.Context, entries []*domain.PerformanceHistoryEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_history", time.Since(start).Seconds(), err)
	}()

	for _, e := range entries {
		if e == nil || e.ID <= 0 || e.PositionID <= 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO performance_history (
			history_id, position_id, timestamp_ms, kind, decision, provider,
			baseline_price, price, liquidity, total_liquidity, market_cap,
			gain_loss_pct, safety_score, red_flags, alive, rug
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		redFlags := e.RedFlags
		if redFlags == nil {
			redFlags = []string{}
		}
		err = batch.Append(
			uint64(e.ID), uint64(e.PositionID), uint64(e.Timestamp),
			string(e.Kind), string(e.Decision), e.Provider,
			e.BaselinePrice, e.Price, e.Liquidity, e.TotalLiquidity, e.MarketCap,
			e.GainLossPct, e.SafetyScore, redFlags, boolPtrToUInt8(e.Alive), boolToUInt8(e.Rug),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPosition retrieves archived entries for a position, ordered by timestamp ASC.
// Change-percent fields are not archived and come back nil.
func (a *HistoryArchive) GetByPosition(ctx context.Context, positionID int64) ([]*domain.PerformanceHistoryEntry, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT
			history_id, position_id, timestamp_ms, kind, decision, provider,
			baseline_price, price, liquidity, total_liquidity, market_cap,
			gain_loss_pct, safety_score, red_flags, alive, rug
		FROM performance_history FINAL
		WHERE position_id = ?
		ORDER BY timestamp_ms ASC
	`, uint64(positionID))
	if err != nil {
		return nil, fmt.Errorf("query archived history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PerformanceHistoryEntry
	for rows.Next() {
		var (
			e              domain.PerformanceHistoryEntry
			id, pos, ts    uint64
			kind, decision string
			alive          *uint8
			rug            uint8
		)
		if err := rows.Scan(
			&id, &pos, &ts, &kind, &decision, &e.Provider,
			&e.BaselinePrice, &e.Price, &e.Liquidity, &e.TotalLiquidity, &e.MarketCap,
			&e.GainLossPct, &e.SafetyScore, &e.RedFlags, &alive, &rug,
		); err != nil {
			return nil, fmt.Errorf("scan archived row: %w", err)
		}
		e.ID = int64(id)
		e.PositionID = int64(pos)
		e.Timestamp = int64(ts)
		e.Kind = domain.CheckpointKind(kind)
		e.Decision = domain.Decision(decision)
		if alive != nil {
			v := *alive == 1
			e.Alive = &v
		}
		e.Rug = rug == 1
		if len(e.RedFlags) == 0 {
			e.RedFlags = nil
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived rows: %w", err)
	}
	return entries, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func boolPtrToUInt8(b *bool) *uint8 {
	if b == nil {
		return nil
	}
	v := boolToUInt8(*b)
	return &v
}
