package sqlite

import (
	"context"
	"fmt"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// HistoryStore implements storage.HistoryStore using SQLite.
type HistoryStore struct {
	q dbtx
}

var _ storage.HistoryStore = (*HistoryStore)(nil)

const historyColumns = `
	history_id, position_id, timestamp_ms, kind, decision, baseline_price, provider,
	price, liquidity, total_liquidity, market_cap,
	gain_loss_pct, price_change_pct, liquidity_change_pct, market_cap_change_pct,
	safety_score, red_flags, alive, rug`

// Insert appends an entry. Rejects timestamps not after the latest stored one.
func (s *HistoryStore) Insert(ctx context.Context, e *domain.PerformanceHistoryEntry) error {
	if e == nil || e.PositionID == 0 {
		return storage.ErrInvalidInput
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO performance_history (
			position_id, timestamp_ms, kind, decision, baseline_price, provider,
			price, liquidity, total_liquidity, market_cap,
			gain_loss_pct, price_change_pct, liquidity_change_pct, market_cap_change_pct,
			safety_score, red_flags, alive, rug
		)
		SELECT ?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14, ?15, ?16, ?17, ?18
		WHERE NOT EXISTS (
			SELECT 1 FROM performance_history WHERE position_id = ?1 AND timestamp_ms >= ?2
		)`,
		e.PositionID, e.Timestamp, string(e.Kind), string(e.Decision), e.BaselinePrice, e.Provider,
		e.Price, e.Liquidity, e.TotalLiquidity, e.MarketCap,
		e.GainLossPct, e.PriceChangePct, e.LiquidityChangePct, e.MarketCapChangePct,
		e.SafetyScore, joinFlags(e.RedFlags), e.Alive, e.Rug,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrOutOfOrder
		}
		return fmt.Errorf("insert history entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	if n == 0 {
		return storage.ErrOutOfOrder
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read history id: %w", err)
	}
	e.ID = id
	return nil
}

// GetLatest retrieves the most recent entry for a position.
func (s *HistoryStore) GetLatest(ctx context.Context, positionID int64) (*domain.PerformanceHistoryEntry, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM performance_history
		WHERE position_id = ?
		ORDER BY timestamp_ms DESC
		LIMIT 1`, positionID)

	e, err := scanHistoryEntry(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest history entry: %w", err)
	}
	return e, nil
}

// GetByPosition retrieves all entries for a position, ordered by timestamp ASC.
func (s *HistoryStore) GetByPosition(ctx context.Context, positionID int64) ([]*domain.PerformanceHistoryEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM performance_history
		WHERE position_id = ?
		ORDER BY timestamp_ms ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("get history by position: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PerformanceHistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

func scanHistoryEntry(row rowScanner) (*domain.PerformanceHistoryEntry, error) {
	var e domain.PerformanceHistoryEntry
	var kind, decision, flags string

	err := row.Scan(
		&e.ID, &e.PositionID, &e.Timestamp, &kind, &decision, &e.BaselinePrice, &e.Provider,
		&e.Price, &e.Liquidity, &e.TotalLiquidity, &e.MarketCap,
		&e.GainLossPct, &e.PriceChangePct, &e.LiquidityChangePct, &e.MarketCapChangePct,
		&e.SafetyScore, &flags, &e.Alive, &e.Rug,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = domain.CheckpointKind(kind)
	e.Decision = domain.Decision(decision)
	e.RedFlags = splitFlags(flags)
	return &e, nil
}
