package sqlite

import (
	"context"
	"fmt"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// RollupStore implements storage.RollupStore using SQLite.
type RollupStore struct {
	q dbtx
}

var _ storage.RollupStore = (*RollupStore)(nil)

const rollupColumns = `
	position_id, last_updated,
	price_15m, price_30m, price_1h, price_24h, price_7d, price_30d,
	max_gain_pct, max_loss_pct, max_gain_at, time_to_max_gain_hours,
	max_price_since_entry, min_price_since_entry,
	current_market_cap, current_liquidity, last_safety_score,
	alive, rug, time_to_rug_hours, checkpoint_type`

// Get retrieves the rollup for a position.
func (s *RollupStore) Get(ctx context.Context, positionID int64) (*domain.PerformanceRollup, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+rollupColumns+` FROM performance_rollups WHERE position_id = ?`, positionID)

	r, err := scanRollup(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get rollup: %w", err)
	}
	return r, nil
}

// Upsert inserts or replaces the rollup for a position.
func (s *RollupStore) Upsert(ctx context.Context, r *domain.PerformanceRollup) error {
	if r == nil || r.PositionID == 0 {
		return storage.ErrInvalidInput
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO performance_rollups (`+rollupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PositionID, r.LastUpdated,
		r.Price15m, r.Price30m, r.Price1h, r.Price24h, r.Price7d, r.Price30d,
		r.MaxGainPct, r.MaxLossPct, r.MaxGainAt, r.TimeToMaxGainHours,
		r.MaxPriceSinceEntry, r.MinPriceSinceEntry,
		r.CurrentMarketCap, r.CurrentLiquidity, r.LastSafetyScore,
		r.Alive, r.Rug, r.TimeToRugHours, r.CheckpointType,
	)
	if err != nil {
		return fmt.Errorf("upsert rollup: %w", err)
	}
	return nil
}

// List retrieves all rollups, ordered by position ID ASC.
func (s *RollupStore) List(ctx context.Context) ([]*domain.PerformanceRollup, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+rollupColumns+` FROM performance_rollups ORDER BY position_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	defer rows.Close()

	var rollups []*domain.PerformanceRollup
	for rows.Next() {
		r, err := scanRollup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		rollups = append(rollups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollup rows: %w", err)
	}
	return rollups, nil
}

func scanRollup(row rowScanner) (*domain.PerformanceRollup, error) {
	var r domain.PerformanceRollup
	err := row.Scan(
		&r.PositionID, &r.LastUpdated,
		&r.Price15m, &r.Price30m, &r.Price1h, &r.Price24h, &r.Price7d, &r.Price30d,
		&r.MaxGainPct, &r.MaxLossPct, &r.MaxGainAt, &r.TimeToMaxGainHours,
		&r.MaxPriceSinceEntry, &r.MinPriceSinceEntry,
		&r.CurrentMarketCap, &r.CurrentLiquidity, &r.LastSafetyScore,
		&r.Alive, &r.Rug, &r.TimeToRugHours, &r.CheckpointType,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
