package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// RollupStore implements storage.RollupStore using PostgreSQL.
type RollupStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.RollupStore = (*RollupStore)(nil)

const rollupColumns = `
	position_id, last_updated,
	price_15m, price_30m, price_1h, price_24h, price_7d, price_30d,
	max_gain_pct, max_loss_pct, max_gain_at, time_to_max_gain_hours,
	max_price_since_entry, min_price_since_entry,
	current_market_cap, current_liquidity, last_safety_score,
	alive, rug, time_to_rug_hours, checkpoint_type`

// gainImproves is true when the incoming max gain beats the stored one.
const gainImproves = `EXCLUDED.max_gain_pct IS NOT NULL AND (cur.max_gain_pct IS NULL OR EXCLUDED.max_gain_pct > cur.max_gain_pct)`

// newerFirst prefers the value of the more recently updated side and falls
// back to the other when it is NULL.
func newerFirst(col string) string {
	return `CASE WHEN EXCLUDED.last_updated >= cur.last_updated
				THEN COALESCE(EXCLUDED.` + col + `, cur.` + col + `)
				ELSE COALESCE(cur.` + col + `, EXCLUDED.` + col + `) END`
}

// Get retrieves the rollup for a position.
func (s *RollupStore) Get(ctx context.Context, positionID int64) (*domain.PerformanceRollup, error) {
	query := `SELECT ` + rollupColumns + ` FROM performance_rollups WHERE position_id = $1`

	r, err := scanRollup(s.q.QueryRow(ctx, query, positionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get rollup: %w", err)
	}
	return r, nil
}

// Upsert inserts the rollup for a position or merges it into the stored
// row. Transactions run under READ COMMITTED, so a writer may have merged
// against a stale read; the SQL merge keeps the stored row from regressing:
// horizon prices and time to rug keep the first value, extremes take
// GREATEST/LEAST, rug is ORed, and current values follow the newer side.
func (s *RollupStore) Upsert(ctx context.Context, r *domain.PerformanceRollup) error {
	if r == nil || r.PositionID == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO performance_rollups AS cur (` + rollupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (position_id) DO UPDATE SET
			last_updated = GREATEST(cur.last_updated, EXCLUDED.last_updated),
			price_15m = COALESCE(cur.price_15m, EXCLUDED.price_15m),
			price_30m = COALESCE(cur.price_30m, EXCLUDED.price_30m),
			price_1h = COALESCE(cur.price_1h, EXCLUDED.price_1h),
			price_24h = COALESCE(cur.price_24h, EXCLUDED.price_24h),
			price_7d = COALESCE(cur.price_7d, EXCLUDED.price_7d),
			price_30d = COALESCE(cur.price_30d, EXCLUDED.price_30d),
			max_gain_pct = GREATEST(cur.max_gain_pct, EXCLUDED.max_gain_pct),
			max_gain_at = CASE WHEN ` + gainImproves + ` THEN EXCLUDED.max_gain_at ELSE cur.max_gain_at END,
			time_to_max_gain_hours = CASE WHEN ` + gainImproves + ` THEN EXCLUDED.time_to_max_gain_hours ELSE cur.time_to_max_gain_hours END,
			max_loss_pct = LEAST(cur.max_loss_pct, EXCLUDED.max_loss_pct),
			max_price_since_entry = GREATEST(cur.max_price_since_entry, EXCLUDED.max_price_since_entry),
			min_price_since_entry = LEAST(cur.min_price_since_entry, EXCLUDED.min_price_since_entry),
			current_market_cap = ` + newerFirst("current_market_cap") + `,
			current_liquidity = ` + newerFirst("current_liquidity") + `,
			last_safety_score = ` + newerFirst("last_safety_score") + `,
			alive = ` + newerFirst("alive") + `,
			rug = cur.rug OR EXCLUDED.rug,
			time_to_rug_hours = COALESCE(cur.time_to_rug_hours, EXCLUDED.time_to_rug_hours),
			checkpoint_type = CASE WHEN EXCLUDED.last_updated >= cur.last_updated
				THEN COALESCE(NULLIF(EXCLUDED.checkpoint_type, ''), cur.checkpoint_type)
				ELSE COALESCE(NULLIF(cur.checkpoint_type, ''), EXCLUDED.checkpoint_type) END
	`

	_, err := s.q.Exec(ctx, query,
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
	query := `SELECT ` + rollupColumns + ` FROM performance_rollups ORDER BY position_id ASC`

	rows, err := s.q.Query(ctx, query)
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

func scanRollup(row pgx.Row) (*domain.PerformanceRollup, error) {
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
