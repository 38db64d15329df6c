package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// HistoryStore implements storage.HistoryStore using PostgreSQL.
type HistoryStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

const historyColumns = `
	history_id, position_id, timestamp_ms, kind, decision, baseline_price, provider,
	price, liquidity, total_liquidity, market_cap,
	gain_loss_pct, price_change_pct, liquidity_change_pct, market_cap_change_pct,
	safety_score, red_flags, alive, rug`

// Insert appends an entry. The ordering check and the insert are a single
// statement, so two writers cannot both pass the check.
func (s *HistoryStore) Insert(ctx context.Context, e *domain.PerformanceHistoryEntry) error {
	if e == nil || e.PositionID == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO performance_history (
			position_id, timestamp_ms, kind, decision, baseline_price, provider,
			price, liquidity, total_liquidity, market_cap,
			gain_loss_pct, price_change_pct, liquidity_change_pct, market_cap_change_pct,
			safety_score, red_flags, alive, rug
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		WHERE NOT EXISTS (
			SELECT 1 FROM performance_history
			WHERE position_id = $1 AND timestamp_ms >= $2
		)
		RETURNING history_id
	`

	redFlags := e.RedFlags
	if redFlags == nil {
		redFlags = []string{}
	}

	err := s.q.QueryRow(ctx, query,
		e.PositionID, e.Timestamp, string(e.Kind), string(e.Decision), e.BaselinePrice, e.Provider,
		e.Price, e.Liquidity, e.TotalLiquidity, e.MarketCap,
		e.GainLossPct, e.PriceChangePct, e.LiquidityChangePct, e.MarketCapChangePct,
		e.SafetyScore, redFlags, e.Alive, e.Rug,
	).Scan(&e.ID)
	if err != nil {
		if isNotFoundError(err) || isDuplicateKeyError(err) {
			return storage.ErrOutOfOrder
		}
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent entry for a position.
func (s *HistoryStore) GetLatest(ctx context.Context, positionID int64) (*domain.PerformanceHistoryEntry, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM performance_history
		WHERE position_id = $1
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	e, err := scanHistoryEntry(s.q.QueryRow(ctx, query, positionID))
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
	query := `
		SELECT ` + historyColumns + `
		FROM performance_history
		WHERE position_id = $1
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.q.Query(ctx, query, positionID)
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

func scanHistoryEntry(row pgx.Row) (*domain.PerformanceHistoryEntry, error) {
	var e domain.PerformanceHistoryEntry
	var kind, decision string

	err := row.Scan(
		&e.ID, &e.PositionID, &e.Timestamp, &kind, &decision, &e.BaselinePrice, &e.Provider,
		&e.Price, &e.Liquidity, &e.TotalLiquidity, &e.MarketCap,
		&e.GainLossPct, &e.PriceChangePct, &e.LiquidityChangePct, &e.MarketCapChangePct,
		&e.SafetyScore, &e.RedFlags, &e.Alive, &e.Rug,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = domain.CheckpointKind(kind)
	e.Decision = domain.Decision(decision)
	if len(e.RedFlags) == 0 {
		e.RedFlags = nil
	}
	return &e, nil
}
