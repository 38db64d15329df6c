package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, chain, contract_address, symbol, source, decision,
	call_price, entry_price, entry_time, exit_price, created_at, updated_at`

// Insert adds a new position. Returns ErrDuplicateKey if (chain, contract_address) exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Token.Address == "" || !p.Decision.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (
			chain, contract_address, symbol, source, decision,
			call_price, entry_price, entry_time, exit_price, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING position_id
	`

	err := s.q.QueryRow(ctx, query,
		string(p.Token.Chain), p.Token.Address, p.Symbol, p.Source, string(p.Decision),
		p.CallPrice, p.EntryPrice, p.EntryTime, p.ExitPrice, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id int64) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE position_id = $1`

	p, err := scanPosition(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// ListOpen retrieves WATCH and open TRADE positions, newest first.
func (s *PositionStore) ListOpen(ctx context.Context, filter storage.PositionFilter) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE (decision = 'WATCH' OR (decision = 'TRADE' AND (exit_price IS NULL OR exit_price = 0)))
		  AND ($1::double precision <= 0 OR created_at <= $2::bigint - ($1::double precision * 3600000)::bigint)
		ORDER BY created_at DESC, position_id DESC
	`
	args := []any{filter.MinAgeHours, filter.NowMs}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListBySource retrieves every position attributed to source, ordered by ID ASC.
func (s *PositionStore) ListBySource(ctx context.Context, source string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE EXISTS (
			SELECT 1 FROM unnest(string_to_array(source, ',')) AS s(name)
			WHERE btrim(s.name) = $1
		)
		ORDER BY position_id ASC
	`

	rows, err := s.q.Query(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("list positions by source: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// UpdateDecision persists a decision transition. Returns ErrNotFound if not exists.
func (s *PositionStore) UpdateDecision(ctx context.Context, p *domain.Position) error {
	if p == nil || !p.Decision.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE positions
		SET decision = $2, entry_price = $3, entry_time = $4, exit_price = $5, updated_at = $6
		WHERE position_id = $1
	`

	tag, err := s.q.Exec(ctx, query,
		p.ID, string(p.Decision), p.EntryPrice, p.EntryTime, p.ExitPrice, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var chain, decision string

	err := row.Scan(
		&p.ID, &chain, &p.Token.Address, &p.Symbol, &p.Source, &decision,
		&p.CallPrice, &p.EntryPrice, &p.EntryTime, &p.ExitPrice, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Token.Chain = domain.ParseChain(chain)
	p.Decision = domain.Decision(decision)
	return &p, nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
