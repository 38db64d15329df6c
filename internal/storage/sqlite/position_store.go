package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// PositionStore implements storage.PositionStore using SQLite.
type PositionStore struct {
	q dbtx
}

var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, chain, contract_address, symbol, source, decision,
	call_price, entry_price, entry_time, exit_price, created_at, updated_at`

// Insert adds a new position and assigns its ID.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Token.Address == "" || !p.Decision.IsValid() {
		return storage.ErrInvalidInput
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO positions (
			chain, contract_address, symbol, source, decision,
			call_price, entry_price, entry_time, exit_price, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.Token.Chain), p.Token.Address, p.Symbol, p.Source, string(p.Decision),
		p.CallPrice, p.EntryPrice, p.EntryTime, p.ExitPrice, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read position id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id int64) (*domain.Position, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE position_id = ?`, id)

	p, err := scanPosition(row)
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
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE (decision = 'WATCH' OR (decision = 'TRADE' AND (exit_price IS NULL OR exit_price = 0)))
		  AND (?1 <= 0 OR created_at <= ?2 - CAST(?1 * 3600000 AS INTEGER))
		ORDER BY created_at DESC, position_id DESC
		LIMIT ?3`,
		filter.MinAgeHours, filter.NowMs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListBySource retrieves every position attributed to source, ordered by ID ASC.
// The SQL prefilter is a substring match; exact element matching happens here.
func (s *PositionStore) ListBySource(ctx context.Context, source string) ([]*domain.Position, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE instr(source, ?) > 0
		ORDER BY position_id ASC`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("list positions by source: %w", err)
	}
	defer rows.Close()

	candidates, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}

	var out []*domain.Position
	for _, p := range candidates {
		if p.HasSource(source) {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpdateDecision persists a decision transition.
func (s *PositionStore) UpdateDecision(ctx context.Context, p *domain.Position) error {
	if p == nil || !p.Decision.IsValid() {
		return storage.ErrInvalidInput
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE positions
		SET decision = ?, entry_price = ?, entry_time = ?, exit_price = ?, updated_at = ?
		WHERE position_id = ?`,
		string(p.Decision), p.EntryPrice, p.EntryTime, p.ExitPrice, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update position decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update position decision: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
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

func scanPositions(rows *sql.Rows) ([]*domain.Position, error) {
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
