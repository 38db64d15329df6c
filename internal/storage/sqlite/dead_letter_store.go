package sqlite

import (
	"context"
	"fmt"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// DeadLetterStore implements storage.DeadLetterStore using SQLite.
type DeadLetterStore struct {
	q dbtx
}

var _ storage.DeadLetterStore = (*DeadLetterStore)(nil)

// Put inserts an entry or replaces the one with the same ID.
func (s *DeadLetterStore) Put(ctx context.Context, e *domain.DeadLetterEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO dead_letters (
			id, position_id, chain, contract_address, class, reason, run_id, timestamp_ms, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PositionID, string(e.Token.Chain), e.Token.Address,
		e.Class, e.Reason, e.RunID, e.Timestamp, e.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("put dead letter: %w", err)
	}
	return nil
}

// List retrieves all entries, ordered by timestamp ASC.
func (s *DeadLetterStore) List(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, position_id, chain, contract_address, class, reason, run_id, timestamp_ms, retry_count
		FROM dead_letters
		ORDER BY timestamp_ms ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*domain.DeadLetterEntry
	for rows.Next() {
		var e domain.DeadLetterEntry
		var chain string
		if err := rows.Scan(
			&e.ID, &e.PositionID, &chain, &e.Token.Address,
			&e.Class, &e.Reason, &e.RunID, &e.Timestamp, &e.RetryCount,
		); err != nil {
			return nil, fmt.Errorf("scan dead letter row: %w", err)
		}
		e.Token.Chain = domain.ParseChain(chain)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letter rows: %w", err)
	}
	return entries, nil
}

// Delete removes an entry.
func (s *DeadLetterStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Clear removes all entries.
func (s *DeadLetterStore) Clear(ctx context.Context) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM dead_letters`)
	if err != nil {
		return 0, fmt.Errorf("clear dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear dead letters: %w", err)
	}
	return int(n), nil
}
