package sqlite

import (
	"context"
	"fmt"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// SourceStatsStore implements storage.SourceStatsStore using SQLite.
type SourceStatsStore struct {
	q dbtx
}

var _ storage.SourceStatsStore = (*SourceStatsStore)(nil)

const sourceStatsColumns = `
	source, total_calls, calls_traded, win_rate, avg_max_gain,
	rug_rate, hit_rate, tier, last_updated`

// Upsert inserts or replaces stats for a source.
func (s *SourceStatsStore) Upsert(ctx context.Context, st *domain.SourceStats) error {
	if st == nil || st.Source == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO source_stats (`+sourceStatsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Source, st.TotalCalls, st.CallsTraded, st.WinRate, st.AvgMaxGain,
		st.RugRate, st.HitRate, st.Tier, st.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert source stats: %w", err)
	}
	return nil
}

// Get retrieves stats for a source.
func (s *SourceStatsStore) Get(ctx context.Context, source string) (*domain.SourceStats, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sourceStatsColumns+` FROM source_stats WHERE source = ?`, source)

	st, err := scanSourceStats(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get source stats: %w", err)
	}
	return st, nil
}

// List retrieves all source stats, ordered by source ASC.
func (s *SourceStatsStore) List(ctx context.Context) ([]*domain.SourceStats, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+sourceStatsColumns+` FROM source_stats ORDER BY source ASC`)
	if err != nil {
		return nil, fmt.Errorf("list source stats: %w", err)
	}
	defer rows.Close()

	var out []*domain.SourceStats
	for rows.Next() {
		st, err := scanSourceStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source stats row: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source stats rows: %w", err)
	}
	return out, nil
}

func scanSourceStats(row rowScanner) (*domain.SourceStats, error) {
	var st domain.SourceStats
	err := row.Scan(
		&st.Source, &st.TotalCalls, &st.CallsTraded, &st.WinRate, &st.AvgMaxGain,
		&st.RugRate, &st.HitRate, &st.Tier, &st.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
