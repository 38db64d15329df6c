package memory

import (
	"context"
	"sort"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// SourceStatsStore is an in-memory implementation of storage.SourceStatsStore.
type SourceStatsStore struct {
	b *binding
}

var _ storage.SourceStatsStore = (*SourceStatsStore)(nil)

// Upsert inserts or replaces stats for a source.
func (s *SourceStatsStore) Upsert(_ context.Context, st *domain.SourceStats) error {
	if st == nil || st.Source == "" {
		return storage.ErrInvalidInput
	}

	return s.b.do(func(d *dataset) error {
		copy := *st
		d.sourceStats[st.Source] = &copy
		return nil
	})
}

// Get retrieves stats for a source.
func (s *SourceStatsStore) Get(_ context.Context, source string) (*domain.SourceStats, error) {
	var out *domain.SourceStats
	err := s.b.do(func(d *dataset) error {
		st, ok := d.sourceStats[source]
		if !ok {
			return storage.ErrNotFound
		}
		copy := *st
		out = &copy
		return nil
	})
	return out, err
}

// List retrieves all stats ordered by source name.
func (s *SourceStatsStore) List(_ context.Context) ([]*domain.SourceStats, error) {
	var out []*domain.SourceStats
	err := s.b.do(func(d *dataset) error {
		for _, st := range d.sourceStats {
			copy := *st
			out = append(out, &copy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}
