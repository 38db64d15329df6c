package memory

import (
	"context"
	"sort"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// RollupStore is an in-memory implementation of storage.RollupStore.
type RollupStore struct {
	b *binding
}

var _ storage.RollupStore = (*RollupStore)(nil)

// Get retrieves the rollup for a position.
func (s *RollupStore) Get(_ context.Context, positionID int64) (*domain.PerformanceRollup, error) {
	var out *domain.PerformanceRollup
	err := s.b.do(func(d *dataset) error {
		r, ok := d.rollups[positionID]
		if !ok {
			return storage.ErrNotFound
		}
		copy := *r
		out = &copy
		return nil
	})
	return out, err
}

// Upsert inserts or replaces the rollup for a position.
func (s *RollupStore) Upsert(_ context.Context, r *domain.PerformanceRollup) error {
	if r == nil || r.PositionID == 0 {
		return storage.ErrInvalidInput
	}

	return s.b.do(func(d *dataset) error {
		copy := *r
		d.rollups[r.PositionID] = &copy
		return nil
	})
}

// List retrieves all rollups ordered by position ID.
func (s *RollupStore) List(_ context.Context) ([]*domain.PerformanceRollup, error) {
	var out []*domain.PerformanceRollup
	err := s.b.do(func(d *dataset) error {
		for _, r := range d.rollups {
			copy := *r
			out = append(out, &copy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out, nil
}
