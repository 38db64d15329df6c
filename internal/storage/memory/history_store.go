package memory

import (
	"context"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	b *binding
}

var _ storage.HistoryStore = (*HistoryStore)(nil)

// Insert appends an entry. Timestamps must strictly increase per position.
func (s *HistoryStore) Insert(_ context.Context, e *domain.PerformanceHistoryEntry) error {
	if e == nil || e.PositionID == 0 {
		return storage.ErrInvalidInput
	}

	return s.b.do(func(d *dataset) error {
		entries := d.history[e.PositionID]
		if n := len(entries); n > 0 && entries[n-1].Timestamp >= e.Timestamp {
			return storage.ErrOutOfOrder
		}
		d.nextHistoryID++
		e.ID = d.nextHistoryID
		d.history[e.PositionID] = append(entries, copyEntry(e))
		return nil
	})
}

// GetLatest retrieves the most recent entry for a position.
func (s *HistoryStore) GetLatest(_ context.Context, positionID int64) (*domain.PerformanceHistoryEntry, error) {
	var out *domain.PerformanceHistoryEntry
	err := s.b.do(func(d *dataset) error {
		entries := d.history[positionID]
		if len(entries) == 0 {
			return storage.ErrNotFound
		}
		out = copyEntry(entries[len(entries)-1])
		return nil
	})
	return out, err
}

// GetByPosition retrieves all entries for a position, oldest first.
func (s *HistoryStore) GetByPosition(_ context.Context, positionID int64) ([]*domain.PerformanceHistoryEntry, error) {
	var out []*domain.PerformanceHistoryEntry
	err := s.b.do(func(d *dataset) error {
		for _, e := range d.history[positionID] {
			out = append(out, copyEntry(e))
		}
		return nil
	})
	return out, err
}

func copyEntry(e *domain.PerformanceHistoryEntry) *domain.PerformanceHistoryEntry {
	c := *e
	c.RedFlags = append([]string(nil), e.RedFlags...)
	return &c
}
