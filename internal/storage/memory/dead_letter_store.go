package memory

import (
	"context"
	"sort"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// DeadLetterStore is an in-memory implementation of storage.DeadLetterStore.
type DeadLetterStore struct {
	b *binding
}

var _ storage.DeadLetterStore = (*DeadLetterStore)(nil)

// Put inserts or replaces an entry by ID.
func (s *DeadLetterStore) Put(_ context.Context, e *domain.DeadLetterEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	return s.b.do(func(d *dataset) error {
		copy := *e
		d.deadLetters[e.ID] = &copy
		return nil
	})
}

// List retrieves all entries, oldest first.
func (s *DeadLetterStore) List(_ context.Context) ([]*domain.DeadLetterEntry, error) {
	var out []*domain.DeadLetterEntry
	err := s.b.do(func(d *dataset) error {
		for _, e := range d.deadLetters {
			copy := *e
			out = append(out, &copy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes an entry by ID.
func (s *DeadLetterStore) Delete(_ context.Context, id string) error {
	return s.b.do(func(d *dataset) error {
		if _, ok := d.deadLetters[id]; !ok {
			return storage.ErrNotFound
		}
		delete(d.deadLetters, id)
		return nil
	})
}

// Clear removes all entries.
func (s *DeadLetterStore) Clear(_ context.Context) (int, error) {
	var n int
	err := s.b.do(func(d *dataset) error {
		n = len(d.deadLetters)
		d.deadLetters = make(map[string]*domain.DeadLetterEntry)
		return nil
	})
	return n, err
}
