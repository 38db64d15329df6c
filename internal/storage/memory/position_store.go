package memory

import (
	"context"
	"sort"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	b *binding
}

var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position and assigns its ID.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.Token.Address == "" || !p.Decision.IsValid() {
		return storage.ErrInvalidInput
	}

	return s.b.do(func(d *dataset) error {
		for _, existing := range d.positions {
			if existing.Token.Chain == p.Token.Chain && existing.Token.Address == p.Token.Address {
				return storage.ErrDuplicateKey
			}
		}
		d.nextPositionID++
		p.ID = d.nextPositionID
		copy := *p
		d.positions[p.ID] = &copy
		return nil
	})
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(_ context.Context, id int64) (*domain.Position, error) {
	var out *domain.Position
	err := s.b.do(func(d *dataset) error {
		p, ok := d.positions[id]
		if !ok {
			return storage.ErrNotFound
		}
		copy := *p
		out = &copy
		return nil
	})
	return out, err
}

// ListOpen retrieves tracked positions, newest first.
func (s *PositionStore) ListOpen(_ context.Context, filter storage.PositionFilter) ([]*domain.Position, error) {
	var out []*domain.Position
	err := s.b.do(func(d *dataset) error {
		for _, p := range d.positions {
			if !p.IsTracked() {
				continue
			}
			if filter.MinAgeHours > 0 && p.AgeHours(filter.NowMs) < filter.MinAgeHours {
				continue
			}
			copy := *p
			out = append(out, &copy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListBySource retrieves every position attributed to source, ordered by ID ASC.
func (s *PositionStore) ListBySource(_ context.Context, source string) ([]*domain.Position, error) {
	var out []*domain.Position
	err := s.b.do(func(d *dataset) error {
		for _, p := range d.positions {
			if p.HasSource(source) {
				copy := *p
				out = append(out, &copy)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateDecision replaces decision-related fields of a stored position.
func (s *PositionStore) UpdateDecision(_ context.Context, p *domain.Position) error {
	if p == nil || !p.Decision.IsValid() {
		return storage.ErrInvalidInput
	}

	return s.b.do(func(d *dataset) error {
		existing, ok := d.positions[p.ID]
		if !ok {
			return storage.ErrNotFound
		}
		updated := *existing
		updated.Decision = p.Decision
		updated.EntryPrice = p.EntryPrice
		updated.EntryTime = p.EntryTime
		updated.ExitPrice = p.ExitPrice
		updated.UpdatedAt = p.UpdatedAt
		d.positions[p.ID] = &updated
		return nil
	})
}
