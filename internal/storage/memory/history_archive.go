package memory

import (
	"context"
	"sync"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// HistoryArchive is an in-memory implementation of storage.HistoryArchive.
// Entries with an already archived ID replace the earlier copy.
type HistoryArchive struct {
	mu      sync.Mutex
	entries map[int64]*domain.PerformanceHistoryEntry
}

// NewHistoryArchive creates an empty archive.
func NewHistoryArchive() *HistoryArchive {
	return &HistoryArchive{entries: make(map[int64]*domain.PerformanceHistoryEntry)}
}

var _ storage.HistoryArchive = (*HistoryArchive)(nil)

// InsertBulk archives entries. Entries without a storage ID are rejected.
func (a *HistoryArchive) InsertBulk(_ context.Context, entries []*domain.PerformanceHistoryEntry) error {
	for _, e := range entries {
		if e == nil || e.ID <= 0 {
			return storage.ErrInvalidInput
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range entries {
		a.entries[e.ID] = copyEntry(e)
	}
	return nil
}

// Len returns the number of archived entries.
func (a *HistoryArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
