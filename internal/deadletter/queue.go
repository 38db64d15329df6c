// Package deadletter keeps a durable record of tokens whose update failed.
// The queue is diagnostic: nothing here retries on its own.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/storage"
)

// DefaultMaxEntries caps the queue; the oldest entries are dropped first.
const DefaultMaxEntries = 1000

// Failure describes a failed token update.
type Failure struct {
	PositionID int64
	Token      domain.TokenKey
	Class      string
	Reason     string
	RunID      string
}

// Queue records failures into a DeadLetterStore.
type Queue struct {
	store      storage.DeadLetterStore
	maxEntries int
	clock      func() time.Time
	newID      func() string

	// mu serializes read-modify-write cycles from concurrent workers.
	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxEntries sets the queue cap.
func WithMaxEntries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxEntries = n
		}
	}
}

// WithClock sets the time source for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) {
		q.clock = clock
	}
}

// NewQueue creates a queue over store.
func NewQueue(store storage.DeadLetterStore, opts ...Option) *Queue {
	q := &Queue{
		store:      store,
		maxEntries: DefaultMaxEntries,
		clock:      time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Record adds a failure. A token already in the queue is updated in place
// and its retry count incremented instead of gaining a second entry.
func (q *Queue) Record(ctx context.Context, f Failure) (*domain.DeadLetterEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	now := q.clock().UnixMilli()
	if existing := findToken(entries, f.Token); existing != nil {
		e := *existing
		e.PositionID = f.PositionID
		e.Class = f.Class
		e.Reason = f.Reason
		e.RunID = f.RunID
		e.Timestamp = now
		e.RetryCount++
		if err := q.store.Put(ctx, &e); err != nil {
			return nil, fmt.Errorf("update dead letter: %w", err)
		}
		observability.RecordDeadLetter(f.Class)
		observability.UpdateDeadLetterSize(len(entries))
		return &e, nil
	}

	e := &domain.DeadLetterEntry{
		ID:         q.newID(),
		PositionID: f.PositionID,
		Token:      f.Token,
		Class:      f.Class,
		Reason:     f.Reason,
		RunID:      f.RunID,
		Timestamp:  now,
	}
	if err := q.store.Put(ctx, e); err != nil {
		return nil, fmt.Errorf("put dead letter: %w", err)
	}

	observability.RecordDeadLetter(f.Class)

	entries = append(entries, e)
	if err := q.trim(ctx, entries); err != nil {
		return nil, err
	}
	observability.UpdateDeadLetterSize(min(len(entries), q.maxEntries))
	return e, nil
}

// trim drops the oldest entries above the cap.
func (q *Queue) trim(ctx context.Context, entries []*domain.DeadLetterEntry) error {
	excess := len(entries) - q.maxEntries
	if excess <= 0 {
		return nil
	}
	sortOldestFirst(entries)
	for _, e := range entries[:excess] {
		if err := q.store.Delete(ctx, e.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("trim dead letter %s: %w", e.ID, err)
		}
	}
	return nil
}

// List returns all entries, oldest first.
func (q *Queue) List(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	entries, err := q.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	sortOldestFirst(entries)
	return entries, nil
}

// Remove deletes one entry, typically after a successful replay.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove dead letter %s: %w", id, err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n, err := q.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear dead letters: %w", err)
	}
	observability.UpdateDeadLetterSize(0)
	return n, nil
}

func findToken(entries []*domain.DeadLetterEntry, token domain.TokenKey) *domain.DeadLetterEntry {
	for _, e := range entries {
		if e.Token.Chain == token.Chain && strings.EqualFold(e.Token.Normalized(), token.Normalized()) {
			return e
		}
	}
	return nil
}

func sortOldestFirst(entries []*domain.DeadLetterEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].ID < entries[j].ID
	})
}
