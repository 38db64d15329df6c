package storage

import (
	"context"

	"token-call-tracker/internal/domain"
)

// PositionFilter selects open positions for a batch run.
type PositionFilter struct {
	// Limit keeps only the N most recently created positions. Zero means all.
	Limit int
	// MinAgeHours excludes positions created less than this many hours before NowMs.
	MinAgeHours float64
	// NowMs is the reference time for MinAgeHours (ms).
	NowMs int64
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new position and assigns its ID.
	// Returns ErrDuplicateKey if (chain, address) exists.
	Insert(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Position, error)

	// ListOpen retrieves WATCH positions and TRADE positions without an exit,
	// ordered by creation time DESC, then ID DESC.
	ListOpen(ctx context.Context, filter PositionFilter) ([]*domain.Position, error)

	// ListBySource retrieves every position attributed to source, whatever its state.
	// Matching is exact on each comma-separated element of the source field.
	ListBySource(ctx context.Context, source string) ([]*domain.Position, error)

	// UpdateDecision persists a decision transition. Returns ErrNotFound if not exists.
	UpdateDecision(ctx context.Context, p *domain.Position) error
}

// HistoryStore provides access to performance_history storage.
type HistoryStore interface {
	// Insert appends an entry and assigns its ID.
	// Returns ErrOutOfOrder if its timestamp is not after the latest entry for the position.
	Insert(ctx context.Context, e *domain.PerformanceHistoryEntry) error

	// GetLatest retrieves the most recent entry for a position. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, positionID int64) (*domain.PerformanceHistoryEntry, error)

	// GetByPosition retrieves all entries for a position, ordered by timestamp ASC.
	GetByPosition(ctx context.Context, positionID int64) ([]*domain.PerformanceHistoryEntry, error)
}

// RollupStore provides access to performance_rollups storage.
type RollupStore interface {
	// Get retrieves the rollup for a position. Returns ErrNotFound if not exists.
	Get(ctx context.Context, positionID int64) (*domain.PerformanceRollup, error)

	// Upsert inserts or replaces the rollup for a position.
	// Callers merge with the stored row first. Stores whose transactions can
	// interleave (postgres) also merge in the write, so a stale merge never
	// clears a horizon price, an extreme or the rug flag.
	Upsert(ctx context.Context, r *domain.PerformanceRollup) error

	// List retrieves all rollups, ordered by position ID ASC.
	List(ctx context.Context) ([]*domain.PerformanceRollup, error)
}

// SourceStatsStore provides access to source_stats storage.
type SourceStatsStore interface {
	// Upsert inserts or replaces stats for a source.
	Upsert(ctx context.Context, s *domain.SourceStats) error

	// Get retrieves stats for a source. Returns ErrNotFound if not exists.
	Get(ctx context.Context, source string) (*domain.SourceStats, error)

	// List retrieves all source stats, ordered by source ASC.
	List(ctx context.Context) ([]*domain.SourceStats, error)
}

// WalletStore provides read access to tracked smart-money wallets.
type WalletStore interface {
	// List retrieves all tracked wallets.
	List(ctx context.Context) ([]*domain.TrackedWallet, error)
}

// DeadLetterStore provides durable storage for dead-letter entries.
type DeadLetterStore interface {
	// Put inserts an entry or replaces the one with the same ID.
	Put(ctx context.Context, e *domain.DeadLetterEntry) error

	// List retrieves all entries, ordered by timestamp ASC.
	List(ctx context.Context) ([]*domain.DeadLetterEntry, error)

	// Delete removes an entry. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id string) error

	// Clear removes all entries and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}

// HistoryArchive receives committed history rows for analytics.
type HistoryArchive interface {
	// InsertBulk appends entries. Entries are expected to carry storage IDs.
	InsertBulk(ctx context.Context, entries []*domain.PerformanceHistoryEntry) error
}

// Stores bundles the stores bound to one connection or transaction.
type Stores struct {
	Positions   PositionStore
	History     HistoryStore
	Rollups     RollupStore
	SourceStats SourceStatsStore
	Wallets     WalletStore
	DeadLetters DeadLetterStore
}

// Repository owns the backing connection pool and hands out units of work.
type Repository interface {
	// Stores returns stores that run each call on any pooled connection.
	Stores() Stores

	// InTx runs fn with stores bound to a single dedicated connection and
	// transaction. The transaction commits if fn returns nil and rolls back
	// otherwise. Concurrent InTx calls never share a transaction.
	InTx(ctx context.Context, fn func(Stores) error) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all connections.
	Close() error
}
