package memory

import (
	"context"
	"sync"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// dataset holds all in-memory tables. It is never locked itself;
// callers go through a binding.
type dataset struct {
	positions      map[int64]*domain.Position
	nextPositionID int64
	history        map[int64][]*domain.PerformanceHistoryEntry // keyed by position_id, ordered by timestamp
	nextHistoryID  int64
	rollups        map[int64]*domain.PerformanceRollup
	sourceStats    map[string]*domain.SourceStats
	wallets        []*domain.TrackedWallet
	deadLetters    map[string]*domain.DeadLetterEntry
}

func newDataset() *dataset {
	return &dataset{
		positions:   make(map[int64]*domain.Position),
		history:     make(map[int64][]*domain.PerformanceHistoryEntry),
		rollups:     make(map[int64]*domain.PerformanceRollup),
		sourceStats: make(map[string]*domain.SourceStats),
		deadLetters: make(map[string]*domain.DeadLetterEntry),
	}
}

// clone copies the table maps. Stored records are immutable once placed
// in a map (writers replace them), so sharing record pointers is safe.
func (d *dataset) clone() *dataset {
	c := &dataset{
		positions:      make(map[int64]*domain.Position, len(d.positions)),
		nextPositionID: d.nextPositionID,
		history:        make(map[int64][]*domain.PerformanceHistoryEntry, len(d.history)),
		nextHistoryID:  d.nextHistoryID,
		rollups:        make(map[int64]*domain.PerformanceRollup, len(d.rollups)),
		sourceStats:    make(map[string]*domain.SourceStats, len(d.sourceStats)),
		wallets:        append([]*domain.TrackedWallet(nil), d.wallets...),
		deadLetters:    make(map[string]*domain.DeadLetterEntry, len(d.deadLetters)),
	}
	for k, v := range d.positions {
		c.positions[k] = v
	}
	for k, v := range d.history {
		c.history[k] = append([]*domain.PerformanceHistoryEntry(nil), v...)
	}
	for k, v := range d.rollups {
		c.rollups[k] = v
	}
	for k, v := range d.sourceStats {
		c.sourceStats[k] = v
	}
	for k, v := range d.deadLetters {
		c.deadLetters[k] = v
	}
	return c
}

// binding routes store calls either to the shared dataset (one lock per call)
// or to a transaction's private copy.
type binding struct {
	repo *Repository
	tx   *dataset
}

func (b *binding) do(fn func(d *dataset) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	return fn(b.repo.data)
}

// Repository is an in-memory implementation of storage.Repository.
// Transactions are serialized and run against a private copy that replaces
// the shared dataset on commit.
type Repository struct {
	mu   sync.Mutex
	data *dataset
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{data: newDataset()}
}

// Compile-time interface check.
var _ storage.Repository = (*Repository)(nil)

// Stores returns stores that lock the repository per call.
func (r *Repository) Stores() storage.Stores {
	return newStores(&binding{repo: r})
}

// InTx runs fn against a private copy and publishes it if fn succeeds.
// fn must only use the stores it is given.
func (r *Repository) InTx(ctx context.Context, fn func(storage.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.data.clone()
	if err := fn(newStores(&binding{repo: r, tx: tx})); err != nil {
		return err
	}
	r.data = tx
	return nil
}

// Ping always succeeds.
func (r *Repository) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (r *Repository) Close() error {
	return nil
}

// AddWallet registers a tracked wallet.
func (r *Repository) AddWallet(w *domain.TrackedWallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *w
	r.data.wallets = append(r.data.wallets, &c)
}

func newStores(b *binding) storage.Stores {
	return storage.Stores{
		Positions:   &PositionStore{b: b},
		History:     &HistoryStore{b: b},
		Rollups:     &RollupStore{b: b},
		SourceStats: &SourceStatsStore{b: b},
		Wallets:     &WalletStore{b: b},
		DeadLetters: &DeadLetterStore{b: b},
	}
}
