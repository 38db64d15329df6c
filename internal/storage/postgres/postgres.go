package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
// maxConns caps the pool size; zero keeps the pgxpool default.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// querier is satisfied by both the pool and a pgx.Tx, so stores can run
// on either.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements storage.Repository on a pgx pool.
type Repository struct {
	pool *Pool
}

// NewRepository creates a Repository over an open pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time interface check.
var _ storage.Repository = (*Repository)(nil)

// Stores returns stores that run each statement on any pooled connection.
func (r *Repository) Stores() storage.Stores {
	return newStores(r.pool)
}

// InTx acquires one connection, begins a transaction and runs fn on it.
func (r *Repository) InTx(ctx context.Context, fn func(storage.Stores) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "tx", time.Since(start).Seconds(), err)
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping verifies the pool can reach the server.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func newStores(q querier) storage.Stores {
	return storage.Stores{
		Positions:   &PositionStore{q: q},
		History:     &HistoryStore{q: q},
		Rollups:     &RollupStore{q: q},
		SourceStats: &SourceStatsStore{q: q},
		Wallets:     &WalletStore{q: q},
		DeadLetters: &DeadLetterStore{q: q},
	}
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
