// Package sqlite implements the storage interfaces on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/storage"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the database file at path.
// Transactions take the write lock up front and waiting writers retry for busyTimeoutMs.
func Open(ctx context.Context, path string, busyTimeoutMs int) (*sql.DB, error) {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on", path, busyTimeoutMs)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// Repository implements storage.Repository on a SQLite database.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Repository over an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Compile-time interface check.
var _ storage.Repository = (*Repository)(nil)

// Stores returns stores that run each statement on any pooled connection.
func (r *Repository) Stores() storage.Stores {
	return newStores(r.db)
}

// InTx runs fn in an immediate transaction on one connection.
func (r *Repository) InTx(ctx context.Context, fn func(storage.Stores) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("sqlite", "tx", time.Since(start).Seconds(), err)
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping verifies the database file is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func newStores(q dbtx) storage.Stores {
	return storage.Stores{
		Positions:   &PositionStore{q: q},
		History:     &HistoryStore{q: q},
		Rollups:     &RollupStore{q: q},
		SourceStats: &SourceStatsStore{q: q},
		Wallets:     &WalletStore{q: q},
		DeadLetters: &DeadLetterStore{q: q},
	}
}

// isDuplicateKeyError checks if error is a unique or primary key violation.
func isDuplicateKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func joinFlags(flags []string) string {
	return strings.Join(flags, ",")
}

func splitFlags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
