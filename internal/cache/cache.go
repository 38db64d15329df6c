// Package cache is the process-wide response cache shared by fetch workers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"

	"token-call-tracker/internal/domain"
)

// DefaultTTL is how long a cached response is served.
const DefaultTTL = 60 * time.Second

// entry is the stored envelope. FetchedAt is judged against the cache clock,
// not bigcache's own life window, so tests can move time.
type entry struct {
	FetchedAt int64           `json:"fetched_at"` // ms
	Payload   json.RawMessage `json:"payload"`
}

// Cache maps (provider, chain, token) to a JSON-encoded response.
// Safe for concurrent use.
type Cache struct {
	store *bigcache.BigCache
	ttl   time.Duration
	clock func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for freshness checks.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// New creates a cache whose entries are fresh for ttl.
func New(ctx context.Context, ttl time.Duration, opts ...Option) (*Cache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}

	cfg := bigcache.DefaultConfig(ttl)
	// Expired entries are also dropped on read, so a coarse cleaner is enough.
	cfg.CleanWindow = ttl
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10_000
	cfg.MaxEntrySize = 1024
	cfg.HardMaxCacheSize = 64 // MB
	cfg.Verbose = false

	store, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create bigcache: %w", err)
	}

	c := &Cache{
		store: store,
		ttl:   ttl,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key builds the cache key for a provider and token. EVM addresses are
// case-insensitive; Solana addresses are not.
func Key(provider string, token domain.TokenKey) string {
	return strings.Join([]string{provider, string(token.Chain), token.Normalized()}, "|")
}

// Get decodes a fresh entry into dst and returns its fetch time.
// A stale or undecodable entry is removed and reported as a miss.
func (c *Cache) Get(key string, dst any) (time.Time, bool) {
	raw, err := c.store.Get(key)
	if err != nil {
		return time.Time{}, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		_ = c.store.Delete(key)
		return time.Time{}, false
	}

	fetchedAt := time.UnixMilli(e.FetchedAt)
	if c.clock().Sub(fetchedAt) >= c.ttl {
		_ = c.store.Delete(key)
		return time.Time{}, false
	}

	if err := json.Unmarshal(e.Payload, dst); err != nil {
		_ = c.store.Delete(key)
		return time.Time{}, false
	}
	return fetchedAt, true
}

// Set stores value under key, stamped with the current clock time.
func (c *Cache) Set(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}

	raw, err := json.Marshal(entry{FetchedAt: c.clock().UnixMilli(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := c.store.Set(key, raw); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(key string) error {
	err := c.store.Delete(key)
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Close stops the background cleaner.
func (c *Cache) Close() error {
	return c.store.Close()
}
