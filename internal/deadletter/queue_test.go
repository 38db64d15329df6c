package deadletter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage/memory"
)

// tickClock advances one millisecond per call so entries are strictly ordered.
type tickClock struct {
	mu  sync.Mutex
	now int64
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return time.UnixMilli(c.now)
}

func evmToken(n int) domain.TokenKey {
	return domain.TokenKey{Chain: domain.ChainEthereum, Address: fmt.Sprintf("0x%040x", n)}
}

func TestQueue_RecordAndList(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewRepository().Stores().DeadLetters, WithClock((&tickClock{}).Now))

	e, err := q.Record(ctx, Failure{PositionID: 7, Token: evmToken(1), Class: "TRANSPORT_FAILURE", Reason: "timeout", RunID: "run-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 0, e.RetryCount)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].PositionID)
	assert.Equal(t, "TRANSPORT_FAILURE", entries[0].Class)
	assert.Equal(t, "timeout", entries[0].Reason)
	assert.Equal(t, "run-1", entries[0].RunID)
}

func TestQueue_RerecordBumpsRetryCount(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewRepository().Stores().DeadLetters, WithClock((&tickClock{}).Now))

	tok := evmToken(0xabcdef)
	first, err := q.Record(ctx, Failure{PositionID: 1, Token: tok, Class: "TRANSPORT_FAILURE", Reason: "timeout"})
	require.NoError(t, err)

	// Same token, checksum-cased address.
	upper := domain.TokenKey{Chain: tok.Chain, Address: "0x" + strings.ToUpper(tok.Address[2:])}
	second, err := q.Record(ctx, Failure{PositionID: 1, Token: upper, Class: "NO_DATA", Reason: "no pairs", RunID: "run-2"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.RetryCount)
	assert.Greater(t, second.Timestamp, first.Timestamp)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "NO_DATA", entries[0].Class)
	assert.Equal(t, "no pairs", entries[0].Reason)
	assert.Equal(t, 1, entries[0].RetryCount)
}

func TestQueue_SameAddressOtherChainIsSeparate(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewRepository().Stores().DeadLetters, WithClock((&tickClock{}).Now))

	tok := evmToken(1)
	_, err := q.Record(ctx, Failure{Token: tok, Class: "NO_DATA"})
	require.NoError(t, err)
	tok.Chain = domain.ChainBase
	_, err = q.Record(ctx, Failure{Token: tok, Class: "NO_DATA"})
	require.NoError(t, err)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestQueue_KeepsOnlyNewestEntries(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewRepository().Stores().DeadLetters, WithClock((&tickClock{}).Now))

	for i := 0; i < 1100; i++ {
		_, err := q.Record(ctx, Failure{PositionID: int64(i), Token: evmToken(i), Class: "TRANSPORT_FAILURE"})
		require.NoError(t, err)
	}

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, DefaultMaxEntries)
	assert.Equal(t, int64(100), entries[0].PositionID, "oldest 100 are dropped")
	assert.Equal(t, int64(1099), entries[len(entries)-1].PositionID)
}

func TestQueue_MaxEntriesOption(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewRepository().Stores().DeadLetters, WithClock((&tickClock{}).Now), WithMaxEntries(2))

	for i := 0; i < 3; i++ {
		_, err := q.Record(ctx, Failure{PositionID: int64(i), Token: evmToken(i)})
		require.NoError(t, err)
	}

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].PositionID)
}

func TestQueue_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewRepository().Stores().DeadLetters, WithClock((&tickClock{}).Now))

	a, err := q.Record(ctx, Failure{Token: evmToken(1)})
	require.NoError(t, err)
	_, err = q.Record(ctx, Failure{Token: evmToken(2)})
	require.NoError(t, err)
	_, err = q.Record(ctx, Failure{Token: evmToken(3)})
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, a.ID))
	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	n, err := q.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err = q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_ConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewFileStore(filepath.Join(t.TempDir(), "dead_letter.json")), WithClock((&tickClock{}).Now))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := q.Record(ctx, Failure{PositionID: int64(i), Token: evmToken(i % 10)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	retries := 0
	for _, e := range entries {
		retries += e.RetryCount
	}
	assert.Equal(t, 10, retries)
}
