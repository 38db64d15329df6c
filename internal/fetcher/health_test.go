package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/provider"
)

type unconfiguredMarket struct {
	*fakeMarket
}

func (unconfiguredMarket) Configured() bool { return false }

func TestProbe(t *testing.T) {
	h := newHarness(t)
	primary := unconfiguredMarket{okMarket(provider.NameBirdeye, 1)}
	fallback := okMarket(provider.NameDexScreener, 1)
	sec := &fakeSecurity{err: transportErr(provider.NameGoPlus)}
	f := h.fetcher(primary, fallback, sec)

	results, err := f.Probe(context.Background(), domain.ChainSolana)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, ProbeNotConfigured, results[0].Status)
	assert.Equal(t, int32(0), primary.calls.Load())
	assert.Equal(t, ProbeOK, results[1].Status)
	assert.Equal(t, ProbeFailed, results[2].Status)
	assert.Error(t, results[2].Err)
	assert.False(t, Healthy(results))

	assert.Equal(t, 0, h.cache.Len(), "probes bypass the cache")
}

func TestProbe_BypassesOpenBreaker(t *testing.T) {
	h := newHarness(t)
	primary := okMarket(provider.NameBirdeye, 1)
	f := h.fetcher(primary, nil, nil)

	for i := 0; i < 3; i++ {
		done, err := h.primary.Allow()
		require.NoError(t, err)
		done(false)
	}

	results, err := f.Probe(context.Background(), domain.ChainBase)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ProbeOK, results[0].Status)
	assert.True(t, Healthy(results))
}

func TestProbe_UnknownChain(t *testing.T) {
	h := newHarness(t)
	_, err := h.fetcher(nil, nil, nil).Probe(context.Background(), "nope")
	require.Error(t, err)
}
