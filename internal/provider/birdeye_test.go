package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-call-tracker/internal/domain"
)

const (
	testSolanaMint = "So11111111111111111111111111111111111111112"
	testEVMToken   = "0xA0b86a33E6441E6C7D3D4B4f47E5F7e8c9D0E1F2"
)

func solanaToken() domain.TokenKey {
	return domain.TokenKey{Chain: domain.ChainSolana, Address: testSolanaMint}
}

func TestBirdeye_FetchMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/defi/token_overview", r.URL.Path)
		assert.Equal(t, testSolanaMint, r.URL.Query().Get("address"))
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "solana", r.Header.Get("x-chain"))
		w.Write([]byte(`{"success": true, "data": {
			"price": 0.0123, "liquidity": 150000, "v24hUSD": 30000,
			"marketCap": 1200000, "holder": 4200, "symbol": "TEST"}}`))
	}))
	defer server.Close()

	b := NewBirdeye(newTestClient(), server.URL, "secret")
	snap, err := b.FetchMarket(context.Background(), solanaToken())
	require.NoError(t, err)

	assert.Equal(t, NameBirdeye, snap.Provider)
	assert.InDelta(t, 0.0123, snap.Price, 1e-12)
	assert.Equal(t, 150000.0, snap.Liquidity)
	assert.Nil(t, snap.TotalLiquidity)
	assert.Equal(t, 30000.0, snap.Volume24h)
	assert.Equal(t, 1200000.0, snap.MarketCap)
	require.NotNil(t, snap.HolderCount)
	assert.Equal(t, int64(4200), *snap.HolderCount)
	assert.Equal(t, "TEST", snap.Symbol)
	assert.NotZero(t, snap.FetchedAt)
}

func TestBirdeye_MarketCapFallsBackToFDV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"price": 1, "liquidity": 10, "fdv": 555}}`))
	}))
	defer server.Close()

	snap, err := NewBirdeye(newTestClient(), server.URL, "k").FetchMarket(context.Background(), solanaToken())
	require.NoError(t, err)
	assert.Equal(t, 555.0, snap.MarketCap)
}

func TestBirdeye_MissingKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	b := NewBirdeye(newTestClient(), server.URL, "")
	assert.False(t, b.Configured())

	_, err := b.FetchMarket(context.Background(), solanaToken())
	require.Error(t, err)
	assert.Equal(t, ClassConfiguration, ClassOf(err))
	assert.Equal(t, int32(0), calls.Load(), "no request without a key")
}

func TestBirdeye_NoData(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		delisted bool
	}{
		{"unsuccessful", `{"success": false, "data": null}`, true},
		{"null data", `{"success": true, "data": null}`, true},
		{"no price", `{"success": true, "data": {"liquidity": 5}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewBirdeye(newTestClient(), server.URL, "k").FetchMarket(context.Background(), solanaToken())
			require.Error(t, err)
			assert.Equal(t, ClassNoData, ClassOf(err))
			assert.Equal(t, tt.delisted, IsDelisted(err))
		})
	}
}

func TestBirdeye_UnsupportedChain(t *testing.T) {
	b := NewBirdeye(newTestClient(), "http://unused", "k")
	_, err := b.FetchMarket(context.Background(), domain.TokenKey{Chain: "dogechain", Address: "x"})
	require.Error(t, err)
	assert.Equal(t, ClassConfiguration, ClassOf(err))
}
