package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"token-call-tracker/internal/domain"
)

// DexScreener is the keyless fallback market data provider.
type DexScreener struct {
	http    *HTTPClient
	baseURL string
	clock   func() time.Time
}

// NewDexScreener creates a DexScreener adapter.
func NewDexScreener(client *HTTPClient, baseURL string) *DexScreener {
	return &DexScreener{http: client, baseURL: baseURL, clock: time.Now}
}

// Compile-time interface check.
var _ MarketProvider = (*DexScreener)(nil)

// Name implements MarketProvider.
func (d *DexScreener) Name() string { return NameDexScreener }

type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	PriceUSD  string `json:"priceUsd"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	FDV           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
}

func (p *dexScreenerPair) liquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// FetchMarket implements MarketProvider. Pairs on other chains are ignored;
// the deepest pair is the main pair and liquidity is summed across pairs.
func (d *DexScreener) FetchMarket(ctx context.Context, token domain.TokenKey) (*domain.MarketSnapshot, error) {
	chain, err := chainConfig(NameDexScreener, token.Chain)
	if err != nil {
		return nil, err
	}

	endpoint := d.baseURL + "/latest/dex/tokens/" + url.PathEscape(token.Address)

	var resp dexScreenerResponse
	if err := d.http.getJSON(ctx, NameDexScreener, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	var pairs []dexScreenerPair
	for _, p := range resp.Pairs {
		if strings.EqualFold(p.ChainID, chain.DexScreenerChain) {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return nil, NoData(NameDexScreener, true, errors.New("no pairs on chain"))
	}

	main := pairs[0]
	total := 0.0
	for _, p := range pairs {
		total += p.liquidityUSD()
		if p.liquidityUSD() > main.liquidityUSD() {
			main = p
		}
	}

	price, err := floatString(main.PriceUSD)
	if err != nil {
		return nil, newError(NameDexScreener, ClassMalformed, fmt.Errorf("parse priceUsd %q: %w", main.PriceUSD, err))
	}
	if price == nil {
		return nil, NoData(NameDexScreener, false, errors.New("main pair has no price"))
	}

	snap := &domain.MarketSnapshot{
		Token:          token,
		Provider:       NameDexScreener,
		Price:          *price,
		Liquidity:      main.liquidityUSD(),
		TotalLiquidity: &total,
		MarketCap:      main.FDV,
		Volume24h:      main.Volume.H24,
		Symbol:         main.BaseToken.Symbol,
		FetchedAt:      d.clock().UnixMilli(),
	}
	if main.PairCreatedAt > 0 {
		created := main.PairCreatedAt
		snap.PairCreatedAt = &created
	}
	return snap, nil
}
