package provider

import (
	"context"
	"errors"
	"net/url"
	"time"

	"token-call-tracker/internal/domain"
)

// Birdeye is the primary market data provider. It needs an API key.
type Birdeye struct {
	http    *HTTPClient
	baseURL string
	apiKey  string
	clock   func() time.Time
}

// NewBirdeye creates a Birdeye adapter. An empty apiKey makes every fetch
// fail with CONFIGURATION_FAILURE without a network call.
func NewBirdeye(client *HTTPClient, baseURL, apiKey string) *Birdeye {
	return &Birdeye{http: client, baseURL: baseURL, apiKey: apiKey, clock: time.Now}
}

// Compile-time interface check.
var _ MarketProvider = (*Birdeye)(nil)

// Name implements MarketProvider.
func (b *Birdeye) Name() string { return NameBirdeye }

// Configured reports whether an API key is set.
func (b *Birdeye) Configured() bool { return b.apiKey != "" }

type birdeyeResponse struct {
	Success bool             `json:"success"`
	Data    *birdeyeOverview `json:"data"`
}

type birdeyeOverview struct {
	Price     *float64 `json:"price"`
	Liquidity *float64 `json:"liquidity"`
	Volume24h *float64 `json:"v24hUSD"`
	MarketCap *float64 `json:"marketCap"`
	FDV       *float64 `json:"fdv"`
	Holder    *int64   `json:"holder"`
	Symbol    string   `json:"symbol"`
}

// FetchMarket implements MarketProvider.
func (b *Birdeye) FetchMarket(ctx context.Context, token domain.TokenKey) (*domain.MarketSnapshot, error) {
	if !b.Configured() {
		return nil, newError(NameBirdeye, ClassConfiguration, errors.New("api key not configured"))
	}
	chain, err := chainConfig(NameBirdeye, token.Chain)
	if err != nil {
		return nil, err
	}

	endpoint := b.baseURL + "/defi/token_overview?address=" + url.QueryEscape(token.Address)
	headers := map[string]string{
		"X-API-KEY": b.apiKey,
		"x-chain":   chain.BirdeyeChain,
	}

	var resp birdeyeResponse
	if err := b.http.getJSON(ctx, NameBirdeye, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	if !resp.Success || resp.Data == nil {
		return nil, NoData(NameBirdeye, true, errors.New("token not found"))
	}
	d := resp.Data
	if d.Price == nil {
		return nil, NoData(NameBirdeye, false, errors.New("no price"))
	}

	snap := &domain.MarketSnapshot{
		Token:       token,
		Provider:    NameBirdeye,
		Price:       *d.Price,
		HolderCount: d.Holder,
		Symbol:      d.Symbol,
		FetchedAt:   b.clock().UnixMilli(),
	}
	if d.Liquidity != nil {
		snap.Liquidity = *d.Liquidity
	}
	if d.Volume24h != nil {
		snap.Volume24h = *d.Volume24h
	}
	switch {
	case d.MarketCap != nil:
		snap.MarketCap = *d.MarketCap
	case d.FDV != nil:
		snap.MarketCap = *d.FDV
	}
	return snap, nil
}
