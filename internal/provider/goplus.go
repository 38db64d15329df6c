package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"token-call-tracker/internal/domain"
)

// GoPlus is the keyless contract security provider.
type GoPlus struct {
	http    *HTTPClient
	baseURL string
}

// NewGoPlus creates a GoPlus adapter.
func NewGoPlus(client *HTTPClient, baseURL string) *GoPlus {
	return &GoPlus{http: client, baseURL: baseURL}
}

// Compile-time interface check.
var _ SecurityProvider = (*GoPlus)(nil)

// Name implements SecurityProvider.
func (g *GoPlus) Name() string { return NameGoPlus }

type goPlusResponse struct {
	Code    int                        `json:"code"`
	Message string                     `json:"message"`
	Result  map[string]json.RawMessage `json:"result"`
}

type goPlusHolder struct {
	Address string `json:"address"`
	Account string `json:"account"` // solana endpoint
	Percent string `json:"percent"`
}

type goPlusStatus struct {
	Status string `json:"status"`
}

type goPlusSolana struct {
	Mintable  *goPlusStatus  `json:"mintable"`
	Freezable *goPlusStatus  `json:"freezable"`
	Holders   []goPlusHolder `json:"holders"`
}

type goPlusEVM struct {
	IsMintable       string         `json:"is_mintable"`
	TransferPausable string         `json:"transfer_pausable"`
	IsBlacklisted    string         `json:"is_blacklisted"`
	IsHoneypot       string         `json:"is_honeypot"`
	BuyTax           string         `json:"buy_tax"`
	SellTax          string         `json:"sell_tax"`
	HolderCount      string         `json:"holder_count"`
	Holders          []goPlusHolder `json:"holders"`
}

// FetchSecurity implements SecurityProvider.
func (g *GoPlus) FetchSecurity(ctx context.Context, token domain.TokenKey) (*domain.SecuritySignals, error) {
	chain, err := chainConfig(NameGoPlus, token.Chain)
	if err != nil {
		return nil, err
	}

	var endpoint string
	if token.Chain == domain.ChainSolana {
		endpoint = g.baseURL + "/api/v1/solana/token_security"
	} else {
		endpoint = g.baseURL + "/api/v1/token_security/" + chain.GoPlusChainID
	}
	endpoint += "?contract_addresses=" + url.QueryEscape(token.Address)

	var resp goPlusResponse
	if err := g.http.getJSON(ctx, NameGoPlus, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	raw, ok := resp.Result[token.Address]
	if !ok {
		raw, ok = resp.Result[strings.ToLower(token.Address)]
	}
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, NoData(NameGoPlus, false, errors.New("empty security result"))
	}

	if token.Chain == domain.ChainSolana {
		return parseGoPlusSolana(raw)
	}
	return parseGoPlusEVM(raw)
}

func parseGoPlusSolana(raw json.RawMessage) (*domain.SecuritySignals, error) {
	var data goPlusSolana
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, newError(NameGoPlus, ClassMalformed, fmt.Errorf("decode solana security: %w", err))
	}

	sig := &domain.SecuritySignals{}
	if data.Mintable != nil && data.Mintable.Status != "" {
		sig.MintRevoked = boolPtr(data.Mintable.Status == "0")
	}
	if data.Freezable != nil && data.Freezable.Status != "" {
		sig.FreezeRevoked = boolPtr(data.Freezable.Status == "0")
	}
	if err := applyHolders(sig, data.Holders); err != nil {
		return nil, err
	}
	return sig, nil
}

func parseGoPlusEVM(raw json.RawMessage) (*domain.SecuritySignals, error) {
	var data goPlusEVM
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, newError(NameGoPlus, ClassMalformed, fmt.Errorf("decode evm security: %w", err))
	}

	sig := &domain.SecuritySignals{}
	if data.IsMintable != "" {
		sig.MintRevoked = boolPtr(data.IsMintable == "0")
	}
	// Pausable transfers or a blacklist give the owner a freeze.
	if data.TransferPausable != "" || data.IsBlacklisted != "" {
		active := data.TransferPausable == "1" || data.IsBlacklisted == "1"
		sig.FreezeRevoked = boolPtr(!active)
	}
	if data.IsHoneypot != "" {
		sig.IsHoneypot = boolPtr(data.IsHoneypot == "1")
	}

	var err error
	if sig.BuyTax, err = taxPercent(data.BuyTax); err != nil {
		return nil, err
	}
	if sig.SellTax, err = taxPercent(data.SellTax); err != nil {
		return nil, err
	}
	if data.HolderCount != "" {
		n, err := strconv.ParseInt(data.HolderCount, 10, 64)
		if err != nil {
			return nil, newError(NameGoPlus, ClassMalformed, fmt.Errorf("parse holder_count %q: %w", data.HolderCount, err))
		}
		sig.HolderCount = &n
	}
	if err := applyHolders(sig, data.Holders); err != nil {
		return nil, err
	}
	return sig, nil
}

// taxPercent converts a fractional tax ("0.05") to percent (5).
func taxPercent(s string) (*float64, error) {
	d, err := decimalString(s)
	if err != nil {
		return nil, newError(NameGoPlus, ClassMalformed, fmt.Errorf("parse tax %q: %w", s, err))
	}
	if d == nil {
		return nil, nil
	}
	pct := d.Mul(decimal.NewFromInt(100)).InexactFloat64()
	return &pct, nil
}

// applyHolders fills TopHolders, TopHolderPct and Top10Pct. Holders are
// sorted by percent descending; an empty list leaves the fields nil.
func applyHolders(sig *domain.SecuritySignals, holders []goPlusHolder) error {
	if len(holders) == 0 {
		return nil
	}

	parsed := make([]domain.Holder, 0, len(holders))
	for _, h := range holders {
		pct, err := decimalString(h.Percent)
		if err != nil {
			return newError(NameGoPlus, ClassMalformed, fmt.Errorf("parse holder percent %q: %w", h.Percent, err))
		}
		if pct == nil {
			continue
		}
		addr := h.Address
		if addr == "" {
			addr = h.Account
		}
		parsed = append(parsed, domain.Holder{Address: addr, Percent: pct.InexactFloat64()})
	}
	if len(parsed) == 0 {
		return nil
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].Percent > parsed[j].Percent
	})

	top10 := decimal.Zero
	for i, h := range parsed {
		if i == 10 {
			break
		}
		top10 = top10.Add(decimal.NewFromFloat(h.Percent))
	}

	sig.TopHolders = parsed
	sig.TopHolderPct = &parsed[0].Percent
	t := top10.InexactFloat64()
	sig.Top10Pct = &t
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
