package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"token-call-tracker/internal/domain"
)

// Provider names, also used as cache key prefixes and metric labels.
const (
	NameBirdeye     = "birdeye"
	NameDexScreener = "dexscreener"
	NameGoPlus      = "goplus"
)

// MarketProvider returns a normalized market snapshot for a token.
type MarketProvider interface {
	Name() string
	FetchMarket(ctx context.Context, token domain.TokenKey) (*domain.MarketSnapshot, error)
}

// SecurityProvider returns contract security signals for a token.
type SecurityProvider interface {
	Name() string
	FetchSecurity(ctx context.Context, token domain.TokenKey) (*domain.SecuritySignals, error)
}

// chainConfig resolves per-chain provider identifiers.
func chainConfig(provider string, chain domain.Chain) (domain.ChainConfig, error) {
	cfg, ok := domain.LookupChain(chain)
	if !ok {
		return domain.ChainConfig{}, newError(provider, ClassConfiguration, fmt.Errorf("unsupported chain %q", chain))
	}
	return cfg, nil
}

// decimalString parses a provider decimal string. Empty means absent.
func decimalString(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// floatString parses a provider decimal string into a float. Empty means absent.
func floatString(s string) (*float64, error) {
	d, err := decimalString(s)
	if err != nil || d == nil {
		return nil, err
	}
	f := d.InexactFloat64()
	return &f, nil
}
