package domain

// Holder is a single top-holder entry reported by the security provider.
type Holder struct {
	Address string
	Percent float64
}

// SecuritySignals holds contract security data. Every field is optional:
// a nil value means the provider did not report it.
type SecuritySignals struct {
	MintRevoked   *bool
	FreezeRevoked *bool
	TopHolderPct  *float64
	Top10Pct      *float64
	HolderCount   *int64
	IsHoneypot    *bool
	BuyTax        *float64 // percent
	SellTax       *float64 // percent
	TopHolders    []Holder
}

// MarketSnapshot is market data for a token at a point in time.
type MarketSnapshot struct {
	Token          TokenKey
	Provider       string
	Price          float64
	Liquidity      float64  // main pool liquidity (USD)
	TotalLiquidity *float64 // sum across pools, when the provider reports pools
	MarketCap      float64
	Volume24h      float64
	HolderCount    *int64
	PairCreatedAt  *int64 // ms
	Symbol         string
	FetchedAt      int64 // ms
	Cached         bool  // served from the response cache

	Security *SecuritySignals // nil until the security fetch succeeds
}

// EffectiveLiquidity returns total liquidity when known, otherwise main pool liquidity.
func (s *MarketSnapshot) EffectiveLiquidity() float64 {
	if s.TotalLiquidity != nil {
		return *s.TotalLiquidity
	}
	return s.Liquidity
}

// AgeHours returns the token age in hours, derived from pair creation time.
func (s *MarketSnapshot) AgeHours(nowMs int64) (float64, bool) {
	if s.PairCreatedAt == nil || *s.PairCreatedAt <= 0 {
		return 0, false
	}
	return float64(nowMs-*s.PairCreatedAt) / float64(3600*1000), true
}
