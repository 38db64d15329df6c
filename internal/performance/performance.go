// Package performance resolves position baselines and evaluates price
// performance against them.
package performance

import (
	"github.com/shopspring/decimal"

	"token-call-tracker/internal/domain"
)

// Rug thresholds.
var (
	RugLiquidityUSD = decimal.NewFromInt(1000)
	// RugPriceRatio is the fraction of baseline at or below which a price counts as a rug.
	RugPriceRatio = decimal.NewFromFloat(0.01)
)

// MaxLossPct is the floor for a recorded loss.
const MaxLossPct = -100.0

var hundred = decimal.NewFromInt(100)

// Baseline returns the reference price for gain/loss. A TRADE position with
// an entry price is measured from entry; everything else from the call price.
// The result depends only on stored position state.
func Baseline(p *domain.Position) float64 {
	if p.Decision == domain.DecisionTrade && p.EntryPrice != nil && *p.EntryPrice > 0 {
		return *p.EntryPrice
	}
	return p.CallPrice
}

// HasBaseline reports whether p has a usable (positive) baseline.
func HasBaseline(p *domain.Position) bool {
	return Baseline(p) > 0
}

// IsRug reports whether a snapshot shows a rug pull against baseline:
// liquidity under $1,000 or price at or below 1% of baseline.
// Total liquidity across pools is used when the provider reports it.
func IsRug(snap *domain.MarketSnapshot, baseline float64) bool {
	if snap == nil {
		return false
	}
	liq := decimal.NewFromFloat(snap.EffectiveLiquidity())
	if liq.LessThan(RugLiquidityUSD) {
		return true
	}
	if baseline <= 0 {
		return false
	}
	floor := decimal.NewFromFloat(baseline).Mul(RugPriceRatio)
	return decimal.NewFromFloat(snap.Price).LessThanOrEqual(floor)
}

// GainLossPct returns (price - baseline) / baseline × 100.
// ok is false when baseline is not positive.
func GainLossPct(price, baseline float64) (float64, bool) {
	if baseline <= 0 {
		return 0, false
	}
	p := decimal.NewFromFloat(price)
	b := decimal.NewFromFloat(baseline)
	return p.Sub(b).Div(b).Mul(hundred).InexactFloat64(), true
}

// ChangePct returns the percent change from prev to cur.
// ok is false when prev is not positive.
func ChangePct(cur, prev float64) (float64, bool) {
	return GainLossPct(cur, prev)
}

// CapLoss clamps a loss percentage at -100.
func CapLoss(pct float64) float64 {
	if pct < MaxLossPct {
		return MaxLossPct
	}
	return pct
}
