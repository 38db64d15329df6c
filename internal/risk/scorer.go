// Package risk computes the safety score and red flags for a token snapshot.
package risk

import (
	"strings"

	"token-call-tracker/internal/domain"
)

// Flag is a red flag raised by a scoring rule.
type Flag string

const (
	FlagLowLiquidity     Flag = "CRITICAL_LOW_LIQUIDITY"
	FlagMintActive       Flag = "CRITICAL_MINT_ACTIVE"
	FlagFreezeActive     Flag = "CRITICAL_FREEZE_ACTIVE"
	FlagWhaleConcentrate Flag = "HIGH_WHALE_CONCENTRATION"
	FlagNewToken         Flag = "MEDIUM_NEW_TOKEN"
	FlagLowActivity      Flag = "MEDIUM_LOW_ACTIVITY"
)

// Scoring thresholds.
const (
	MaxScore = 10.0

	LowLiquidityUSD    = 20_000.0
	DeepLiquidityUSD   = 100_000.0
	WhaleHolderPct     = 20.0
	NewTokenHours      = 0.5
	LowActivityRatio   = 0.05
	DeepLiquidityBonus = 0.5
)

// Input is everything a score depends on. Security may be nil.
type Input struct {
	Snapshot     *domain.MarketSnapshot
	Security     *domain.SecuritySignals
	SmartWallets int   // tracked wallets among the top holders
	NowMs        int64 // reference time for token age
}

// Result is a score with the rules that fired.
type Result struct {
	Score float64
	Flags []Flag
}

// FlagStrings returns the flags as plain strings for storage.
func (r Result) FlagStrings() []string {
	out := make([]string, len(r.Flags))
	for i, f := range r.Flags {
		out[i] = string(f)
	}
	return out
}

// rule is one deduction. applies returns ok=false when its input is missing,
// in which case the rule is skipped rather than treated as zero.
type rule struct {
	flag    Flag
	penalty float64
	applies func(in Input) (hit bool, ok bool)
}

var rules = []rule{
	{FlagLowLiquidity, 3.0, func(in Input) (bool, bool) {
		return in.Snapshot.EffectiveLiquidity() < LowLiquidityUSD, true
	}},
	{FlagMintActive, 3.0, func(in Input) (bool, bool) {
		if in.Security == nil || in.Security.MintRevoked == nil {
			return false, false
		}
		return !*in.Security.MintRevoked, true
	}},
	{FlagFreezeActive, 3.0, func(in Input) (bool, bool) {
		if in.Security == nil || in.Security.FreezeRevoked == nil {
			return false, false
		}
		return !*in.Security.FreezeRevoked, true
	}},
	{FlagWhaleConcentrate, 2.0, func(in Input) (bool, bool) {
		if in.Security == nil || in.Security.TopHolderPct == nil {
			return false, false
		}
		return *in.Security.TopHolderPct > WhaleHolderPct, true
	}},
	{FlagNewToken, 1.0, func(in Input) (bool, bool) {
		age, ok := in.Snapshot.AgeHours(in.NowMs)
		if !ok {
			return false, false
		}
		return age < NewTokenHours, true
	}},
	{FlagLowActivity, 1.0, func(in Input) (bool, bool) {
		liq := in.Snapshot.EffectiveLiquidity()
		if liq <= 0 {
			return false, false
		}
		return in.Snapshot.Volume24h/liq < LowActivityRatio, true
	}},
}

// Score computes the safety score in [0, 10] and the red flags.
//
// Deductions apply from 10 and never take the score below 0. A liquidity
// bonus and a smart-money bonus are then added, capped at 10.
func Score(in Input) Result {
	if in.Snapshot == nil {
		return Result{}
	}

	score := MaxScore
	var flags []Flag
	for _, r := range rules {
		hit, ok := r.applies(in)
		if !ok || !hit {
			continue
		}
		flags = append(flags, r.flag)
		score -= r.penalty
		if score < 0 {
			score = 0
		}
	}

	if in.Snapshot.EffectiveLiquidity() > DeepLiquidityUSD {
		score += DeepLiquidityBonus
	}
	score += SmartMoneyBonus(in.SmartWallets)
	if score > MaxScore {
		score = MaxScore
	}

	return Result{Score: score, Flags: flags}
}

// SmartMoneyBonus is +1 for one or two tracked wallets and +2 for three or more.
func SmartMoneyBonus(wallets int) float64 {
	switch {
	case wallets >= 3:
		return 2.0
	case wallets >= 1:
		return 1.0
	default:
		return 0
	}
}

// MatchSmartMoney returns the tracked wallets found among holders.
// Addresses compare case-insensitively.
func MatchSmartMoney(holders []domain.Holder, wallets []*domain.TrackedWallet) []*domain.TrackedWallet {
	if len(holders) == 0 || len(wallets) == 0 {
		return nil
	}

	held := make(map[string]struct{}, len(holders))
	for _, h := range holders {
		held[strings.ToLower(h.Address)] = struct{}{}
	}

	var out []*domain.TrackedWallet
	seen := make(map[string]struct{})
	for _, w := range wallets {
		addr := strings.ToLower(w.Address)
		if _, ok := held[addr]; !ok {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, w)
	}
	return out
}
