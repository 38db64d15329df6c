package metrics

import (
	"token-call-tracker/internal/domain"
)

// DefaultHitThresholdPct is the max gain a call needs to count as a hit.
const DefaultHitThresholdPct = 50.0

// callRecord is a position joined with its rollup. Rollup may be nil for
// positions that have never been checkpointed.
type callRecord struct {
	position *domain.Position
	rollup   *domain.PerformanceRollup
}

// computeFromCalls calculates source stats from every call attributed to the source.
func computeFromCalls(source string, calls []callRecord, hitThresholdPct float64) *domain.SourceStats {
	stats := &domain.SourceStats{Source: source, Tier: domain.TierC}
	n := len(calls)
	if n == 0 {
		return stats
	}

	var (
		traded, exited, wins, rugs, hits int
		gains                            []float64
	)
	for _, c := range calls {
		p := c.position
		if isTraded(p) {
			traded++
			if p.ExitPrice != nil && *p.ExitPrice > 0 && p.EntryPrice != nil {
				exited++
				if *p.ExitPrice > *p.EntryPrice {
					wins++
				}
			}
		}

		if c.rollup == nil {
			continue
		}
		if c.rollup.Rug {
			rugs++
		}
		if g := c.rollup.MaxGainPct; g != nil {
			if *g > 0 {
				gains = append(gains, *g)
			}
			if *g >= hitThresholdPct {
				hits++
			}
		}
	}

	stats.TotalCalls = n
	stats.CallsTraded = traded
	stats.WinRate = computeWinRate(wins, exited)
	stats.AvgMaxGain = computeMean(gains)
	stats.RugRate = computeWinRate(rugs, n)
	stats.HitRate = computeWinRate(hits, n)
	stats.Tier = computeTier(stats)
	return stats
}

// isTraded reports whether the call was ever entered.
func isTraded(p *domain.Position) bool {
	switch p.Decision {
	case domain.DecisionTrade:
		return true
	case domain.DecisionClosed:
		return p.EntryPrice != nil
	}
	return false
}

// computeTier grades a source from its average gain, win rate and rug rate.
func computeTier(s *domain.SourceStats) string {
	switch {
	case s.AvgMaxGain > 5.0 && s.WinRate > 0.6 && s.RugRate < 0.1:
		return domain.TierS
	case s.AvgMaxGain > 3.0 && s.WinRate > 0.5 && s.RugRate < 0.2:
		return domain.TierA
	case s.AvgMaxGain > 1.5 && s.WinRate > 0.4:
		return domain.TierB
	default:
		return domain.TierC
	}
}

// computeWinRate calculates a ratio as part / total.
func computeWinRate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// computeMean calculates arithmetic mean of values.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
