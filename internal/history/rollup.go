package history

import "token-call-tracker/internal/domain"

// horizon pairs a checkpoint offset with its rollup field.
type horizon struct {
	offsetMs int64
	field    func(r *domain.PerformanceRollup) **float64
}

var horizons = []horizon{
	{domain.Horizon15m, func(r *domain.PerformanceRollup) **float64 { return &r.Price15m }},
	{domain.Horizon30m, func(r *domain.PerformanceRollup) **float64 { return &r.Price30m }},
	{domain.Horizon1h, func(r *domain.PerformanceRollup) **float64 { return &r.Price1h }},
	{domain.Horizon24h, func(r *domain.PerformanceRollup) **float64 { return &r.Price24h }},
	{domain.Horizon7d, func(r *domain.PerformanceRollup) **float64 { return &r.Price7d }},
	{domain.Horizon30d, func(r *domain.PerformanceRollup) **float64 { return &r.Price30d }},
}

// CheckpointType labels elapsed time since the call.
func CheckpointType(elapsedMs int64) string {
	switch {
	case elapsedMs >= domain.Horizon24h:
		return "24h"
	case elapsedMs >= domain.Horizon4h:
		return "4h"
	case elapsedMs >= domain.Horizon1h:
		return "1h"
	default:
		return "15m"
	}
}

// MergeRollup folds next into prev and returns the result. Neither input
// is modified. The merge never clears a field:
//   - horizon prices keep the first value set;
//   - max gain and max price take the maximum, max loss and min price the minimum;
//   - rug is sticky and its time is set once;
//   - current values come from whichever side was updated last.
//
// Merging the same rollup twice yields the same result.
func MergeRollup(prev, next *domain.PerformanceRollup) *domain.PerformanceRollup {
	if prev == nil {
		out := *next
		return &out
	}
	if next == nil {
		out := *prev
		return &out
	}

	out := *prev
	if next.PositionID != 0 {
		out.PositionID = next.PositionID
	}

	for _, h := range horizons {
		dst := h.field(&out)
		if *dst == nil {
			*dst = *h.field(next)
		}
	}

	if next.MaxGainPct != nil && (out.MaxGainPct == nil || *next.MaxGainPct > *out.MaxGainPct) {
		out.MaxGainPct = next.MaxGainPct
		out.MaxGainAt = next.MaxGainAt
		out.TimeToMaxGainHours = next.TimeToMaxGainHours
	}
	out.MaxLossPct = minPtr(out.MaxLossPct, next.MaxLossPct)
	out.MaxPriceSinceEntry = maxPtr(out.MaxPriceSinceEntry, next.MaxPriceSinceEntry)
	out.MinPriceSinceEntry = minPtr(out.MinPriceSinceEntry, next.MinPriceSinceEntry)

	if next.Rug {
		out.Rug = true
	}
	if out.TimeToRugHours == nil {
		out.TimeToRugHours = next.TimeToRugHours
	}

	if next.LastUpdated >= prev.LastUpdated {
		out.LastUpdated = next.LastUpdated
		out.CurrentMarketCap = firstSet(next.CurrentMarketCap, out.CurrentMarketCap)
		out.CurrentLiquidity = firstSet(next.CurrentLiquidity, out.CurrentLiquidity)
		out.LastSafetyScore = firstSet(next.LastSafetyScore, out.LastSafetyScore)
		if next.Alive != nil {
			out.Alive = next.Alive
		}
		if next.CheckpointType != "" {
			out.CheckpointType = next.CheckpointType
		}
	} else {
		out.CurrentMarketCap = firstSet(out.CurrentMarketCap, next.CurrentMarketCap)
		out.CurrentLiquidity = firstSet(out.CurrentLiquidity, next.CurrentLiquidity)
		out.LastSafetyScore = firstSet(out.LastSafetyScore, next.LastSafetyScore)
		if out.Alive == nil {
			out.Alive = next.Alive
		}
		if out.CheckpointType == "" {
			out.CheckpointType = next.CheckpointType
		}
	}

	return &out
}

func firstSet(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func maxPtr(a, b *float64) *float64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b > *a:
		return b
	default:
		return a
	}
}

func minPtr(a, b *float64) *float64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b < *a:
		return b
	default:
		return a
	}
}
