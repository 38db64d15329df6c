package metrics

import (
	"testing"

	"token-call-tracker/internal/domain"
)

func TestComputeTier(t *testing.T) {
	tests := []struct {
		name  string
		stats domain.SourceStats
		want  string
	}{
		{"S", domain.SourceStats{AvgMaxGain: 6, WinRate: 0.7, RugRate: 0.05}, domain.TierS},
		{"S blocked by rugs", domain.SourceStats{AvgMaxGain: 6, WinRate: 0.7, RugRate: 0.15}, domain.TierA},
		{"A", domain.SourceStats{AvgMaxGain: 4, WinRate: 0.55, RugRate: 0.1}, domain.TierA},
		{"B ignores rugs", domain.SourceStats{AvgMaxGain: 2, WinRate: 0.45, RugRate: 0.9}, domain.TierB},
		{"C", domain.SourceStats{AvgMaxGain: 1, WinRate: 0.9}, domain.TierC},
		{"empty", domain.SourceStats{}, domain.TierC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeTier(&tt.stats); got != tt.want {
				t.Errorf("expected tier %s, got %s", tt.want, got)
			}
		})
	}
}

func TestComputeFromCalls_ClosedTradeCountsAsTraded(t *testing.T) {
	entry, exit := 1.0, 2.0
	calls := []callRecord{
		{position: &domain.Position{Decision: domain.DecisionClosed, EntryPrice: &entry, ExitPrice: &exit}},
		{position: &domain.Position{Decision: domain.DecisionClosed}},
	}

	stats := computeFromCalls("alpha", calls, DefaultHitThresholdPct)
	if stats.CallsTraded != 1 {
		t.Errorf("expected 1 traded call, got %d", stats.CallsTraded)
	}
	if stats.WinRate != 1.0 {
		t.Errorf("expected WinRate 1.0, got %f", stats.WinRate)
	}
}

func TestComputeFromCalls_OpenTradesExcludedFromWinRate(t *testing.T) {
	entry := 1.0
	calls := []callRecord{
		{position: &domain.Position{Decision: domain.DecisionTrade, EntryPrice: &entry}},
	}

	stats := computeFromCalls("alpha", calls, DefaultHitThresholdPct)
	if stats.WinRate != 0 {
		t.Errorf("expected WinRate 0 without exited trades, got %f", stats.WinRate)
	}
}

func TestComputeFromCalls_Empty(t *testing.T) {
	stats := computeFromCalls("alpha", nil, DefaultHitThresholdPct)
	if stats.TotalCalls != 0 || stats.Tier != domain.TierC {
		t.Errorf("unexpected stats for empty input: %+v", stats)
	}
}
