package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// Generator produces reports from stored data. It never writes.
type Generator struct {
	positions   storage.PositionStore
	rollups     storage.RollupStore
	sourceStats storage.SourceStatsStore
	deadLetters storage.DeadLetterStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. deadLetters may be nil.
func NewGenerator(stores storage.Stores, deadLetters storage.DeadLetterStore) *Generator {
	return &Generator{
		positions:   stores.Positions,
		rollups:     stores.Rollups,
		sourceStats: stores.SourceStats,
		deadLetters: deadLetters,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	open, err := g.positions.ListOpen(ctx, storage.PositionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	rollups, err := g.rollups.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}

	stats, err := g.sourceStats.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source stats: %w", err)
	}

	report := &Report{
		GeneratedAt: g.now(),
		Overview:    generateOverview(rollups),
		Sources:     generateSourceRows(stats),
	}
	report.Overview.OpenPositions = len(open)

	if g.deadLetters != nil {
		entries, err := g.deadLetters.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list dead letters: %w", err)
		}
		report.DeadLetters = len(entries)
	}

	return report, nil
}

// generateOverview folds rollups into totals and extremes.
func generateOverview(rollups []*domain.PerformanceRollup) Overview {
	o := Overview{Tracked: len(rollups)}

	var sum float64
	var n int
	for _, r := range rollups {
		switch {
		case r.Rug:
			o.Rugs++
		case r.Alive != nil && !*r.Alive:
			o.Dead++
		default:
			o.Alive++
		}

		if r.MaxGainPct != nil {
			sum += *r.MaxGainPct
			n++
			if o.BestGain == nil || *r.MaxGainPct > *o.BestGain {
				v := *r.MaxGainPct
				o.BestGain = &v
			}
		}
		if r.MaxLossPct != nil && (o.WorstLoss == nil || *r.MaxLossPct < *o.WorstLoss) {
			v := *r.MaxLossPct
			o.WorstLoss = &v
		}
	}

	if n > 0 {
		avg := sum / float64(n)
		o.AvgMaxGain = &avg
	}
	return o
}

func generateSourceRows(stats []*domain.SourceStats) []SourceRow {
	rows := make([]SourceRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, SourceRow{
			Source:      s.Source,
			Tier:        s.Tier,
			TotalCalls:  s.TotalCalls,
			CallsTraded: s.CallsTraded,
			WinRate:     s.WinRate,
			AvgMaxGain:  s.AvgMaxGain,
			RugRate:     s.RugRate,
			HitRate:     s.HitRate,
			LastUpdated: s.LastUpdated,
		})
	}
	sortSourceRows(rows)
	return rows
}

// sortSourceRows sorts by tier (S first), then avg max gain DESC, then source ASC.
func sortSourceRows(rows []SourceRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tier != rows[j].Tier {
			return tierRank(rows[i].Tier) < tierRank(rows[j].Tier)
		}
		if rows[i].AvgMaxGain != rows[j].AvgMaxGain {
			return rows[i].AvgMaxGain > rows[j].AvgMaxGain
		}
		return rows[i].Source < rows[j].Source
	})
}

func tierRank(tier string) int {
	switch tier {
	case domain.TierS:
		return 0
	case domain.TierA:
		return 1
	case domain.TierB:
		return 2
	case domain.TierC:
		return 3
	}
	return 4
}
