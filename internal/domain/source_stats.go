package domain

import "strings"

// Source tiers, best first.
const (
	TierS = "S"
	TierA = "A"
	TierB = "B"
	TierC = "C"
)

// SourceStats is the aggregate performance of a single call source.
// Corresponds to source_stats table. Always recomputed from all positions.
type SourceStats struct {
	Source      string
	TotalCalls  int
	CallsTraded int
	WinRate     float64 // wins / exited trades
	AvgMaxGain  float64 // mean of positive max gains (%)
	RugRate     float64 // rugs / total calls
	HitRate     float64 // calls reaching the hit threshold / total calls
	Tier        string
	LastUpdated int64 // ms
}

// SplitSources splits a comma-separated source attribution into trimmed names.
func SplitSources(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// TrackedWallet is a smart-money wallet whose holdings boost the safety score.
type TrackedWallet struct {
	Address string
	Name    string
	Tier    string
}
