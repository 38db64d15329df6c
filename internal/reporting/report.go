package reporting

import "time"

// Report is the operator-facing performance summary.
type Report struct {
	GeneratedAt time.Time

	// Run is set when the report follows a batch run.
	Run *RunTotals

	Overview Overview

	// Sources sorted by tier, then avg max gain DESC, then name.
	Sources []SourceRow

	DeadLetters int
}

// RunTotals is the outcome of the batch run that preceded the report.
type RunTotals struct {
	RunID      string
	Mode       string
	Dispatched int
	Updated    int
	Failed     int
	Skipped    int
	Cancelled  int
	Duration   time.Duration
}

// Overview aggregates every position with a rollup.
type Overview struct {
	OpenPositions int // WATCH, or TRADE without exit
	Tracked       int // positions with a rollup
	Alive         int
	Dead          int // no market reported
	Rugs          int

	AvgMaxGain *float64 // over positions with a max gain
	BestGain   *float64
	WorstLoss  *float64
}

// SourceRow is one line of the per-source table.
type SourceRow struct {
	Source      string
	Tier        string
	TotalCalls  int
	CallsTraded int
	WinRate     float64
	AvgMaxGain  float64
	RugRate     float64
	HitRate     float64
	LastUpdated int64 // Unix ms
}
