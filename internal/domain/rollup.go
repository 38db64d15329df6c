package domain

// Horizon checkpoints, measured from the position's creation time.
const (
	Horizon15m = 15 * 60 * 1000
	Horizon30m = 30 * 60 * 1000
	Horizon1h  = 60 * 60 * 1000
	Horizon4h  = 4 * Horizon1h
	Horizon24h = 24 * Horizon1h
	Horizon7d  = 7 * Horizon24h
	Horizon30d = 30 * Horizon24h
)

// PerformanceRollup is the mutable per-position summary.
// Corresponds to performance_rollups table.
// Horizon prices are set once; extremes only widen; Rug only turns on.
type PerformanceRollup struct {
	PositionID  int64
	LastUpdated int64 // ms

	Price15m *float64
	Price30m *float64
	Price1h  *float64
	Price24h *float64
	Price7d  *float64
	Price30d *float64

	MaxGainPct         *float64
	MaxLossPct         *float64 // never below -100
	MaxGainAt          *int64   // ms
	TimeToMaxGainHours *float64

	MaxPriceSinceEntry *float64
	MinPriceSinceEntry *float64

	CurrentMarketCap *float64
	CurrentLiquidity *float64
	LastSafetyScore  *float64

	Alive          *bool
	Rug            bool
	TimeToRugHours *float64
	CheckpointType string // "", "15m", "1h", "4h", "24h"
}
