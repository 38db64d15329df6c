package domain

// CheckpointKind tells why a history row was written.
type CheckpointKind string

const (
	CheckpointPeriodic   CheckpointKind = "PERIODIC"
	CheckpointTransition CheckpointKind = "TRANSITION"
)

// PerformanceHistoryEntry is an append-only checkpoint row.
// Corresponds to performance_history table.
type PerformanceHistoryEntry struct {
	ID            int64 // assigned by storage
	PositionID    int64
	Timestamp     int64 // ms, strictly increasing per position
	Kind          CheckpointKind
	Decision      Decision
	BaselinePrice float64
	Provider      string

	Price          *float64
	Liquidity      *float64
	TotalLiquidity *float64
	MarketCap      *float64

	GainLossPct        *float64 // vs baseline
	PriceChangePct     *float64 // vs previous entry
	LiquidityChangePct *float64 // vs previous entry
	MarketCapChangePct *float64 // vs previous entry

	SafetyScore *float64
	RedFlags    []string

	Alive *bool // nil when unknown
	Rug   bool
}
