package domain

// Decision is the operator's decision state for a tracked call.
type Decision string

const (
	DecisionWatch  Decision = "WATCH"
	DecisionTrade  Decision = "TRADE"
	DecisionPass   Decision = "PASS"
	DecisionClosed Decision = "CLOSED"
)

// String returns the string representation of Decision.
func (d Decision) String() string {
	return string(d)
}

// IsValid checks if the decision is a valid value.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionWatch, DecisionTrade, DecisionPass, DecisionClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from d to next is allowed.
// PASS and CLOSED are terminal.
func (d Decision) CanTransitionTo(next Decision) bool {
	switch d {
	case DecisionWatch:
		return next == DecisionTrade || next == DecisionPass || next == DecisionClosed
	case DecisionTrade:
		return next == DecisionClosed
	}
	return false
}

// Position is the tracked lifecycle of a call.
// Corresponds to positions table.
type Position struct {
	ID        int64
	Token     TokenKey
	Symbol    string   // token symbol at call time (may be empty)
	Source    string   // comma-separated call sources
	Decision  Decision // current decision state
	CallPrice float64  // price at first call

	EntryPrice *float64 // price at TRADE transition (nullable)
	EntryTime  *int64   // TRADE transition timestamp (ms, nullable)
	ExitPrice  *float64 // exit price once closed (nullable)

	CreatedAt int64 // call time (ms)
	UpdatedAt int64 // last decision change (ms)
}

// IsTracked reports whether the position still accumulates history.
// A TRADE with an exit recorded is closed even if the state was not moved.
func (p *Position) IsTracked() bool {
	switch p.Decision {
	case DecisionWatch:
		return true
	case DecisionTrade:
		return p.ExitPrice == nil || *p.ExitPrice == 0
	}
	return false
}

// AgeHours returns hours elapsed between creation and nowMs.
func (p *Position) AgeHours(nowMs int64) float64 {
	return float64(nowMs-p.CreatedAt) / float64(3600*1000)
}

// HasSource reports whether name is one of the position's call sources.
func (p *Position) HasSource(name string) bool {
	for _, s := range SplitSources(p.Source) {
		if s == name {
			return true
		}
	}
	return false
}
