package domain

// DeadLetterEntry records a token whose update failed during a run.
type DeadLetterEntry struct {
	ID         string // uuid
	PositionID int64
	Token      TokenKey
	Class      string // error class
	Reason     string
	RunID      string
	Timestamp  int64 // ms, last failure
	RetryCount int
}
