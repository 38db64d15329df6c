// Package breaker decides whether a provider should be attempted, skipped or probed.
package breaker

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrOpen is returned by Allow when the provider must be skipped.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker guards one provider. Allow returns ErrOpen when the call must be
// skipped; otherwise the caller reports the outcome through done exactly once.
type Breaker interface {
	Name() string
	State() State
	Allow() (done func(success bool), err error)
}

// Settings configures an Escalating breaker.
type Settings struct {
	Name             string
	FailureThreshold int
	BaseCooldown     time.Duration
	Escalation       float64
	MaxCooldown      time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
	// OnStateChange is called after the lock is released.
	OnStateChange func(name string, from, to State)
}

// Escalating opens after FailureThreshold consecutive failures. Each time it
// reopens without an intervening success, the cooldown grows by Escalation,
// capped at MaxCooldown. After the cooldown a single probe is let through.
type Escalating struct {
	settings Settings

	mu         sync.Mutex
	state      State
	failures   int
	opens      int // consecutive opens since the last success
	openUntil  time.Time
	generation uint64
}

// NewEscalating creates a breaker in the closed state.
func NewEscalating(s Settings) *Escalating {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 1
	}
	if s.Escalation < 1 {
		s.Escalation = 1
	}
	if s.MaxCooldown < s.BaseCooldown {
		s.MaxCooldown = s.BaseCooldown
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return &Escalating{settings: s}
}

// Compile-time interface check.
var _ Breaker = (*Escalating)(nil)

// Name returns the guarded provider name.
func (b *Escalating) Name() string {
	return b.settings.Name
}

// State returns the current state. An open breaker whose cooldown has
// elapsed reports half-open, because the next Allow will probe.
func (b *Escalating) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.settings.Clock().Before(b.openUntil) {
		return StateHalfOpen
	}
	return b.state
}

// Cooldown returns the remaining open time, zero when not open.
func (b *Escalating) Cooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	if d := b.openUntil.Sub(b.settings.Clock()); d > 0 {
		return d
	}
	return 0
}

// Allow reports whether a call may proceed.
func (b *Escalating) Allow() (func(success bool), error) {
	b.mu.Lock()

	var from State
	changed := false

	switch b.state {
	case StateOpen:
		if b.settings.Clock().Before(b.openUntil) {
			b.mu.Unlock()
			return nil, ErrOpen
		}
		from, changed = b.state, true
		b.setState(StateHalfOpen)
	case StateHalfOpen:
		// A probe is already in flight.
		b.mu.Unlock()
		return nil, ErrOpen
	}

	gen := b.generation
	b.mu.Unlock()

	if changed {
		b.notify(from, StateHalfOpen)
	}

	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.report(gen, success) })
	}, nil
}

func (b *Escalating) report(gen uint64, success bool) {
	b.mu.Lock()

	// Outcomes from before the last state change are stale.
	if gen != b.generation {
		b.mu.Unlock()
		return
	}

	from := b.state
	if success {
		b.failures = 0
		b.opens = 0
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
	} else {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.settings.FailureThreshold {
			b.trip()
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// trip opens the breaker with cooldown = base × escalation^opens, capped.
func (b *Escalating) trip() {
	cooldown := time.Duration(float64(b.settings.BaseCooldown) * math.Pow(b.settings.Escalation, float64(b.opens)))
	if cooldown > b.settings.MaxCooldown || cooldown <= 0 {
		cooldown = b.settings.MaxCooldown
	}
	b.opens++
	b.failures = 0
	b.openUntil = b.settings.Clock().Add(cooldown)
	b.setState(StateOpen)
}

func (b *Escalating) setState(s State) {
	b.state = s
	b.generation++
}

func (b *Escalating) notify(from, to State) {
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
