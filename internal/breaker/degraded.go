package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Degraded marks a provider temporarily unusable after consecutive failures.
// Its cooldown never escalates.
type Degraded struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// NewDegraded creates a degraded-marking breaker for the named provider.
func NewDegraded(name string, failureThreshold int, cooldown time.Duration, onStateChange func(name string, from, to State)) *Degraded {
	if failureThreshold < 1 {
		failureThreshold = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold)
		},
	}
	if onStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onStateChange(name, fromGobreaker(from), fromGobreaker(to))
		}
	}

	return &Degraded{cb: gobreaker.NewTwoStepCircuitBreaker(settings)}
}

// Compile-time interface check.
var _ Breaker = (*Degraded)(nil)

// Name returns the guarded provider name.
func (d *Degraded) Name() string {
	return d.cb.Name()
}

// State returns the current state.
func (d *Degraded) State() State {
	return fromGobreaker(d.cb.State())
}

// Allow reports whether a call may proceed.
func (d *Degraded) Allow() (func(success bool), error) {
	done, err := d.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrOpen
		}
		return nil, err
	}
	return done, nil
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
