// Package provider holds the upstream market and security data adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Class classifies a failure.
type Class string

const (
	ClassTransport     Class = "TRANSPORT_FAILURE"
	ClassMalformed     Class = "MALFORMED_RESPONSE"
	ClassNoData        Class = "NO_DATA"
	ClassPersistence   Class = "PERSISTENCE_FAILURE"
	ClassConfiguration Class = "CONFIGURATION_FAILURE"
)

// FetchError is a classified provider failure.
type FetchError struct {
	Class      Class
	Provider   string
	StatusCode int  // HTTP status, 0 if no response
	Delisted   bool // provider affirmatively reports no token or no pair
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Delisted {
		msg += " (delisted)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newError(provider string, class Class, err error) *FetchError {
	return &FetchError{Class: class, Provider: provider, Err: err}
}

// NoData reports that the provider has no data for the token.
func NoData(provider string, delisted bool, err error) *FetchError {
	return &FetchError{Class: ClassNoData, Provider: provider, Delisted: delisted, Err: err}
}

// ClassOf returns the class of the outermost FetchError in err's chain.
// Context errors and unclassified errors are transport failures.
func ClassOf(err error) Class {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ClassTransport
}

// CauseClass returns the class of the innermost FetchError in err's chain,
// which names the original failure when a fallback wrapped it.
func CauseClass(err error) Class {
	class := ClassOf(err)
	for err != nil {
		if fe, ok := err.(*FetchError); ok {
			class = fe.Class
		}
		err = errors.Unwrap(err)
	}
	return class
}

// IsDelisted reports whether err says the token has no market.
func IsDelisted(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Class == ClassNoData && fe.Delisted
}

// IsTransient reports whether a retry may succeed: timeouts, network errors,
// 5xx and 429. Everything else is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return errors.Is(err, context.DeadlineExceeded)
	}
	if fe.Class != ClassTransport {
		return false
	}
	return fe.StatusCode == 0 || fe.StatusCode >= 500 || fe.StatusCode == http.StatusTooManyRequests
}

// IsCredentialRejected reports whether the provider answered 401 or 403.
func IsCredentialRejected(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Class != ClassConfiguration {
		return false
	}
	return fe.StatusCode == http.StatusUnauthorized || fe.StatusCode == http.StatusForbidden
}

// CountsAsOutage reports whether err should be held against a provider's breaker.
// NO_DATA and missing configuration say nothing about provider health. A
// rejected credential does: every further call fails the same way until the
// key is fixed.
func CountsAsOutage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if IsCredentialRejected(err) {
		return true
	}
	switch ClassOf(err) {
	case ClassNoData, ClassConfiguration:
		return false
	default:
		return true
	}
}
