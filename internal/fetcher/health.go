package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/provider"
)

// ProbeStatus is the outcome of a single provider probe.
type ProbeStatus string

const (
	ProbeOK            ProbeStatus = "ok"
	ProbeFailed        ProbeStatus = "failed"
	ProbeNotConfigured ProbeStatus = "not configured"
)

// ProbeResult describes one provider probe.
type ProbeResult struct {
	Provider string
	Status   ProbeStatus
	Latency  time.Duration
	Err      error
}

// configurable is implemented by providers that need credentials.
type configurable interface {
	Configured() bool
}

// Probe calls every provider once for the chain's native wrapped token,
// bypassing the cache and the breakers.
func (f *Fetcher) Probe(ctx context.Context, chain domain.Chain) ([]ProbeResult, error) {
	cfg, ok := domain.LookupChain(chain)
	if !ok {
		return nil, fmt.Errorf("unsupported chain %q", chain)
	}
	token := domain.TokenKey{Chain: chain, Address: cfg.Native}

	var results []ProbeResult
	for _, p := range []provider.MarketProvider{f.primary, f.fallback} {
		if p == nil {
			continue
		}
		results = append(results, probe(p.Name(), p, func() error {
			_, err := p.FetchMarket(ctx, token)
			return err
		}))
	}
	if f.security != nil {
		results = append(results, probe(f.security.Name(), f.security, func() error {
			_, err := f.security.FetchSecurity(ctx, token)
			return err
		}))
	}
	return results, nil
}

func probe(name string, p any, call func() error) ProbeResult {
	if c, ok := p.(configurable); ok && !c.Configured() {
		return ProbeResult{Provider: name, Status: ProbeNotConfigured}
	}

	start := time.Now()
	err := call()
	res := ProbeResult{Provider: name, Status: ProbeOK, Latency: time.Since(start), Err: err}
	if err != nil {
		res.Status = ProbeFailed
	}
	return res
}

// Healthy reports whether no configured provider failed.
func Healthy(results []ProbeResult) bool {
	for _, r := range results {
		if r.Status == ProbeFailed {
			return false
		}
	}
	return true
}

// ErrUnhealthy is returned by callers that turn a failed probe into an error.
var ErrUnhealthy = errors.New("provider health check failed")
