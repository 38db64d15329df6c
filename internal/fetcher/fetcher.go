// Package fetcher composes providers, breakers and the response cache into
// a single market data lookup with transparent fallback.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-call-tracker/internal/breaker"
	"token-call-tracker/internal/cache"
	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/provider"
)

// Options configures a Fetcher. Primary, Fallback and Security may be nil;
// a nil provider is treated as unavailable.
type Options struct {
	Primary  provider.MarketProvider
	Fallback provider.MarketProvider
	Security provider.SecurityProvider

	PrimaryBreaker  breaker.Breaker
	FallbackBreaker breaker.Breaker
	SecurityBreaker breaker.Breaker

	Cache  *cache.Cache
	Logger *zap.Logger
}

// Fetcher is safe for concurrent use by pool workers.
type Fetcher struct {
	primary  provider.MarketProvider
	fallback provider.MarketProvider
	security provider.SecurityProvider

	primaryBreaker  breaker.Breaker
	fallbackBreaker breaker.Breaker
	securityBreaker breaker.Breaker

	cache  *cache.Cache
	logger *zap.Logger
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		primary:         opts.Primary,
		fallback:        opts.Fallback,
		security:        opts.Security,
		primaryBreaker:  opts.PrimaryBreaker,
		fallbackBreaker: opts.FallbackBreaker,
		securityBreaker: opts.SecurityBreaker,
		cache:           opts.Cache,
		logger:          logger,
	}
}

// Fetch returns a market snapshot for token.
//
// A fresh cached response is returned without any network call. Otherwise
// the primary provider is tried unless its breaker is open, and any primary
// failure falls through to the fallback provider. When the fallback also
// fails the error is a NO_DATA FetchError; Delisted is set only when the
// fallback affirmatively reports that the token has no market.
func (f *Fetcher) Fetch(ctx context.Context, token domain.TokenKey) (*domain.MarketSnapshot, error) {
	if snap, ok := f.cachedMarket(token); ok {
		return snap, nil
	}

	primaryRes := f.tryMarket(ctx, f.primary, f.primaryBreaker, token)
	if primaryRes.snap != nil {
		return primaryRes.snap, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.fallback == nil {
		return nil, &provider.FetchError{
			Class:    provider.ClassNoData,
			Provider: providerName(f.primary),
			Delisted: provider.IsDelisted(primaryRes.err),
			Err:      primaryRes.err,
		}
	}

	f.logger.Debug("falling back",
		zap.String("chain", token.Chain.String()),
		zap.String("address", token.Address),
		zap.String("provider", f.fallback.Name()),
		zap.Error(primaryRes.err),
	)

	fallbackRes := f.tryMarket(ctx, f.fallback, f.fallbackBreaker, token)
	if fallbackRes.snap != nil {
		return fallbackRes.snap, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return nil, &provider.FetchError{
		Class:    provider.ClassNoData,
		Provider: f.fallback.Name(),
		Delisted: provider.IsDelisted(fallbackRes.err),
		Err:      fmt.Errorf("primary: %v; fallback: %w", primaryRes.err, fallbackRes.err),
	}
}

type marketResult struct {
	snap *domain.MarketSnapshot
	err  error
}

// tryMarket runs one provider behind its breaker and caches a success.
func (f *Fetcher) tryMarket(ctx context.Context, p provider.MarketProvider, b breaker.Breaker, token domain.TokenKey) marketResult {
	if p == nil {
		return marketResult{err: errors.New("provider not configured")}
	}

	done, err := allow(b)
	if err != nil {
		observability.RecordProviderFetch(p.Name(), "skipped", 0)
		return marketResult{err: fmt.Errorf("%s: %w", p.Name(), err)}
	}

	start := time.Now()
	snap, err := p.FetchMarket(ctx, token)
	done(!provider.CountsAsOutage(err))
	observability.RecordProviderFetch(p.Name(), resultLabel(err), time.Since(start).Seconds())

	if err != nil {
		f.logger.Debug("provider fetch failed",
			zap.String("provider", p.Name()),
			zap.String("chain", token.Chain.String()),
			zap.String("address", token.Address),
			zap.String("class", string(provider.ClassOf(err))),
			zap.Error(err),
		)
		return marketResult{err: err}
	}

	if f.cache != nil {
		if err := f.cache.Set(cache.Key(p.Name(), token), snap); err != nil {
			f.logger.Warn("cache market snapshot", zap.String("provider", p.Name()), zap.Error(err))
		}
	}
	return marketResult{snap: snap}
}

// cachedMarket checks the primary then the fallback cache slot.
func (f *Fetcher) cachedMarket(token domain.TokenKey) (*domain.MarketSnapshot, bool) {
	if f.cache == nil {
		return nil, false
	}
	for _, p := range []provider.MarketProvider{f.primary, f.fallback} {
		if p == nil {
			continue
		}
		var snap domain.MarketSnapshot
		_, hit := f.cache.Get(cache.Key(p.Name(), token), &snap)
		observability.RecordCacheLookup(p.Name(), hit)
		if hit {
			snap.Cached = true
			return &snap, true
		}
	}
	return nil, false
}

// FetchSecurity returns security signals for token. It never falls back:
// callers treat an error as "signals unavailable".
func (f *Fetcher) FetchSecurity(ctx context.Context, token domain.TokenKey) (*domain.SecuritySignals, error) {
	if f.security == nil {
		return nil, &provider.FetchError{Class: provider.ClassConfiguration, Provider: "security", Err: errors.New("no security provider")}
	}
	name := f.security.Name()
	key := cache.Key(name, token)

	if f.cache != nil {
		var sig domain.SecuritySignals
		_, hit := f.cache.Get(key, &sig)
		observability.RecordCacheLookup(name, hit)
		if hit {
			return &sig, nil
		}
	}

	done, err := allow(f.securityBreaker)
	if err != nil {
		observability.RecordProviderFetch(name, "skipped", 0)
		return nil, &provider.FetchError{Class: provider.ClassTransport, Provider: name, Err: err}
	}

	start := time.Now()
	sig, err := f.security.FetchSecurity(ctx, token)
	done(!provider.CountsAsOutage(err))
	observability.RecordProviderFetch(name, resultLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Set(key, sig); err != nil {
			f.logger.Warn("cache security signals", zap.String("provider", name), zap.Error(err))
		}
	}
	return sig, nil
}

func allow(b breaker.Breaker) (func(bool), error) {
	if b == nil {
		return func(bool) {}, nil
	}
	return b.Allow()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(provider.ClassOf(err))
}

func providerName(p provider.MarketProvider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}
