package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/fetcher"
)

// HealthCheck probes storage and every provider once. Nothing is persisted.
// It returns fetcher.ErrUnhealthy when storage or a configured provider fails.
func (o *Orchestrator) HealthCheck(ctx context.Context, chain domain.Chain) ([]fetcher.ProbeResult, error) {
	if err := o.repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: storage: %v", fetcher.ErrUnhealthy, err)
	}

	results, err := o.fetcher.Probe(ctx, chain)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		fields := []zap.Field{
			zap.String("provider", r.Provider),
			zap.String("status", string(r.Status)),
			zap.Duration("latency", r.Latency),
		}
		if r.Err != nil {
			fields = append(fields, zap.Error(r.Err))
		}
		o.logger.Info("provider probe", fields...)
	}

	if !fetcher.Healthy(results) {
		return results, fetcher.ErrUnhealthy
	}
	return results, nil
}
