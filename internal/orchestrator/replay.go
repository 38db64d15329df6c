package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// Replay re-runs the update for every position in the dead-letter queue.
// Entries whose update succeeds are removed; failures stay queued with
// their retry count bumped. Entries whose position no longer exists or is
// closed are dropped.
func (o *Orchestrator) Replay(ctx context.Context) (*RunSummary, error) {
	if o.deadLetters == nil {
		return nil, errors.New("dead letter queue not configured")
	}

	entries, err := o.deadLetters.List(ctx)
	if err != nil {
		return nil, err
	}

	byPosition := make(map[int64]string, len(entries))
	var positions []*domain.Position
	for _, e := range entries {
		pos, err := o.repo.Stores().Positions.GetByID(ctx, e.PositionID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && !pos.IsTracked()) {
			o.logger.Info("dropping dead letter for untracked position",
				zap.String("id", e.ID), zap.Int64("position_id", e.PositionID))
			if err := o.deadLetters.Remove(ctx, e.ID); err != nil {
				o.logger.Warn("remove dead letter failed", zap.String("id", e.ID), zap.Error(err))
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load position %d: %w", e.PositionID, err)
		}
		if _, dup := byPosition[pos.ID]; dup {
			continue
		}
		byPosition[pos.ID] = e.ID
		positions = append(positions, pos)
	}

	return o.runPositions(ctx, "replay", positions, func(pos *domain.Position, res TokenResult) {
		if res.Outcome != OutcomeUpdated {
			return
		}
		if err := o.deadLetters.Remove(ctx, byPosition[pos.ID]); err != nil {
			o.logger.Warn("remove replayed dead letter failed",
				zap.Int64("position_id", pos.ID), zap.Error(err))
		}
	})
}
