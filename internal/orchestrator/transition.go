package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/history"
	"token-call-tracker/internal/storage"
)

var (
	// ErrInvalidTransition is returned for a decision move that is not allowed.
	ErrInvalidTransition = errors.New("invalid decision transition")
	// ErrPriceRequired is returned when a transition lacks its entry or exit price.
	ErrPriceRequired = errors.New("transition requires a positive price")
)

// TransitionRequest describes a decision change for one position.
type TransitionRequest struct {
	PositionID int64
	Decision   domain.Decision
	EntryPrice *float64 // required for TRADE
	ExitPrice  *float64 // required when closing a TRADE
}

// Transition moves a position to a new decision and writes a TRANSITION
// checkpoint so the baseline change is visible in the timeline. The
// position update and the checkpoint commit together.
func (o *Orchestrator) Transition(ctx context.Context, req TransitionRequest) (*domain.Position, error) {
	pos, err := o.repo.Stores().Positions.GetByID(ctx, req.PositionID)
	if err != nil {
		return nil, fmt.Errorf("get position %d: %w", req.PositionID, err)
	}
	if err := validateTransition(pos, req); err != nil {
		return nil, err
	}

	logger := o.logger.With(
		zap.Int64("position_id", pos.ID),
		zap.String("from", string(pos.Decision)),
		zap.String("to", string(req.Decision)))

	// Market data is best effort here; the transition stands without it.
	w := &worker{o: o, logger: logger}
	if wallets, err := o.repo.Stores().Wallets.List(ctx); err == nil {
		w.wallets = wallets
	}
	obs, err := w.observe(ctx, logger, pos.Token)
	if err != nil {
		logger.Warn("transition snapshot unavailable", zap.Error(err))
		obs = history.Observation{}
	}

	var (
		updated *domain.Position
		entry   *domain.PerformanceHistoryEntry
	)
	nowMs := o.clock().UnixMilli()
	err = o.repo.InTx(ctx, func(stores storage.Stores) error {
		current, err := stores.Positions.GetByID(ctx, req.PositionID)
		if err != nil {
			return err
		}
		if err := validateTransition(current, req); err != nil {
			return err
		}

		applyTransition(current, req, nowMs)
		if err := stores.Positions.UpdateDecision(ctx, current); err != nil {
			return fmt.Errorf("update decision: %w", err)
		}
		entry, err = o.recorder.Transition(ctx, stores, current, obs, nowMs)
		if err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition position %d: %w", req.PositionID, err)
	}

	logger.Info("position transitioned")
	o.archiveEntries(ctx, logger, []*domain.PerformanceHistoryEntry{entry})
	o.recomputeStats(ctx, logger, []*domain.Position{updated})
	return updated, nil
}

func validateTransition(pos *domain.Position, req TransitionRequest) error {
	if !pos.Decision.CanTransitionTo(req.Decision) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, pos.Decision, req.Decision)
	}
	switch {
	case req.Decision == domain.DecisionTrade && !positive(req.EntryPrice):
		return fmt.Errorf("%w: entry price", ErrPriceRequired)
	case req.Decision == domain.DecisionClosed && pos.Decision == domain.DecisionTrade && !positive(req.ExitPrice):
		return fmt.Errorf("%w: exit price", ErrPriceRequired)
	}
	return nil
}

func applyTransition(pos *domain.Position, req TransitionRequest, nowMs int64) {
	pos.Decision = req.Decision
	pos.UpdatedAt = nowMs
	switch req.Decision {
	case domain.DecisionTrade:
		price := *req.EntryPrice
		pos.EntryPrice = &price
		pos.EntryTime = &nowMs
	case domain.DecisionClosed:
		if positive(req.ExitPrice) {
			price := *req.ExitPrice
			pos.ExitPrice = &price
		}
	}
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}
