package ai

import (
	"context"

	"solana-trading-agent/internal/domain"
)

// Adjustment is one per-signal verdict from the enhancement service.
// Strength replaces the draft signal's strength; the aggregator clamps
// it and attaches the Enhancement to the surviving signal.
type Adjustment struct {
	TokenAddress string
	Strength     float64
	Rationale    string
	Enhancement  *domain.Enhancement
}

// Enhancer submits a batch of draft signals for AI review and returns
// per-token adjustments. An error means the batch could not be
// enhanced; callers must treat that as advisory and keep the original
// signals.
type Enhancer interface {
	EnhanceSignals(ctx context.Context, signals []*domain.Signal) ([]Adjustment, error)
}

type disabledEnhancer struct{}

func (disabledEnhancer) EnhanceSignals(context.Context, []*domain.Signal) ([]Adjustment, error) {
	return nil, nil
}

// Disabled returns an enhancer that adjusts nothing. Used when no AI
// endpoint is configured.
func Disabled() Enhancer {
	return disabledEnhancer{}
}
