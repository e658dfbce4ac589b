package strategy

import (
	"context"
	"errors"
	"time"

	"solana-trading-agent/internal/domain"
)

// Strategy maps a batch of token snapshots to draft signals.
// Implementations are pure functions of their input: no shared mutable
// state, so independent strategies may run concurrently over the same
// batch and join results before aggregation.
type Strategy interface {
	// Evaluate analyzes the snapshot batch and returns draft signals.
	// A token with nothing to say produces no signal; an empty batch
	// returns an empty result.
	Evaluate(ctx context.Context, input *Input) ([]*domain.Signal, error)

	// Name returns the registry name the strategy is weighted under.
	Name() string
}

// Input holds all data a strategy evaluation may use.
type Input struct {
	// Snapshots is the current market-update cycle's batch.
	Snapshots []*domain.TokenSnapshot

	// History maps token address to prior cycles' price points,
	// ordered by timestamp ascending. May be empty for new tokens.
	History map[string][]domain.PricePoint

	// Now is the evaluation time stamped onto produced signals.
	Now time.Time
}

// Validate checks the input is usable.
func (in *Input) Validate() error {
	if in == nil {
		return errors.New("nil strategy input")
	}
	if in.Now.IsZero() {
		return errors.New("strategy input requires evaluation time")
	}
	return nil
}

// history returns the price history for addr, oldest first.
func (in *Input) history(addr string) []domain.PricePoint {
	if in.History == nil {
		return nil
	}
	return in.History[addr]
}
