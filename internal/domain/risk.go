package domain

import (
	"fmt"
	"time"
)

// Default risk limit values.
const (
	DefaultSellPartialThreshold = 0.85
	DefaultPartialSellFraction  = 0.5
	DefaultMaxBuysPerCycle      = 3
	DefaultBuyCooldown          = 3 * time.Minute
)

// RiskLimits bounds the decision engine's trade sizing. A single global
// value applies to all strategies.
type RiskLimits struct {
	// MaxTradeAmountUSD caps the cash spent on a single BUY.
	MaxTradeAmountUSD float64

	// MaxAllocationPercent caps a BUY at this percent of available cash.
	MaxAllocationPercent float64

	// MinCashReserve is the cash floor a BUY may never breach.
	MinCashReserve float64

	// SellPartialThreshold: a SELL signal above this strength liquidates
	// the full holding; at or below it, PartialSellFraction is sold.
	SellPartialThreshold float64

	// PartialSellFraction is the fraction of a holding sold on a
	// moderate-strength SELL signal.
	PartialSellFraction float64

	// MaxBuysPerCycle caps new BUY decisions per evaluation pass.
	MaxBuysPerCycle int

	// BuyCooldown suppresses repeat BUYs of the same token within the window.
	BuyCooldown time.Duration
}

// DefaultRiskLimits returns limits matching the agent's defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxTradeAmountUSD:    100,
		MaxAllocationPercent: 20,
		MinCashReserve:       0,
		SellPartialThreshold: DefaultSellPartialThreshold,
		PartialSellFraction:  DefaultPartialSellFraction,
		MaxBuysPerCycle:      DefaultMaxBuysPerCycle,
		BuyCooldown:          DefaultBuyCooldown,
	}
}

// Validate checks limit ranges. Returns ErrInvalidRiskLimits on the first
// violation; callers treat this as fatal at startup.
func (l RiskLimits) Validate() error {
	if l.MaxTradeAmountUSD <= 0 {
		return fmt.Errorf("%w: max trade amount must be positive, got %f", ErrInvalidRiskLimits, l.MaxTradeAmountUSD)
	}
	if l.MaxAllocationPercent <= 0 || l.MaxAllocationPercent > 100 {
		return fmt.Errorf("%w: max allocation percent must be in (0,100], got %f", ErrInvalidRiskLimits, l.MaxAllocationPercent)
	}
	if l.MinCashReserve < 0 {
		return fmt.Errorf("%w: min cash reserve must be non-negative, got %f", ErrInvalidRiskLimits, l.MinCashReserve)
	}
	if l.SellPartialThreshold < 0 || l.SellPartialThreshold > 1 {
		return fmt.Errorf("%w: sell partial threshold must be in [0,1], got %f", ErrInvalidRiskLimits, l.SellPartialThreshold)
	}
	if l.PartialSellFraction <= 0 || l.PartialSellFraction > 1 {
		return fmt.Errorf("%w: partial sell fraction must be in (0,1], got %f", ErrInvalidRiskLimits, l.PartialSellFraction)
	}
	if l.MaxBuysPerCycle <= 0 {
		return fmt.Errorf("%w: max buys per cycle must be positive, got %d", ErrInvalidRiskLimits, l.MaxBuysPerCycle)
	}
	if l.BuyCooldown < 0 {
		return fmt.Errorf("%w: buy cooldown must be non-negative, got %v", ErrInvalidRiskLimits, l.BuyCooldown)
	}
	return nil
}
