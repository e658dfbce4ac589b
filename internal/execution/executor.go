package execution

import (
	"context"
	"errors"
	"fmt"

	"solana-trading-agent/internal/domain"
)

// Executor errors.
var (
	ErrUnsizedTrade = errors.New("trade has no definite price or amount")
	ErrUnknownSide  = errors.New("unknown trade side")
)

// Fill is the execution result. Callers apply the filled amount and
// price to the portfolio, never the requested ones.
type Fill struct {
	Amount    float64
	Price     float64
	Simulated bool
}

// Value is the cash moved by the fill.
func (f *Fill) Value() float64 {
	return f.Amount * f.Price
}

// Executor submits a sized trade decision to the market.
type Executor interface {
	ExecuteTrade(ctx context.Context, decision *domain.TradeDecision) (*Fill, error)
}

// SimulatedExecutor fills trades instantly against the decision price
// with a symmetric slippage haircut and a flat fee. Buys fill above the
// quoted price, sells below it.
type SimulatedExecutor struct {
	// SlippagePct is the full spread in percent; half is applied to
	// each side, so effective price is price*(1 ± SlippagePct/200).
	SlippagePct float64

	// FeePct is charged on the notional, folded into the fill price.
	FeePct float64

	// FillFraction partially fills orders, for exercising the
	// fill-differs-from-request path. Zero or out of range means full.
	FillFraction float64
}

// NewSimulatedExecutor creates an executor with the given spread and fee.
func NewSimulatedExecutor(slippagePct, feePct float64) *SimulatedExecutor {
	return &SimulatedExecutor{SlippagePct: slippagePct, FeePct: feePct}
}

// ExecuteTrade fills the decision immediately.
func (e *SimulatedExecutor) ExecuteTrade(ctx context.Context, decision *domain.TradeDecision) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if decision == nil || decision.Price <= 0 || decision.Amount <= 0 {
		return nil, ErrUnsizedTrade
	}

	price := decision.Price
	switch decision.Side {
	case domain.TradeBuy:
		price *= 1 + e.SlippagePct/200 + e.FeePct/100
	case domain.TradeSell:
		price *= 1 - e.SlippagePct/200 - e.FeePct/100
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSide, decision.Side)
	}
	if price <= 0 {
		return nil, fmt.Errorf("simulated fill price collapsed to %f for %s", price, decision.TokenAddress)
	}

	fraction := e.FillFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}

	return &Fill{
		Amount:    decision.Amount * fraction,
		Price:     price,
		Simulated: true,
	}, nil
}

var _ Executor = (*SimulatedExecutor)(nil)
