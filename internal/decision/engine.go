package decision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/execution"
	"solana-trading-agent/internal/observability"
	"solana-trading-agent/internal/portfolio"
	"solana-trading-agent/internal/storage"
)

// Engine turns aggregated signals into sized trade decisions and runs
// them against the executor. Sizing is a pure pass over a portfolio
// view; execution is strictly sequential and mutates the portfolio only
// on confirmed fills.
type Engine struct {
	limits    domain.RiskLimits
	executor  execution.Executor
	portfolio *portfolio.Portfolio
	records   storage.TradeRecordStore // optional write-through, may be nil
	logger    *log.Logger

	mu      sync.Mutex
	lastBuy map[string]time.Time
}

// NewEngine validates the limits and wires the engine. records may be
// nil to skip store write-through; logger may be nil to discard.
func NewEngine(limits domain.RiskLimits, exec execution.Executor, pf *portfolio.Portfolio, records storage.TradeRecordStore, logger *log.Logger) (*Engine, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.New("engine requires an executor")
	}
	if pf == nil {
		return nil, errors.New("engine requires a portfolio")
	}
	return &Engine{
		limits:    limits,
		executor:  exec,
		portfolio: pf,
		records:   records,
		logger:    logger,
		lastBuy:   make(map[string]time.Time),
	}, nil
}

// Limits returns the engine's risk limits.
func (e *Engine) Limits() domain.RiskLimits {
	return e.limits
}

// Decide sizes trades for the given signals against a point-in-time
// portfolio view. Signals arrive confidence-filtered and sorted by
// descending strength; cash spent by earlier BUY decisions in the pass
// is reserved so the batch can never collectively overspend. The
// portfolio itself is not touched.
func (e *Engine) Decide(signals []*domain.Signal, snapshots map[string]*domain.TokenSnapshot, view portfolio.View, now time.Time) []*domain.TradeDecision {
	runningCash := view.Cash
	buys := 0

	var decisions []*domain.TradeDecision
	for _, sig := range signals {
		if sig == nil || sig.Type == domain.SignalHold {
			continue
		}

		snap := snapshots[sig.TokenAddress]
		if snap == nil || snap.Price <= 0 {
			// cannot size a trade without a price
			observability.RecordTradeSkipped("no_price")
			continue
		}

		switch sig.Type {
		case domain.SignalBuy:
			if buys >= e.limits.MaxBuysPerCycle {
				observability.RecordTradeSkipped("buy_cap")
				continue
			}
			if e.inCooldown(sig.TokenAddress, now) {
				observability.RecordTradeSkipped("cooldown")
				continue
			}
			budget := e.limits.MaxTradeAmountUSD
			if allocCap := runningCash * e.limits.MaxAllocationPercent / 100; allocCap < budget {
				budget = allocCap
			}
			if budget <= 0 || runningCash-budget < e.limits.MinCashReserve {
				observability.RecordTradeSkipped("cash_reserve")
				continue
			}
			decisions = append(decisions, &domain.TradeDecision{
				Side:         domain.TradeBuy,
				TokenAddress: sig.TokenAddress,
				Symbol:       snap.Symbol,
				Amount:       budget / snap.Price,
				Price:        snap.Price,
				Strength:     sig.Strength,
				Reason:       sig.Reason(),
				Strategy:     sig.Strategy,
			})
			runningCash -= budget
			buys++

		case domain.SignalSell:
			holding, ok := view.Holdings[sig.TokenAddress]
			if !ok || holding.Amount <= 0 {
				observability.RecordTradeSkipped("no_holding")
				continue
			}
			fraction := e.limits.PartialSellFraction
			if sig.Strength > e.limits.SellPartialThreshold {
				fraction = 1.0
			}
			decisions = append(decisions, &domain.TradeDecision{
				Side:         domain.TradeSell,
				TokenAddress: sig.TokenAddress,
				Symbol:       holding.Symbol,
				Amount:       holding.Amount * fraction,
				Price:        snap.Price,
				Strength:     sig.Strength,
				Reason:       sig.Reason(),
				Strategy:     sig.Strategy,
			})
		}
	}
	return decisions
}

// Result is the outcome of one decision within a batch.
type Result struct {
	Decision *domain.TradeDecision
	Record   *domain.TradeRecord // nil unless the trade confirmed
	Err      error               // nil unless the trade failed
}

// Report summarizes one execution batch.
type Report struct {
	Executed  int
	Failed    int
	Cancelled int // decisions never attempted due to cancellation
	Results   []Result
}

// Execute runs the decisions in order. A failed trade is recorded in
// the report and never aborts the batch; a cancelled context stops the
// batch between trades, never mid-trade, so an in-flight fill is always
// fully applied before the loop exits.
func (e *Engine) Execute(ctx context.Context, decisions []*domain.TradeDecision, now time.Time) *Report {
	report := &Report{}
	for i, d := range decisions {
		if err := ctx.Err(); err != nil {
			report.Cancelled = len(decisions) - i
			break
		}

		fill, err := e.executor.ExecuteTrade(ctx, d)
		if err != nil {
			e.logf("trade failed: %s %s: %v", d.Side, d.TokenAddress, err)
			report.Failed++
			report.Results = append(report.Results, Result{Decision: d, Err: err})
			continue
		}

		record, err := e.apply(ctx, d, fill, now)
		if err != nil {
			e.logf("fill for %s %s not applied: %v", d.Side, d.TokenAddress, err)
			report.Failed++
			report.Results = append(report.Results, Result{Decision: d, Err: err})
			continue
		}

		report.Executed++
		report.Results = append(report.Results, Result{Decision: d, Record: record})
	}
	return report
}

// apply updates the portfolio with the filled amount and price (never
// the requested ones) and appends the trade record.
func (e *Engine) apply(ctx context.Context, d *domain.TradeDecision, fill *execution.Fill, now time.Time) (*domain.TradeRecord, error) {
	switch d.Side {
	case domain.TradeBuy:
		// the executor confirmed this fill; slippage and fees may push
		// its value past the cash reserved at decision time, so settle
		// rather than refuse
		debited, err := e.portfolio.SettleDebit(fill.Value())
		if err != nil {
			return nil, err
		}
		if err := e.portfolio.AddHolding(d.TokenAddress, d.Symbol, fill.Amount, fill.Price, now); err != nil {
			// roll the debit back so a rejected fill leaves no trace
			if debited > 0 {
				if cerr := e.portfolio.CreditCash(debited); cerr != nil {
					e.logf("rollback credit failed for %s: %v", d.TokenAddress, cerr)
				}
			}
			return nil, err
		}
		e.markBuy(d.TokenAddress, now)

	case domain.TradeSell:
		if err := e.portfolio.RemoveHolding(d.TokenAddress, fill.Amount, now); err != nil {
			return nil, err
		}
		if err := e.portfolio.CreditCash(fill.Value()); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: %q", execution.ErrUnknownSide, d.Side)
	}

	seq := len(e.portfolio.History())
	record := &domain.TradeRecord{
		ID:           domain.ComputeTradeID(d.TokenAddress, d.Side, now.UnixMilli(), seq),
		Timestamp:    now,
		TokenAddress: d.TokenAddress,
		Symbol:       d.Symbol,
		Side:         d.Side,
		Amount:       fill.Amount,
		Price:        fill.Price,
		Value:        fill.Value(),
		Simulated:    fill.Simulated,
		Strategy:     d.Strategy,
		Strength:     d.Strength,
	}
	e.portfolio.Append(*record)

	if e.records != nil {
		if err := e.records.Insert(ctx, record); err != nil {
			// the trade is confirmed; a store outage must not undo it
			e.logf("trade record %s not persisted: %v", record.ID, err)
		}
	}
	return record, nil
}

func (e *Engine) inCooldown(addr string, now time.Time) bool {
	if e.limits.BuyCooldown <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastBuy[addr]
	return ok && now.Sub(last) < e.limits.BuyCooldown
}

func (e *Engine) markBuy(addr string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastBuy[addr] = now
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
