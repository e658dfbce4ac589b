package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"solana-trading-agent/internal/domain"
)

// Portfolio errors.
var (
	ErrInsufficientHolding = errors.New("insufficient holding")
	ErrInsufficientCash    = errors.New("insufficient cash")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// amounts this close to zero are treated as fully liquidated
const dustTolerance = 1e-9

// Portfolio tracks cash, holdings, and the append-only trade history.
// Only the decision engine mutates it; concurrent readers (status
// display, metrics) go through Snapshot or the copying accessors.
type Portfolio struct {
	mu       sync.RWMutex
	wallet   string
	cash     float64
	holdings map[string]*domain.Holding
	history  []domain.TradeRecord
}

// View is a point-in-time copy of portfolio state. Safe to read after
// the portfolio has moved on.
type View struct {
	Wallet   string
	Cash     float64
	Holdings map[string]domain.Holding
}

// New creates a portfolio with the given wallet label and starting cash.
func New(wallet string, initialCash float64) *Portfolio {
	return &Portfolio{
		wallet:   wallet,
		cash:     initialCash,
		holdings: make(map[string]*domain.Holding),
	}
}

// AddHolding creates or grows a holding, recomputing the
// volume-weighted average purchase price.
func (p *Portfolio) AddHolding(addr, symbol string, amount, price float64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("%w: add %f of %s", ErrInvalidAmount, amount, addr)
	}
	if price <= 0 {
		return fmt.Errorf("add holding %s: price must be positive, got %f", addr, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holdings[addr]
	if !ok {
		p.holdings[addr] = &domain.Holding{
			TokenAddress: addr,
			Symbol:       symbol,
			Amount:       amount,
			AvgPrice:     price,
			UpdatedAt:    now,
		}
		return nil
	}

	totalCost := h.Amount*h.AvgPrice + amount*price
	h.Amount += amount
	h.AvgPrice = totalCost / h.Amount
	h.UpdatedAt = now
	if symbol != "" {
		h.Symbol = symbol
	}
	return nil
}

// RemoveHolding shrinks a holding, deleting it once fully liquidated.
// Selling more than is held fails with ErrInsufficientHolding. The
// decision engine pre-checks amounts, so this is a safety net, not a
// control-flow path.
func (p *Portfolio) RemoveHolding(addr string, amount float64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("%w: remove %f of %s", ErrInvalidAmount, amount, addr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holdings[addr]
	if !ok {
		return fmt.Errorf("%w: no holding for %s", ErrInsufficientHolding, addr)
	}
	if amount > h.Amount+dustTolerance {
		return fmt.Errorf("%w: have %f of %s, asked to remove %f", ErrInsufficientHolding, h.Amount, addr, amount)
	}

	h.Amount -= amount
	h.UpdatedAt = now
	if h.Amount <= dustTolerance {
		delete(p.holdings, addr)
	}
	return nil
}

// Holding returns a copy of the holding for addr.
func (p *Portfolio) Holding(addr string) (domain.Holding, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h, ok := p.holdings[addr]
	if !ok {
		return domain.Holding{}, false
	}
	return *h, true
}

// Holdings returns copies of all holdings, sorted by token address.
func (p *Portfolio) Holdings() []domain.Holding {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenAddress < out[j].TokenAddress })
	return out
}

// Cash returns the available cash balance.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// DebitCash reduces the cash balance for a buy.
func (p *Portfolio) DebitCash(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit %f", ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if amount > p.cash+dustTolerance {
		return fmt.Errorf("%w: have %f, need %f", ErrInsufficientCash, p.cash, amount)
	}
	p.cash -= amount
	if p.cash < 0 {
		p.cash = 0
	}
	return nil
}

// SettleDebit reduces the cash balance for a confirmed buy fill. A fill
// the executor has already confirmed must be applied, so unlike
// DebitCash this never refuses: slippage or fee overshoot beyond the
// balance floors cash at zero. Returns the amount actually debited so a
// caller can roll it back.
func (p *Portfolio) SettleDebit(amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit %f", ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	debited := amount
	if debited > p.cash {
		debited = p.cash
	}
	p.cash -= debited
	return debited, nil
}

// CreditCash increases the cash balance from a sale.
func (p *Portfolio) CreditCash(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit %f", ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash += amount
	return nil
}

// TotalValue is cash plus holdings marked at the given prices. A
// holding without a quote falls back to its average purchase price.
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.cash
	for addr, h := range p.holdings {
		total += h.Value(markPrice(h, prices[addr]))
	}
	return total
}

// AssetAllocation returns each holding's share of total value in
// percent. Cash is reported under the empty-string key.
func (p *Portfolio) AssetAllocation(prices map[string]float64) map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.cash
	values := make(map[string]float64, len(p.holdings)+1)
	values[""] = p.cash
	for addr, h := range p.holdings {
		v := h.Value(markPrice(h, prices[addr]))
		values[addr] = v
		total += v
	}
	if total <= 0 {
		return map[string]float64{}
	}

	allocation := make(map[string]float64, len(values))
	for addr, v := range values {
		allocation[addr] = v / total * 100
	}
	return allocation
}

// Append adds a trade record to the history.
func (p *Portfolio) Append(record domain.TradeRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, record)
}

// History returns a copy of the trade history, oldest first.
func (p *Portfolio) History() []domain.TradeRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.TradeRecord(nil), p.history...)
}

// Snapshot returns a point-in-time view for the decision engine and
// status display.
func (p *Portfolio) Snapshot() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	holdings := make(map[string]domain.Holding, len(p.holdings))
	for addr, h := range p.holdings {
		holdings[addr] = *h
	}
	return View{
		Wallet:   p.wallet,
		Cash:     p.cash,
		Holdings: holdings,
	}
}

func markPrice(h *domain.Holding, quoted float64) float64 {
	if quoted > 0 {
		return quoted
	}
	return h.AvgPrice
}
