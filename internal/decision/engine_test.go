package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/execution"
	"solana-trading-agent/internal/portfolio"
)

var testNow = time.Unix(1700000000, 0)

func buySignal(addr string, strength float64) *domain.Signal {
	return &domain.Signal{
		Type:         domain.SignalBuy,
		TokenAddress: addr,
		Strength:     strength,
		Reasons:      []string{"test"},
		Strategy:     "pulse",
		CreatedAt:    testNow,
	}
}

func sellSignal(addr string, strength float64) *domain.Signal {
	s := buySignal(addr, strength)
	s.Type = domain.SignalSell
	return s
}

func snapshots(prices map[string]float64) map[string]*domain.TokenSnapshot {
	out := make(map[string]*domain.TokenSnapshot, len(prices))
	for addr, price := range prices {
		out[addr] = &domain.TokenSnapshot{
			Address:   addr,
			Symbol:    "TK",
			Price:     price,
			FetchedAt: testNow,
		}
	}
	return out
}

// failingExecutor fails trades for the listed tokens and fills the rest.
type failingExecutor struct {
	failFor map[string]bool
	inner   execution.Executor
	calls   []string
}

func (f *failingExecutor) ExecuteTrade(ctx context.Context, d *domain.TradeDecision) (*execution.Fill, error) {
	f.calls = append(f.calls, d.TokenAddress)
	if f.failFor[d.TokenAddress] {
		return nil, errors.New("venue rejected order")
	}
	return f.inner.ExecuteTrade(ctx, d)
}

func newTestEngine(t *testing.T, limits domain.RiskLimits, cash float64) (*Engine, *portfolio.Portfolio) {
	t.Helper()
	pf := portfolio.New("wallet1", cash)
	e, err := NewEngine(limits, execution.NewSimulatedExecutor(0, 0), pf, nil, nil)
	require.NoError(t, err)
	return e, pf
}

func limitsNoCooldown() domain.RiskLimits {
	l := domain.DefaultRiskLimits()
	l.BuyCooldown = 0
	return l
}

func TestNewEngine_InvalidLimits(t *testing.T) {
	l := domain.DefaultRiskLimits()
	l.MaxTradeAmountUSD = -1
	_, err := NewEngine(l, execution.NewSimulatedExecutor(0, 0), portfolio.New("w", 0), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRiskLimits)
}

func TestDecide_BuyBindingConstraint(t *testing.T) {
	// cash=1000, maxTrade=100, alloc=20% of 1000 = 200: maxTrade binds
	e, pf := newTestEngine(t, limitsNoCooldown(), 1000)

	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.8)},
		snapshots(map[string]float64{"tokenA": 10}),
		pf.Snapshot(), testNow)

	require.Len(t, decisions, 1)
	assert.Equal(t, domain.TradeBuy, decisions[0].Side)
	assert.InDelta(t, 10, decisions[0].Amount, 1e-9)
	assert.InDelta(t, 10, decisions[0].Price, 1e-9)
	assert.InDelta(t, 100, decisions[0].Value(), 1e-9)
}

func TestDecide_CashConservation(t *testing.T) {
	limits := limitsNoCooldown()
	limits.MaxTradeAmountUSD = 100
	limits.MaxAllocationPercent = 100
	e, pf := newTestEngine(t, limits, 150)

	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9), buySignal("tokenB", 0.8), buySignal("tokenC", 0.7)},
		snapshots(map[string]float64{"tokenA": 1, "tokenB": 1, "tokenC": 1}),
		pf.Snapshot(), testNow)

	var reserved float64
	for _, d := range decisions {
		reserved += d.Value()
	}
	assert.LessOrEqual(t, reserved, 150.0, "batch may never overspend starting cash")
}

func TestDecide_MinCashReserve(t *testing.T) {
	limits := limitsNoCooldown()
	limits.MaxTradeAmountUSD = 100
	limits.MaxAllocationPercent = 100
	limits.MinCashReserve = 950
	e, pf := newTestEngine(t, limits, 1000)

	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9)},
		snapshots(map[string]float64{"tokenA": 1}),
		pf.Snapshot(), testNow)
	assert.Empty(t, decisions, "buy breaching the cash floor is skipped")
}

func TestDecide_SellFullVsPartial(t *testing.T) {
	e, pf := newTestEngine(t, limitsNoCooldown(), 1000)
	require.NoError(t, pf.AddHolding("tokenA", "TKA", 5, 2.0, testNow))

	full := e.Decide(
		[]*domain.Signal{sellSignal("tokenA", 0.90)},
		snapshots(map[string]float64{"tokenA": 3}),
		pf.Snapshot(), testNow)
	require.Len(t, full, 1)
	assert.InDelta(t, 5, full[0].Amount, 1e-9, "strength above threshold liquidates fully")

	partial := e.Decide(
		[]*domain.Signal{sellSignal("tokenA", 0.70)},
		snapshots(map[string]float64{"tokenA": 3}),
		pf.Snapshot(), testNow)
	require.Len(t, partial, 1)
	assert.InDelta(t, 2.5, partial[0].Amount, 1e-9, "moderate strength sells half")
}

func TestDecide_NoOversell(t *testing.T) {
	e, pf := newTestEngine(t, limitsNoCooldown(), 1000)
	require.NoError(t, pf.AddHolding("tokenA", "TKA", 5, 2.0, testNow))

	decisions := e.Decide(
		[]*domain.Signal{sellSignal("tokenA", 0.99)},
		snapshots(map[string]float64{"tokenA": 3}),
		pf.Snapshot(), testNow)
	require.Len(t, decisions, 1)
	assert.LessOrEqual(t, decisions[0].Amount, 5.0)
}

func TestDecide_Skips(t *testing.T) {
	e, pf := newTestEngine(t, limitsNoCooldown(), 1000)
	require.NoError(t, pf.AddHolding("tokenHeld", "TKH", 5, 2.0, testNow))
	view := pf.Snapshot()

	tests := []struct {
		name    string
		signals []*domain.Signal
		prices  map[string]float64
	}{
		{"hold never trades", []*domain.Signal{{Type: domain.SignalHold, TokenAddress: "tokenA", Strength: 0.9}}, map[string]float64{"tokenA": 10}},
		{"no snapshot", []*domain.Signal{buySignal("tokenA", 0.9)}, nil},
		{"non-positive price", []*domain.Signal{buySignal("tokenA", 0.9)}, map[string]float64{"tokenA": 0}},
		{"sell without holding", []*domain.Signal{sellSignal("tokenX", 0.9)}, map[string]float64{"tokenX": 10}},
		{"nil signal", []*domain.Signal{nil}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, e.Decide(tt.signals, snapshots(tt.prices), view, testNow))
		})
	}
}

func TestDecide_MaxBuysPerCycle(t *testing.T) {
	limits := limitsNoCooldown()
	limits.MaxBuysPerCycle = 2
	e, pf := newTestEngine(t, limits, 10000)

	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9), buySignal("tokenB", 0.8), buySignal("tokenC", 0.7)},
		snapshots(map[string]float64{"tokenA": 1, "tokenB": 1, "tokenC": 1}),
		pf.Snapshot(), testNow)
	assert.Len(t, decisions, 2)
}

func TestBuyCooldown(t *testing.T) {
	limits := limitsNoCooldown()
	limits.BuyCooldown = 5 * time.Minute
	pf := portfolio.New("wallet1", 10000)
	e, err := NewEngine(limits, execution.NewSimulatedExecutor(0, 0), pf, nil, nil)
	require.NoError(t, err)

	snaps := snapshots(map[string]float64{"tokenA": 1})
	decisions := e.Decide([]*domain.Signal{buySignal("tokenA", 0.9)}, snaps, pf.Snapshot(), testNow)
	require.Len(t, decisions, 1)
	report := e.Execute(context.Background(), decisions, testNow)
	require.Equal(t, 1, report.Executed)

	// within the window the repeat buy is suppressed
	again := e.Decide([]*domain.Signal{buySignal("tokenA", 0.9)}, snaps, pf.Snapshot(), testNow.Add(time.Minute))
	assert.Empty(t, again)

	// after the window it trades again
	later := e.Decide([]*domain.Signal{buySignal("tokenA", 0.9)}, snaps, pf.Snapshot(), testNow.Add(6*time.Minute))
	assert.Len(t, later, 1)
}

func TestExecute_AppliesFilledNotRequested(t *testing.T) {
	pf := portfolio.New("wallet1", 1000)
	exec := &execution.SimulatedExecutor{FillFraction: 0.5}
	e, err := NewEngine(limitsNoCooldown(), exec, pf, nil, nil)
	require.NoError(t, err)

	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9)},
		snapshots(map[string]float64{"tokenA": 10}),
		pf.Snapshot(), testNow)
	require.Len(t, decisions, 1)
	assert.InDelta(t, 10, decisions[0].Amount, 1e-9)

	report := e.Execute(context.Background(), decisions, testNow)
	require.Equal(t, 1, report.Executed)

	h, ok := pf.Holding("tokenA")
	require.True(t, ok)
	assert.InDelta(t, 5, h.Amount, 1e-9, "half fill applied, not the requested amount")
	assert.InDelta(t, 1000-50, pf.Cash(), 1e-9)

	history := pf.History()
	require.Len(t, history, 1)
	assert.InDelta(t, 5, history[0].Amount, 1e-9)
	assert.True(t, history[0].Simulated)
}

func TestExecute_SlippageOvershootStillApplied(t *testing.T) {
	limits := limitsNoCooldown()
	limits.MaxAllocationPercent = 100

	pf := portfolio.New("wallet1", 100)
	e, err := NewEngine(limits, execution.NewSimulatedExecutor(0.5, 0.25), pf, nil, nil)
	require.NoError(t, err)

	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9)},
		snapshots(map[string]float64{"tokenA": 10}),
		pf.Snapshot(), testNow)
	require.Len(t, decisions, 1)
	assert.InDelta(t, 10, decisions[0].Amount, 1e-9)

	// slippage and fee push the fill value past the $100 reserved at
	// decision time; the confirmed fill must still be applied
	report := e.Execute(context.Background(), decisions, testNow)
	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, 0, report.Failed)

	h, ok := pf.Holding("tokenA")
	require.True(t, ok)
	assert.InDelta(t, 10, h.Amount, 1e-9)
	assert.Greater(t, h.AvgPrice, 10.0, "fill price includes slippage and fee")
	assert.InDelta(t, 0, pf.Cash(), 1e-9, "cash floors at zero on overshoot")

	history := pf.History()
	require.Len(t, history, 1)
	assert.InDelta(t, h.AvgPrice*h.Amount, history[0].Value, 1e-9)
}

func TestExecute_SellRoundTrip(t *testing.T) {
	e, pf := newTestEngine(t, limitsNoCooldown(), 1000)
	require.NoError(t, pf.DebitCash(100))
	require.NoError(t, pf.AddHolding("tokenA", "TKA", 10, 10, testNow))

	decisions := e.Decide(
		[]*domain.Signal{sellSignal("tokenA", 0.9)},
		snapshots(map[string]float64{"tokenA": 10}),
		pf.Snapshot(), testNow)
	require.Len(t, decisions, 1)

	report := e.Execute(context.Background(), decisions, testNow)
	require.Equal(t, 1, report.Executed)

	_, ok := pf.Holding("tokenA")
	assert.False(t, ok)
	assert.InDelta(t, 1000, pf.Cash(), 1e-9)
}

func TestExecute_FailureDoesNotAbortBatch(t *testing.T) {
	pf := portfolio.New("wallet1", 1000)
	exec := &failingExecutor{
		failFor: map[string]bool{"tokenA": true},
		inner:   execution.NewSimulatedExecutor(0, 0),
	}
	e, err := NewEngine(limitsNoCooldown(), exec, pf, nil, nil)
	require.NoError(t, err)

	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9), buySignal("tokenB", 0.8)},
		snapshots(map[string]float64{"tokenA": 10, "tokenB": 10}),
		pf.Snapshot(), testNow)
	require.Len(t, decisions, 2)

	report := e.Execute(context.Background(), decisions, testNow)
	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"tokenA", "tokenB"}, exec.calls, "failure must not stop later decisions")

	_, ok := pf.Holding("tokenA")
	assert.False(t, ok, "failed trade leaves the portfolio untouched")
	_, ok = pf.Holding("tokenB")
	assert.True(t, ok)
	require.Len(t, pf.History(), 1, "no record for a failed trade")

	require.Len(t, report.Results, 2)
	assert.Error(t, report.Results[0].Err)
	assert.Nil(t, report.Results[0].Record)
	require.NotNil(t, report.Results[1].Record)
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	e, pf := newTestEngine(t, limitsNoCooldown(), 1000)
	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9)},
		snapshots(map[string]float64{"tokenA": 10}),
		pf.Snapshot(), testNow)
	require.Len(t, decisions, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := e.Execute(ctx, decisions, testNow)
	assert.Zero(t, report.Executed)
	assert.Equal(t, 1, report.Cancelled)
	assert.InDelta(t, 1000, pf.Cash(), 1e-9)
}

func TestExecute_RecordIDsDistinct(t *testing.T) {
	e, pf := newTestEngine(t, limitsNoCooldown(), 1000)
	decisions := e.Decide(
		[]*domain.Signal{buySignal("tokenA", 0.9), buySignal("tokenB", 0.8)},
		snapshots(map[string]float64{"tokenA": 10, "tokenB": 10}),
		pf.Snapshot(), testNow)
	require.Len(t, decisions, 2)

	report := e.Execute(context.Background(), decisions, testNow)
	require.Equal(t, 2, report.Executed)

	history := pf.History()
	require.Len(t, history, 2)
	assert.NotEqual(t, history[0].ID, history[1].ID)
}
