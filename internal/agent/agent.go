// Package agent wires market data, strategies, aggregation and the
// decision engine into a single control loop.
// Flow per cycle: refresh → persist history → evaluate → aggregate → decide → execute
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-trading-agent/internal/aggregator"
	"solana-trading-agent/internal/decision"
	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/market"
	"solana-trading-agent/internal/observability"
	"solana-trading-agent/internal/portfolio"
	"solana-trading-agent/internal/storage"
	"solana-trading-agent/internal/strategy"
)

var ErrNoStrategies = errors.New("agent requires at least one strategy")

const (
	// DefaultInterval is the cycle cadence when no block events arrive.
	DefaultInterval = 30 * time.Second

	// DefaultMinEventGap throttles block-triggered cycles. Blocks land
	// far more often than market data changes meaningfully.
	DefaultMinEventGap = 5 * time.Second

	// DefaultHistoryLookback bounds the snapshot history loaded for
	// strategy evaluation.
	DefaultHistoryLookback = 24 * time.Hour
)

// Config holds agent loop settings.
type Config struct {
	Interval        time.Duration
	MinEventGap     time.Duration
	HistoryLookback time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Interval <= 0 {
		out.Interval = DefaultInterval
	}
	if out.MinEventGap <= 0 {
		out.MinEventGap = DefaultMinEventGap
	}
	if out.HistoryLookback <= 0 {
		out.HistoryLookback = DefaultHistoryLookback
	}
	return out
}

// Options for creating an Agent.
type Options struct {
	Tracker    *market.Tracker
	Strategies []strategy.Strategy
	Aggregator *aggregator.Aggregator
	Engine     *decision.Engine
	Portfolio  *portfolio.Portfolio

	// History is optional; without it strategies see no lookback data.
	History storage.SnapshotHistoryStore

	// Events is optional; block notifications trigger early cycles.
	Events <-chan market.BlockEvent

	Config *Config
	Logger *log.Logger
}

// Agent runs the trading control loop.
type Agent struct {
	tracker    *market.Tracker
	strategies []strategy.Strategy
	aggregator *aggregator.Aggregator
	engine     *decision.Engine
	portfolio  *portfolio.Portfolio
	history    storage.SnapshotHistoryStore
	events     <-chan market.BlockEvent
	config     Config
	logger     *log.Logger

	// lastPersisted tracks the newest snapshot timestamp written per
	// token, so retained (stale) snapshots are not re-inserted.
	lastPersisted map[string]int64
}

// New creates an Agent. Tracker, strategies, aggregator, engine and
// portfolio are required.
func New(opts Options) (*Agent, error) {
	if opts.Tracker == nil {
		return nil, errors.New("agent requires a tracker")
	}
	if len(opts.Strategies) == 0 {
		return nil, ErrNoStrategies
	}
	if opts.Aggregator == nil {
		return nil, errors.New("agent requires an aggregator")
	}
	if opts.Engine == nil {
		return nil, errors.New("agent requires a decision engine")
	}
	if opts.Portfolio == nil {
		return nil, errors.New("agent requires a portfolio")
	}

	return &Agent{
		tracker:       opts.Tracker,
		strategies:    opts.Strategies,
		aggregator:    opts.Aggregator,
		engine:        opts.Engine,
		portfolio:     opts.Portfolio,
		history:       opts.History,
		events:        opts.Events,
		config:        opts.Config.withDefaults(),
		logger:        opts.Logger,
		lastPersisted: make(map[string]int64),
	}, nil
}

// CycleResult summarizes one control-loop cycle.
type CycleResult struct {
	Updated   int // snapshots refreshed this cycle
	Retained  int // snapshots carried over from a failed fetch
	Drafts    int // raw signals from strategies
	Signals   int // signals surviving aggregation
	Decisions int
	Executed  int
	Failed    int
	Cancelled int
}

// Run executes cycles on the configured interval, and early when a
// block event arrives. It returns when ctx is cancelled; an in-flight
// trade execution loop finishes its current trade first.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	a.logf("agent started: interval=%s strategies=%d tokens=%d",
		a.config.Interval, len(a.strategies), len(a.tracker.Addresses()))

	// First cycle immediately
	a.cycle(ctx)

	events := a.events
	var lastEventCycle time.Time

	for {
		select {
		case <-ctx.Done():
			a.logf("agent stopping: %v", ctx.Err())
			return ctx.Err()

		case <-ticker.C:
			a.cycle(ctx)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			observability.RecordBlockEvent()
			if time.Since(lastEventCycle) < a.config.MinEventGap {
				continue
			}
			lastEventCycle = time.Now()
			a.logf("block event slot=%d, running early cycle", ev.Slot)
			a.cycle(ctx)
			ticker.Reset(a.config.Interval)
		}
	}
}

// cycle runs one full market-update cycle and reports it.
func (a *Agent) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	result, err := a.runCycle(ctx, start)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		a.logf("cycle failed after %s: %v", elapsed.Round(time.Millisecond), err)
	} else {
		a.logf("cycle done in %s: updated=%d retained=%d drafts=%d signals=%d decisions=%d executed=%d failed=%d cancelled=%d",
			elapsed.Round(time.Millisecond),
			result.Updated, result.Retained, result.Drafts, result.Signals,
			result.Decisions, result.Executed, result.Failed, result.Cancelled)
		observability.DefaultMetrics.LastSuccessfulCycle.Set(float64(time.Now().Unix()))
	}
	observability.RecordCycle(status, elapsed.Seconds())

	prices := a.tracker.Prices()
	view := a.portfolio.Snapshot()
	observability.UpdatePortfolio(a.portfolio.TotalValue(prices), view.Cash, len(view.Holdings))
}

// runCycle performs the cycle stages. Transient collaborator failures
// are absorbed per stage; only a failure that leaves nothing to work
// with is returned as an error.
func (a *Agent) runCycle(ctx context.Context, now time.Time) (*CycleResult, error) {
	result := &CycleResult{}

	// 1. Refresh market data. On fetch failure stale snapshots are
	// retained and the cycle proceeds with them.
	refreshStart := time.Now()
	updated, retained, err := a.tracker.Refresh(ctx)
	result.Updated, result.Retained = updated, retained
	if err != nil {
		a.logf("market refresh failed, continuing with %d cached snapshots: %v", retained, err)
		observability.RecordMarketRefresh("error", updated, time.Since(refreshStart).Seconds())
	} else {
		observability.RecordMarketRefresh("ok", updated, time.Since(refreshStart).Seconds())
	}
	observability.DefaultMetrics.TrackedTokens.Set(float64(len(a.tracker.Addresses())))

	batch := a.tracker.Batch()
	if len(batch) == 0 {
		return result, errors.New("no market data available")
	}

	// 2. Persist fresh snapshots so future cycles see them as history.
	a.persistSnapshots(ctx, batch)

	// 3. Evaluate strategies concurrently over the immutable batch.
	drafts := a.evaluate(ctx, batch, now)
	result.Drafts = len(drafts)

	// 4. Aggregate.
	signals, err := a.aggregator.Aggregate(ctx, drafts)
	if err != nil {
		return result, fmt.Errorf("aggregate signals: %w", err)
	}
	result.Signals = len(signals)
	observability.DefaultMetrics.SignalsAggregated.Add(float64(len(signals)))

	if ctx.Err() != nil {
		// Cancelled before execution: nothing has been applied yet.
		return result, nil
	}

	// 5. Decide and execute.
	decisions := a.engine.Decide(signals, a.tracker.Snapshots(), a.portfolio.Snapshot(), now)
	result.Decisions = len(decisions)

	report := a.engine.Execute(ctx, decisions, now)
	result.Executed = report.Executed
	result.Failed = report.Failed
	result.Cancelled = report.Cancelled

	for _, r := range report.Results {
		if r.Err != nil {
			if r.Decision != nil {
				observability.RecordTradeFailed(string(r.Decision.Side))
			}
			continue
		}
		if r.Record != nil {
			observability.RecordTradeExecuted(string(r.Record.Side), r.Record.Value)
		}
	}

	return result, nil
}

// persistSnapshots writes snapshots not yet recorded to the history
// store. Failures are logged; history is advisory for strategies, not
// required for the cycle to proceed.
func (a *Agent) persistSnapshots(ctx context.Context, batch []*domain.TokenSnapshot) {
	if a.history == nil {
		return
	}

	var points []*domain.SnapshotPoint
	for _, snap := range batch {
		ts := snap.FetchedAt.UnixMilli()
		if ts <= a.lastPersisted[snap.Address] {
			continue
		}
		points = append(points, &domain.SnapshotPoint{
			TokenAddress: snap.Address,
			TimestampMs:  ts,
			Price:        snap.Price,
			Volume24h:    snap.Volume24h,
			MarketCap:    snap.MarketCap,
		})
	}
	if len(points) == 0 {
		return
	}

	if err := a.history.InsertBulk(ctx, points); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			a.logf("persist %d snapshot points failed: %v", len(points), err)
		}
		return
	}
	for _, p := range points {
		a.lastPersisted[p.TokenAddress] = p.TimestampMs
	}
}

// evaluate fans strategies out over the batch and joins their draft
// signals. A strategy error drops that strategy's output for the
// cycle; it never fails the cycle.
func (a *Agent) evaluate(ctx context.Context, batch []*domain.TokenSnapshot, now time.Time) []*domain.Signal {
	input := &strategy.Input{
		Snapshots: batch,
		History:   a.loadHistory(ctx, batch, now),
		Now:       now,
	}

	results := make([][]*domain.Signal, len(a.strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range a.strategies {
		i, s := i, s
		g.Go(func() error {
			signals, err := s.Evaluate(gctx, input)
			if err != nil {
				a.logf("strategy %s failed: %v", s.Name(), err)
				return nil
			}
			results[i] = signals
			return nil
		})
	}
	_ = g.Wait()

	var drafts []*domain.Signal
	for _, signals := range results {
		for _, sig := range signals {
			if sig == nil {
				continue
			}
			observability.RecordSignal(sig.Strategy, string(sig.Type))
			drafts = append(drafts, sig)
		}
	}
	return drafts
}

// loadHistory pulls each token's recent snapshot points for strategy
// lookback. Per-token load failures leave that token without history.
func (a *Agent) loadHistory(ctx context.Context, batch []*domain.TokenSnapshot, now time.Time) map[string][]domain.PricePoint {
	history := make(map[string][]domain.PricePoint, len(batch))
	if a.history == nil {
		return history
	}

	sinceMs := now.Add(-a.config.HistoryLookback).UnixMilli()
	for _, snap := range batch {
		points, err := a.history.GetByTokenSince(ctx, snap.Address, sinceMs)
		if err != nil {
			a.logf("load history for %s failed: %v", snap.Address, err)
			continue
		}
		if len(points) == 0 {
			continue
		}
		series := make([]domain.PricePoint, 0, len(points))
		for _, p := range points {
			series = append(series, domain.PricePointFromSnapshot(p))
		}
		history[snap.Address] = series
	}
	return history
}

func (a *Agent) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf("[agent] "+format, args...)
	}
}
