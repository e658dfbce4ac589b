package aggregator

import (
	"context"
	"log"
	"sort"
	"time"

	"solana-trading-agent/internal/ai"
	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/observability"
)

// Default configuration values.
const (
	DefaultConfidenceThreshold = 0.6
	DefaultEnhanceTimeout      = 20 * time.Second
)

// Aggregator merges draft signals from all strategies into one ranked,
// deduplicated batch: per-strategy weights, one surviving signal per
// token, an optional AI review pass, and a confidence floor.
type Aggregator struct {
	// Weights multiplies each signal's strength by its strategy's
	// weight. Strategies absent from the map default to 1.0.
	Weights map[string]float64

	// Enhancer reviews the deduplicated batch. Nil disables the pass.
	Enhancer ai.Enhancer

	// ConfidenceThreshold drops signals below this final strength.
	ConfidenceThreshold float64

	// EnhanceTimeout bounds the AI call. Zero means DefaultEnhanceTimeout.
	EnhanceTimeout time.Duration

	// Logger records enhancement failures. Nil discards.
	Logger *log.Logger
}

// New creates an Aggregator with the given weights and threshold and no
// enhancer.
func New(weights map[string]float64, confidenceThreshold float64) *Aggregator {
	return &Aggregator{
		Weights:             weights,
		ConfidenceThreshold: confidenceThreshold,
	}
}

// Aggregate runs the full pipeline over the drafts. Input signals are
// never mutated. Empty input returns an empty batch without touching
// the enhancer. The returned batch is sorted by descending strength,
// ties broken by token address ascending.
func (a *Aggregator) Aggregate(ctx context.Context, drafts []*domain.Signal) ([]*domain.Signal, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	weighted := make([]*domain.Signal, 0, len(drafts))
	for _, draft := range drafts {
		if draft == nil {
			continue
		}
		sig := draft.Clone()
		sig.Strength = domain.Clamp01(sig.Strength * a.weight(sig.Strategy))
		weighted = append(weighted, sig)
	}

	deduped := dedupe(weighted)
	a.enhance(ctx, deduped)

	survivors := deduped[:0]
	for _, sig := range deduped {
		if sig.Strength >= a.ConfidenceThreshold {
			survivors = append(survivors, sig)
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].Strength != survivors[j].Strength {
			return survivors[i].Strength > survivors[j].Strength
		}
		return survivors[i].TokenAddress < survivors[j].TokenAddress
	})
	return survivors, nil
}

func (a *Aggregator) weight(strategy string) float64 {
	if w, ok := a.Weights[strategy]; ok {
		return w
	}
	return 1.0
}

// dedupe keeps one signal per token: the highest strength wins, and on
// equal strength the earliest-created wins. Relative input order is
// preserved for the survivors.
func dedupe(signals []*domain.Signal) []*domain.Signal {
	best := make(map[string]int, len(signals))
	out := signals[:0]
	for _, sig := range signals {
		idx, seen := best[sig.TokenAddress]
		if !seen {
			best[sig.TokenAddress] = len(out)
			out = append(out, sig)
			continue
		}
		cur := out[idx]
		if sig.Strength > cur.Strength ||
			(sig.Strength == cur.Strength && sig.CreatedAt.Before(cur.CreatedAt)) {
			out[idx] = sig
		}
	}
	return out
}

// enhance runs the AI review over the batch and applies adjustments in
// place. Failures and timeouts leave every signal untouched; the cycle
// must proceed regardless.
func (a *Aggregator) enhance(ctx context.Context, signals []*domain.Signal) {
	if a.Enhancer == nil || len(signals) == 0 {
		return
	}

	timeout := a.EnhanceTimeout
	if timeout <= 0 {
		timeout = DefaultEnhanceTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	adjustments, err := a.Enhancer.EnhanceSignals(ctx, signals)
	if err != nil {
		observability.RecordAIEnhancement("error", time.Since(start).Seconds())
		a.logf("ai enhancement failed, passing signals through: %v", err)
		return
	}
	observability.RecordAIEnhancement("ok", time.Since(start).Seconds())

	byToken := make(map[string]ai.Adjustment, len(adjustments))
	for _, adj := range adjustments {
		byToken[adj.TokenAddress] = adj
	}
	for _, sig := range signals {
		adj, ok := byToken[sig.TokenAddress]
		if !ok {
			continue
		}
		prev := sig.Strength
		sig.Strength = domain.Clamp01(adj.Strength)
		if adj.Rationale != "" {
			sig.Reasons = append(sig.Reasons, adj.Rationale)
		}
		if adj.Enhancement != nil {
			enh := *adj.Enhancement
			enh.ConfidenceDelta = sig.Strength - prev
			sig.Enhancement = &enh
		}
	}
}

func (a *Aggregator) logf(format string, args ...interface{}) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
	}
}
