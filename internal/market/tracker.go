package market

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"solana-trading-agent/internal/domain"
)

// Tracker maintains the latest known snapshot per tracked token. A
// refresh that fails, or returns only part of the set, retains the
// previous snapshot for the missing tokens so a flaky data source
// degrades to stale prices rather than no prices.
type Tracker struct {
	fetcher Fetcher
	logger  *log.Logger

	mu        sync.RWMutex
	addresses []string
	latest    map[string]*domain.TokenSnapshot
}

// NewTracker creates a tracker over the given token set.
func NewTracker(fetcher Fetcher, addresses []string, logger *log.Logger) (*Tracker, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("tracker requires a fetcher")
	}
	seen := make(map[string]struct{}, len(addresses))
	var deduped []string
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		deduped = append(deduped, addr)
	}
	if len(deduped) == 0 {
		return nil, fmt.Errorf("tracker requires at least one token address")
	}

	return &Tracker{
		fetcher:   fetcher,
		logger:    logger,
		addresses: deduped,
		latest:    make(map[string]*domain.TokenSnapshot),
	}, nil
}

// Addresses returns the tracked token set.
func (t *Tracker) Addresses() []string {
	return append([]string(nil), t.addresses...)
}

// Refresh fetches current snapshots and merges them into the cache.
// Returns how many tokens were updated and how many kept a stale (or
// absent) snapshot. A fetch error is returned after the retained counts
// are settled; the caller logs it and proceeds with the cache.
func (t *Tracker) Refresh(ctx context.Context) (updated, retained int, err error) {
	fetched, ferr := t.fetcher.FetchSnapshots(ctx, t.Addresses())
	if ferr != nil {
		if t.logger != nil {
			t.logger.Printf("snapshot fetch failed, keeping last-known data: %v", ferr)
		}
		return 0, len(t.addresses), fmt.Errorf("refresh: %w", ferr)
	}

	byAddr := make(map[string]*domain.TokenSnapshot, len(fetched))
	for _, snap := range fetched {
		if snap == nil || snap.Address == "" || snap.Price < 0 {
			continue
		}
		byAddr[snap.Address] = snap
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, addr := range t.addresses {
		if snap, ok := byAddr[addr]; ok {
			t.latest[addr] = snap
			updated++
		} else {
			retained++
		}
	}
	return updated, retained, nil
}

// Snapshots returns the current cache keyed by token address.
func (t *Tracker) Snapshots() map[string]*domain.TokenSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]*domain.TokenSnapshot, len(t.latest))
	for addr, snap := range t.latest {
		s := *snap
		out[addr] = &s
	}
	return out
}

// Batch returns the cached snapshots as a slice ordered by token
// address, the form strategies evaluate.
func (t *Tracker) Batch() []*domain.TokenSnapshot {
	snaps := t.Snapshots()
	out := make([]*domain.TokenSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Prices returns the cached price per token address.
func (t *Tracker) Prices() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.latest))
	for addr, snap := range t.latest {
		out[addr] = snap.Price
	}
	return out
}
