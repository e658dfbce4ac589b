package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/storage"
)

// SnapshotHistoryStore is an in-memory implementation of storage.SnapshotHistoryStore.
type SnapshotHistoryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SnapshotPoint // keyed by (token_address, timestamp_ms)
}

// NewSnapshotHistoryStore creates a new in-memory snapshot history store.
func NewSnapshotHistoryStore() *SnapshotHistoryStore {
	return &SnapshotHistoryStore{
		data: make(map[string]*domain.SnapshotPoint),
	}
}

// pointKey generates a unique key for a snapshot point.
func pointKey(tokenAddress string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", tokenAddress, timestampMs)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *SnapshotHistoryStore) InsertBulk(_ context.Context, points []*domain.SnapshotPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(points))

	for _, p := range points {
		if p == nil || p.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
		key := pointKey(p.TokenAddress, p.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		key := pointKey(p.TokenAddress, p.TimestampMs)
		pointCopy := *p
		s.data[key] = &pointCopy
	}

	return nil
}

// GetByToken retrieves all points for a token, ordered by timestamp ASC.
func (s *SnapshotHistoryStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.SnapshotPoint, error) {
	return s.GetByTokenSince(ctx, tokenAddress, 0)
}

// GetByTokenSince retrieves points for a token with timestamp_ms >= sinceMs,
// ordered by timestamp ASC.
func (s *SnapshotHistoryStore) GetByTokenSince(_ context.Context, tokenAddress string, sinceMs int64) ([]*domain.SnapshotPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SnapshotPoint
	for _, p := range s.data {
		if p.TokenAddress == tokenAddress && p.TimestampMs >= sinceMs {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)
