package clickhouse

import (
	"context"
	"fmt"

	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/storage"
)

// SnapshotHistoryStore implements storage.SnapshotHistoryStore using ClickHouse.
type SnapshotHistoryStore struct {
	conn *Conn
}

// NewSnapshotHistoryStore creates a new SnapshotHistoryStore.
func NewSnapshotHistoryStore(conn *Conn) *SnapshotHistoryStore {
	return &SnapshotHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (token_address, timestamp_ms).
// MergeTree does not enforce uniqueness, so duplicates are detected at the
// application level before the batch is sent.
func (s *SnapshotHistoryStore) InsertBulk(ctx context.Context, points []*domain.SnapshotPoint) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p == nil || p.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	// Check for intra-batch duplicates
	type key struct {
		tokenAddress string
		timestampMs  int64
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		k := key{p.TokenAddress, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.TokenAddress, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO snapshot_history (
			token_address, timestamp_ms, price, volume_24h, market_cap
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.TokenAddress, uint64(p.TimestampMs),
			p.Price, p.Volume24h, p.MarketCap,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByToken retrieves all points for a token, ordered by timestamp ASC.
func (s *SnapshotHistoryStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.SnapshotPoint, error) {
	query := `
		SELECT token_address, timestamp_ms, price, volume_24h, market_cap
		FROM snapshot_history
		WHERE token_address = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("query by token: %w", err)
	}
	defer rows.Close()

	return scanSnapshotPoints(rows)
}

// GetByTokenSince retrieves points for a token with timestamp_ms >= sinceMs (inclusive),
// ordered by timestamp ASC.
func (s *SnapshotHistoryStore) GetByTokenSince(ctx context.Context, tokenAddress string, sinceMs int64) ([]*domain.SnapshotPoint, error) {
	query := `
		SELECT token_address, timestamp_ms, price, volume_24h, market_cap
		FROM snapshot_history
		WHERE token_address = ? AND timestamp_ms >= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenAddress, uint64(sinceMs))
	if err != nil {
		return nil, fmt.Errorf("query by token since: %w", err)
	}
	defer rows.Close()

	return scanSnapshotPoints(rows)
}

// exists checks if a point with the given key exists.
func (s *SnapshotHistoryStore) exists(ctx context.Context, tokenAddress string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM snapshot_history
		WHERE token_address = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, tokenAddress, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows abstracts driver rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanSnapshotPoints scans multiple rows.
func scanSnapshotPoints(rows chRows) ([]*domain.SnapshotPoint, error) {
	var points []*domain.SnapshotPoint

	for rows.Next() {
		var p domain.SnapshotPoint
		var timestampMs uint64

		err := rows.Scan(
			&p.TokenAddress, &timestampMs,
			&p.Price, &p.Volume24h, &p.MarketCap,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return points, nil
}
