package storage

import (
	"context"

	"solana-trading-agent/internal/domain"
)

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByToken retrieves all trades for a token, ordered by timestamp ASC.
	GetByToken(ctx context.Context, tokenAddress string) ([]*domain.TradeRecord, error)

	// GetAll retrieves all trades, ordered by timestamp ASC.
	GetAll(ctx context.Context) ([]*domain.TradeRecord, error)
}

// SnapshotHistoryStore provides access to snapshot_history storage.
type SnapshotHistoryStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate
	// (token_address, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.SnapshotPoint) error

	// GetByToken retrieves all points for a token, ordered by timestamp ASC.
	GetByToken(ctx context.Context, tokenAddress string) ([]*domain.SnapshotPoint, error)

	// GetByTokenSince retrieves points for a token with timestamp_ms >= since,
	// ordered by timestamp ASC.
	GetByTokenSince(ctx context.Context, tokenAddress string, sinceMs int64) ([]*domain.SnapshotPoint, error)
}
