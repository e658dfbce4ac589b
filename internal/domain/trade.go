package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TradeSide is the direction of a trade order.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// TradeDecision is an ephemeral, sized trade instruction derived from a
// confidence-filtered signal. It is not persisted unless execution
// confirms it, at which point a TradeRecord is appended.
type TradeDecision struct {
	Side         TradeSide
	TokenAddress string
	Symbol       string
	Amount       float64 // token units
	Price        float64 // USD per token at decision time
	Strength     float64 // source signal strength
	Reason       string
	Strategy     string
}

// Value is the USD value of the decision at its decision-time price.
func (d *TradeDecision) Value() float64 {
	return d.Amount * d.Price
}

// TradeRecord is an immutable record of a confirmed trade. Records are
// appended to the portfolio history and the trade record store; they are
// never edited or removed.
type TradeRecord struct {
	ID           string // deterministic hash, see ComputeTradeID
	Timestamp    time.Time
	TokenAddress string
	Symbol       string
	Side         TradeSide
	Amount       float64 // filled token units
	Price        float64 // filled price, USD per token
	Value        float64 // Amount * Price
	Simulated    bool
	Strategy     string  // originating signal's strategy
	Strength     float64 // originating signal's strength
}

// ComputeTradeID computes a deterministic trade ID using SHA256.
// Formula: SHA256(token|side|timestamp_ms|seq) where seq is the position
// in the portfolio history at append time. Returns hex (64 characters).
func ComputeTradeID(tokenAddress string, side TradeSide, timestampMs int64, seq int) string {
	data := fmt.Sprintf("%s|%s|%d|%d", tokenAddress, side, timestampMs, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Holding is a position in one token within a portfolio. Amount is never
// negative; AvgPrice is the volume-weighted average purchase price.
type Holding struct {
	TokenAddress string
	Symbol       string
	Amount       float64
	AvgPrice     float64
	UpdatedAt    time.Time
}

// Value returns the holding's value at the given current price.
func (h *Holding) Value(price float64) float64 {
	return h.Amount * price
}

// UnrealizedPnL returns profit/loss against the average purchase price.
func (h *Holding) UnrealizedPnL(price float64) float64 {
	return h.Amount * (price - h.AvgPrice)
}
