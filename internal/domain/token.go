package domain

import (
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// TokenSnapshot is a point-in-time read of a token's market attributes.
// Snapshots are created fresh each market-update cycle by the market data
// collaborator and are never mutated by the core; a new cycle supersedes
// the previous snapshot rather than editing it.
type TokenSnapshot struct {
	Address        string  // mint address, unique identifier
	Symbol         string
	Name           string
	Price          float64 // current price in USD, non-negative
	PriceChange24h float64 // percent
	Volume24h      float64 // USD
	MarketCap      float64 // USD
	Decimals       int

	FetchedAt time.Time
}

// Validate checks snapshot fields that the core relies on.
func (s *TokenSnapshot) Validate() error {
	if err := ValidateAddress(s.Address); err != nil {
		return err
	}
	if s.Price < 0 {
		return fmt.Errorf("%w: negative price %f for %s", ErrInvalidSnapshot, s.Price, s.Address)
	}
	return nil
}

// ValidateAddress checks that addr is a base58-encoded 32-byte mint address.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAddress, addr, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %s: decoded to %d bytes, want 32", ErrInvalidAddress, addr, len(raw))
	}
	return nil
}
