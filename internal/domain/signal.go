package domain

import (
	"strings"
	"time"
)

// SignalType is the direction of a trading recommendation.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is a directional recommendation produced by a strategy,
// optionally re-scored by the AI enhancement collaborator.
// Strength is always kept within [0,1]; Reasons is an ordered sequence of
// rationale fragments (the strategy's original reason first, the AI
// fragment appended if enhancement ran).
type Signal struct {
	Type         SignalType
	TokenAddress string
	Strength     float64
	Reasons      []string
	Strategy     string
	CreatedAt    time.Time

	// Enhancement is attached only when AI enhancement succeeded.
	Enhancement *Enhancement
}

// Enhancement is the optional AI record attached to a signal.
// All pointer fields may be absent.
type Enhancement struct {
	Sentiment       *float64 // [0,1]
	PriceTarget     *float64 // USD
	StopLoss        *float64 // USD
	ConfidenceDelta float64  // adjustment applied to strength
	Rationale       string
}

// Reason joins the rationale fragments for display.
func (s *Signal) Reason() string {
	return strings.Join(s.Reasons, "; ")
}

// Clone returns a deep copy. The aggregator mutates copies, never the
// originals handed in by strategies.
func (s *Signal) Clone() *Signal {
	c := *s
	c.Reasons = append([]string(nil), s.Reasons...)
	if s.Enhancement != nil {
		e := *s.Enhancement
		c.Enhancement = &e
	}
	return &c
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
