package strategy

import (
	"context"
	"fmt"

	"solana-trading-agent/internal/domain"
)

// MarketPulseStrategy scores tokens on a blend of 24h volatility,
// momentum direction, and trading volume. It needs no price history, so
// it produces signals from the first cycle onward.
type MarketPulseStrategy struct {
	VolatilityThreshold  float64 // decimal, e.g. 0.05 for 5%
	MomentumThreshold    float64 // decimal
	VolumeThreshold      float64 // USD
	ConfidenceMultiplier float64
}

// NewMarketPulseStrategy creates a MarketPulseStrategy with the given
// parameters.
func NewMarketPulseStrategy(volatilityThreshold, momentumThreshold, volumeThreshold, confidenceMultiplier float64) *MarketPulseStrategy {
	return &MarketPulseStrategy{
		VolatilityThreshold:  volatilityThreshold,
		MomentumThreshold:    momentumThreshold,
		VolumeThreshold:      volumeThreshold,
		ConfidenceMultiplier: confidenceMultiplier,
	}
}

// Name returns the registry name.
func (s *MarketPulseStrategy) Name() string { return StrategyMarketPulse }

// Signal strength bounds: the floor keeps weak-but-present activity
// visible to the aggregator, the cap avoids automatic certainty.
const (
	pulseStrengthFloor = 0.1
	pulseStrengthCap   = 0.95
	pulseActionBar     = 0.6 // minimum strength to emit BUY/SELL
	pulseHoldBar       = 0.8 // minimum strength to emit an explicit HOLD
)

// Evaluate scores each snapshot. Strength is a weighted blend:
// volatility 30%, momentum 50%, volume 20%, with a half-strength penalty
// for near-dead volume. Momentum direction picks the side.
func (s *MarketPulseStrategy) Evaluate(_ context.Context, input *Input) ([]*domain.Signal, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var signals []*domain.Signal
	for _, snap := range input.Snapshots {
		if snap == nil || snap.Price <= 0 {
			continue
		}

		momentum := snap.PriceChange24h / 100
		volatility := momentum
		if volatility < 0 {
			volatility = -volatility
		}

		strength := s.score(volatility, momentum, snap.Volume24h)
		strength = domain.Clamp01(strength * s.ConfidenceMultiplier)
		if strength > pulseStrengthCap {
			strength = pulseStrengthCap
		}

		sigType := domain.SignalHold
		reason := "weak signal - insufficient market activity"
		if strength >= pulseActionBar {
			switch {
			case momentum > s.MomentumThreshold:
				sigType = domain.SignalBuy
				reason = fmt.Sprintf("strong positive momentum (%.2f%%) with volatility %.2f%%", momentum*100, volatility*100)
			case momentum < -s.MomentumThreshold:
				sigType = domain.SignalSell
				reason = fmt.Sprintf("negative momentum (%.2f%%) with volatility %.2f%%", momentum*100, volatility*100)
			default:
				reason = fmt.Sprintf("moderate momentum (%.2f%%) - holding", momentum*100)
			}
		}

		// HOLD signals are only worth surfacing when conviction is high.
		if sigType == domain.SignalHold && strength <= pulseHoldBar {
			continue
		}

		signals = append(signals, &domain.Signal{
			Type:         sigType,
			TokenAddress: snap.Address,
			Strength:     strength,
			Reasons:      []string{reason},
			Strategy:     s.Name(),
			CreatedAt:    input.Now,
		})
	}

	return signals, nil
}

// score blends the normalized inputs into [pulseStrengthFloor, 1].
func (s *MarketPulseStrategy) score(volatility, momentum, volume float64) float64 {
	normVolatility := min2(1, volatility/(s.VolatilityThreshold*2))
	normMomentum := min2(1, abs(momentum)/(s.MomentumThreshold*2))
	normVolume := min2(1, volume/(s.VolumeThreshold*2))

	volumeFactor := 1.0
	if volume < s.VolumeThreshold/10 {
		volumeFactor = 0.5
	}

	strength := (normVolatility*0.3 + normMomentum*0.5 + normVolume*0.2) * volumeFactor
	if strength < pulseStrengthFloor {
		strength = pulseStrengthFloor
	}
	return strength
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ Strategy = (*MarketPulseStrategy)(nil)
