package strategy

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"solana-trading-agent/internal/domain"
)

// MomentumStrategy identifies tokens with strong directional movement
// using RSI, MACD histogram, and volume analysis over snapshot history.
// Tokens without enough history are silently skipped.
type MomentumStrategy struct {
	RSIPeriod       int
	RSIOverbought   float64
	RSIOversold     float64
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	VolumeThreshold float64 // multiplier of average volume
}

// NewMomentumStrategy creates a MomentumStrategy with the given parameters.
func NewMomentumStrategy(rsiPeriod int, rsiOverbought, rsiOversold float64, macdFast, macdSlow, macdSignal int, volumeThreshold float64) *MomentumStrategy {
	return &MomentumStrategy{
		RSIPeriod:       rsiPeriod,
		RSIOverbought:   rsiOverbought,
		RSIOversold:     rsiOversold,
		MACDFast:        macdFast,
		MACDSlow:        macdSlow,
		MACDSignal:      macdSignal,
		VolumeThreshold: volumeThreshold,
	}
}

// Name returns the registry name.
func (s *MomentumStrategy) Name() string { return StrategyMomentum }

// minHistory is the number of points needed before indicators stabilize.
func (s *MomentumStrategy) minHistory() int {
	n := s.MACDSlow + s.MACDSignal
	if s.RSIPeriod+1 > n {
		n = s.RSIPeriod + 1
	}
	return n
}

// Evaluate computes indicators per token and emits BUY on a confirmed
// bullish alignment (RSI above midline but not overbought, rising MACD
// histogram, volume spike) and SELL on the bearish mirror.
func (s *MomentumStrategy) Evaluate(_ context.Context, input *Input) ([]*domain.Signal, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var signals []*domain.Signal
	for _, snap := range input.Snapshots {
		if snap == nil || snap.Price <= 0 {
			continue
		}
		history := input.history(snap.Address)
		if len(history) < s.minHistory() {
			continue
		}

		prices := make([]float64, len(history))
		volumes := make([]float64, len(history))
		for i, p := range history {
			prices[i] = p.Price
			volumes[i] = p.Volume
		}

		rsi := talib.Rsi(prices, s.RSIPeriod)
		_, _, hist := talib.Macd(prices, s.MACDFast, s.MACDSlow, s.MACDSignal)
		if len(rsi) < 1 || len(hist) < 2 {
			continue
		}

		currentRSI := rsi[len(rsi)-1]
		currentHist := hist[len(hist)-1]
		prevHist := hist[len(hist)-2]
		volumeRatio := s.volumeRatio(volumes)

		switch {
		case currentRSI > 50 && currentRSI < s.RSIOverbought &&
			currentHist > 0 && currentHist > prevHist &&
			volumeRatio > s.VolumeThreshold:

			strength := domain.Clamp01(
				(currentRSI-50)/(s.RSIOverbought-50)*0.3 +
					volumeRatio/s.VolumeThreshold*0.3 +
					min2(1, currentHist/0.02)*0.2 +
					0.1)
			signals = append(signals, &domain.Signal{
				Type:         domain.SignalBuy,
				TokenAddress: snap.Address,
				Strength:     strength,
				Reasons: []string{fmt.Sprintf("momentum: RSI=%.1f, MACD hist=%.4f, volume=%.1fx avg",
					currentRSI, currentHist, volumeRatio)},
				Strategy:  s.Name(),
				CreatedAt: input.Now,
			})

		case currentRSI < 50 && currentRSI > s.RSIOversold &&
			currentHist < 0 && currentHist < prevHist:

			strength := domain.Clamp01(
				(50-currentRSI)/(50-s.RSIOversold)*0.4 +
					min2(1, abs(currentHist)/0.02)*0.3 +
					0.2)
			signals = append(signals, &domain.Signal{
				Type:         domain.SignalSell,
				TokenAddress: snap.Address,
				Strength:     strength,
				Reasons: []string{fmt.Sprintf("momentum: RSI=%.1f, MACD hist=%.4f, bearish divergence",
					currentRSI, currentHist)},
				Strategy:  s.Name(),
				CreatedAt: input.Now,
			})
		}
	}

	return signals, nil
}

// volumeRatio compares the latest volume to the average of the window
// before the most recent five points.
func (s *MomentumStrategy) volumeRatio(volumes []float64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	recent := volumes[len(volumes)-1]

	base := volumes
	if len(volumes) > 5 {
		base = volumes[:len(volumes)-5]
	}
	var sum float64
	for _, v := range base {
		sum += v
	}
	avg := sum / float64(len(base))
	if avg <= 0 {
		return 0
	}
	return recent / avg
}

var _ Strategy = (*MomentumStrategy)(nil)
