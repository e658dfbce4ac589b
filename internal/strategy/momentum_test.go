package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trading-agent/internal/domain"
)

func makeHistory(prices, volumes []float64, start time.Time, step time.Duration) []domain.PricePoint {
	points := make([]domain.PricePoint, len(prices))
	for i := range prices {
		points[i] = domain.PricePoint{
			TimestampMs: start.Add(time.Duration(i) * step).UnixMilli(),
			Price:       prices[i],
			Volume:      volumes[i],
		}
	}
	return points
}

// oscillating series long enough for RSI(14) and MACD(12,26,9).
func syntheticSeries(n int) (prices, volumes []float64) {
	prices = make([]float64, n)
	volumes = make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = 1.0 + 0.05*math.Sin(float64(i)/4) + 0.002*float64(i)
		volumes[i] = 1000 + 200*math.Sin(float64(i)/3)
	}
	return prices, volumes
}

func TestMomentum_InsufficientHistorySkipped(t *testing.T) {
	s := NewMomentumStrategy(14, 70, 30, 12, 26, 9, 3.0)

	prices, volumes := syntheticSeries(10)
	input := &Input{
		Snapshots: []*domain.TokenSnapshot{snap("tokenA", 1.2, 4.0, 5000)},
		History: map[string][]domain.PricePoint{
			"tokenA": makeHistory(prices, volumes, testNow.Add(-time.Hour), time.Minute),
		},
		Now: testNow,
	}

	signals, err := s.Evaluate(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentum_NoHistoryNoSignals(t *testing.T) {
	s := NewMomentumStrategy(14, 70, 30, 12, 26, 9, 3.0)

	signals, err := s.Evaluate(context.Background(), &Input{
		Snapshots: []*domain.TokenSnapshot{snap("tokenA", 1.2, 4.0, 5000)},
		Now:       testNow,
	})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentum_OutputsValid(t *testing.T) {
	s := NewMomentumStrategy(14, 70, 30, 12, 26, 9, 1.0)

	prices, volumes := syntheticSeries(60)
	input := &Input{
		Snapshots: []*domain.TokenSnapshot{snap("tokenA", prices[len(prices)-1], 4.0, 5000)},
		History: map[string][]domain.PricePoint{
			"tokenA": makeHistory(prices, volumes, testNow.Add(-time.Hour), time.Minute),
		},
		Now: testNow,
	}

	signals, err := s.Evaluate(context.Background(), input)
	require.NoError(t, err)
	for _, sig := range signals {
		assert.Contains(t, []domain.SignalType{domain.SignalBuy, domain.SignalSell}, sig.Type)
		assert.GreaterOrEqual(t, sig.Strength, 0.0)
		assert.LessOrEqual(t, sig.Strength, 1.0)
		assert.Equal(t, "tokenA", sig.TokenAddress)
		assert.Equal(t, StrategyMomentum, sig.Strategy)
		assert.NotEmpty(t, sig.Reasons)
	}
}

func TestMomentum_Deterministic(t *testing.T) {
	s := NewMomentumStrategy(14, 70, 30, 12, 26, 9, 1.0)

	prices, volumes := syntheticSeries(80)
	input := &Input{
		Snapshots: []*domain.TokenSnapshot{
			snap("tokenA", prices[len(prices)-1], 4.0, 5000),
			snap("tokenB", 0.5, -3.0, 2500),
		},
		History: map[string][]domain.PricePoint{
			"tokenA": makeHistory(prices, volumes, testNow.Add(-time.Hour), time.Minute),
			"tokenB": makeHistory(volumes, prices, testNow.Add(-time.Hour), time.Minute),
		},
		Now: testNow,
	}

	first, err := s.Evaluate(context.Background(), input)
	require.NoError(t, err)
	for run := 0; run < 5; run++ {
		again, err := s.Evaluate(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, first, again, "run %d differs", run)
	}
}

func TestMomentum_MinHistory(t *testing.T) {
	assert.Equal(t, 35, NewMomentumStrategy(14, 70, 30, 12, 26, 9, 3.0).minHistory())
	assert.Equal(t, 51, NewMomentumStrategy(50, 70, 30, 12, 26, 9, 3.0).minHistory())
}

func TestMomentum_VolumeRatio(t *testing.T) {
	s := NewMomentumStrategy(14, 70, 30, 12, 26, 9, 3.0)

	tests := []struct {
		name    string
		volumes []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"zero average", []float64{0, 0, 0}, 0},
		{"short window uses all points", []float64{100, 100, 400}, 2.0},
		{
			"long window excludes recent points",
			[]float64{100, 100, 100, 100, 9999, 9999, 9999, 9999, 300},
			3.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.volumeRatio(tt.volumes), 1e-9)
		})
	}
}
