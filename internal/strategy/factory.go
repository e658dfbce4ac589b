package strategy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Registry names for the built-in strategies.
const (
	StrategyMarketPulse = "pulse"
	StrategyMomentum    = "momentum"
)

// Factory errors
var (
	ErrUnknownStrategy = errors.New("unknown strategy name")
	ErrEmptyStrategies = errors.New("at least one strategy is required")
	ErrBadWeight       = errors.New("malformed strategy weight")
	ErrBadParam        = errors.New("invalid strategy parameter")
)

// Config selects a strategy by registry name with optional parameter
// overrides. Nil fields keep the strategy's defaults.
type Config struct {
	Name string

	// Market pulse parameters.
	VolatilityThreshold  *float64
	MomentumThreshold    *float64
	ConfidenceMultiplier *float64

	// Momentum parameters.
	RSIPeriod     *int
	RSIOverbought *float64
	RSIOversold   *float64
	MACDFast      *int
	MACDSlow      *int
	MACDSignal    *int

	// VolumeThreshold is a minimum USD volume for pulse and an
	// average-volume multiplier for momentum.
	VolumeThreshold *float64
}

// FromConfig creates a Strategy from a Config, validating overridden
// parameters. Strategies are registered under a string key decided at
// startup; no runtime discovery is involved.
func FromConfig(cfg Config) (Strategy, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Name)) {
	case StrategyMarketPulse:
		return fromPulseConfig(cfg)
	case StrategyMomentum:
		return fromMomentumConfig(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Name)
	}
}

// FromName builds a strategy with its default parameters.
func FromName(name string) (Strategy, error) {
	return FromConfig(Config{Name: name})
}

func fromPulseConfig(cfg Config) (*MarketPulseStrategy, error) {
	s := NewMarketPulseStrategy(0.05, 0.03, 1000, 1.0)
	if cfg.VolatilityThreshold != nil {
		s.VolatilityThreshold = *cfg.VolatilityThreshold
	}
	if cfg.MomentumThreshold != nil {
		s.MomentumThreshold = *cfg.MomentumThreshold
	}
	if cfg.VolumeThreshold != nil {
		s.VolumeThreshold = *cfg.VolumeThreshold
	}
	if cfg.ConfidenceMultiplier != nil {
		s.ConfidenceMultiplier = *cfg.ConfidenceMultiplier
	}

	if s.VolatilityThreshold <= 0 {
		return nil, fmt.Errorf("%w: volatility threshold must be positive, got %f", ErrBadParam, s.VolatilityThreshold)
	}
	if s.MomentumThreshold <= 0 {
		return nil, fmt.Errorf("%w: momentum threshold must be positive, got %f", ErrBadParam, s.MomentumThreshold)
	}
	if s.VolumeThreshold < 0 {
		return nil, fmt.Errorf("%w: volume threshold must be non-negative, got %f", ErrBadParam, s.VolumeThreshold)
	}
	if s.ConfidenceMultiplier <= 0 {
		return nil, fmt.Errorf("%w: confidence multiplier must be positive, got %f", ErrBadParam, s.ConfidenceMultiplier)
	}
	return s, nil
}

func fromMomentumConfig(cfg Config) (*MomentumStrategy, error) {
	s := NewMomentumStrategy(14, 70, 30, 12, 26, 9, 3.0)
	if cfg.RSIPeriod != nil {
		s.RSIPeriod = *cfg.RSIPeriod
	}
	if cfg.RSIOverbought != nil {
		s.RSIOverbought = *cfg.RSIOverbought
	}
	if cfg.RSIOversold != nil {
		s.RSIOversold = *cfg.RSIOversold
	}
	if cfg.MACDFast != nil {
		s.MACDFast = *cfg.MACDFast
	}
	if cfg.MACDSlow != nil {
		s.MACDSlow = *cfg.MACDSlow
	}
	if cfg.MACDSignal != nil {
		s.MACDSignal = *cfg.MACDSignal
	}
	if cfg.VolumeThreshold != nil {
		s.VolumeThreshold = *cfg.VolumeThreshold
	}

	if s.RSIPeriod <= 0 {
		return nil, fmt.Errorf("%w: RSI period must be positive, got %d", ErrBadParam, s.RSIPeriod)
	}
	if s.RSIOversold < 0 || s.RSIOverbought > 100 || s.RSIOversold >= s.RSIOverbought {
		return nil, fmt.Errorf("%w: RSI bands must satisfy 0 <= oversold < overbought <= 100, got %f/%f", ErrBadParam, s.RSIOversold, s.RSIOverbought)
	}
	if s.MACDFast <= 0 || s.MACDSignal <= 0 || s.MACDFast >= s.MACDSlow {
		return nil, fmt.Errorf("%w: MACD periods must satisfy 0 < fast < slow with a positive signal period, got %d/%d/%d", ErrBadParam, s.MACDFast, s.MACDSlow, s.MACDSignal)
	}
	if s.VolumeThreshold <= 0 {
		return nil, fmt.Errorf("%w: volume threshold must be positive, got %f", ErrBadParam, s.VolumeThreshold)
	}
	return s, nil
}

// ParseList resolves a comma-separated strategy list, e.g.
// "momentum,pulse". Duplicate names collapse to one instance.
func ParseList(list string) ([]Strategy, error) {
	seen := make(map[string]struct{})
	var strategies []Strategy
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		s, err := FromName(name)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	if len(strategies) == 0 {
		return nil, ErrEmptyStrategies
	}
	return strategies, nil
}

// ParseWeights parses "momentum=1.0,pulse=0.8" into a weight map.
// Unknown strategy names are rejected; strategies absent from the map
// default to weight 1.0 at aggregation time.
func ParseWeights(list string) (map[string]float64, error) {
	weights := make(map[string]float64)
	if strings.TrimSpace(list) == "" {
		return weights, nil
	}
	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrBadWeight, pair)
		}
		key = strings.TrimSpace(strings.ToLower(key))
		if _, err := FromName(key); err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrBadWeight, pair, err)
		}
		if w < 0 {
			return nil, fmt.Errorf("%w: %q: weight must be non-negative", ErrBadWeight, pair)
		}
		weights[key] = w
	}
	return weights, nil
}
