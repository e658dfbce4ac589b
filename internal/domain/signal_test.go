package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp01(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"below range", -0.5, 0},
		{"zero", 0, 0},
		{"in range", 0.42, 0.42},
		{"one", 1, 1},
		{"above range", 1.7, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp01(tt.in))
		})
	}
}

func TestSignalClone(t *testing.T) {
	sentiment := 0.8
	orig := &Signal{
		Type:         SignalBuy,
		TokenAddress: "So11111111111111111111111111111111111111112",
		Strength:     0.9,
		Reasons:      []string{"momentum breakout"},
		Strategy:     "momentum",
		CreatedAt:    time.Unix(1700000000, 0),
		Enhancement:  &Enhancement{Sentiment: &sentiment, Rationale: "bullish"},
	}

	clone := orig.Clone()
	clone.Strength = 0.1
	clone.Reasons = append(clone.Reasons, "extra")
	clone.Enhancement.Rationale = "bearish"

	assert.Equal(t, 0.9, orig.Strength)
	assert.Equal(t, []string{"momentum breakout"}, orig.Reasons)
	assert.Equal(t, "bullish", orig.Enhancement.Rationale)
}

func TestSignalReason(t *testing.T) {
	s := &Signal{Reasons: []string{"RSI=62", "AI: strong sentiment"}}
	assert.Equal(t, "RSI=62; AI: strong sentiment", s.Reason())

	empty := &Signal{}
	assert.Equal(t, "", empty.Reason())
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr error
	}{
		{
			name: "valid mint",
			addr: "So11111111111111111111111111111111111111112",
		},
		{
			name:    "empty",
			addr:    "",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "not base58",
			addr:    "0x4200000000000000000000000000000000000006",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "wrong length",
			addr:    "abc",
			wantErr: ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
