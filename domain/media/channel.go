package media

import (
	"fmt"

	"gomix/domain/core"
)

// ChannelKey uniquely identifies a marketing channel (e.g. "spend_tiktok").
type ChannelKey string

func (k ChannelKey) String() string { return string(k) }

// ChannelConfig holds the validated response parameters for one channel.
//
// INVARIANTS:
// - Theta (carryover rate) in [0, 1); 1 is rejected (infinite memory)
// - HalfSat (half-saturation point K) > 0, or 0 meaning "derive from data"
// - Shape (saturation shape S) > 0
// - BoundLow/BoundHigh are non-negative flexibility fractions for the optimizer
type ChannelConfig struct {
	Key       ChannelKey `json:"key"`
	Theta     float64    `json:"theta"`
	HalfSat   float64    `json:"half_sat"`
	Shape     float64    `json:"shape"`
	BoundLow  float64    `json:"bound_low"`
	BoundHigh float64    `json:"bound_high"`
}

// NewChannelConfig validates ranges at construction time. Out-of-range
// parameters are rejected here, never clamped at first use.
func NewChannelConfig(key ChannelKey, theta, halfSat, shape float64) (ChannelConfig, error) {
	if key == "" {
		return ChannelConfig{}, core.NewConfigurationError("channel key", "must not be empty")
	}
	if theta < 0 || theta >= 1 {
		return ChannelConfig{}, fmt.Errorf("%w: channel %s has theta %v", core.ErrCarryoverRange, key, theta)
	}
	if halfSat < 0 {
		return ChannelConfig{}, fmt.Errorf("%w: channel %s has K %v", core.ErrHalfSatRange, key, halfSat)
	}
	if shape <= 0 {
		return ChannelConfig{}, fmt.Errorf("%w: channel %s has S %v", core.ErrShapeRange, key, shape)
	}
	return ChannelConfig{
		Key:       key,
		Theta:     theta,
		HalfSat:   halfSat,
		Shape:     shape,
		BoundLow:  0.5,
		BoundHigh: 0.5,
	}, nil
}

// WithBounds returns a copy with optimizer flexibility bounds replaced.
func (c ChannelConfig) WithBounds(low, high float64) (ChannelConfig, error) {
	if low < 0 || low > 1 {
		return ChannelConfig{}, core.NewConfigurationError("bound_low", fmt.Sprintf("must be in [0,1], got %v", low))
	}
	if high < 0 {
		return ChannelConfig{}, core.NewConfigurationError("bound_high", fmt.Sprintf("must be >= 0, got %v", high))
	}
	c.BoundLow = low
	c.BoundHigh = high
	return c, nil
}

// MustNewChannelConfig creates a channel config (panics on invalid input).
// Use only in tests and fixtures.
func MustNewChannelConfig(key ChannelKey, theta, halfSat, shape float64) ChannelConfig {
	cfg, err := NewChannelConfig(key, theta, halfSat, shape)
	if err != nil {
		panic(err)
	}
	return cfg
}
