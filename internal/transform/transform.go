// Package transform converts raw per-channel spend into effective exposure:
// geometric carryover (adstock) followed by a bounded Hill saturation curve.
// Both stages are pure and applied independently per channel.
package transform

import (
	"fmt"
	"math"

	"gomix/domain/core"
	"gomix/domain/media"
)

// DefaultMemoryEpsilon bounds the carryover contribution a caller may
// truncate without materially changing results.
const DefaultMemoryEpsilon = 1e-4

// Adstock applies geometric carryover: out[t] = spend[t] + theta*out[t-1],
// with out[-1] = 0. theta must satisfy 0 <= theta < 1; theta = 1 means
// infinite memory and is rejected, never clamped.
func Adstock(spend []float64, theta float64) ([]float64, error) {
	if theta < 0 || theta >= 1 {
		return nil, fmt.Errorf("%w: got %v", core.ErrCarryoverRange, theta)
	}
	out := make([]float64, len(spend))
	carry := 0.0
	for t, v := range spend {
		carry = v + theta*carry
		out[t] = carry
	}
	return out, nil
}

// MemoryLag returns the smallest lag L with theta^L < eps. Contributions
// older than L can be truncated by windowed consumers. Zero carryover has no
// memory at all.
func MemoryLag(theta, eps float64) int {
	if theta <= 0 {
		return 0
	}
	return int(math.Ceil(math.Log(eps) / math.Log(theta)))
}

// Hill applies the bounded diminishing-returns curve
// x^S / (x^S + K^S). It is 0 at 0, strictly increasing, approaches 1
// asymptotically, and is differentiable on the non-negative domain.
func Hill(x, halfSat, shape float64) (float64, error) {
	if halfSat <= 0 {
		return 0, fmt.Errorf("%w: got %v", core.ErrHalfSatRange, halfSat)
	}
	if shape <= 0 {
		return 0, fmt.Errorf("%w: got %v", core.ErrShapeRange, shape)
	}
	if x <= 0 {
		return 0, nil
	}
	xs := math.Pow(x, shape)
	ks := math.Pow(halfSat, shape)
	return xs / (xs + ks), nil
}

// HillDerivative is d/dx of Hill at x. Consumers optimizing through the
// curve (inference, budget solver) rely on its smoothness.
func HillDerivative(x, halfSat, shape float64) (float64, error) {
	if halfSat <= 0 {
		return 0, fmt.Errorf("%w: got %v", core.ErrHalfSatRange, halfSat)
	}
	if shape <= 0 {
		return 0, fmt.Errorf("%w: got %v", core.ErrShapeRange, shape)
	}
	if x <= 0 {
		// Right-hand limit; finite for shape >= 1, and the optimizer never
		// evaluates below its non-negative bounds anyway.
		if shape == 1 {
			return 1 / halfSat, nil
		}
		if shape > 1 {
			return 0, nil
		}
		return math.Inf(1), nil
	}
	xs := math.Pow(x, shape)
	ks := math.Pow(halfSat, shape)
	den := xs + ks
	return shape * ks * math.Pow(x, shape-1) / (den * den), nil
}

// Exposure composes carryover and saturation for one channel's raw spend
// series. Output values lie in [0, 1) and are monotonically non-decreasing
// in raw spend at fixed parameters.
func Exposure(spend []float64, cfg media.ChannelConfig) ([]float64, error) {
	decayed, err := Adstock(spend, cfg.Theta)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", cfg.Key, err)
	}
	out := make([]float64, len(decayed))
	for t, v := range decayed {
		s, err := Hill(v, cfg.HalfSat, cfg.Shape)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", cfg.Key, err)
		}
		out[t] = s
	}
	return out, nil
}

// SteadyStateAdstock is the long-run carryover level of a constant per-step
// spend: spend / (1 - theta). Used by the budget objective, which optimizes
// a steady operating point rather than a dated series.
func SteadyStateAdstock(spend, theta float64) float64 {
	return spend / (1 - theta)
}
