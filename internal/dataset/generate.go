// Package dataset supplies the staged data path in front of the modeling
// core: a synthetic brand generator (bronze), validation and cleaning
// (silver), and feature preparation (gold).
package dataset

import (
	"math"
	"math/rand"

	"gomix/domain/media"
	"gomix/internal/transform"
)

// ChannelSpec describes one synthetic channel's spend pattern and its true
// contribution to revenue.
type ChannelSpec struct {
	Key       media.ChannelKey
	MeanSpend float64
	SpendStd  float64
	// ZeroFraction randomly zeroes this share of periods (pulsing campaigns).
	ZeroFraction float64
	// Burst schedule for flighted channels (e.g. TV): BurstSpend for
	// BurstLen periods every BurstEvery periods. Zero BurstEvery disables.
	BurstEvery int
	BurstLen   int
	BurstSpend float64
	// Response-curve truth used to assemble revenue.
	Theta    float64
	TrueCoef float64
}

// GenerateConfig describes the synthetic scenario.
type GenerateConfig struct {
	Periods         int
	YearPeriod      float64 // periods per seasonal cycle (365.25 daily, ~52.18 weekly)
	BaseRevenue     float64
	SeasonAmplitude float64
	// Q4Boost multiplies baseline and always-on spend over the last sixth
	// of each seasonal cycle (holiday quarter).
	Q4Boost  float64
	NoiseStd float64
	Channels []ChannelSpec
}

// DefaultGenerateConfig reproduces the beauty-brand scenario at weekly grain:
// always-on Facebook/Google, pulsed TikTok, flighted TV.
func DefaultGenerateConfig(periods int) GenerateConfig {
	return GenerateConfig{
		Periods:         periods,
		YearPeriod:      52.1775,
		BaseRevenue:     10000,
		SeasonAmplitude: 2000,
		Q4Boost:         1.5,
		NoiseStd:        1000,
		Channels: []ChannelSpec{
			{Key: "spend_facebook", MeanSpend: 2000, SpendStd: 500, Theta: 0.3, TrueCoef: 20000},
			{Key: "spend_google_search", MeanSpend: 1500, SpendStd: 300, Theta: 0.1, TrueCoef: 25000},
			{Key: "spend_tiktok", MeanSpend: 1500, SpendStd: 700, ZeroFraction: 0.3, Theta: 0.5, TrueCoef: 17500},
			{Key: "spend_tv", BurstEvery: 9, BurstLen: 2, BurstSpend: 15000, Theta: 0.7, TrueCoef: 10000},
		},
	}
}

// Bronze is the raw generated table plus the generating truth, kept so tests
// can check that fitting recovers it.
type Bronze struct {
	Revenue   []float64
	Spend     map[media.ChannelKey][]float64
	TrueCoefs map[media.ChannelKey]float64
	// HalfSats are the half-saturation points the generator used (the mean
	// of each channel's adstocked spend, matching the gold heuristic).
	HalfSats map[media.ChannelKey]float64
}

// Generate builds the synthetic table from an injected random stream.
// Revenue is assembled through the same carryover + saturation transform the
// model fits, so the generating coefficients are recoverable.
func Generate(cfg GenerateConfig, rng *rand.Rand) Bronze {
	n := cfg.Periods
	spend := make(map[media.ChannelKey][]float64, len(cfg.Channels))

	boost := make([]float64, n)
	for t := 0; t < n; t++ {
		phase := math.Mod(float64(t), cfg.YearPeriod) / cfg.YearPeriod
		if phase > 5.0/6.0 {
			boost[t] = cfg.Q4Boost
		} else {
			boost[t] = 1
		}
	}

	for _, ch := range cfg.Channels {
		series := make([]float64, n)
		switch {
		case ch.BurstEvery > 0:
			for t := 0; t < n; t++ {
				if (t % ch.BurstEvery) < ch.BurstLen {
					series[t] = ch.BurstSpend
				}
			}
		default:
			for t := 0; t < n; t++ {
				v := ch.MeanSpend + ch.SpendStd*rng.NormFloat64()
				if v < 0 {
					v = 0
				}
				if ch.ZeroFraction > 0 && rng.Float64() < ch.ZeroFraction {
					v = 0
				}
				if ch.ZeroFraction == 0 {
					// Always-on channels follow the holiday boost.
					v *= boost[t]
				}
				series[t] = v
			}
		}
		spend[ch.Key] = series
	}

	revenue := make([]float64, n)
	for t := 0; t < n; t++ {
		seasonal := cfg.SeasonAmplitude * math.Sin(2*math.Pi*float64(t)/cfg.YearPeriod)
		revenue[t] = (cfg.BaseRevenue + seasonal) * boost[t]
	}

	trueCoefs := make(map[media.ChannelKey]float64, len(cfg.Channels))
	halfSats := make(map[media.ChannelKey]float64, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		decayed, err := transform.Adstock(spend[ch.Key], ch.Theta)
		if err != nil {
			// Specs above are compile-time constants with valid thetas.
			panic(err)
		}
		k := meanOf(decayed)
		if k <= 0 {
			k = 1
		}
		halfSats[ch.Key] = k
		trueCoefs[ch.Key] = ch.TrueCoef
		for t := 0; t < n; t++ {
			sat, _ := transform.Hill(decayed[t], k, 1.0)
			revenue[t] += ch.TrueCoef * sat
		}
	}

	for t := 0; t < n; t++ {
		revenue[t] += cfg.NoiseStd * rng.NormFloat64()
	}

	return Bronze{Revenue: revenue, Spend: spend, TrueCoefs: trueCoefs, HalfSats: halfSats}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
