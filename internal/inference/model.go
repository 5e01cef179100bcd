// Package inference fits the generative revenue model
//
//	revenue[t] = intercept + seasonal terms + sum_c coef_c * exposure_c[t] + noise[t]
//
// with a mean-field variational approximation: independent Gaussians in an
// unconstrained parameter space, adjusted by stochastic gradient steps on the
// evidence lower bound. Coefficients and the noise scale live behind an exp
// transform, so their natural-scale posteriors are lognormal and
// non-negativity holds by construction.
package inference

import (
	"math"

	"github.com/montanaflynn/stats"

	"gomix/domain/core"
	"gomix/domain/media"
	"gomix/domain/model"
	"gomix/internal/transform"
)

// AnnualPeriodWeeks is the default seasonal period for weekly observations.
const AnnualPeriodWeeks = 52.1775

// Features is the engine's immutable input: the revenue series, per-channel
// exposures (already carried through adstock + saturation), and the raw spend
// needed to express coefficients on the return-on-spend scale.
type Features struct {
	Revenue      []float64
	Channels     []media.ChannelKey
	Exposure     map[media.ChannelKey][]float64
	Spend        map[media.ChannelKey][]float64
	SeasonPeriod float64
}

// NewFeatures transforms a raw table into modeling features using each
// channel's configured response parameters. Channels without a spend series
// in the table are rejected.
func NewFeatures(table *media.Table, cfgs []media.ChannelConfig, seasonPeriod float64) (*Features, error) {
	if seasonPeriod <= 0 {
		seasonPeriod = AnnualPeriodWeeks
	}
	f := &Features{
		Revenue:      table.Revenue,
		Exposure:     make(map[media.ChannelKey][]float64, len(cfgs)),
		Spend:        make(map[media.ChannelKey][]float64, len(cfgs)),
		SeasonPeriod: seasonPeriod,
	}
	for _, cfg := range cfgs {
		series, ok := table.Spend[cfg.Key]
		if !ok {
			return nil, core.NewUnknownChannelError(string(cfg.Key))
		}
		exp, err := transform.Exposure(series, cfg)
		if err != nil {
			return nil, err
		}
		f.Channels = append(f.Channels, cfg.Key)
		f.Exposure[cfg.Key] = exp
		f.Spend[cfg.Key] = series
	}
	return f, nil
}

// Len returns the number of time steps.
func (f *Features) Len() int { return len(f.Revenue) }

// UnitFactor converts a channel coefficient to the return-on-spend scale:
// ROAS = coefficient * UnitFactor, with the factor being total exposure over
// total spend for the fitted window.
func (f *Features) UnitFactor(key media.ChannelKey) float64 {
	spendSum := 0.0
	for _, v := range f.Spend[key] {
		spendSum += v
	}
	if spendSum <= 0 {
		return 0
	}
	expSum := 0.0
	for _, v := range f.Exposure[key] {
		expSum += v
	}
	return expSum / spendSum
}

// NormalPrior is an informative Gaussian prior on a channel coefficient's
// natural scale, produced by calibration.
type NormalPrior struct {
	Mean float64
	Std  float64
}

// PriorSet selects the priors for a fit. By default every coefficient gets a
// weakly informative half-normal with scale proportional to the outcome
// spread; calibration narrows a single channel with a Normal override.
type PriorSet struct {
	// CoefScale is the half-normal scale for uncalibrated coefficients.
	// Zero means "derive from data" (10x the revenue standard deviation).
	CoefScale float64
	Overrides map[media.ChannelKey]NormalPrior
}

// DefaultPriors returns the weakly informative prior set.
func DefaultPriors() PriorSet {
	return PriorSet{Overrides: map[media.ChannelKey]NormalPrior{}}
}

// WithOverride returns a copy of the prior set with one channel anchored.
func (p PriorSet) WithOverride(key media.ChannelKey, prior NormalPrior) PriorSet {
	out := PriorSet{CoefScale: p.CoefScale, Overrides: make(map[media.ChannelKey]NormalPrior, len(p.Overrides)+1)}
	for k, v := range p.Overrides {
		out.Overrides[k] = v
	}
	out.Overrides[key] = prior
	return out
}

// paramSpec fixes one parameter's transform and prior for a fit.
type paramSpec struct {
	name      string
	transform model.Transform
	// Normal prior on the natural scale; halfNormal uses priorStd only.
	priorMean  float64
	priorStd   float64
	halfNormal bool
	initMean   float64 // unconstrained-space initialization
}

// buildSpecs lays out the parameter vector:
// intercept, season_sin, season_cos, one coefficient per channel, sigma.
func buildSpecs(f *Features, priors PriorSet) []paramSpec {
	yMean, _ := stats.Mean(f.Revenue)
	yStd, _ := stats.StandardDeviation(f.Revenue)
	if yStd <= 0 {
		yStd = 1
	}
	coefScale := priors.CoefScale
	if coefScale <= 0 {
		coefScale = 10 * yStd
	}

	specs := []paramSpec{
		{name: model.ParamIntercept, transform: model.TransformIdentity, priorMean: yMean, priorStd: yStd, initMean: yMean},
		{name: model.ParamSeasonSin, transform: model.TransformIdentity, priorMean: 0, priorStd: yStd, initMean: 0},
		{name: model.ParamSeasonCos, transform: model.TransformIdentity, priorMean: 0, priorStd: yStd, initMean: 0},
	}
	for _, key := range f.Channels {
		spec := paramSpec{
			name:       model.CoefName(key),
			transform:  model.TransformExp,
			priorStd:   coefScale,
			halfNormal: true,
			initMean:   math.Log(yStd),
		}
		if override, ok := priors.Overrides[key]; ok {
			spec.halfNormal = false
			spec.priorMean = override.Mean
			spec.priorStd = override.Std
			if override.Mean > 0 {
				spec.initMean = math.Log(override.Mean)
			}
		}
		specs = append(specs, spec)
	}
	specs = append(specs, paramSpec{
		name:       model.ParamNoise,
		transform:  model.TransformExp,
		priorStd:   yStd,
		halfNormal: true,
		initMean:   math.Log(yStd),
	})
	return specs
}
