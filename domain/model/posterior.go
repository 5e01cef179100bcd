package model

import (
	"math"
	"sort"

	"gomix/domain/media"
)

// Transform names the constraining transform that maps the unconstrained
// Gaussian approximation back to the parameter's natural scale.
type Transform string

const (
	// TransformIdentity: natural = z
	TransformIdentity Transform = "identity"
	// TransformExp: natural = exp(z); the natural-scale posterior is lognormal
	TransformExp Transform = "exp"
)

// ParamDist is one parameter's approximate posterior: a Gaussian in the
// unconstrained space plus the transform used to recover the natural scale.
type ParamDist struct {
	Name      string    `json:"name"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Transform Transform `json:"transform"`
}

// NaturalMean returns the posterior mean on the natural scale.
func (d ParamDist) NaturalMean() float64 {
	switch d.Transform {
	case TransformExp:
		// Lognormal mean: exp(mu + sigma^2/2)
		return math.Exp(d.Mean + d.Std*d.Std/2)
	default:
		return d.Mean
	}
}

// NaturalStd returns the posterior standard deviation on the natural scale.
func (d ParamDist) NaturalStd() float64 {
	switch d.Transform {
	case TransformExp:
		v := d.Std * d.Std
		return d.NaturalMean() * math.Sqrt(math.Exp(v)-1)
	default:
		return d.Std
	}
}

// Well-known parameter names shared by the engine and its consumers.
const (
	ParamIntercept = "intercept"
	ParamSeasonSin = "season_sin"
	ParamSeasonCos = "season_cos"
	ParamNoise     = "sigma"
)

// CoefName returns the coefficient parameter name for a channel.
func CoefName(key media.ChannelKey) string {
	return "coef_" + string(key)
}

// Posterior maps parameter names to their approximate distributions.
// Owned by the inference engine; immutable once fitting converges. A new fit
// produces a new Posterior, never a mutation of an old one.
type Posterior struct {
	params map[string]ParamDist
}

// NewPosterior builds a posterior from fitted parameter distributions.
func NewPosterior(params []ParamDist) *Posterior {
	m := make(map[string]ParamDist, len(params))
	for _, p := range params {
		m[p.Name] = p
	}
	return &Posterior{params: m}
}

// Param looks up a parameter distribution by name.
func (p *Posterior) Param(name string) (ParamDist, bool) {
	d, ok := p.params[name]
	return d, ok
}

// Coefficient looks up a channel's response coefficient distribution.
func (p *Posterior) Coefficient(key media.ChannelKey) (ParamDist, bool) {
	return p.Param(CoefName(key))
}

// Names returns all parameter names in deterministic order.
func (p *Posterior) Names() []string {
	names := make([]string, 0, len(p.params))
	for n := range p.params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Return is a channel's derived return-on-spend: expected revenue
// contribution divided by spend, with uncertainty propagated linearly from
// the coefficient posterior.
type Return struct {
	Channel media.ChannelKey `json:"channel"`
	Mean    float64          `json:"mean"`
	Std     float64          `json:"std"`
	// UnitFactor converts between coefficient scale and ROAS scale:
	// ROAS = coefficient * UnitFactor. Needed by calibration to fuse on the
	// experiment's measurement scale.
	UnitFactor float64 `json:"unit_factor"`
}
