package inference

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"gomix/domain/core"
	"gomix/domain/media"
	"gomix/domain/model"
)

// Config controls the variational fit.
type Config struct {
	MaxIterations int     // iteration cap; reaching it is a warning, not an error
	Tolerance     float64 // relative ELBO change threshold over the trailing window
	Window        int     // trailing window length for the convergence check
	SampleCount   int     // Monte Carlo samples per ELBO/gradient evaluation
	LearnRate     float64 // Adam base step size
}

// DefaultConfig mirrors the usual fit budget: 5000 iterations with a
// windowed 1e-4 relative tolerance.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 5000,
		Tolerance:     1e-4,
		Window:        100,
		SampleCount:   3,
		LearnRate:     0.05,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.SampleCount <= 0 {
		c.SampleCount = d.SampleCount
	}
	if c.LearnRate <= 0 {
		c.LearnRate = d.LearnRate
	}
	return c
}

// Engine owns the variational fitting procedure. It is stateless across
// Fit calls; every fit returns a fresh posterior.
type Engine struct {
	cfg Config
	log *zap.Logger
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.withDefaults(), log: logger}
}

// FitResult is the immutable outcome of one variational fit.
type FitResult struct {
	Posterior  *model.Posterior
	Returns    map[media.ChannelKey]model.Return
	Status     core.FitStatus
	Iterations int
	ELBO       float64
}

// Fit runs ADVI on the features under the given priors. The random stream is
// injected explicitly; the engine never touches ambient randomness.
//
// A non-finite bound fails with a NumericalInstability error carrying the
// iteration at which it occurred. Exhausting the iteration cap returns the
// best-effort result flagged MaxIterationsReached.
func (e *Engine) Fit(ctx context.Context, feats *Features, priors PriorSet, rng *rand.Rand) (*FitResult, error) {
	specs := buildSpecs(feats, priors)
	nParams := len(specs)
	n := feats.Len()

	// Regression design matrix: seasonal basis then channel exposures.
	// The intercept and noise scale sit outside it.
	nReg := 2 + len(feats.Channels)
	design := make([][]float64, n)
	for t := 0; t < n; t++ {
		row := make([]float64, nReg)
		angle := 2 * math.Pi * float64(t) / feats.SeasonPeriod
		row[0] = math.Sin(angle)
		row[1] = math.Cos(angle)
		for j, key := range feats.Channels {
			row[2+j] = feats.Exposure[key][t]
		}
		design[t] = row
	}

	// Variational parameters: mean and log-std per unconstrained parameter.
	mean := make([]float64, nParams)
	logStd := make([]float64, nParams)
	for i, spec := range specs {
		mean[i] = spec.initMean
		logStd[i] = math.Log(0.1)
	}

	adamM := newAdam(e.cfg.LearnRate, nParams)
	adamS := newAdam(e.cfg.LearnRate, nParams)

	natural := make([]float64, nParams)
	gradNat := make([]float64, nParams)
	gradMean := make([]float64, nParams)
	gradLogStd := make([]float64, nParams)
	eps := make([]float64, nParams)
	z := make([]float64, nParams)

	elboHist := make([]float64, 0, e.cfg.MaxIterations)
	status := core.FitMaxIterations
	iterations := e.cfg.MaxIterations
	elbo := math.Inf(-1)

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range gradMean {
			gradMean[i] = 0
			gradLogStd[i] = 0
		}
		elbo = 0

		for s := 0; s < e.cfg.SampleCount; s++ {
			// Reparameterization: z = mean + exp(logStd) * eps.
			for i := range z {
				eps[i] = rng.NormFloat64()
				z[i] = mean[i] + math.Exp(logStd[i])*eps[i]
			}
			logp := e.jointLogProb(specs, design, feats.Revenue, z, natural, gradNat)
			elbo += logp

			for i := range gradMean {
				gradMean[i] += gradNat[i]
				gradLogStd[i] += gradNat[i] * math.Exp(logStd[i]) * eps[i]
			}
		}

		inv := 1.0 / float64(e.cfg.SampleCount)
		elbo *= inv
		for i := range gradMean {
			gradMean[i] *= inv
			// Entropy of the mean-field Gaussian contributes +1 per log-std.
			gradLogStd[i] = gradLogStd[i]*inv + 1
			elbo += logStd[i]
		}

		if math.IsNaN(elbo) || math.IsInf(elbo, 0) {
			e.log.Error("variational bound became non-finite",
				zap.Int("iteration", iter), zap.Float64("elbo", elbo))
			partial := e.extract(specs, feats, mean, logStd, core.FitDiverged, iter, elbo)
			return partial, core.NewNumericalInstability("advi", iter, elbo)
		}

		adamM.step(mean, gradMean)
		adamS.step(logStd, gradLogStd)

		elboHist = append(elboHist, elbo)
		if converged, rel := windowConverged(elboHist, e.cfg.Window, e.cfg.Tolerance); converged {
			e.log.Debug("variational fit converged",
				zap.Int("iteration", iter), zap.Float64("elbo", elbo), zap.Float64("rel_change", rel))
			status = core.FitConverged
			iterations = iter + 1
			break
		}

		if (iter+1)%500 == 0 {
			e.log.Debug("fit progress", zap.Int("iteration", iter+1), zap.Float64("elbo", elbo))
		}
	}

	if status == core.FitMaxIterations {
		e.log.Warn("variational fit hit the iteration cap without satisfying the tolerance",
			zap.Int("max_iterations", e.cfg.MaxIterations), zap.Float64("elbo", elbo))
	}

	return e.extract(specs, feats, mean, logStd, status, iterations, elbo), nil
}

// jointLogProb evaluates log p(y, theta(z)) plus the transform Jacobian at z,
// and writes the gradient with respect to z into gradNat.
func (e *Engine) jointLogProb(specs []paramSpec, design [][]float64, y []float64, z, natural, gradNat []float64) float64 {
	nParams := len(specs)
	nReg := nParams - 2 // minus intercept and sigma
	n := len(y)

	logp := 0.0
	for i, spec := range specs {
		if spec.transform == model.TransformExp {
			natural[i] = math.Exp(z[i])
			logp += z[i] // log |d natural / d z|
		} else {
			natural[i] = z[i]
		}
	}

	intercept := natural[0]
	sigma := natural[nParams-1]

	// Likelihood and its gradient in natural space.
	gradNatural := gradNat // reuse; filled fresh below
	for i := range gradNatural {
		gradNatural[i] = 0
	}
	invVar := 1.0 / (sigma * sigma)
	sumSq := 0.0
	for t := 0; t < n; t++ {
		mu := intercept
		row := design[t]
		for j := 0; j < nReg; j++ {
			mu += row[j] * natural[1+j]
		}
		r := y[t] - mu
		sumSq += r * r

		gradNatural[0] += r * invVar
		for j := 0; j < nReg; j++ {
			gradNatural[1+j] += r * row[j] * invVar
		}
	}
	logp += -float64(n)*math.Log(sigma) - sumSq*invVar/2
	gradNatural[nParams-1] += -float64(n)/sigma + sumSq/(sigma*sigma*sigma)

	// Priors.
	for i, spec := range specs {
		v := natural[i]
		if spec.halfNormal {
			logp += -v * v / (2 * spec.priorStd * spec.priorStd)
			gradNatural[i] += -v / (spec.priorStd * spec.priorStd)
		} else {
			d := v - spec.priorMean
			logp += -d * d / (2 * spec.priorStd * spec.priorStd)
			gradNatural[i] += -d / (spec.priorStd * spec.priorStd)
		}
	}

	// Chain rule back to z; exp transforms add the Jacobian derivative.
	for i, spec := range specs {
		if spec.transform == model.TransformExp {
			gradNat[i] = gradNatural[i]*natural[i] + 1
		} else {
			gradNat[i] = gradNatural[i]
		}
	}
	return logp
}

// extract builds the immutable fit result from the variational parameters.
func (e *Engine) extract(specs []paramSpec, feats *Features, mean, logStd []float64, status core.FitStatus, iterations int, elbo float64) *FitResult {
	params := make([]model.ParamDist, len(specs))
	for i, spec := range specs {
		params[i] = model.ParamDist{
			Name:      spec.name,
			Mean:      mean[i],
			Std:       math.Exp(logStd[i]),
			Transform: spec.transform,
		}
	}
	posterior := model.NewPosterior(params)

	returns := make(map[media.ChannelKey]model.Return, len(feats.Channels))
	for _, key := range feats.Channels {
		coef, _ := posterior.Coefficient(key)
		k := feats.UnitFactor(key)
		returns[key] = model.Return{
			Channel:    key,
			Mean:       coef.NaturalMean() * k,
			Std:        coef.NaturalStd() * k,
			UnitFactor: k,
		}
	}

	return &FitResult{
		Posterior:  posterior,
		Returns:    returns,
		Status:     status,
		Iterations: iterations,
		ELBO:       elbo,
	}
}

// windowConverged compares the mean ELBO of the two most recent windows.
func windowConverged(hist []float64, window int, tol float64) (bool, float64) {
	if len(hist) < 2*window || len(hist)%window != 0 {
		return false, 0
	}
	cur := meanOf(hist[len(hist)-window:])
	prev := meanOf(hist[len(hist)-2*window : len(hist)-window])
	rel := math.Abs(cur-prev) / (math.Abs(prev) + 1e-12)
	return rel < tol, rel
}

func meanOf(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// adam is the adaptive step-size rule used for both variational parameter
// vectors. Gradients here are ascent directions.
type adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	t       int
	m       []float64
	v       []float64
}

func newAdam(lr float64, dim int) *adam {
	return &adam{
		lr:      lr,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
		m:       make([]float64, dim),
		v:       make([]float64, dim),
	}
}

func (a *adam) step(params, grad []float64) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i := range params {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*grad[i]
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*grad[i]*grad[i]
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		params[i] += a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
	}
}

// ParamSummary is the per-parameter natural-scale summary exposed to
// reporting consumers, with a central 94% interval.
type ParamSummary struct {
	Name  string
	Mean  float64
	Std   float64
	HDI3  float64
	HDI97 float64
}

// Summary renders the posterior as natural-scale rows in deterministic order.
func (r *FitResult) Summary() []ParamSummary {
	names := r.Posterior.Names()
	out := make([]ParamSummary, 0, len(names))
	for _, name := range names {
		d, _ := r.Posterior.Param(name)
		q := distuv.Normal{Mu: d.Mean, Sigma: d.Std}
		lo, hi := q.Quantile(0.03), q.Quantile(0.97)
		if d.Transform == model.TransformExp {
			lo, hi = math.Exp(lo), math.Exp(hi)
		}
		out = append(out, ParamSummary{
			Name:  name,
			Mean:  d.NaturalMean(),
			Std:   d.NaturalStd(),
			HDI3:  lo,
			HDI97: hi,
		})
	}
	return out
}
