// Package calibrate fuses an experimental causal estimate into the fitted
// model as an informative prior and re-runs the fit so correlated parameters
// re-adjust consistently with the anchored channel.
package calibrate

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"gomix/domain/core"
	domexp "gomix/domain/experiment"
	"gomix/domain/media"
	"gomix/internal/inference"
)

// Gaussian is a (mean, variance) pair on a shared measurement scale.
type Gaussian struct {
	Mean     float64
	Variance float64
}

// Fuse combines two independent estimates of the same quantity by
// inverse-variance weighting:
//
//	1/var_c = 1/var_a + 1/var_b
//	mean_c  = var_c * (mean_a/var_a + mean_b/var_b)
//
// The combined variance never exceeds either input variance, and the
// operation is commutative and associative, so calibrating with several
// independent experiments is order-independent.
func Fuse(a, b Gaussian) Gaussian {
	precision := 1/a.Variance + 1/b.Variance
	variance := 1 / precision
	return Gaussian{
		Mean:     variance * (a.Mean/a.Variance + b.Mean/b.Variance),
		Variance: variance,
	}
}

// Result is a calibrated fit: a fresh posterior whose targeted channel is
// anchored by the fused experiment evidence.
type Result struct {
	*inference.FitResult
	Channel   media.ChannelKey
	FusedROAS Gaussian
	Prior     inference.NormalPrior
}

// Calibrator owns the fusion + re-fit protocol.
type Calibrator struct {
	engine *inference.Engine
	log    *zap.Logger
}

// NewCalibrator wraps an inference engine for calibrated re-fits.
func NewCalibrator(engine *inference.Engine, logger *zap.Logger) *Calibrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calibrator{engine: engine, log: logger}
}

// Calibrate converts the fitted coefficient posterior of the experiment's
// channel to the return-on-spend scale, fuses it with the experiment
// estimate, projects the fused distribution back into coefficient scale, and
// re-runs a full fit with that informative prior. All other channels keep
// their default priors.
func (c *Calibrator) Calibrate(ctx context.Context, feats *inference.Features, fit *inference.FitResult, est domexp.Estimate, priors inference.PriorSet, rng *rand.Rand) (*Result, error) {
	if err := est.Valid(); err != nil {
		return nil, err
	}
	ret, ok := fit.Returns[est.Channel]
	if !ok {
		return nil, core.NewUnknownChannelError(string(est.Channel))
	}
	if ret.UnitFactor <= 0 {
		return nil, core.NewConfigurationError(string(est.Channel), "channel has no spend to calibrate against")
	}

	fitted := Gaussian{Mean: ret.Mean, Variance: ret.Std * ret.Std}
	observed := Gaussian{Mean: est.ROAS, Variance: est.StdError * est.StdError}
	fused := Fuse(fitted, observed)

	// Back onto the coefficient scale the model fits on.
	prior := inference.NormalPrior{
		Mean: fused.Mean / ret.UnitFactor,
		Std:  math.Sqrt(fused.Variance) / ret.UnitFactor,
	}

	c.log.Info("calibrating channel with experiment evidence",
		zap.String("channel", string(est.Channel)),
		zap.Float64("fitted_roas", fitted.Mean),
		zap.Float64("experiment_roas", observed.Mean),
		zap.Float64("fused_roas", fused.Mean))

	refit, err := c.engine.Fit(ctx, feats, priors.WithOverride(est.Channel, prior), rng)
	if err != nil {
		return nil, err
	}

	return &Result{
		FitResult: refit,
		Channel:   est.Channel,
		FusedROAS: fused,
		Prior:     prior,
	}, nil
}
