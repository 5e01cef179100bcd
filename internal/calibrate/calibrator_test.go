package calibrate

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"gomix/domain/core"
	domexp "gomix/domain/experiment"
	"gomix/domain/media"
	"gomix/internal/inference"
	"gomix/internal/transform"
)

func TestFuseShrinksVariance(t *testing.T) {
	a := Gaussian{Mean: 8, Variance: 4}
	b := Gaussian{Mean: 3.5, Variance: 0.25}

	fused := Fuse(a, b)
	if fused.Variance >= a.Variance || fused.Variance >= b.Variance {
		t.Errorf("fused variance %v not below inputs %v, %v", fused.Variance, a.Variance, b.Variance)
	}
	if fused.Mean <= b.Mean || fused.Mean >= a.Mean {
		t.Errorf("fused mean %v not between inputs %v and %v", fused.Mean, b.Mean, a.Mean)
	}
	// The tighter input dominates.
	if math.Abs(fused.Mean-b.Mean) > math.Abs(fused.Mean-a.Mean) {
		t.Errorf("fused mean %v closer to the looser input", fused.Mean)
	}
}

func TestFuseCommutative(t *testing.T) {
	a := Gaussian{Mean: 8, Variance: 4}
	b := Gaussian{Mean: 3.5, Variance: 0.25}

	ab, ba := Fuse(a, b), Fuse(b, a)
	if math.Abs(ab.Mean-ba.Mean) > 1e-12 || math.Abs(ab.Variance-ba.Variance) > 1e-12 {
		t.Errorf("fusion not commutative: %+v vs %+v", ab, ba)
	}
}

func TestFuseAssociative(t *testing.T) {
	a := Gaussian{Mean: 8, Variance: 4}
	b := Gaussian{Mean: 3.5, Variance: 0.25}
	c := Gaussian{Mean: 5, Variance: 1}

	left := Fuse(Fuse(a, b), c)
	right := Fuse(a, Fuse(b, c))
	if math.Abs(left.Mean-right.Mean) > 1e-9 || math.Abs(left.Variance-right.Variance) > 1e-9 {
		t.Errorf("fusing several experiments is order-dependent: %+v vs %+v", left, right)
	}
}

const calibChannel media.ChannelKey = "spend_tiktok"

// syntheticFit generates a single-channel series with a known coefficient and
// fits it, returning everything calibration needs.
func syntheticFit(t *testing.T) (*inference.Features, *inference.FitResult, inference.PriorSet, *inference.Engine) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	n := 156
	const trueCoef = 9000.0

	spend := make([]float64, n)
	for i := range spend {
		v := 1000 + 300*rng.NormFloat64()
		if v < 0 {
			v = 0
		}
		spend[i] = v
	}
	decayed, err := transform.Adstock(spend, 0.3)
	if err != nil {
		t.Fatalf("Adstock: %v", err)
	}
	halfSat := 0.0
	for _, v := range decayed {
		halfSat += v
	}
	halfSat /= float64(n)

	cfg := media.MustNewChannelConfig(calibChannel, 0.3, halfSat, 1.0)
	revenue := make([]float64, n)
	for i := range revenue {
		sat, _ := transform.Hill(decayed[i], halfSat, 1.0)
		revenue[i] = 5000 + trueCoef*sat + 300*rng.NormFloat64()
	}

	table, err := media.NewTable(revenue, map[media.ChannelKey][]float64{calibChannel: spend})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	feats, err := inference.NewFeatures(table, []media.ChannelConfig{cfg}, 0)
	if err != nil {
		t.Fatalf("NewFeatures: %v", err)
	}

	engine := inference.NewEngine(inference.Config{}, nil)
	priors := inference.DefaultPriors()
	fit, err := engine.Fit(context.Background(), feats, priors, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return feats, fit, priors, engine
}

func TestCalibrateShiftsPosteriorTowardExperiment(t *testing.T) {
	feats, fit, priors, engine := syntheticFit(t)

	fitted := fit.Returns[calibChannel]
	if fitted.Mean <= 0 {
		t.Fatalf("fitted return %v must be positive for this scenario", fitted.Mean)
	}

	// Experiment says the channel returns half what the model thinks, with
	// tight uncertainty.
	est := domexp.Estimate{
		Channel:    calibChannel,
		ROAS:       fitted.Mean / 2,
		StdError:   0.05 * fitted.Mean,
		SampleSize: 365,
		PValue:     0.001,
	}

	calibrated, err := NewCalibrator(engine, nil).
		Calibrate(context.Background(), feats, fit, est, priors, rand.New(rand.NewSource(13)))
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	if calibrated.FusedROAS.Variance >= est.StdError*est.StdError {
		t.Errorf("fused variance %v not below the experiment's %v",
			calibrated.FusedROAS.Variance, est.StdError*est.StdError)
	}

	after := calibrated.Returns[calibChannel]
	if after.Mean >= fitted.Mean {
		t.Errorf("calibrated return %v did not move below the uncalibrated %v", after.Mean, fitted.Mean)
	}
	if math.Abs(after.Mean-est.ROAS) >= math.Abs(fitted.Mean-est.ROAS) {
		t.Errorf("calibrated return %v is not closer to the experiment %v than %v",
			after.Mean, est.ROAS, fitted.Mean)
	}
}

func TestCalibrateRejectsInvalidEstimate(t *testing.T) {
	feats, fit, priors, engine := syntheticFit(t)

	est := domexp.Estimate{Channel: calibChannel, ROAS: 3.5, StdError: 0, SampleSize: 100}
	_, err := NewCalibrator(engine, nil).
		Calibrate(context.Background(), feats, fit, est, priors, rand.New(rand.NewSource(1)))
	if !core.IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestCalibrateRejectsUnknownChannel(t *testing.T) {
	feats, fit, priors, engine := syntheticFit(t)

	est := domexp.Estimate{Channel: "spend_radio", ROAS: 3.5, StdError: 0.2, SampleSize: 100}
	_, err := NewCalibrator(engine, nil).
		Calibrate(context.Background(), feats, fit, est, priors, rand.New(rand.NewSource(1)))
	if !core.IsConfigurationError(err) {
		t.Fatalf("expected an unknown channel error, got %v", err)
	}
}
