package inference

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gomix/domain/core"
	"gomix/domain/media"
	"gomix/domain/model"
	"gomix/internal/transform"
)

const testChannel media.ChannelKey = "spend_google_search"

// syntheticFeatures generates n steps of a single-channel series whose
// revenue was assembled through the model's own transform, so the generating
// parameters are recoverable.
func syntheticFeatures(t *testing.T, n int, trueIntercept, trueCoef, noise float64, seed int64) *Features {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	spend := make([]float64, n)
	for i := range spend {
		v := 1200 + 400*rng.NormFloat64()
		if v < 0 {
			v = 0
		}
		spend[i] = v
	}
	decayed, err := transform.Adstock(spend, 0.2)
	if err != nil {
		t.Fatalf("Adstock: %v", err)
	}
	halfSat := 0.0
	for _, v := range decayed {
		halfSat += v
	}
	halfSat /= float64(n)
	cfg := media.MustNewChannelConfig(testChannel, 0.2, halfSat, 1.0)

	revenue := make([]float64, n)
	for i := range revenue {
		sat, _ := transform.Hill(decayed[i], halfSat, 1.0)
		revenue[i] = trueIntercept + trueCoef*sat + noise*rng.NormFloat64()
	}

	table, err := media.NewTable(revenue, map[media.ChannelKey][]float64{testChannel: spend})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	feats, err := NewFeatures(table, []media.ChannelConfig{cfg}, 0)
	if err != nil {
		t.Fatalf("NewFeatures: %v", err)
	}
	return feats
}

func TestFitRecoversGeneratingParameters(t *testing.T) {
	feats := syntheticFeatures(t, 156, 5000, 8000, 300, 21)
	engine := NewEngine(Config{}, nil)

	fit, err := engine.Fit(context.Background(), feats, DefaultPriors(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if fit.Status == core.FitDiverged {
		t.Fatalf("fit diverged")
	}

	coef, ok := fit.Posterior.Coefficient(testChannel)
	if !ok {
		t.Fatalf("posterior is missing the channel coefficient")
	}
	if got := coef.NaturalMean(); math.Abs(got-8000) > 0.35*8000 {
		t.Errorf("coefficient %v too far from the generating 8000", got)
	}

	intercept, ok := fit.Posterior.Param(model.ParamIntercept)
	if !ok {
		t.Fatalf("posterior is missing the intercept")
	}
	if got := intercept.NaturalMean(); math.Abs(got-5000) > 1000 {
		t.Errorf("intercept %v too far from the generating 5000", got)
	}

	sigma, ok := fit.Posterior.Param(model.ParamNoise)
	if !ok {
		t.Fatalf("posterior is missing the noise scale")
	}
	if got := sigma.NaturalMean(); got < 150 || got > 700 {
		t.Errorf("noise scale %v too far from the generating 300", got)
	}
}

func TestFitReturnsAreOnROASScale(t *testing.T) {
	feats := syntheticFeatures(t, 156, 5000, 8000, 300, 22)
	engine := NewEngine(Config{}, nil)

	fit, err := engine.Fit(context.Background(), feats, DefaultPriors(), rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	ret, ok := fit.Returns[testChannel]
	if !ok {
		t.Fatalf("fit carries no return for the channel")
	}
	k := feats.UnitFactor(testChannel)
	if k <= 0 {
		t.Fatalf("unit factor must be positive, got %v", k)
	}
	coef, _ := fit.Posterior.Coefficient(testChannel)
	if math.Abs(ret.Mean-coef.NaturalMean()*k) > 1e-9*math.Abs(ret.Mean) {
		t.Errorf("return mean %v inconsistent with coefficient %v at unit factor %v",
			ret.Mean, coef.NaturalMean(), k)
	}
	if ret.Std <= 0 {
		t.Errorf("return std must be positive, got %v", ret.Std)
	}
}

func TestFitIterationCapIsAWarningNotAnError(t *testing.T) {
	feats := syntheticFeatures(t, 104, 5000, 8000, 300, 23)
	// A cap below twice the convergence window cannot satisfy the windowed
	// tolerance check.
	engine := NewEngine(Config{MaxIterations: 150, Window: 100}, nil)

	fit, err := engine.Fit(context.Background(), feats, DefaultPriors(), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if fit.Status != core.FitMaxIterations {
		t.Fatalf("expected %s, got %s", core.FitMaxIterations, fit.Status)
	}
	if fit.Status.Converged() {
		t.Error("iteration-capped fit must not report convergence")
	}
	if fit.Posterior == nil {
		t.Error("best-effort posterior missing from a capped fit")
	}
}

func TestFitHonorsPriorOverride(t *testing.T) {
	feats := syntheticFeatures(t, 156, 5000, 8000, 300, 24)
	engine := NewEngine(Config{}, nil)

	// A tight prior far below the generating coefficient must drag the
	// posterior toward it.
	override := NormalPrior{Mean: 2000, Std: 100}
	priors := DefaultPriors().WithOverride(testChannel, override)

	free, err := engine.Fit(context.Background(), feats, DefaultPriors(), rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("Fit (default priors): %v", err)
	}
	anchored, err := engine.Fit(context.Background(), feats, priors, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("Fit (override): %v", err)
	}

	freeCoef, _ := free.Posterior.Coefficient(testChannel)
	anchoredCoef, _ := anchored.Posterior.Coefficient(testChannel)
	if anchoredCoef.NaturalMean() >= freeCoef.NaturalMean() {
		t.Errorf("anchored coefficient %v not below the free fit %v",
			anchoredCoef.NaturalMean(), freeCoef.NaturalMean())
	}
}

func TestFitFailsFastOnNonFiniteData(t *testing.T) {
	feats := syntheticFeatures(t, 104, 5000, 8000, 300, 27)
	feats.Revenue[10] = math.NaN()
	engine := NewEngine(Config{}, nil)

	fit, err := engine.Fit(context.Background(), feats, DefaultPriors(), rand.New(rand.NewSource(9)))
	if !core.IsNumericalInstability(err) {
		t.Fatalf("expected a numerical instability error, got %v", err)
	}

	var nie *core.NumericalInstabilityError
	if !errors.As(err, &nie) {
		t.Fatalf("error %v does not carry instability details", err)
	}
	if nie.Stage != "advi" {
		t.Errorf("stage %q, want advi", nie.Stage)
	}
	if nie.Iteration != 0 {
		t.Errorf("NaN in the data must surface at iteration 0, got %d", nie.Iteration)
	}

	// The best-effort partial result is still returned, flagged diverged.
	if fit == nil || fit.Status != core.FitDiverged {
		t.Errorf("expected a diverged partial result, got %+v", fit)
	}
}

func TestFitRespectsContextCancellation(t *testing.T) {
	feats := syntheticFeatures(t, 104, 5000, 8000, 300, 25)
	engine := NewEngine(Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Fit(ctx, feats, DefaultPriors(), rand.New(rand.NewSource(5))); err == nil {
		t.Fatal("expected a context error")
	}
}

func TestNewFeaturesRejectsMissingChannel(t *testing.T) {
	table, err := media.NewTable([]float64{1, 2, 3}, map[media.ChannelKey][]float64{"spend_tv": {1, 2, 3}})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	cfg := media.MustNewChannelConfig("spend_radio", 0.1, 100, 1.0)

	if _, err := NewFeatures(table, []media.ChannelConfig{cfg}, 0); !core.IsConfigurationError(err) {
		t.Fatalf("expected an unknown channel error, got %v", err)
	}
}

func TestSummaryOrdersIntervals(t *testing.T) {
	feats := syntheticFeatures(t, 104, 5000, 8000, 300, 26)
	engine := NewEngine(Config{MaxIterations: 400}, nil)

	fit, err := engine.Fit(context.Background(), feats, DefaultPriors(), rand.New(rand.NewSource(6)))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for _, row := range fit.Summary() {
		if row.HDI3 >= row.HDI97 {
			t.Errorf("parameter %s: interval [%v, %v] is not ordered", row.Name, row.HDI3, row.HDI97)
		}
		if row.Std <= 0 {
			t.Errorf("parameter %s: non-positive std %v", row.Name, row.Std)
		}
	}
}
