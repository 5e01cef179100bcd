package transform

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/diff/fd"

	"gomix/domain/core"
	"gomix/domain/media"
)

func TestAdstock_ZeroThetaIsIdentity(t *testing.T) {
	spend := []float64{100, 0, 250, 30, 0, 990}

	out, err := Adstock(spend, 0)
	if err != nil {
		t.Fatalf("Adstock failed: %v", err)
	}

	for i := range spend {
		if out[i] != spend[i] {
			t.Errorf("theta=0 must be exact identity: out[%d]=%v, want %v", i, out[i], spend[i])
		}
	}
}

func TestAdstock_GeometricMemory(t *testing.T) {
	out, err := Adstock([]float64{100, 0, 0}, 0.5)
	if err != nil {
		t.Fatalf("Adstock failed: %v", err)
	}

	want := []float64{100, 50, 25}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("out[%d]=%v, want %v", i, out[i], want[i])
		}
	}
}

func TestAdstock_RejectsInvalidTheta(t *testing.T) {
	for _, theta := range []float64{-0.1, 1.0, 1.5} {
		if _, err := Adstock([]float64{1, 2}, theta); err == nil {
			t.Errorf("theta=%v must be rejected", theta)
		} else if !core.IsConfigurationError(err) {
			t.Errorf("theta=%v: want configuration error, got %v", theta, err)
		}
	}
}

func TestMemoryLag(t *testing.T) {
	lag := MemoryLag(0.5, DefaultMemoryEpsilon)
	if math.Pow(0.5, float64(lag)) >= DefaultMemoryEpsilon {
		t.Errorf("theta^L must fall below epsilon, got lag %d", lag)
	}
	if math.Pow(0.5, float64(lag-1)) < DefaultMemoryEpsilon {
		t.Errorf("lag %d is not minimal", lag)
	}
	if MemoryLag(0, DefaultMemoryEpsilon) != 0 {
		t.Error("zero carryover has no memory")
	}
}

func TestHill_Properties(t *testing.T) {
	const k, s = 2000.0, 1.3

	zero, err := Hill(0, k, s)
	if err != nil {
		t.Fatalf("Hill failed: %v", err)
	}
	if zero != 0 {
		t.Errorf("Hill(0) = %v, want exactly 0", zero)
	}

	prev := 0.0
	for x := 10.0; x < 1e7; x *= 2 {
		v, err := Hill(x, k, s)
		if err != nil {
			t.Fatalf("Hill(%v) failed: %v", x, err)
		}
		if v <= prev {
			t.Errorf("Hill must be strictly increasing: Hill(%v)=%v <= %v", x, v, prev)
		}
		if v < 0 || v >= 1 {
			t.Errorf("Hill(%v)=%v outside [0,1)", x, v)
		}
		prev = v
	}

	// Asymptotic approach to 1.
	far, _ := Hill(1e12, k, s)
	if far < 0.999 {
		t.Errorf("Hill must converge toward 1, got %v at large input", far)
	}

	// Half-saturation point: Hill(K) = 0.5 for any shape.
	half, _ := Hill(k, k, s)
	if math.Abs(half-0.5) > 1e-12 {
		t.Errorf("Hill(K)=%v, want 0.5", half)
	}
}

func TestHill_RejectsInvalidParams(t *testing.T) {
	if _, err := Hill(1, 0, 1); err == nil {
		t.Error("K=0 must be rejected")
	}
	if _, err := Hill(1, -5, 1); err == nil {
		t.Error("K<0 must be rejected")
	}
	if _, err := Hill(1, 10, 0); err == nil {
		t.Error("S=0 must be rejected")
	}
	if _, err := Hill(1, 10, -2); err == nil {
		t.Error("S<0 must be rejected")
	}
}

func TestHillDerivative_MatchesFiniteDifference(t *testing.T) {
	const k, s = 1500.0, 2.0
	f := func(x float64) float64 {
		v, _ := Hill(x, k, s)
		return v
	}

	for _, x := range []float64{10, 500, 1500, 4000, 20000} {
		want := fd.Derivative(f, x, nil)
		got, err := HillDerivative(x, k, s)
		if err != nil {
			t.Fatalf("HillDerivative(%v) failed: %v", x, err)
		}
		if math.Abs(got-want) > 1e-6*math.Max(1, math.Abs(want)) {
			t.Errorf("derivative at %v: got %v, want %v", x, got, want)
		}
	}
}

func TestExposure_BoundedAndMonotone(t *testing.T) {
	cfg := media.MustNewChannelConfig("spend_tiktok", 0.5, 1200, 1.0)
	low := []float64{100, 200, 300, 400}
	high := []float64{200, 400, 600, 800}

	expLow, err := Exposure(low, cfg)
	if err != nil {
		t.Fatalf("Exposure failed: %v", err)
	}
	expHigh, err := Exposure(high, cfg)
	if err != nil {
		t.Fatalf("Exposure failed: %v", err)
	}

	for i := range expLow {
		if expLow[i] < 0 || expLow[i] >= 1 {
			t.Errorf("exposure[%d]=%v outside [0,1)", i, expLow[i])
		}
		if expHigh[i] <= expLow[i] {
			t.Errorf("exposure must increase with raw spend at step %d", i)
		}
	}
}

func TestSteadyStateAdstock(t *testing.T) {
	// A long constant series converges to spend/(1-theta).
	const theta, spend = 0.7, 300.0
	series := make([]float64, 200)
	for i := range series {
		series[i] = spend
	}
	out, err := Adstock(series, theta)
	if err != nil {
		t.Fatalf("Adstock failed: %v", err)
	}
	want := SteadyStateAdstock(spend, theta)
	if math.Abs(out[len(out)-1]-want) > 1e-6*want {
		t.Errorf("steady state: got %v, want %v", out[len(out)-1], want)
	}
}
