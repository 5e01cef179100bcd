// Package budget solves the constrained revenue maximization: reallocate the
// current total spend across channels, within per-channel bounds, to maximize
// predicted revenue through each channel's calibrated response curve.
package budget

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	dombudget "gomix/domain/budget"
	"gomix/domain/core"
	"gomix/domain/media"
	"gomix/internal/transform"
)

// Config controls the constrained solver.
type Config struct {
	MaxIterations int
	// Tolerance is the relative projected-step size below which the solver
	// declares KKT-style convergence.
	Tolerance float64
	// Scale multiplies the objective (and therefore its gradient) before the
	// solve. Spend magnitudes are large while marginal revenue per unit
	// spend is small, so the raw gradient can sit below the solver's
	// absolute flatness threshold and falsely report convergence at the
	// starting point. Scaling a maximization objective by a positive
	// constant preserves its argmax, so the returned allocation is
	// unchanged; reported revenue always comes from the unscaled objective.
	Scale float64
	// FlatGradientTol is the absolute infinity-norm below which the initial
	// scaled gradient is treated as numerically flat.
	FlatGradientTol float64
}

// DefaultConfig returns the standard solver budget.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   200,
		Tolerance:       1e-9,
		Scale:           1e4,
		FlatGradientTol: 1e-12,
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
	if c.Scale <= 0 {
		c.Scale = d.Scale
	}
	if c.FlatGradientTol <= 0 {
		c.FlatGradientTol = d.FlatGradientTol
	}
	return c
}

// Problem is the optimizer's immutable input: calibrated coefficients, the
// response-curve parameters, and the current per-step allocation.
type Problem struct {
	Channels     []media.ChannelConfig
	Coefficients map[media.ChannelKey]float64
	Current      dombudget.Allocation
}

// Optimizer runs projected gradient ascent on the budget hyperplane
// intersected with the per-channel box, with Armijo backtracking and a
// projected-step stopping rule.
type Optimizer struct {
	cfg Config
	log *zap.Logger
}

// NewOptimizer creates a solver with the given configuration.
func NewOptimizer(cfg Config, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{cfg: cfg.withDefaults(), log: logger}
}

// Solve maximizes predicted revenue subject to sum(x) == sum(current) and
// per-channel bounds. The current allocation is the starting point; if the
// solver cannot move off it the result is NoImprovementFound, never a fake
// optimum.
func (o *Optimizer) Solve(ctx context.Context, p Problem) (dombudget.OptimizationResult, error) {
	n := len(p.Channels)
	if n == 0 {
		return dombudget.OptimizationResult{}, core.NewConfigurationError("optimizer", "no channels")
	}

	x0 := make([]float64, n)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i, cfg := range p.Channels {
		if _, ok := p.Coefficients[cfg.Key]; !ok {
			return dombudget.OptimizationResult{}, core.NewUnknownChannelError(string(cfg.Key))
		}
		if cfg.HalfSat <= 0 {
			return dombudget.OptimizationResult{}, core.NewConfigurationError(string(cfg.Key), "half-saturation must be resolved before optimizing")
		}
		cur, ok := p.Current[cfg.Key]
		if !ok {
			return dombudget.OptimizationResult{}, core.NewUnknownChannelError(string(cfg.Key))
		}
		x0[i] = cur
		lower[i] = math.Max(0, (1-cfg.BoundLow)*cur)
		upper[i] = (1 + cfg.BoundHigh) * cur
	}

	budget := floats.Sum(x0)
	baseline := o.revenue(p, x0)
	result := dombudget.OptimizationResult{
		Allocation:       toAllocation(p, x0),
		BaselineRevenue:  baseline,
		OptimizedRevenue: baseline,
	}

	feasTol := 1e-9 * math.Max(1, budget)
	if floats.Sum(lower) > budget+feasTol || floats.Sum(upper) < budget-feasTol {
		result.Status = core.SolveInfeasible
		return result, nil
	}

	// Scaled objective; the gradient inherits the scale.
	objective := func(x []float64) float64 { return o.cfg.Scale * o.revenue(p, x) }
	grad := func(dst, x []float64) {
		fd.Gradient(dst, objective, x, nil)
	}

	g := make([]float64, n)
	grad(g, x0)
	if !floatsFinite(g) {
		return result, core.NewNumericalInstability("budget", 0, floats.Norm(g, math.Inf(1)))
	}
	if floats.Norm(g, math.Inf(1)) < o.cfg.FlatGradientTol {
		o.log.Warn("objective gradient is numerically flat at the current allocation even after scaling",
			zap.Float64("scale", o.cfg.Scale))
		result.Status = core.SolveNoImprovement
		return result, nil
	}

	// Step size chosen relative to the starting point and gradient so the
	// trajectory is invariant under positive rescaling of the objective.
	alpha0 := 0.1 * (floats.Norm(x0, 2) + 1) / (floats.Norm(g, 2) + 1e-30)

	x := make([]float64, n)
	copy(x, x0)
	xNew := make([]float64, n)
	diff := make([]float64, n)

	status := core.SolveMaxIterations
	iterations := o.cfg.MaxIterations
	const armijo = 1e-4

	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		grad(g, x)
		if !floatsFinite(g) {
			return result, core.NewNumericalInstability("budget", iter, floats.Norm(g, math.Inf(1)))
		}

		fx := objective(x)
		alpha := alpha0
		improved := false
		for bt := 0; bt < 50; bt++ {
			for i := range xNew {
				xNew[i] = x[i] + alpha*g[i]
			}
			projectBudget(xNew, lower, upper, budget)
			floats.SubTo(diff, xNew, x)
			if objective(xNew) >= fx+armijo*floats.Dot(g, diff) && objective(xNew) > fx {
				improved = true
				break
			}
			alpha /= 2
		}
		if !improved {
			// No ascent direction survives projection: KKT point.
			status = core.SolveConverged
			iterations = iter + 1
			break
		}

		step := floats.Norm(diff, math.Inf(1))
		copy(x, xNew)
		if step < o.cfg.Tolerance*math.Max(1, floats.Norm(x, math.Inf(1))) {
			status = core.SolveConverged
			iterations = iter + 1
			break
		}
	}

	optimized := o.revenue(p, x)
	moved := floats.Distance(x, x0, math.Inf(1)) > 1e-9*math.Max(1, budget)
	if !moved || optimized <= baseline {
		// The conditioning fix did not move the solver off the initial
		// point; report that visibly instead of a no-op optimum.
		result.Status = core.SolveNoImprovement
		result.Iterations = iterations
		return result, nil
	}

	result.Allocation = toAllocation(p, x)
	result.OptimizedRevenue = optimized
	result.Status = status
	result.Iterations = iterations

	o.log.Info("budget solve finished",
		zap.String("status", string(status)),
		zap.Int("iterations", iterations),
		zap.Float64("lift", optimized-baseline))
	return result, nil
}

// revenue is the unscaled objective: each channel's steady-state carryover
// level pushed through its saturation curve, weighted by its coefficient.
func (o *Optimizer) revenue(p Problem, x []float64) float64 {
	total := 0.0
	for i, cfg := range p.Channels {
		steady := transform.SteadyStateAdstock(math.Max(0, x[i]), cfg.Theta)
		sat, err := transform.Hill(steady, cfg.HalfSat, cfg.Shape)
		if err != nil {
			// Parameters were validated in Solve; unreachable.
			return math.Inf(-1)
		}
		total += p.Coefficients[cfg.Key] * sat
	}
	return total
}

// projectBudget projects v in place onto {x : sum(x) == budget, l <= x <= u}
// by bisecting on the equality constraint's multiplier.
func projectBudget(v, lower, upper []float64, budget float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range v {
		lo = math.Min(lo, v[i]-upper[i])
		hi = math.Max(hi, v[i]-lower[i])
	}

	sumAt := func(lambda float64) float64 {
		sum := 0.0
		for i := range v {
			sum += clamp(v[i]-lambda, lower[i], upper[i])
		}
		return sum
	}

	// sumAt is non-increasing in lambda; bisect until the budget matches.
	for iter := 0; iter < 200; iter++ {
		mid := (lo + hi) / 2
		if sumAt(mid) > budget {
			lo = mid
		} else {
			hi = mid
		}
	}
	lambda := (lo + hi) / 2
	for i := range v {
		v[i] = clamp(v[i]-lambda, lower[i], upper[i])
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toAllocation(p Problem, x []float64) dombudget.Allocation {
	alloc := make(dombudget.Allocation, len(x))
	for i, cfg := range p.Channels {
		alloc[cfg.Key] = x[i]
	}
	return alloc
}

func floatsFinite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
