// Package pipeline drives one modeling run through its staged lifecycle:
// raw table in, transformed features, fitted posterior, optional experiment
// calibration, and a constrained budget recommendation out.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	dombudget "gomix/domain/budget"
	"gomix/domain/core"
	domexp "gomix/domain/experiment"
	"gomix/domain/media"
	"gomix/internal/budget"
	"gomix/internal/calibrate"
	"gomix/internal/dataset"
	"gomix/internal/experiment"
	"gomix/internal/inference"
	"gomix/ports"
)

// Stage names the pipeline's lifecycle states. Transitions only ever move
// forward; a run that fails stays at the stage it last completed.
type Stage string

const (
	StageRaw         Stage = "raw"
	StageTransformed Stage = "transformed"
	StageFitted      Stage = "fitted"
	StageCalibrated  Stage = "calibrated"
	StageOptimized   Stage = "optimized"
)

var stageOrder = map[Stage]int{
	StageRaw:         0,
	StageTransformed: 1,
	StageFitted:      2,
	StageCalibrated:  3,
	StageOptimized:   4,
}

// Config carries the run-level knobs shared by all stages.
type Config struct {
	Seed         int64
	SeasonPeriod float64
	Inference    inference.Config
	Budget       budget.Config
}

// ExperimentInput is the optional calibration evidence for one channel: a
// matched two-region intervention and its incremental spend.
type ExperimentInput struct {
	Channel          media.ChannelKey
	TestWindow       int
	IncrementalSpend float64
	Treatment        domexp.RegionSeries
	Control          domexp.RegionSeries
}

// Inputs is everything a run consumes.
type Inputs struct {
	Table      *media.Table
	Channels   []media.ChannelConfig
	Experiment *ExperimentInput
}

// Run is the accumulated state of one pipeline execution. Fields fill in as
// stages complete; Stage records how far the run got.
type Run struct {
	RunID    core.RunID
	Stage    Stage
	Channels []media.ChannelConfig // half-saturation resolved
	Features *inference.Features

	Fit        *inference.FitResult
	Estimate   *domexp.Estimate
	Calibrated *calibrate.Result

	Optimization dombudget.OptimizationResult
	RuntimeMs    int64
}

// ActiveFit returns the fit the downstream stages should consume: the
// calibrated re-fit when calibration ran, otherwise the initial fit.
func (r *Run) ActiveFit() *inference.FitResult {
	if r.Calibrated != nil {
		return r.Calibrated.FitResult
	}
	return r.Fit
}

func (r *Run) advance(to Stage) {
	if stageOrder[to] <= stageOrder[r.Stage] {
		// Forward-only lifecycle; a backwards transition is a programming
		// error in this package.
		panic("pipeline: stage transition out of order")
	}
	r.Stage = to
}

// Pipeline wires the modeling stages behind one Execute call.
type Pipeline struct {
	cfg   Config
	rng   ports.RNG
	store ports.RunStore
	log   *zap.Logger
}

// New assembles a pipeline. The store is optional; pass nil to skip
// persistence.
func New(cfg Config, rng ports.RNG, store ports.RunStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, rng: rng, store: store, log: logger}
}

// Execute runs the full lifecycle. The initial fit and the experiment
// estimate have no data dependency on each other, so they run concurrently;
// calibration then joins them.
func (p *Pipeline) Execute(ctx context.Context, in Inputs) (*Run, error) {
	start := time.Now()
	run := &Run{RunID: core.RunID(core.NewID()), Stage: StageRaw}
	p.log.Info("pipeline run starting",
		zap.String("run_id", run.RunID.String()),
		zap.Int64("seed", p.cfg.Seed),
		zap.Int("rows", in.Table.Len()))

	resolved, err := dataset.ResolveHalfSat(in.Table, in.Channels)
	if err != nil {
		return run, err
	}
	feats, err := inference.NewFeatures(in.Table, resolved, p.cfg.SeasonPeriod)
	if err != nil {
		return run, err
	}
	run.Channels = resolved
	run.Features = feats
	run.advance(StageTransformed)

	engine := inference.NewEngine(p.cfg.Inference, p.log)
	priors := inference.DefaultPriors()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fit, err := engine.Fit(gctx, feats, priors, p.rng.SeededStream("fit", p.cfg.Seed))
		if err != nil {
			return err
		}
		run.Fit = fit
		return nil
	})
	if in.Experiment != nil {
		exp := in.Experiment
		g.Go(func() error {
			est, err := experiment.NewEstimator(exp.TestWindow).
				Estimate(exp.Channel, exp.IncrementalSpend, exp.Treatment, exp.Control)
			if err != nil {
				return err
			}
			run.Estimate = &est
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run, err
	}
	run.advance(StageFitted)

	if run.Estimate != nil {
		calibrator := calibrate.NewCalibrator(engine, p.log)
		calibrated, err := calibrator.Calibrate(ctx, feats, run.Fit, *run.Estimate, priors,
			p.rng.SeededStream("calibrate", p.cfg.Seed))
		if err != nil {
			return run, err
		}
		run.Calibrated = calibrated
		run.advance(StageCalibrated)
	}

	active := run.ActiveFit()
	problem := budget.Problem{
		Channels:     resolved,
		Coefficients: make(map[media.ChannelKey]float64, len(resolved)),
		Current:      make(dombudget.Allocation, len(resolved)),
	}
	for _, cfg := range resolved {
		dist, ok := active.Posterior.Coefficient(cfg.Key)
		if !ok {
			return run, core.NewUnknownChannelError(string(cfg.Key))
		}
		problem.Coefficients[cfg.Key] = dist.NaturalMean()
		problem.Current[cfg.Key] = in.Table.MeanSpend(cfg.Key)
	}

	result, err := budget.NewOptimizer(p.cfg.Budget, p.log).Solve(ctx, problem)
	if err != nil {
		return run, err
	}
	run.Optimization = result
	run.advance(StageOptimized)
	run.RuntimeMs = time.Since(start).Milliseconds()

	if p.store != nil {
		rec := ports.RunRecord{
			RunID:     run.RunID,
			Seed:      p.cfg.Seed,
			FitStatus: active.Status,
			Result:    result,
			RuntimeMs: run.RuntimeMs,
			CreatedAt: core.Now(),
		}
		if err := p.store.SaveRun(ctx, rec); err != nil {
			// Persistence is ancillary; the run itself succeeded.
			p.log.Warn("failed to persist run record", zap.Error(err))
		}
	}

	p.log.Info("pipeline run finished",
		zap.String("run_id", run.RunID.String()),
		zap.String("fit_status", string(active.Status)),
		zap.String("solve_status", string(result.Status)),
		zap.Int64("runtime_ms", run.RuntimeMs))
	return run, nil
}
