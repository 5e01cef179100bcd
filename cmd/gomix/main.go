package main

import (
	"fmt"
	"math"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gomix/adapters/excel"
	"gomix/adapters/postgres"
	"gomix/adapters/rng"
	"gomix/domain/core"
	"gomix/domain/media"
	"gomix/internal/budget"
	"gomix/internal/config"
	"gomix/internal/dataset"
	"gomix/internal/experiment"
	"gomix/internal/inference"
	"gomix/internal/pipeline"
	"gomix/ports"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gomix",
		Short: "Media-mix modeling: fit, calibrate, and reallocate channel budgets",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newShowCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var periods int
	var withExperiment bool
	var reportPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a full modeling run on a synthetic brand dataset",
		Long: `Generate a synthetic weekly dataset, fit the revenue model, optionally
calibrate the TikTok channel against a simulated geo-lift experiment, and
solve the constrained budget reallocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			streams := rng.New()

			gen := dataset.DefaultGenerateConfig(periods)
			bronze := dataset.Generate(gen, streams.SeededStream("generate", cfg.Run.Seed))
			table, report, err := dataset.Clean(bronze, logger)
			if err != nil {
				return err
			}
			logger.Info("dataset ready",
				zap.Int("rows", report.Rows),
				zap.Int("clipped", report.ClippedSpend+report.ClippedRevenue))

			channels := make([]media.ChannelConfig, 0, len(gen.Channels))
			for _, spec := range gen.Channels {
				ch, err := media.NewChannelConfig(spec.Key, spec.Theta, 0, 1.0)
				if err != nil {
					return err
				}
				channels = append(channels, ch)
			}

			inputs := pipeline.Inputs{Table: table, Channels: channels}
			if withExperiment {
				simCfg := experiment.DefaultSimulatorConfig("spend_tiktok")
				sim, err := experiment.NewSimulator(simCfg)
				if err != nil {
					return err
				}
				run := sim.Run(streams.SeededStream("experiment", cfg.Run.Seed))
				inputs.Experiment = &pipeline.ExperimentInput{
					Channel:          simCfg.Channel,
					TestWindow:       simCfg.TestWindow,
					IncrementalSpend: run.IncrementalSpend,
					Treatment:        run.Treatment,
					Control:          run.Control,
				}
			}

			var store ports.RunStore
			if cfg.Database.URL != "" {
				db, err := postgres.Connect(cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("connect to database: %w", err)
				}
				defer db.Close()
				repo := postgres.NewRunRepository(db)
				if impl, ok := repo.(*postgres.RunRepositoryImpl); ok {
					if err := impl.EnsureSchema(cmd.Context()); err != nil {
						return fmt.Errorf("apply schema: %w", err)
					}
				}
				store = repo
			}

			p := pipeline.New(pipeline.Config{
				Seed:         cfg.Run.Seed,
				SeasonPeriod: cfg.Run.SeasonPeriod,
				Inference: inference.Config{
					MaxIterations: cfg.Run.MaxFitIters,
					Tolerance:     cfg.Run.FitTolerance,
				},
				Budget: budget.Config{
					MaxIterations: cfg.Solver.MaxIterations,
					Tolerance:     cfg.Solver.Tolerance,
					Scale:         cfg.Solver.Scale,
				},
			}, streams, store, logger)

			result, err := p.Execute(cmd.Context(), inputs)
			if err != nil {
				return err
			}

			printRun(result)

			if reportPath == "" {
				reportPath = cfg.Paths.ReportFile
			}
			if reportPath != "" {
				writer := excel.NewReportWriter()
				current := make(map[media.ChannelKey]float64, len(channels))
				for _, ch := range channels {
					current[ch.Key] = table.MeanSpend(ch.Key)
				}
				if err := writer.WriteReport(reportPath, result.ActiveFit().Posterior, result.Optimization, current); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				logger.Info("report written", zap.String("path", reportPath))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&periods, "periods", 156, "number of weekly observations to generate")
	cmd.Flags().BoolVar(&withExperiment, "experiment", true, "calibrate TikTok against a simulated geo-lift experiment")
	cmd.Flags().StringVar(&reportPath, "report", "", "write an Excel report to this path")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a persisted run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL must be set to look up runs")
			}
			db, err := postgres.Connect(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			rec, err := postgres.NewRunRepository(db).GetRun(cmd.Context(), core.RunID(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("run        %s\n", rec.RunID)
			fmt.Printf("seed       %d\n", rec.Seed)
			fmt.Printf("fit        %s\n", rec.FitStatus)
			fmt.Printf("solver     %s\n", rec.Result.Status)
			fmt.Printf("lift       %.2f\n", rec.Result.Lift())
			fmt.Printf("runtime    %dms\n", rec.RuntimeMs)
			return nil
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	// Missing .env is fine; the environment may carry everything already.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level, err := zapcore.ParseLevel(cfg.Run.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func printRun(run *pipeline.Run) {
	fmt.Printf("run %s finished at stage %s\n", run.RunID, run.Stage)
	fit := run.ActiveFit()
	fmt.Printf("fit: %s after %d iterations (ELBO %.1f)\n", fit.Status, fit.Iterations, fit.ELBO)

	fmt.Println("\nchannel returns (per dollar):")
	for _, key := range run.Optimization.Allocation.Channels() {
		if ret, ok := fit.Returns[key]; ok {
			fmt.Printf("  %-22s %.2f ± %.2f\n", key, ret.Mean, ret.Std)
		}
	}
	if run.Calibrated != nil {
		fmt.Printf("\ncalibrated %s: fused ROAS %.2f (sd %.2f)\n",
			run.Calibrated.Channel, run.Calibrated.FusedROAS.Mean,
			math.Sqrt(run.Calibrated.FusedROAS.Variance))
	}

	fmt.Printf("\nbudget: %s\n", run.Optimization.Status)
	if run.Optimization.Status.Improved() {
		for _, key := range run.Optimization.Allocation.Channels() {
			fmt.Printf("  %-22s %.0f\n", key, run.Optimization.Allocation[key])
		}
		fmt.Printf("projected lift: %.0f per step\n", run.Optimization.Lift())
	}
}
