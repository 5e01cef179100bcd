// Package config reads the application configuration from environment
// variables, with sensible defaults for everything except the database URL
// when persistence is requested.
package config

import (
	"os"
	"strconv"

	"gomix/domain/core"
)

// Config represents the complete application configuration
type Config struct {
	Run      RunConfig
	Solver   SolverConfig
	Database DatabaseConfig
	Paths    PathConfig
}

// RunConfig holds modeling run settings
type RunConfig struct {
	Seed         int64
	SeasonPeriod float64
	MaxFitIters  int
	FitTolerance float64
	LogLevel     string
}

// SolverConfig holds budget solver settings
type SolverConfig struct {
	MaxIterations int
	Tolerance     float64
	Scale         float64
}

// DatabaseConfig holds database connection settings. URL empty means
// persistence is disabled.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// PathConfig holds file system paths
type PathConfig struct {
	ReportFile string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Run: RunConfig{
			Seed:         getEnvInt64OrDefault("SEED", 42),
			SeasonPeriod: getEnvFloatOrDefault("SEASON_PERIOD", 52.1775),
			MaxFitIters:  getEnvIntOrDefault("MAX_FIT_ITERATIONS", 5000),
			FitTolerance: getEnvFloatOrDefault("FIT_TOLERANCE", 1e-4),
			LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		},
		Solver: SolverConfig{
			MaxIterations: getEnvIntOrDefault("SOLVER_MAX_ITERATIONS", 200),
			Tolerance:     getEnvFloatOrDefault("SOLVER_TOLERANCE", 1e-9),
			Scale:         getEnvFloatOrDefault("SOLVER_SCALE", 1e4),
		},
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Paths: PathConfig{
			ReportFile: getEnvOrDefault("REPORT_FILE", ""),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Run.SeasonPeriod <= 0 {
		return core.NewConfigurationError("SEASON_PERIOD", "must be > 0")
	}
	if config.Run.MaxFitIters <= 0 {
		return core.NewConfigurationError("MAX_FIT_ITERATIONS", "must be > 0")
	}
	if config.Solver.Scale <= 0 {
		return core.NewConfigurationError("SOLVER_SCALE", "must be > 0")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
