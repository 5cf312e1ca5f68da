// Package config loads run configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the environment-derived configuration for a revsim run. CLI
// flags override any of these values.
type Config struct {
	Seed          int64
	Months        int
	StepsPerMonth int
	Start         time.Time

	OutputDir string
	DBDriver  string
	DBDSN     string
}

// Load reads the environment, after loading a .env file if one exists in
// the working directory.
func Load() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Seed:          42,
		Months:        24,
		StepsPerMonth: 30,
		Start:         time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		OutputDir:     "out",
	}

	if v := os.Getenv("REVSIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("REVSIM_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	if v := os.Getenv("REVSIM_MONTHS"); v != "" {
		months, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REVSIM_MONTHS: %w", err)
		}
		if months <= 0 {
			return nil, fmt.Errorf("REVSIM_MONTHS must be positive, got %d", months)
		}
		cfg.Months = months
	}
	if v := os.Getenv("REVSIM_STEPS_PER_MONTH"); v != "" {
		steps, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REVSIM_STEPS_PER_MONTH: %w", err)
		}
		if steps <= 0 {
			return nil, fmt.Errorf("REVSIM_STEPS_PER_MONTH must be positive, got %d", steps)
		}
		cfg.StepsPerMonth = steps
	}
	if v := os.Getenv("REVSIM_START"); v != "" {
		start, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fmt.Errorf("REVSIM_START: %w", err)
		}
		cfg.Start = start.UTC()
	}
	if v := os.Getenv("REVSIM_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	cfg.DBDriver = os.Getenv("REVSIM_DB_DRIVER")
	cfg.DBDSN = os.Getenv("REVSIM_DB_DSN")
	if cfg.DBDriver != "" && cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("REVSIM_DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}

	return cfg, nil
}
