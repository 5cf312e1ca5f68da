package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"revsim/internal/config"
	"revsim/internal/export"
	"revsim/internal/logging"
	"revsim/internal/metrics"
	"revsim/internal/sim"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	flagSeed   int64
	flagMonths int
	flagStart  string
	flagOut    string
	flagDB     string
	flagDSN    string
)

var rootCmd = &cobra.Command{
	Use:     "revsim",
	Short:   "revsim - deterministic subscription billing simulator",
	Long:    `revsim simulates a subscription business end to end: trials, churn, dunning, metered usage, invoicing and revenue splits, reproducibly from a seed.`,
	Version: Version,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the simulation and export the dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		simulation := sim.New(sim.Config{
			Seed:          cfg.Seed,
			Months:        cfg.Months,
			StepsPerMonth: cfg.StepsPerMonth,
			Start:         cfg.Start,
		})
		dataset, err := simulation.Run()
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}

		if err := export.WriteJSON(dataset, cfg.OutputDir); err != nil {
			return err
		}
		logging.S().Infow("dataset exported", "dir", cfg.OutputDir)

		if cfg.DBDriver != "" {
			db, err := export.OpenDatabase(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			if err := db.WriteDataset(dataset); err != nil {
				return err
			}
			logging.S().Infow("dataset exported to database", "driver", cfg.DBDriver)
		}
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Run the simulation and print the metrics snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		simulation := sim.New(sim.Config{
			Seed:          cfg.Seed,
			Months:        cfg.Months,
			StepsPerMonth: cfg.StepsPerMonth,
			Start:         cfg.Start,
		})
		dataset, err := simulation.Run()
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}

		snap := dataset.Metrics
		fmt.Printf("Monthly recurring revenue: $%.2f\n", snap.MRRCents/100)
		fmt.Printf("Annual recurring revenue:  $%.2f\n", snap.ARRCents/100)
		fmt.Printf("ARPU:                      $%.2f\n", snap.ARPUCents/100)
		fmt.Printf("Active subscriptions:      %d of %d\n", snap.ActiveSubscriptions, snap.TotalSubscriptions)
		fmt.Printf("Churn rate (30d):          %.2f%%\n", snap.ChurnRate*100)
		fmt.Printf("Payment success rate:      %.2f%%\n", snap.PaymentSuccessRate*100)
		fmt.Printf("Total revenue collected:   $%.2f\n", float64(snap.TotalRevenueCents)/100)
		fmt.Println("\nPlan distribution:")
		for _, plan := range sortedKeys(snap.PlanDistribution) {
			fmt.Printf("  %-22s %d\n", plan, snap.PlanDistribution[plan])
		}
		fmt.Println("\nCohort LTV:")
		for _, cohort := range metrics.Cohorts(snap.CohortLTVCents) {
			fmt.Printf("  %s  $%.2f\n", cohort, snap.CohortLTVCents[cohort]/100)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("revsim %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

// loadConfig merges environment configuration with any flags set on cmd;
// flags win.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = flagSeed
	}
	if cmd.Flags().Changed("months") {
		cfg.Months = flagMonths
	}
	if cmd.Flags().Changed("start") {
		start, err := time.Parse("2006-01-02", flagStart)
		if err != nil {
			return nil, fmt.Errorf("invalid --start: %w", err)
		}
		cfg.Start = start.UTC()
	}
	if cmd.Flags().Changed("out") {
		cfg.OutputDir = flagOut
	}
	if cmd.Flags().Changed("db") {
		cfg.DBDriver = flagDB
	}
	if cmd.Flags().Changed("dsn") {
		cfg.DBDSN = flagDSN
	}
	return cfg, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	for _, cmd := range []*cobra.Command{generateCmd, metricsCmd} {
		cmd.Flags().Int64Var(&flagSeed, "seed", 42, "random seed")
		cmd.Flags().IntVar(&flagMonths, "months", 24, "months to simulate")
		cmd.Flags().StringVar(&flagStart, "start", "2023-01-01", "simulation start date (YYYY-MM-DD)")
	}
	generateCmd.Flags().StringVar(&flagOut, "out", "out", "output directory for JSON files")
	generateCmd.Flags().StringVar(&flagDB, "db", "", "database driver (sqlite or postgres)")
	generateCmd.Flags().StringVar(&flagDSN, "dsn", "", "database DSN (file path for sqlite)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
