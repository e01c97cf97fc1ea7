package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/config"
)

var (
	cfgPath   string
	benchName string
)

// rootCmd is the base command for shield synthesis and testing.
var rootCmd = &cobra.Command{
	Use:   "shieldctl",
	Short: "Synthesize and test runtime safety shields for linear plants",
	Long: `shieldctl drives the offline shield pipeline (gain synthesis and
invariant construction) and the online test harness for the registered
benchmark plants. Synthesized artifacts persist in SQLite plus a
K.model.npy checkpoint, so a shield is learned once and enforced forever
after.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML run configuration (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&benchName, "benchmark", "", "benchmark name (overrides config)")
}

// loadConfig resolves the run configuration from file, env, and flags.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}
	if benchName != "" {
		cfg.Benchmark = benchName
	}
	return cfg, nil
}
