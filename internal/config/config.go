// Package config loads run configuration for the shield drivers.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/synth"
)

// #region types
// Synth mirrors synth.Options for the YAML surface.
type Synth struct {
	Method       string  `yaml:"method"`
	RolloutCount int     `yaml:"rollout_count"`
	RolloutLen   int     `yaml:"rollout_len"`
	Budget       int     `yaml:"budget"`
	StepMag      float64 `yaml:"step_mag"`
	Seed         int64   `yaml:"seed"`
}

// Invariant mirrors invariant.BuildOptions for the YAML surface.
type Invariant struct {
	ExploreMag   float64 `yaml:"explore_mag"`
	StepSize     float64 `yaml:"step_size"`
	EqErr        float64 `yaml:"eq_err"`
	Horizon      int     `yaml:"horizon"`
	RolloutCount int     `yaml:"rollout_count"`
}

// Config is one run's full parameter set.
type Config struct {
	Benchmark     string `yaml:"benchmark"`
	EpisodeLen    int    `yaml:"episode_len"`
	TestEpisodes  int    `yaml:"test_episodes"`
	Shields       int    `yaml:"shields"`
	SafeTraining  bool   `yaml:"safe_training"`
	RetrainShield bool   `yaml:"retrain_shield"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	PolicyAddr    string `yaml:"policy_addr"`
	DBPath        string `yaml:"db_path"`

	Synth     Synth     `yaml:"synth"`
	Invariant Invariant `yaml:"invariant"`
}

// #endregion types

// #region defaults
// Default returns the baseline configuration shared by the benchmarks.
func Default() Config {
	s := synth.DefaultOptions()
	i := invariant.DefaultBuildOptions()
	return Config{
		Benchmark:     "cruise",
		EpisodeLen:    50,
		TestEpisodes:  100,
		Shields:       1,
		CheckpointDir: "checkpoints",
		PolicyAddr:    "localhost:50052",
		DBPath:        "shield.db",
		Synth: Synth{
			Method:       s.Method,
			RolloutCount: s.RolloutCount,
			RolloutLen:   s.RolloutLen,
			Budget:       s.Budget,
			StepMag:      s.StepMag,
			Seed:         s.Seed,
		},
		Invariant: Invariant{
			ExploreMag:   i.ExploreMag,
			StepSize:     i.StepSize,
			EqErr:        i.EqErr,
			Horizon:      i.Horizon,
			RolloutCount: i.RolloutCount,
		},
	}
}

// #endregion defaults

// #region load
// Load reads a YAML file over the defaults, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides deployment-specific fields from the environment.
func (c *Config) ApplyEnv() {
	c.CheckpointDir = envOr("SHIELD_CHECKPOINT_DIR", c.CheckpointDir)
	c.PolicyAddr = envOr("POLICY_ADDR", c.PolicyAddr)
	c.DBPath = envOr("SHIELD_DB", c.DBPath)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load

// #region conversions

// SynthOptions converts the YAML surface into synth options.
func (c Config) SynthOptions() synth.Options {
	return synth.Options{
		Method:       c.Synth.Method,
		RolloutCount: c.Synth.RolloutCount,
		RolloutLen:   c.Synth.RolloutLen,
		Budget:       c.Synth.Budget,
		StepMag:      c.Synth.StepMag,
		Seed:         c.Synth.Seed,
	}
}

// InvariantOptions converts the YAML surface into builder options.
func (c Config) InvariantOptions() invariant.BuildOptions {
	return invariant.BuildOptions{
		ExploreMag:   c.Invariant.ExploreMag,
		StepSize:     c.Invariant.StepSize,
		EqErr:        c.Invariant.EqErr,
		Horizon:      c.Invariant.Horizon,
		RolloutCount: c.Invariant.RolloutCount,
		Seed:         c.Synth.Seed,
	}
}

// #endregion conversions
