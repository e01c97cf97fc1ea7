package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsComplete(t *testing.T) {
	cfg := Default()
	if cfg.Benchmark == "" || cfg.DBPath == "" || cfg.CheckpointDir == "" {
		t.Fatalf("default config has empty fields: %+v", cfg)
	}
	if cfg.Synth.Budget <= 0 || cfg.Invariant.StepSize <= 0 {
		t.Fatalf("default search parameters not positive: %+v", cfg)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	body := []byte(`
benchmark: quadcopter
episode_len: 80
safe_training: true
synth:
  budget: 500
  seed: 42
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Benchmark != "quadcopter" || cfg.EpisodeLen != 80 || !cfg.SafeTraining {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Synth.Budget != 500 || cfg.Synth.Seed != 42 {
		t.Fatalf("nested overrides not applied: %+v", cfg.Synth)
	}
	// Untouched fields keep their defaults.
	if cfg.TestEpisodes != 100 || cfg.Synth.Method != "random_search" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("benchmark: [unclosed"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SHIELD_DB", "/tmp/other.db")
	t.Setenv("POLICY_ADDR", "policy:9000")
	t.Setenv("SHIELD_CHECKPOINT_DIR", "")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.DBPath != "/tmp/other.db" || cfg.PolicyAddr != "policy:9000" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.CheckpointDir != "checkpoints" {
		t.Fatalf("empty env var should keep the default, got %s", cfg.CheckpointDir)
	}
}

func TestOptionConversions(t *testing.T) {
	cfg := Default()
	cfg.Synth.Seed = 7

	s := cfg.SynthOptions()
	if s.Seed != 7 || s.Method != cfg.Synth.Method || s.Budget != cfg.Synth.Budget {
		t.Fatalf("synth conversion lost fields: %+v", s)
	}

	i := cfg.InvariantOptions()
	if i.Seed != 7 {
		t.Fatalf("invariant options seed = %d, want the synth seed", i.Seed)
	}
	if i.StepSize != cfg.Invariant.StepSize || i.Horizon != cfg.Invariant.Horizon {
		t.Fatalf("invariant conversion lost fields: %+v", i)
	}
}
