package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/bench"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/config"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/harness"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/policy"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/store"
)

var (
	testRunID        string
	testEpisodes     int
	testSeed         int64
	testSafeTraining bool
	testUsePolicy    bool
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Drive shielded episodes against a benchmark and report violations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTest(cmd.Context())
	},
}

func init() {
	testCmd.Flags().StringVar(&testRunID, "run", "", "synthesis run to load (latest for the benchmark when empty)")
	testCmd.Flags().IntVar(&testEpisodes, "episodes", 0, "episode count (overrides config)")
	testCmd.Flags().Int64Var(&testSeed, "seed", 1, "episode rng seed")
	testCmd.Flags().BoolVar(&testSafeTraining, "safe-training", false, "route every step through the verified controller")
	testCmd.Flags().BoolVar(&testUsePolicy, "policy", false, "query the remote policy service instead of the linear fallback")
	rootCmd.AddCommand(testCmd)
}

// #region run-test

func runTest(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if testEpisodes > 0 {
		cfg.TestEpisodes = testEpisodes
	}
	if testSafeTraining {
		cfg.SafeTraining = true
	}

	bm, err := bench.Lookup(cfg.Benchmark)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	stack, runID, err := loadStack(st, bm, cfg)
	if err != nil {
		return err
	}

	src, done, err := policySource(cfg, stack)
	if err != nil {
		return err
	}
	defer done()

	rt := shield.NewRuntime(bm.Env, stack, bm.Invariant.EqErr, cfg.SafeTraining)
	h := harness.New(bm.Env, src, rt, st, runID)

	sum, err := h.Run(ctx, cfg.TestEpisodes, cfg.EpisodeLen, testSeed)
	if err != nil {
		return err
	}

	fmt.Printf("benchmark=%s episodes=%d policy_steps=%d shield_steps=%d mean_reward=%.4f violations=%d\n",
		cfg.Benchmark, sum.Episodes, sum.PolicySteps, sum.ShieldSteps, sum.MeanReward, sum.Violations)
	if sum.Violations > 0 {
		return fmt.Errorf("%d of %d episodes left the safe region", sum.Violations, sum.Episodes)
	}
	return nil
}

// loadStack prefers a persisted synthesis run; benchmarks that ship a
// pre-verified entry fall back to it when the store has nothing.
func loadStack(st *store.Store, bm bench.Benchmark, cfg config.Config) (*shield.Stack, string, error) {
	runID := testRunID
	if runID == "" {
		latest, err := st.LatestRun(cfg.Benchmark)
		if err == nil {
			runID = latest
		}
	}
	if runID != "" {
		stack, err := st.LoadStack(runID)
		if err != nil {
			return nil, "", fmt.Errorf("load run %s: %w", runID, err)
		}
		return stack, runID, nil
	}
	if bm.Seed == nil {
		return nil, "", errors.New("no synthesis run on record; run `shieldctl synth` first")
	}
	log.Printf("[SHIELDCTL] no stored run for %s, using the built-in verified entry", cfg.Benchmark)
	stack, err := shield.NewStack([]shield.Entry{*bm.Seed}, cfg.EpisodeLen, true)
	return stack, "", err
}

func policySource(cfg config.Config, stack *shield.Stack) (policy.Source, func(), error) {
	if testUsePolicy {
		cl, err := policy.NewClient(cfg.PolicyAddr)
		if err != nil {
			return nil, nil, err
		}
		return cl, func() {
			if err := cl.Close(); err != nil {
				log.Printf("[SHIELDCTL] close policy client: %v", err)
			}
		}, nil
	}
	return policy.NewLinear(stack.Entries()[0].K), func() {}, nil
}

// #endregion run-test
