package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/bench"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/harness"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/store"
)

var (
	recordOut  string
	recordSeed int64
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one seeded episode as a JSON fixture for later replay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context())
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordOut, "out", "fixture.json", "fixture output path")
	recordCmd.Flags().Int64Var(&recordSeed, "seed", 1, "episode rng seed")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	stack, _, err := loadStack(st, bm, cfg)
	if err != nil {
		return err
	}

	src, done, err := policySource(cfg, stack)
	if err != nil {
		return err
	}
	defer done()

	rt := shield.NewRuntime(bm.Env, stack, bm.Invariant.EqErr, cfg.SafeTraining)
	h := harness.New(bm.Env, src, rt, nil, "")

	fx, err := h.RecordFixture(ctx, cfg.Benchmark, cfg.EpisodeLen, recordSeed)
	if err != nil {
		return err
	}
	if err := harness.SaveFixture(recordOut, fx); err != nil {
		return err
	}
	log.Printf("[SHIELDCTL] wrote %d-step fixture for %s to %s", len(fx.Steps), cfg.Benchmark, recordOut)
	return nil
}
