package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/bench"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/store"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/synth"
)

var (
	synthShields    int
	synthRetrain    bool
	synthEpisodeLen int
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Synthesize a shield stack for a benchmark and persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSynth()
	},
}

func init() {
	synthCmd.Flags().IntVar(&synthShields, "shields", 0, "number of nested shield layers (overrides config)")
	synthCmd.Flags().BoolVar(&synthRetrain, "retrain-shield", false, "ignore the gain checkpoint and re-learn")
	synthCmd.Flags().IntVar(&synthEpisodeLen, "episode-len", 0, "control horizon per episode (overrides config)")
	rootCmd.AddCommand(synthCmd)
}

// #region run-synth

func runSynth() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if synthShields > 0 {
		cfg.Shields = synthShields
	}
	if synthRetrain {
		cfg.RetrainShield = true
	}
	if synthEpisodeLen > 0 {
		cfg.EpisodeLen = synthEpisodeLen
	}

	bm, err := bench.Lookup(cfg.Benchmark)
	if err != nil {
		return err
	}
	sOpts, iOpts := bm.Synth, bm.Invariant
	if cfgPath != "" {
		sOpts, iOpts = cfg.SynthOptions(), cfg.InvariantOptions()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runID, err := st.BeginRun(cfg.Benchmark, sOpts.Seed, sOpts.Budget)
	if err != nil {
		return err
	}

	stack, err := buildStack(bm, cfg.Shields, cfg.EpisodeLen, cfg.RetrainShield, cfg.CheckpointDir, sOpts, iOpts)
	if err != nil {
		if ferr := st.FinishRun(runID, "failed: "+err.Error()); ferr != nil {
			log.Printf("[SHIELDCTL] finish run: %v", ferr)
		}
		return err
	}

	if err := st.SaveStack(runID, stack); err != nil {
		return err
	}
	if err := st.FinishRun(runID, "ok"); err != nil {
		return err
	}

	log.Printf("[SHIELDCTL] run %s: %d-layer stack for %s, horizon %d",
		runID, stack.Len(), cfg.Benchmark, stack.Horizon())
	fmt.Println(runID)
	return nil
}

// buildStack learns or reloads the gain, certifies its invariant, and
// assembles the (possibly layered) stack. The verified-region property
// check runs before anything is accepted.
func buildStack(bm bench.Benchmark, shields, horizon int, retrain bool, checkpointDir string, sOpts synth.Options, iOpts invariant.BuildOptions) (*shield.Stack, error) {
	ckptDir := filepath.Join(checkpointDir, bm.Name)

	if shields > 1 {
		stack, err := shield.NewLayeredStack(bm.Env, shields, horizon, true, sOpts, iOpts)
		if err != nil {
			return nil, err
		}
		if err := store.SaveGain(ckptDir, stack.Entries()[0].K); err != nil {
			return nil, err
		}
		return stack, nil
	}

	var k *mat.Dense
	if !retrain && store.GainExists(ckptDir) {
		loaded, err := store.LoadGain(ckptDir)
		if err != nil {
			return nil, err
		}
		k = loaded
		log.Printf("[SHIELDCTL] reusing gain checkpoint in %s", ckptDir)
	} else {
		learned, err := synth.Search(bm.Env, sOpts)
		if err != nil {
			return nil, err
		}
		k = learned
		if err := store.SaveGain(ckptDir, k); err != nil {
			return nil, err
		}
	}

	poly, cover, err := invariant.Build(bm.Env, k, iOpts)
	if err != nil {
		return nil, err
	}
	if err := invariant.Verify(bm.Env, k, poly, cover, 200, iOpts); err != nil {
		return nil, fmt.Errorf("verified region rejected: %w", err)
	}

	return shield.NewStack([]shield.Entry{{K: k, Inv: poly, Cover: cover}}, horizon, true)
}

// #endregion run-synth
