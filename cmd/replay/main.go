package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/bench"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/harness"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/store"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	dbPath := flag.String("db", "", "load the stack from this shield.db (built-in entry when empty)")
	runID := flag.String("run", "", "synthesis run to load (latest for the fixture's benchmark when empty)")
	safeTraining := flag.Bool("safe-training", false, "replay with every step forced through the verified controller")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--db path/to/shield.db] [--run id]")
		os.Exit(2)
	}

	os.Exit(run(*fixturePath, *dbPath, *runID, *safeTraining))
}

func run(fixturePath, dbPath, runID string, safeTraining bool) int {
	fx, err := harness.LoadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 1
	}

	bm, err := bench.Lookup(fx.Benchmark)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	stack, err := resolveStack(bm, fx, dbPath, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	rt := shield.NewRuntime(bm.Env, stack, bm.Invariant.EqErr, safeTraining)
	report, err := harness.ReplayFixture(bm.Env, rt, fx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 1
	}

	if len(report.Mismatches) == 0 {
		fmt.Printf("replayed %d steps, all dispatches match\n", report.Steps)
		return 0
	}
	fmt.Printf("replayed %d steps, %d mismatches:\n", report.Steps, len(report.Mismatches))
	for _, m := range report.Mismatches {
		fmt.Printf("  %s\n", m)
	}
	return 1
}

// #endregion main

// #region stack-resolution

func resolveStack(bm bench.Benchmark, fx harness.Fixture, dbPath, runID string) (*shield.Stack, error) {
	if dbPath == "" {
		if bm.Seed == nil {
			return nil, fmt.Errorf("benchmark %s has no built-in entry, pass --db", fx.Benchmark)
		}
		return shield.NewStack([]shield.Entry{*bm.Seed}, fx.EpisodeLen, true)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if runID == "" {
		runID, err = st.LatestRun(fx.Benchmark)
		if err != nil {
			return nil, err
		}
	}
	return st.LoadStack(runID)
}

// #endregion stack-resolution
