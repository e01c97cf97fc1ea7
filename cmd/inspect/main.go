package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/store"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to shield.db")
	last := flag.Int("last", 20, "show N most recent runs")
	run := flag.String("run", "", "show single run detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/shield.db [--last N] [--run id] [--json]")
		os.Exit(2)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *run != "" {
		if err := runDetailMode(st, *run, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := runListMode(st, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type runRow struct {
	RunID      string `json:"run_id"`
	Benchmark  string `json:"benchmark"`
	Seed       int64  `json:"seed"`
	Budget     int    `json:"budget"`
	Horizon    int    `json:"horizon"`
	Outcome    string `json:"outcome"`
	Violations int    `json:"violations"`
	CreatedAt  string `json:"created_at"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	rows, err := st.DB().Query(`
		SELECT run_id, benchmark, seed, budget, COALESCE(horizon, 0), COALESCE(outcome, ''), created_at
		FROM synthesis_runs ORDER BY created_at DESC LIMIT ?`, last)
	if err != nil {
		return err
	}
	defer rows.Close()

	var list []runRow
	for rows.Next() {
		var r runRow
		if err := rows.Scan(&r.RunID, &r.Benchmark, &r.Seed, &r.Budget, &r.Horizon, &r.Outcome, &r.CreatedAt); err != nil {
			return err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}
	for i := range list {
		n, err := st.CountViolations(list[i].RunID)
		if err != nil {
			return err
		}
		list[i].Violations = n
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	fmt.Printf("%-36s  %-18s  %-8s  %-10s  %s\n", "RUN", "BENCHMARK", "HORIZON", "VIOLATIONS", "OUTCOME")
	for _, r := range list {
		fmt.Printf("%-36s  %-18s  %-8d  %-10d  %s\n", r.RunID, r.Benchmark, r.Horizon, r.Violations, r.Outcome)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type entryRow struct {
	Index int         `json:"index"`
	Gain  [][]float64 `json:"gain"`
	Lower []float64   `json:"cover_lower"`
	Upper []float64   `json:"cover_upper"`
}

type runDetail struct {
	RunID      string         `json:"run_id"`
	Entries    []entryRow     `json:"entries"`
	StepCounts map[string]int `json:"step_counts"`
	Violations int            `json:"violations"`
}

func runDetailMode(st *store.Store, runID string, jsonOut bool) error {
	stack, err := st.LoadStack(runID)
	if err != nil {
		return err
	}
	steps, err := st.CountSteps(runID)
	if err != nil {
		return err
	}
	violations, err := st.CountViolations(runID)
	if err != nil {
		return err
	}

	detail := runDetail{RunID: runID, StepCounts: steps, Violations: violations}
	for i, e := range stack.Entries() {
		detail.Entries = append(detail.Entries, entryRow{
			Index: i,
			Gain:  matRows(e.K),
			Lower: vecSlice(e.Cover.Lower),
			Upper: vecSlice(e.Cover.Upper),
		})
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	fmt.Printf("run %s: %d entries, %d violations\n", runID, len(detail.Entries), violations)
	for mode, n := range steps {
		fmt.Printf("  %-8s steps: %d\n", mode, n)
	}
	for _, e := range detail.Entries {
		fmt.Printf("  entry %d: K=%v cover=[%v, %v]\n", e.Index, e.Gain, e.Lower, e.Upper)
	}
	return nil
}

func matRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// #endregion detail-mode
