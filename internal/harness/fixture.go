package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
)

// #region fixture-types

// Fixture is the JSON structure for a recorded episode: per step the state,
// the policy's raw proposal, and the dispatch the runtime produced.
type Fixture struct {
	Benchmark  string        `json:"benchmark"`
	Seed       int64         `json:"seed"`
	EpisodeLen int           `json:"episode_len"`
	Steps      []FixtureStep `json:"steps"`
}

// FixtureStep is one recorded control step.
type FixtureStep struct {
	State      []float64 `json:"state"`
	Proposed   []float64 `json:"proposed_action"`
	Applied    []float64 `json:"applied_action"`
	Mode       string    `json:"mode"`
	EntryIndex int       `json:"entry_index"`
}

// ReplayReport summarizes a fixture replay.
type ReplayReport struct {
	Steps      int
	Mismatches []string
}

// #endregion fixture-types

// #region record

// RecordFixture plays one seeded episode and captures every dispatch.
func (h *Harness) RecordFixture(ctx context.Context, benchmark string, steps int, seed int64) (Fixture, error) {
	fx := Fixture{Benchmark: benchmark, Seed: seed, EpisodeLen: steps}
	rng := rand.New(rand.NewSource(seed))
	x := h.env.SampleInitial(rng)

	for step := 0; step < steps; step++ {
		uNN, err := h.src.Act(ctx, x)
		if err != nil {
			return Fixture{}, fmt.Errorf("harness: record step %d: %w", step, err)
		}
		dec, err := h.rt.Decide(x, uNN)
		if err != nil {
			return Fixture{}, fmt.Errorf("harness: record step %d: %w", step, err)
		}

		applied := h.env.ClampAction(dec.U)
		fx.Steps = append(fx.Steps, FixtureStep{
			State:      vecSlice(x),
			Proposed:   vecSlice(uNN),
			Applied:    vecSlice(applied),
			Mode:       dec.Mode.String(),
			EntryIndex: dec.EntryIndex,
		})
		x = h.env.Step(x, applied)
	}
	return fx, nil
}

// #endregion record

// #region replay

// ReplayFixture re-runs each recorded state through a runtime and diffs the
// dispatch against the recording. Deterministic stacks must reproduce the
// same decisions.
func ReplayFixture(env *dynamics.Environment, rt *shield.Runtime, fx Fixture) (ReplayReport, error) {
	rep := ReplayReport{}
	for i, step := range fx.Steps {
		x := mat.NewVecDense(len(step.State), append([]float64(nil), step.State...))
		uNN := mat.NewVecDense(len(step.Proposed), append([]float64(nil), step.Proposed...))

		dec, err := rt.Decide(x, uNN)
		if err != nil {
			return rep, fmt.Errorf("harness: replay step %d: %w", i, err)
		}
		rep.Steps++

		if dec.Mode.String() != step.Mode {
			rep.Mismatches = append(rep.Mismatches,
				fmt.Sprintf("step %d: mode %s, recorded %s", i, dec.Mode, step.Mode))
			continue
		}
		applied := env.ClampAction(dec.U)
		for j := 0; j < applied.Len(); j++ {
			if math.Abs(applied.AtVec(j)-step.Applied[j]) > 1e-9 {
				rep.Mismatches = append(rep.Mismatches,
					fmt.Sprintf("step %d: action[%d]=%g, recorded %g", i, j, applied.AtVec(j), step.Applied[j]))
				break
			}
		}
	}
	return rep, nil
}

// #endregion replay

// #region io

// SaveFixture writes a fixture JSON file.
func SaveFixture(path string, fx Fixture) error {
	data, err := json.MarshalIndent(fx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// LoadFixture reads a fixture JSON file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return fx, nil
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// #endregion io
