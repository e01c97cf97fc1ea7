// Package harness runs shielded control episodes: it wires the plant, the
// policy boundary, and the shield runtime, and keeps the policy-chosen
// versus shield-chosen bookkeeping auditable.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/policy"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/store"
)

// #region types

// EpisodeResult captures one episode's bookkeeping.
type EpisodeResult struct {
	Episode       int
	Steps         int
	PolicySteps   int
	ShieldSteps   int
	Violation     bool
	ViolationStep int // -1 when clean
	Reward        float64
}

// Summary aggregates a test run. Violations are counted, never averaged
// away.
type Summary struct {
	Episodes    int
	Violations  int
	PolicySteps int
	ShieldSteps int
	MeanReward  float64
}

// Harness drives episodes through the runtime. The store is optional; when
// present every dispatch and violation is logged under the run id.
type Harness struct {
	env   *dynamics.Environment
	src   policy.Source
	rt    *shield.Runtime
	st    *store.Store
	runID string
}

// New wires a harness. st may be nil to skip persistence.
func New(env *dynamics.Environment, src policy.Source, rt *shield.Runtime, st *store.Store, runID string) *Harness {
	return &Harness{env: env, src: src, rt: rt, st: st, runID: runID}
}

// #endregion types

// #region episode

// RunEpisode plays one episode of at most steps control steps. A resolve
// miss terminates the episode immediately and marks it violated; every
// other dispatch outcome keeps the loop going.
func (h *Harness) RunEpisode(ctx context.Context, episode, steps int, rng *rand.Rand) (EpisodeResult, error) {
	res := EpisodeResult{Episode: episode, ViolationStep: -1}
	x := h.env.SampleInitial(rng)

	for step := 0; step < steps; step++ {
		uNN, err := h.src.Act(ctx, x)
		if err != nil {
			return res, fmt.Errorf("harness: episode %d step %d: %w", episode, step, err)
		}

		dec, err := h.rt.Decide(x, uNN)
		if err != nil {
			if !errors.Is(err, shield.ErrNoCover) {
				return res, fmt.Errorf("harness: episode %d step %d: %w", episode, step, err)
			}
			// Hard safety violation: surface it, never clamp it away.
			res.Violation = true
			res.ViolationStep = step
			if h.st != nil {
				if lerr := h.st.LogViolation(h.runID, episode, step, x); lerr != nil {
					log.Printf("[HARNESS] violation log error: %v", lerr)
				}
			}
			return res, nil
		}

		switch dec.Mode {
		case shield.ModePolicy:
			res.PolicySteps++
		case shield.ModeShield:
			res.ShieldSteps++
		}
		if h.st != nil {
			err := h.st.LogStep(store.StepRecord{
				RunID:      h.runID,
				Episode:    episode,
				Step:       step,
				Mode:       dec.Mode.String(),
				EntryIndex: dec.EntryIndex,
				Reason:     dec.Reason,
			})
			if err != nil {
				log.Printf("[HARNESS] step log error: %v", err)
			}
		}

		applied := h.env.ClampAction(dec.U)
		res.Reward += h.env.Reward(x, applied)
		x = h.env.Step(x, applied)
		res.Steps++
	}
	return res, nil
}

// Run plays a batch of seeded test episodes and aggregates the outcome.
func (h *Harness) Run(ctx context.Context, episodes, steps int, seed int64) (Summary, error) {
	var sum Summary
	var totalReward float64
	for ep := 0; ep < episodes; ep++ {
		rng := rand.New(rand.NewSource(seed + int64(ep)))
		res, err := h.RunEpisode(ctx, ep, steps, rng)
		if err != nil {
			return sum, err
		}

		sum.Episodes++
		sum.PolicySteps += res.PolicySteps
		sum.ShieldSteps += res.ShieldSteps
		totalReward += res.Reward
		if res.Violation {
			sum.Violations++
			log.Printf("[HARNESS] episode %d: safety violation at step %d", ep, res.ViolationStep)
		}
	}
	if sum.Episodes > 0 {
		sum.MeanReward = totalReward / float64(sum.Episodes)
	}

	log.Printf("[HARNESS] %d episodes: %d violations, %d policy steps, %d shield steps",
		sum.Episodes, sum.Violations, sum.PolicySteps, sum.ShieldSteps)
	return sum, nil
}

// #endregion episode
