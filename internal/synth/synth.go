// Package synth searches for stabilizing linear feedback gains by
// randomized local search over scored rollouts.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
)

// ErrNoStabilizingGain reports an exhausted candidate budget with no
// bound-respecting gain. Recoverable by widening the budget or the bounds.
var ErrNoStabilizingGain = errors.New("synth: no bound-respecting gain within budget")

// MethodRandomSearch is the only search method tag currently understood.
const MethodRandomSearch = "random_search"

// #region options
// Options parameterizes a gain search. The budget counts candidate
// evaluations and doubles as the timeout surrogate: there is no wall-clock
// cancellation in the offline phase.
type Options struct {
	Method       string
	RolloutCount int // trajectories scoring each candidate
	RolloutLen   int // steps per trajectory
	Budget       int // total candidate evaluations
	StepMag      float64 // bounded random perturbation magnitude
	Seed         int64
	Workers      int // parallel candidate scorers; 0 selects GOMAXPROCS
}

// DefaultOptions mirrors the budgets used at the benchmark call sites.
func DefaultOptions() Options {
	return Options{
		Method:       MethodRandomSearch,
		RolloutCount: 100,
		RolloutLen:   200,
		Budget:       200,
		StepMag:      2.0,
		Seed:         6553,
	}
}

// #endregion options

// #region search
// Search is a pure function of (env, opts): it perturbs the current best
// gain by bounded random steps, scores each candidate over seeded rollouts
// from the initial box, rejects any candidate whose rollouts leave the
// safety bounds, and keeps the lowest-cost survivor. Candidates within a
// round are scored in parallel and merged by best-of reduction.
func Search(env *dynamics.Environment, opts Options) (*mat.Dense, error) {
	if opts.Method != MethodRandomSearch {
		return nil, fmt.Errorf("synth: unknown search method %q", opts.Method)
	}
	if opts.Budget <= 0 || opts.RolloutCount <= 0 || opts.RolloutLen <= 0 {
		return nil, fmt.Errorf("synth: budget, rollout count and rollout length must be positive")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	m, n := env.ActionDim(), env.StateDim()
	var bestK *mat.Dense
	bestCost := math.Inf(1)

	type result struct {
		k    *mat.Dense
		cost float64
		ok   bool
	}

	evaluated := 0
	for evaluated < opts.Budget {
		batch := workers
		if rem := opts.Budget - evaluated; rem < batch {
			batch = rem
		}

		results := make([]result, batch)
		var g errgroup.Group
		for w := 0; w < batch; w++ {
			idx := evaluated + w
			g.Go(func() error {
				rng := rand.New(rand.NewSource(opts.Seed + int64(idx)*7919))
				k := perturb(bestK, m, n, opts.StepMag, rng)
				cost, ok := score(env, k, opts, rng)
				results[w] = result{k: k, cost: cost, ok: ok}
				return nil
			})
		}
		// Scorers only write their own slot; Wait is the merge barrier.
		_ = g.Wait()

		for _, r := range results {
			if r.ok && r.cost < bestCost {
				bestCost = r.cost
				bestK = r.k
			}
		}
		evaluated += batch
	}

	if bestK == nil {
		return nil, fmt.Errorf("%w: %d candidates over %d-step rollouts",
			ErrNoStabilizingGain, opts.Budget, opts.RolloutLen)
	}
	return bestK, nil
}

// perturb draws a candidate gain as a bounded random step from the current
// best, or from the origin while no candidate has survived yet.
func perturb(best *mat.Dense, m, n int, stepMag float64, rng *rand.Rand) *mat.Dense {
	k := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			base := 0.0
			if best != nil {
				base = best.At(i, j)
			}
			k.Set(i, j, base+(rng.Float64()*2-1)*stepMag)
		}
	}
	return k
}

// score runs the candidate's rollouts. Any bound violation rejects the
// candidate outright; survivors report accumulated quadratic cost.
func score(env *dynamics.Environment, k *mat.Dense, opts Options, rng *rand.Rand) (float64, bool) {
	var total float64
	for r := 0; r < opts.RolloutCount; r++ {
		x0 := env.SampleInitial(rng)
		res := env.Rollout(x0, k, opts.RolloutLen, 0, 0, rng)
		if res.Violated {
			return 0, false
		}
		total += res.Cost
	}
	return total, true
}

// #endregion search
