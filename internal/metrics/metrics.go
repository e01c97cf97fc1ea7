// Package metrics holds read-only instrumentation over a built shield
// stack. Nothing here mutates the stack or sits on the per-step hot path.
package metrics

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/policy"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
)

// AxisExtent is the observed excursion range along one state axis.
type AxisExtent struct {
	Lower float64
	Upper float64
}

// #region shield-boundary
// ShieldBoundary samples episodes under the stack's verified gains and
// reports the extremal excursion per state axis. Episodes that resolve
// outside every cover stop early; the extent seen so far still counts.
func ShieldBoundary(env *dynamics.Environment, stack *shield.Stack, episodes, steps int, seed int64) []AxisExtent {
	rng := rand.New(rand.NewSource(seed))
	n := env.StateDim()
	extents := make([]AxisExtent, n)
	for i := range extents {
		extents[i] = AxisExtent{Lower: math.Inf(1), Upper: math.Inf(-1)}
	}

	u := mat.NewVecDense(env.ActionDim(), nil)
	for ep := 0; ep < episodes; ep++ {
		x := env.SampleInitial(rng)
		for step := 0; step < steps; step++ {
			for i := 0; i < n; i++ {
				v := x.AtVec(i)
				if v < extents[i].Lower {
					extents[i].Lower = v
				}
				if v > extents[i].Upper {
					extents[i].Upper = v
				}
			}
			entry, _, err := stack.Resolve(x)
			if err != nil {
				break
			}
			u.MulVec(entry.K, x)
			x = env.Step(x, env.ClampAction(u))
		}
	}
	return extents
}

// #endregion shield-boundary

// #region controller-distance
// ControllerDistance measures the mean action gap between the policy and
// the linear law u = Kx along policy-driven rollouts, stopping an episode
// once the state settles within terminalErr of the operating point.
func ControllerDistance(ctx context.Context, env *dynamics.Environment, src policy.Source, k *mat.Dense, terminalErr float64, episodes, steps int, seed int64) (float64, error) {
	rng := rand.New(rand.NewSource(seed))
	var total float64
	var count int

	lin := mat.NewVecDense(env.ActionDim(), nil)
	diff := mat.NewVecDense(env.ActionDim(), nil)
	for ep := 0; ep < episodes; ep++ {
		x := env.SampleInitial(rng)
		for step := 0; step < steps; step++ {
			if mat.Norm(x, 2) <= terminalErr {
				break
			}
			u, err := src.Act(ctx, x)
			if err != nil {
				return 0, fmt.Errorf("metrics: policy act: %w", err)
			}
			lin.MulVec(k, x)
			diff.SubVec(u, lin)
			total += mat.Norm(diff, 2)
			count++
			x = env.Step(x, env.ClampAction(u))
		}
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

// #endregion controller-distance

// #region performance

// LinearPerformance reports the mean number of steps the linear law needs
// to settle within terminalErr, capped at steps.
func LinearPerformance(env *dynamics.Environment, k *mat.Dense, terminalErr float64, episodes, steps int, seed int64) float64 {
	rng := rand.New(rand.NewSource(seed))
	var total int

	u := mat.NewVecDense(env.ActionDim(), nil)
	for ep := 0; ep < episodes; ep++ {
		x := env.SampleInitial(rng)
		step := 0
		for ; step < steps; step++ {
			if mat.Norm(x, 2) <= terminalErr {
				break
			}
			u.MulVec(k, x)
			x = env.Step(x, env.ClampAction(u))
		}
		total += step
	}
	return float64(total) / float64(episodes)
}

// PolicyPerformance is LinearPerformance for the black-box policy.
func PolicyPerformance(ctx context.Context, env *dynamics.Environment, src policy.Source, terminalErr float64, episodes, steps int, seed int64) (float64, error) {
	rng := rand.New(rand.NewSource(seed))
	var total int

	for ep := 0; ep < episodes; ep++ {
		x := env.SampleInitial(rng)
		step := 0
		for ; step < steps; step++ {
			if mat.Norm(x, 2) <= terminalErr {
				break
			}
			u, err := src.Act(ctx, x)
			if err != nil {
				return 0, fmt.Errorf("metrics: policy act: %w", err)
			}
			x = env.Step(x, env.ClampAction(u))
		}
		total += step
	}
	return float64(total) / float64(episodes), nil
}

// #endregion performance
