package invariant

import (
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
)

// #region build
// Build estimates the largest safe region around the operating point for a
// fixed gain K. Each state axis is probed outward in both directions in
// StepSize increments; a probe point passes when every stressed rollout
// under u = Kx survives the full horizon inside the safety box. The furthest
// passing probe per direction becomes one axis-aligned face of the
// half-space system and one coordinate of the cover box.
//
// Probes are independent per (axis, direction) and run in parallel.
func Build(env *dynamics.Environment, k *mat.Dense, opts BuildOptions) (Polytope, Cover, error) {
	if opts.StepSize <= 0 {
		return Polytope{}, Cover{}, fmt.Errorf("invariant: step size %g must be positive", opts.StepSize)
	}
	if opts.Horizon <= 0 || opts.RolloutCount <= 0 {
		return Polytope{}, Cover{}, fmt.Errorf("invariant: horizon and rollout count must be positive")
	}
	n := env.StateDim()
	kr, kc := k.Dims()
	if kr != env.ActionDim() || kc != n {
		return Polytope{}, Cover{}, fmt.Errorf("invariant: K is %dx%d, want %dx%d", kr, kc, env.ActionDim(), n)
	}

	// bounds[2i] is the reach along +axis i, bounds[2i+1] along -axis i.
	bounds := make([]float64, 2*n)
	var g errgroup.Group
	for axis := 0; axis < n; axis++ {
		for d, dir := range [2]float64{1, -1} {
			idx := 2*axis + d
			g.Go(func() error {
				reach, err := probeAxis(env, k, axis, dir, opts, opts.Seed+int64(idx))
				if err != nil {
					return err
				}
				bounds[idx] = reach
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Polytope{}, Cover{}, err
	}

	h := mat.NewDense(2*n, n, nil)
	c := mat.NewVecDense(2*n, nil)
	lower := mat.NewVecDense(n, nil)
	upper := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		h.Set(2*i, i, 1) //  x_i <= bounds[2i]
		c.SetVec(2*i, bounds[2*i])
		h.Set(2*i+1, i, -1) // -x_i <= bounds[2i+1]
		c.SetVec(2*i+1, bounds[2*i+1])
		upper.SetVec(i, bounds[2*i])
		lower.SetVec(i, -bounds[2*i+1])
	}
	return Polytope{H: h, C: c}, Cover{Lower: lower, Upper: upper}, nil
}

// probeAxis marches outward from the operating point along one axis
// direction and returns the furthest offset whose stressed rollouts all
// stay inside the safety box. The march stops at the safety face; a first
// probe that already fails means the region has no volume on this axis.
func probeAxis(env *dynamics.Environment, k *mat.Dense, axis int, dir float64, opts BuildOptions, seed int64) (float64, error) {
	rng := rand.New(rand.NewSource(seed))
	safe := env.SafetyBox()
	limit := safe.Max.AtVec(axis)
	if dir < 0 {
		limit = -safe.Min.AtVec(axis)
	}

	var reach float64
	probe := mat.NewVecDense(env.StateDim(), nil)
	for t := opts.StepSize; t <= limit+opts.EqErr; t += opts.StepSize {
		probe.Zero()
		probe.SetVec(axis, dir*t)
		if !probePasses(env, k, probe, opts, rng) {
			break
		}
		reach = t
	}
	if reach == 0 {
		return 0, fmt.Errorf("%w: axis %d direction %+g fails at the first %g step",
			ErrDegenerate, axis, dir, opts.StepSize)
	}
	return reach, nil
}

// probePasses runs the stressed rollouts for one probe point.
func probePasses(env *dynamics.Environment, k *mat.Dense, probe *mat.VecDense, opts BuildOptions, rng *rand.Rand) bool {
	for r := 0; r < opts.RolloutCount; r++ {
		res := env.Rollout(probe, k, opts.Horizon, opts.ExploreMag, opts.EqErr, rng)
		if res.Violated {
			return false
		}
	}
	return true
}

// #endregion build

// #region verify

// Verify property-checks forward invariance: sampled interior points of the
// polytope must stay inside both the cover box and the safety box for the
// full horizon under u = Kx. It also checks cover soundness along each axis
// through the boundary LPs. Returns the first discrepancy found.
func Verify(env *dynamics.Environment, k *mat.Dense, poly Polytope, cover Cover, samples int, opts BuildOptions) error {
	n := env.StateDim()
	for i := 0; i < n; i++ {
		lo, hi, err := poly.Extent(i)
		if err != nil {
			return err
		}
		if lo < cover.Lower.AtVec(i)-opts.EqErr-1e-9 || hi > cover.Upper.AtVec(i)+opts.EqErr+1e-9 {
			return fmt.Errorf("invariant: cover unsound on axis %d: polytope spans [%g,%g], cover [%g,%g]",
				i, lo, hi, cover.Lower.AtVec(i), cover.Upper.AtVec(i))
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	box := dynamics.Box{Min: cover.Lower, Max: cover.Upper}
	for s := 0; s < samples; s++ {
		x0 := box.Sample(rng)
		if !poly.Contains(x0, 0) {
			continue
		}
		x := mat.VecDenseCopyOf(x0)
		u := mat.NewVecDense(env.ActionDim(), nil)
		for step := 0; step < opts.Horizon; step++ {
			u.MulVec(k, x)
			x = env.Step(x, env.ClampAction(u))
			if !cover.Contains(x) && !poly.Contains(x, opts.EqErr) {
				return fmt.Errorf("invariant: escape from %v at step %d of sample %d",
					mat.Formatted(x0.T()), step, s)
			}
			if !env.InBounds(x, opts.EqErr) {
				return fmt.Errorf("invariant: safety violation from %v at step %d of sample %d",
					mat.Formatted(x0.T()), step, s)
			}
		}
	}
	return nil
}

// #endregion verify
