package invariant

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/optimizer"
)

// ErrDegenerate reports that no positive-volume safe region exists around
// the operating point for the candidate gain. Recoverable by re-running
// gain synthesis.
var ErrDegenerate = errors.New("invariant: region degenerates to the operating point")

// #region polytope
// Polytope is the half-space system {x : Hx <= c}. Construction sites in
// this repo only ever emit axis-aligned faces, but nothing here assumes
// that: membership and extent work for a general system.
type Polytope struct {
	H *mat.Dense
	C *mat.VecDense
}

// Rows returns the number of half-space rows.
func (p Polytope) Rows() int {
	if p.H == nil {
		return 0
	}
	r, _ := p.H.Dims()
	return r
}

// Contains reports whether Hx <= c holds row-wise within eps slack.
func (p Polytope) Contains(x *mat.VecDense, eps float64) bool {
	for i := 0; i < p.Rows(); i++ {
		var hx float64
		for j := 0; j < x.Len(); j++ {
			hx += p.H.At(i, j) * x.AtVec(j)
		}
		if hx > p.C.AtVec(i)+eps {
			return false
		}
	}
	return true
}

// Extent computes the reach of the polytope along state axis i by solving
// the two boundary LPs min/max e_i'x over {Hx <= c}.
func (p Polytope) Extent(i int) (lo, hi float64, err error) {
	_, n := p.H.Dims()
	if i < 0 || i >= n {
		return 0, 0, fmt.Errorf("invariant: axis %d out of range for %d dims", i, n)
	}

	f := mat.NewVecDense(n, nil)
	f.SetVec(i, 1)
	minSol, err := optimizer.Solve(optimizer.Problem{F: f, A: p.H, B: p.C})
	if err != nil {
		return 0, 0, fmt.Errorf("invariant: lower extent on axis %d: %w", i, err)
	}

	f = mat.NewVecDense(n, nil)
	f.SetVec(i, -1)
	maxSol, err := optimizer.Solve(optimizer.Problem{F: f, A: p.H, B: p.C})
	if err != nil {
		return 0, 0, fmt.Errorf("invariant: upper extent on axis %d: %w", i, err)
	}

	return minSol.Min, -maxSol.Min, nil
}

// #endregion polytope

// #region cover
// Cover is the axis-aligned box enclosing a polytope, kept alongside it for
// cheap O(n) membership pre-checks on the control path.
type Cover struct {
	Lower *mat.VecDense
	Upper *mat.VecDense
}

// Contains reports whether x lies inside the cover box.
func (c Cover) Contains(x *mat.VecDense) bool {
	for i := 0; i < x.Len(); i++ {
		if x.AtVec(i) < c.Lower.AtVec(i) || x.AtVec(i) > c.Upper.AtVec(i) {
			return false
		}
	}
	return true
}

// #endregion cover

// #region build-options
// BuildOptions parameterizes the boundary search.
type BuildOptions struct {
	ExploreMag   float64 // exploration noise magnitude stressing each probe
	StepSize     float64 // outward march increment per axis
	EqErr        float64 // slack for near-boundary floating comparisons
	Horizon      int     // steps each probe trajectory must survive
	RolloutCount int     // trajectories per probe point
	Seed         int64
}

// DefaultBuildOptions mirrors the probe parameters used across the
// benchmark call sites.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		ExploreMag:   0.5,
		StepSize:     0.5,
		EqErr:        0,
		Horizon:      100,
		RolloutCount: 50,
		Seed:         6553,
	}
}

// #endregion build-options
