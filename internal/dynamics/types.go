package dynamics

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// #region box
// Box is an axis-aligned interval set in R^n.
type Box struct {
	Min *mat.VecDense
	Max *mat.VecDense
}

// NewBox builds a box from min/max component slices.
func NewBox(min, max []float64) (Box, error) {
	if len(min) != len(max) {
		return Box{}, fmt.Errorf("box: min has %d components, max has %d", len(min), len(max))
	}
	for i := range min {
		if min[i] > max[i] {
			return Box{}, fmt.Errorf("box: min[%d]=%g exceeds max[%d]=%g", i, min[i], i, max[i])
		}
	}
	return Box{
		Min: mat.NewVecDense(len(min), append([]float64(nil), min...)),
		Max: mat.NewVecDense(len(max), append([]float64(nil), max...)),
	}, nil
}

// Dim returns the dimensionality of the box.
func (b Box) Dim() int {
	if b.Min == nil {
		return 0
	}
	return b.Min.Len()
}

// Contains reports whether x lies inside the box, with slack tolerance on
// each face for near-boundary floating comparisons.
func (b Box) Contains(x *mat.VecDense, slack float64) bool {
	for i := 0; i < b.Dim(); i++ {
		v := x.AtVec(i)
		if v < b.Min.AtVec(i)-slack || v > b.Max.AtVec(i)+slack {
			return false
		}
	}
	return true
}

// Clamp returns a copy of x with each component saturated into the box.
func (b Box) Clamp(x *mat.VecDense) *mat.VecDense {
	out := mat.VecDenseCopyOf(x)
	for i := 0; i < b.Dim(); i++ {
		v := out.AtVec(i)
		if lo := b.Min.AtVec(i); v < lo {
			out.SetVec(i, lo)
		} else if hi := b.Max.AtVec(i); v > hi {
			out.SetVec(i, hi)
		}
	}
	return out
}

// Sample draws a point uniformly from the box.
func (b Box) Sample(rng *rand.Rand) *mat.VecDense {
	out := mat.NewVecDense(b.Dim(), nil)
	for i := 0; i < b.Dim(); i++ {
		lo, hi := b.Min.AtVec(i), b.Max.AtVec(i)
		out.SetVec(i, lo+rng.Float64()*(hi-lo))
	}
	return out
}

// shift returns a copy of the box translated by -origin.
func (b Box) shift(origin *mat.VecDense) Box {
	min := mat.VecDenseCopyOf(b.Min)
	max := mat.VecDenseCopyOf(b.Max)
	min.SubVec(min, origin)
	max.SubVec(max, origin)
	return Box{Min: min, Max: max}
}

// copyBox deep-copies a box so Environment owns its bounds.
func copyBox(b Box) Box {
	return Box{Min: mat.VecDenseCopyOf(b.Min), Max: mat.VecDenseCopyOf(b.Max)}
}

// #endregion box

// #region rollout-result
// RolloutResult summarizes one simulated trajectory under a linear law.
type RolloutResult struct {
	Violated      bool
	ViolationStep int // first step outside the safety box; -1 when clean
	Cost          float64
	Final         *mat.VecDense
}

// #endregion rollout-result
