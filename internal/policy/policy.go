// Package policy defines the boundary to the externally trained continuous
// control policy: a black-box state -> action function with no side effects
// visible to the shield.
package policy

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// #region source
// Source produces a continuous action proposal for a state. The trained
// actor lives outside this process; implementations must not mutate x.
type Source interface {
	Act(ctx context.Context, x *mat.VecDense) (*mat.VecDense, error)
}

// #endregion source

// #region linear
// Linear is an in-process source applying a fixed linear law u = Kx. Used
// by tests and as the warmup actor during safe training.
type Linear struct {
	k *mat.Dense
}

// NewLinear wraps a gain matrix as a Source.
func NewLinear(k *mat.Dense) *Linear {
	return &Linear{k: k}
}

// Act computes u = Kx.
func (l *Linear) Act(_ context.Context, x *mat.VecDense) (*mat.VecDense, error) {
	m, n := l.k.Dims()
	if x.Len() != n {
		return nil, fmt.Errorf("policy: state is %d-dimensional, gain wants %d", x.Len(), n)
	}
	u := mat.NewVecDense(m, nil)
	u.MulVec(l.k, x)
	return u, nil
}

// #endregion linear
