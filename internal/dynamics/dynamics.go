package dynamics

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// #region environment
// Environment holds the discrete-time linear plant x' = Ax + Bu together
// with its cost matrices and bound boxes. All fields are immutable over the
// lifetime of an instance; state boxes are re-centered once at construction
// by subtracting the operating-point origin and the offset is never
// re-applied.
type Environment struct {
	a, b, q, r *mat.Dense

	initBox Box // initial-state sampling box
	safeBox Box // hard safety bounds on the state
	actBox  Box // actuator saturation bounds

	n, m int
}

// New validates dimensions and builds an Environment. origin may be nil for
// plants already expressed around their operating point; when set, the
// initial and safety boxes are translated by -origin.
func New(a, b, q, r *mat.Dense, initBox, safeBox, actBox Box, origin *mat.VecDense) (*Environment, error) {
	an, ac := a.Dims()
	if an != ac {
		return nil, fmt.Errorf("dynamics: A must be square, got %dx%d", an, ac)
	}
	bn, bm := b.Dims()
	if bn != an {
		return nil, fmt.Errorf("dynamics: B has %d rows, want %d", bn, an)
	}
	qn, qc := q.Dims()
	if qn != an || qc != an {
		return nil, fmt.Errorf("dynamics: Q is %dx%d, want %dx%d", qn, qc, an, an)
	}
	rn, rc := r.Dims()
	if rn != bm || rc != bm {
		return nil, fmt.Errorf("dynamics: R is %dx%d, want %dx%d", rn, rc, bm, bm)
	}
	if initBox.Dim() != an || safeBox.Dim() != an {
		return nil, fmt.Errorf("dynamics: state boxes are %d/%d-dimensional, want %d",
			initBox.Dim(), safeBox.Dim(), an)
	}
	if actBox.Dim() != bm {
		return nil, fmt.Errorf("dynamics: action box is %d-dimensional, want %d", actBox.Dim(), bm)
	}

	initBox = copyBox(initBox)
	safeBox = copyBox(safeBox)
	if origin != nil {
		if origin.Len() != an {
			return nil, fmt.Errorf("dynamics: origin is %d-dimensional, want %d", origin.Len(), an)
		}
		initBox = initBox.shift(origin)
		safeBox = safeBox.shift(origin)
	}

	return &Environment{
		a: mat.DenseCopyOf(a), b: mat.DenseCopyOf(b),
		q: mat.DenseCopyOf(q), r: mat.DenseCopyOf(r),
		initBox: initBox, safeBox: safeBox, actBox: copyBox(actBox),
		n: an, m: bm,
	}, nil
}

// #endregion environment

// #region accessors

// StateDim returns n, the state dimensionality.
func (e *Environment) StateDim() int { return e.n }

// ActionDim returns m, the action dimensionality.
func (e *Environment) ActionDim() int { return e.m }

// A returns the state-transition matrix.
func (e *Environment) A() *mat.Dense { return e.a }

// B returns the input matrix.
func (e *Environment) B() *mat.Dense { return e.b }

// Q returns the state cost matrix.
func (e *Environment) Q() *mat.Dense { return e.q }

// R returns the action cost matrix.
func (e *Environment) R() *mat.Dense { return e.r }

// InitialBox returns the (re-centered) initial-state box.
func (e *Environment) InitialBox() Box { return e.initBox }

// SafetyBox returns the (re-centered) hard safety bounds.
func (e *Environment) SafetyBox() Box { return e.safeBox }

// ActionBox returns the actuator bounds.
func (e *Environment) ActionBox() Box { return e.actBox }

// WithInitialBox returns a copy of the environment whose initial-state box
// is replaced. Used when synthesizing outer shield layers over a wider
// region of the same plant.
func (e *Environment) WithInitialBox(initBox Box) (*Environment, error) {
	if initBox.Dim() != e.n {
		return nil, fmt.Errorf("dynamics: initial box is %d-dimensional, want %d", initBox.Dim(), e.n)
	}
	out := *e
	out.initBox = copyBox(initBox)
	return &out, nil
}

// #endregion accessors

// #region stepping

// Step applies the linear model once: x' = Ax + Bu.
func (e *Environment) Step(x, u *mat.VecDense) *mat.VecDense {
	next := mat.NewVecDense(e.n, nil)
	next.MulVec(e.a, x)
	bu := mat.NewVecDense(e.n, nil)
	bu.MulVec(e.b, u)
	next.AddVec(next, bu)
	return next
}

// Reward is the negative quadratic cost -(x'Qx + u'Ru).
func (e *Environment) Reward(x, u *mat.VecDense) float64 {
	return -(quadForm(e.q, x) + quadForm(e.r, u))
}

// InBounds reports whether x respects the safety box within slack.
func (e *Environment) InBounds(x *mat.VecDense, slack float64) bool {
	return e.safeBox.Contains(x, slack)
}

// ClampAction saturates u into the actuator box.
func (e *Environment) ClampAction(u *mat.VecDense) *mat.VecDense {
	return e.actBox.Clamp(u)
}

// SampleInitial draws an initial state uniformly from the initial box.
func (e *Environment) SampleInitial(rng *rand.Rand) *mat.VecDense {
	return e.initBox.Sample(rng)
}

// #endregion stepping

// #region rollout

// Rollout simulates u = Kx for steps steps from x0, adding uniform
// exploration noise of magnitude noiseMag to each action. Bound checks use
// slack tolerance. Cost accumulates x'Qx + u'Ru over the trajectory.
func (e *Environment) Rollout(x0 *mat.VecDense, k *mat.Dense, steps int, noiseMag, slack float64, rng *rand.Rand) RolloutResult {
	x := mat.VecDenseCopyOf(x0)
	if !e.InBounds(x, slack) {
		return RolloutResult{Violated: true, ViolationStep: 0, Final: x}
	}

	var cost float64
	u := mat.NewVecDense(e.m, nil)
	for step := 1; step <= steps; step++ {
		u.MulVec(k, x)
		if noiseMag > 0 {
			for i := 0; i < e.m; i++ {
				u.SetVec(i, u.AtVec(i)+(rng.Float64()*2-1)*noiseMag)
			}
		}
		clamped := e.ClampAction(u)
		cost += quadForm(e.q, x) + quadForm(e.r, clamped)
		x = e.Step(x, clamped)
		if !e.InBounds(x, slack) {
			return RolloutResult{Violated: true, ViolationStep: step, Cost: cost, Final: x}
		}
	}
	return RolloutResult{ViolationStep: -1, Cost: cost, Final: x}
}

// #endregion rollout

// #region helpers
// quadForm computes v' M v.
func quadForm(m *mat.Dense, v *mat.VecDense) float64 {
	tmp := mat.NewVecDense(v.Len(), nil)
	tmp.MulVec(m, v)
	return mat.Dot(v, tmp)
}

// #endregion helpers
