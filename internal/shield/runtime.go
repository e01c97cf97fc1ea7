package shield

import (
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
)

// #region runtime
// Runtime is the per-step dispatcher. Decide is synchronous and sized for
// one control period: a cover scan, one model step, and a handful of
// matrix-vector products. The stack sits behind an atomic pointer so a
// freshly synthesized stack swaps in without locking the control loop.
type Runtime struct {
	env   *dynamics.Environment
	stack atomic.Pointer[Stack]

	eqErr        float64
	safeTraining bool
}

// NewRuntime wires a runtime over an immutable environment and stack.
func NewRuntime(env *dynamics.Environment, stack *Stack, eqErr float64, safeTraining bool) *Runtime {
	r := &Runtime{env: env, eqErr: eqErr, safeTraining: safeTraining}
	r.stack.Store(stack)
	return r
}

// Stack returns the currently active stack.
func (r *Runtime) Stack() *Stack {
	return r.stack.Load()
}

// Swap atomically replaces the active stack with a re-synthesized one.
func (r *Runtime) Swap(stack *Stack) {
	r.stack.Store(stack)
}

// SafeTraining reports whether shield-chosen steps are being forced during
// early exploration.
func (r *Runtime) SafeTraining() bool { return r.safeTraining }

// #endregion runtime

// #region decide

// Decide dispatches one control step. Resolution failure is the only fatal
// path; otherwise the policy's raw proposal is accepted when its one-step
// lookahead stays inside the active invariant and the safety bounds, and
// the verified linear action is substituted when it would not.
func (r *Runtime) Decide(x, uNN *mat.VecDense) (Decision, error) {
	st := r.stack.Load()
	entry, idx, err := st.Resolve(x)
	if err != nil {
		return Decision{}, err
	}

	if r.safeTraining {
		return r.override(entry, idx, x, "safe training applies the verified gain unconditionally"), nil
	}
	if !st.PolicyFirst() {
		return r.override(entry, idx, x, "stack dispatches the verified gain first"), nil
	}

	next := r.env.Step(x, uNN)
	if entry.Inv.Contains(next, r.eqErr) && r.env.InBounds(next, r.eqErr) {
		return Decision{
			U:          uNN,
			Mode:       ModePolicy,
			EntryIndex: idx,
			Reason:     "lookahead stays inside the invariant",
		}, nil
	}
	return r.override(entry, idx, x, fmt.Sprintf("lookahead escapes entry %d invariant", idx)), nil
}

// override substitutes the entry's verified linear action, saturated into
// the actuator box.
func (r *Runtime) override(entry Entry, idx int, x *mat.VecDense, reason string) Decision {
	u := mat.NewVecDense(r.env.ActionDim(), nil)
	u.MulVec(entry.K, x)
	return Decision{
		U:          r.env.ClampAction(u),
		Mode:       ModeShield,
		EntryIndex: idx,
		Reason:     reason,
	}
}

// #endregion decide
