package shield

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/synth"
)

func cruiseEnv(t *testing.T) *dynamics.Environment {
	t.Helper()
	env, err := dynamics.New(
		mat.NewDense(1, 1, []float64{0.995}),
		mat.NewDense(1, 1, []float64{0.0078}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
		box(t, -1, 1), box(t, -1.5, 1.5), box(t, -10, 10), nil)
	if err != nil {
		t.Fatalf("build env: %v", err)
	}
	return env
}

func box(t *testing.T, lo, hi float64) dynamics.Box {
	t.Helper()
	b, err := dynamics.NewBox([]float64{lo}, []float64{hi})
	if err != nil {
		t.Fatalf("build box: %v", err)
	}
	return b
}

// axisEntry builds a symmetric single-axis entry around the operating point.
func axisEntry(gain, reach float64) Entry {
	return Entry{
		K: mat.NewDense(1, 1, []float64{gain}),
		Inv: invariant.Polytope{
			H: mat.NewDense(2, 1, []float64{1, -1}),
			C: mat.NewVecDense(2, []float64{reach, reach}),
		},
		Cover: invariant.Cover{
			Lower: mat.NewVecDense(1, []float64{-reach}),
			Upper: mat.NewVecDense(1, []float64{reach}),
		},
	}
}

func cruiseStack(t *testing.T, policyFirst bool) *Stack {
	t.Helper()
	st, err := NewStack([]Entry{axisEntry(-127.36128, 1.5)}, 50, policyFirst)
	if err != nil {
		t.Fatalf("build stack: %v", err)
	}
	return st
}

func TestNewStackValidation(t *testing.T) {
	if _, err := NewStack(nil, 50, true); err == nil {
		t.Fatal("expected error for empty stack")
	}
	if _, err := NewStack([]Entry{axisEntry(-1, 1)}, 0, true); err == nil {
		t.Fatal("expected error for zero horizon")
	}
}

func TestResolveFirstMatchingCover(t *testing.T) {
	inner := axisEntry(-127, 1)
	outer := axisEntry(-60, 2)
	st, err := NewStack([]Entry{inner, outer}, 50, true)
	if err != nil {
		t.Fatalf("build stack: %v", err)
	}

	_, idx, err := st.Resolve(mat.NewVecDense(1, []float64{0.5}))
	if err != nil || idx != 0 {
		t.Fatalf("interior state resolved to entry %d (%v), want 0", idx, err)
	}
	_, idx, err = st.Resolve(mat.NewVecDense(1, []float64{1.5}))
	if err != nil || idx != 1 {
		t.Fatalf("outer state resolved to entry %d (%v), want 1", idx, err)
	}
}

func TestResolveMissIsErrNoCover(t *testing.T) {
	st := cruiseStack(t, true)
	_, idx, err := st.Resolve(mat.NewVecDense(1, []float64{5}))
	if !errors.Is(err, ErrNoCover) {
		t.Fatalf("err = %v, want ErrNoCover", err)
	}
	if idx != -1 {
		t.Fatalf("miss returned index %d, want -1", idx)
	}
}

func TestDecideAcceptsContainedLookahead(t *testing.T) {
	env := cruiseEnv(t)
	rt := NewRuntime(env, cruiseStack(t, true), 0, false)

	x := mat.NewVecDense(1, []float64{0.5})
	uNN := mat.NewVecDense(1, []float64{1})

	d, err := rt.Decide(x, uNN)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Mode != ModePolicy {
		t.Fatalf("mode = %s, want policy: %s", d.Mode, d.Reason)
	}
	if d.U.AtVec(0) != 1 {
		t.Fatalf("accepted action = %g, want the proposal unchanged", d.U.AtVec(0))
	}
}

// The raw proposal is what gets the lookahead, not its clamped version:
// at x = 1.4 a proposal of 26.5 pushes the model to 1.5997, outside the
// 1.5 face, and the verified gain takes over saturated at the actuator
// bound.
func TestDecideOverridesEscapingProposal(t *testing.T) {
	env := cruiseEnv(t)
	rt := NewRuntime(env, cruiseStack(t, true), 0, false)

	x := mat.NewVecDense(1, []float64{1.4})
	uNN := mat.NewVecDense(1, []float64{26.5})

	d, err := rt.Decide(x, uNN)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Mode != ModeShield {
		t.Fatalf("mode = %s, want shield", d.Mode)
	}
	if d.EntryIndex != 0 {
		t.Fatalf("entry index = %d, want 0", d.EntryIndex)
	}
	// K x = -127.36128 * 1.4, saturated to the actuator bound.
	if d.U.AtVec(0) != -10 {
		t.Fatalf("override action = %g, want -10", d.U.AtVec(0))
	}
	// The substituted action must land the plant back inside the safety
	// bounds: 0.995*1.4 + 0.0078*(-10) = 1.315.
	next := env.Step(x, d.U)
	if math.Abs(next.AtVec(0)) > 1.5 {
		t.Fatalf("post-override state = %g, want inside [-1.5, 1.5]", next.AtVec(0))
	}
}

func TestDecideDeterministic(t *testing.T) {
	env := cruiseEnv(t)
	rt := NewRuntime(env, cruiseStack(t, true), 0, false)

	x := mat.NewVecDense(1, []float64{1.4})
	uNN := mat.NewVecDense(1, []float64{26.5})

	d1, err := rt.Decide(x, uNN)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	d2, err := rt.Decide(x, uNN)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d1.Mode != d2.Mode || d1.U.AtVec(0) != d2.U.AtVec(0) || d1.EntryIndex != d2.EntryIndex {
		t.Fatal("repeated dispatch of the same state diverged")
	}
}

func TestDecideMissPropagatesErrNoCover(t *testing.T) {
	env := cruiseEnv(t)
	rt := NewRuntime(env, cruiseStack(t, true), 0, false)

	_, err := rt.Decide(mat.NewVecDense(1, []float64{5}), mat.NewVecDense(1, []float64{0}))
	if !errors.Is(err, ErrNoCover) {
		t.Fatalf("err = %v, want ErrNoCover", err)
	}
}

func TestDecideSafeTrainingForcesShield(t *testing.T) {
	env := cruiseEnv(t)
	// Stacks come out of synthesis policy-first; the runtime flag alone
	// must still force the verified gain.
	rt := NewRuntime(env, cruiseStack(t, true), 0, true)

	// The proposal is perfectly safe; safe training overrides anyway.
	d, err := rt.Decide(mat.NewVecDense(1, []float64{0.1}), mat.NewVecDense(1, []float64{0}))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Mode != ModeShield {
		t.Fatalf("mode = %s, want shield under safe training", d.Mode)
	}
}

func TestDecideShieldFirstStackForcesShield(t *testing.T) {
	env := cruiseEnv(t)
	rt := NewRuntime(env, cruiseStack(t, false), 0, false)

	d, err := rt.Decide(mat.NewVecDense(1, []float64{0.1}), mat.NewVecDense(1, []float64{0}))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Mode != ModeShield {
		t.Fatalf("mode = %s, want shield when the stack is not policy-first", d.Mode)
	}
}

func TestSwapReplacesActiveStack(t *testing.T) {
	env := cruiseEnv(t)
	first := cruiseStack(t, true)
	rt := NewRuntime(env, first, 0, false)

	wider, err := NewStack([]Entry{axisEntry(-127.36128, 1.5), axisEntry(-60, 3)}, 50, true)
	if err != nil {
		t.Fatalf("build stack: %v", err)
	}
	rt.Swap(wider)

	if rt.Stack() != wider {
		t.Fatal("swap did not install the new stack")
	}
	// A state only the outer entry covers must now dispatch instead of
	// failing resolution.
	d, err := rt.Decide(mat.NewVecDense(1, []float64{2}), mat.NewVecDense(1, []float64{0}))
	if err != nil {
		t.Fatalf("decide after swap: %v", err)
	}
	if d.EntryIndex != 1 {
		t.Fatalf("entry index = %d, want 1", d.EntryIndex)
	}
}

func TestModeLabels(t *testing.T) {
	if ModePolicy.String() != "policy" || ModeShield.String() != "shield" {
		t.Fatalf("mode labels = %s/%s", ModePolicy, ModeShield)
	}
	if Mode(99).String() != "unknown" {
		t.Fatalf("out-of-range mode label = %s", Mode(99))
	}
}

func TestBuildEntryProducesContainedCover(t *testing.T) {
	env := cruiseEnv(t)
	sOpts := synth.DefaultOptions()
	sOpts.Budget = 100
	sOpts.RolloutCount = 20
	sOpts.RolloutLen = 100
	iOpts := invariant.DefaultBuildOptions()
	iOpts.StepSize = 0.25
	iOpts.ExploreMag = 0.1
	iOpts.RolloutCount = 20

	entry, err := BuildEntry(env, sOpts, iOpts)
	if err != nil {
		t.Fatalf("build entry: %v", err)
	}
	if !entry.Cover.Contains(mat.NewVecDense(1, []float64{0})) {
		t.Fatal("cover excludes the operating point")
	}
	if entry.Cover.Upper.AtVec(0) > 1.5 || entry.Cover.Lower.AtVec(0) < -1.5 {
		t.Fatalf("cover [%g, %g] exceeds the safety bounds",
			entry.Cover.Lower.AtVec(0), entry.Cover.Upper.AtVec(0))
	}
}

func TestNewLayeredStackNestsEntries(t *testing.T) {
	env := cruiseEnv(t)
	sOpts := synth.DefaultOptions()
	sOpts.Budget = 100
	sOpts.RolloutCount = 20
	sOpts.RolloutLen = 100
	iOpts := invariant.DefaultBuildOptions()
	iOpts.StepSize = 0.25
	iOpts.ExploreMag = 0.1
	iOpts.RolloutCount = 20

	st, err := NewLayeredStack(env, 2, 50, true, sOpts, iOpts)
	if err != nil {
		t.Fatalf("layered stack: %v", err)
	}
	if st.Len() != 2 {
		t.Fatalf("stack has %d entries, want 2", st.Len())
	}
	for i, e := range st.Entries() {
		if math.IsNaN(e.Cover.Upper.AtVec(0)) || e.Cover.Upper.AtVec(0) <= 0 {
			t.Fatalf("layer %d cover upper = %g", i, e.Cover.Upper.AtVec(0))
		}
	}
}

func TestNewLayeredStackRejectsZeroLayers(t *testing.T) {
	env := cruiseEnv(t)
	if _, err := NewLayeredStack(env, 0, 50, true, synth.DefaultOptions(), invariant.DefaultBuildOptions()); err == nil {
		t.Fatal("expected error for zero layers")
	}
}
