package bench

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNamesStableAndComplete(t *testing.T) {
	names := Names()
	if len(names) != len(registry) {
		t.Fatalf("Names lists %d benchmarks, registry has %d", len(names), len(registry))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("Names not sorted: %q before %q", names[i-1], names[i])
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("pendulum"); err == nil {
		t.Fatal("expected error for unregistered benchmark")
	}
}

func TestEveryBenchmarkBuilds(t *testing.T) {
	for _, name := range Names() {
		bm, err := Lookup(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if bm.Name != name {
			t.Fatalf("%s reports name %q", name, bm.Name)
		}
		if bm.Env == nil {
			t.Fatalf("%s has no environment", name)
		}
		if bm.Synth.Budget <= 0 || bm.Invariant.StepSize <= 0 {
			t.Fatalf("%s has unusable search parameters", name)
		}
	}
}

func TestSeedEntriesMatchDimensions(t *testing.T) {
	for _, name := range Names() {
		bm, err := Lookup(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if bm.Seed == nil {
			continue
		}
		kr, kc := bm.Seed.K.Dims()
		if kr != bm.Env.ActionDim() || kc != bm.Env.StateDim() {
			t.Fatalf("%s seed gain is %dx%d for a %d-state %d-action plant",
				name, kr, kc, bm.Env.StateDim(), bm.Env.ActionDim())
		}
		if bm.Seed.Cover.Lower.Len() != bm.Env.StateDim() {
			t.Fatalf("%s seed cover dimensionality mismatch", name)
		}
		if !bm.Seed.Cover.Contains(mat.NewVecDense(bm.Env.StateDim(), nil)) {
			t.Fatalf("%s seed cover excludes the operating point", name)
		}
		if !bm.Seed.Inv.Contains(mat.NewVecDense(bm.Env.StateDim(), nil), 0) {
			t.Fatalf("%s seed invariant excludes the operating point", name)
		}
	}
}

func TestCruiseSeedHoldsItsRegion(t *testing.T) {
	bm, err := Lookup("cruise")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if bm.Seed == nil {
		t.Fatal("cruise ships no seed entry")
	}

	// The documented verified region: from the cover edge the seed gain
	// must keep the closed loop inside the safety bounds.
	x := mat.NewVecDense(1, []float64{bm.Seed.Cover.Upper.AtVec(0)})
	u := mat.NewVecDense(1, nil)
	for step := 0; step < 100; step++ {
		u.MulVec(bm.Seed.K, x)
		x = bm.Env.Step(x, bm.Env.ClampAction(u))
		if !bm.Env.InBounds(x, 0) {
			t.Fatalf("cruise seed left the safety bounds at step %d: %g", step, x.AtVec(0))
		}
	}
}

func TestQuadcopterPlantWiring(t *testing.T) {
	bm, err := Lookup("quadcopter")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	// The deadbeat gain for the double integrator drives any state to the
	// origin in two steps; anything else means A or B is mis-entered.
	deadbeat := mat.NewDense(1, 2, []float64{-1, -2})
	x := mat.NewVecDense(2, []float64{0.5, 0.5})
	u := mat.NewVecDense(1, nil)
	for step := 0; step < 2; step++ {
		u.MulVec(deadbeat, x)
		x = bm.Env.Step(x, u)
	}
	if mat.Norm(x, 2) > 1e-12 {
		t.Fatalf("deadbeat gain left residual state %v", mat.Formatted(x.T()))
	}
}

func TestPlatoonOriginRecentered(t *testing.T) {
	bm, err := Lookup("4-car-platoon")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	// After re-centering, the operating point is the zero state and the
	// boxes straddle it.
	if bm.Env.StateDim() != 7 {
		t.Fatalf("state dim = %d, want 7", bm.Env.StateDim())
	}
	zero := mat.NewVecDense(7, nil)
	if !bm.Env.InitialBox().Contains(zero, 0) {
		t.Fatal("re-centered initial box excludes the operating point")
	}
	if !bm.Env.InBounds(zero, 0) {
		t.Fatal("re-centered safety box excludes the operating point")
	}
}
