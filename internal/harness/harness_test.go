package harness

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/policy"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/store"
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

func axisEntry(gain, reach float64) shield.Entry {
	return shield.Entry{
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

func cruiseRuntime(t *testing.T, env *dynamics.Environment, reach float64) *shield.Runtime {
	t.Helper()
	st, err := shield.NewStack([]shield.Entry{axisEntry(-127.36128, reach)}, 50, true)
	if err != nil {
		t.Fatalf("build stack: %v", err)
	}
	return shield.NewRuntime(env, st, 0, false)
}

// maxThrottle always proposes the largest positive action, forcing shield
// overrides whenever the proposal would escape.
type maxThrottle struct{}

func (maxThrottle) Act(context.Context, *mat.VecDense) (*mat.VecDense, error) {
	return mat.NewVecDense(1, []float64{1000}), nil
}

type failingSource struct{}

func (failingSource) Act(context.Context, *mat.VecDense) (*mat.VecDense, error) {
	return nil, errors.New("actor offline")
}

func TestRunEpisodeCleanUnderVerifiedFallback(t *testing.T) {
	env := cruiseEnv(t)
	h := New(env, policy.NewLinear(mat.NewDense(1, 1, []float64{-127.36128})), cruiseRuntime(t, env, 1.5), nil, "")

	res, err := h.RunEpisode(context.Background(), 0, 50, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("episode: %v", err)
	}
	if res.Violation {
		t.Fatalf("verified fallback violated at step %d", res.ViolationStep)
	}
	if res.Steps != 50 {
		t.Fatalf("steps = %d, want the full 50", res.Steps)
	}
	if res.PolicySteps+res.ShieldSteps != res.Steps {
		t.Fatalf("bookkeeping leaks: policy %d + shield %d != %d",
			res.PolicySteps, res.ShieldSteps, res.Steps)
	}
	if res.Reward >= 0 {
		t.Fatalf("reward = %g, want negative quadratic cost", res.Reward)
	}
}

func TestRunEpisodeShieldCatchesHostilePolicy(t *testing.T) {
	env := cruiseEnv(t)
	h := New(env, maxThrottle{}, cruiseRuntime(t, env, 1.5), nil, "")

	res, err := h.RunEpisode(context.Background(), 0, 50, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("episode: %v", err)
	}
	if res.Violation {
		t.Fatalf("shield let the hostile policy escape at step %d", res.ViolationStep)
	}
	if res.ShieldSteps == 0 {
		t.Fatal("hostile policy never triggered an override")
	}
}

func TestRunEpisodeResolveMissIsViolationNotError(t *testing.T) {
	env := cruiseEnv(t)
	// Starts drawn strictly outside the only cover: resolution must miss.
	env, err := env.WithInitialBox(box(t, 0.5, 1))
	if err != nil {
		t.Fatalf("shift initial box: %v", err)
	}
	h := New(env, maxThrottle{}, cruiseRuntime(t, env, 0.1), nil, "")

	res, err2 := h.RunEpisode(context.Background(), 0, 50, rand.New(rand.NewSource(3)))
	if err2 != nil {
		t.Fatalf("resolve miss must not surface as an error: %v", err2)
	}
	if !res.Violation || res.ViolationStep != 0 {
		t.Fatalf("violation=%v step=%d, want true/0", res.Violation, res.ViolationStep)
	}
}

func TestRunEpisodeSafeTrainingRoutesEveryStepThroughShield(t *testing.T) {
	env := cruiseEnv(t)
	// Same stack shape the synthesis driver persists: policy-first. The
	// safe-training flag on the runtime must still route every dispatch
	// through the verified gain, even for proposals that would pass the
	// lookahead.
	stk, err := shield.NewStack([]shield.Entry{axisEntry(-127.36128, 1.5)}, 50, true)
	if err != nil {
		t.Fatalf("build stack: %v", err)
	}
	rt := shield.NewRuntime(env, stk, 0, true)
	h := New(env, policy.NewLinear(mat.NewDense(1, 1, []float64{-127.36128})), rt, nil, "")

	res, err := h.RunEpisode(context.Background(), 0, 50, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("episode: %v", err)
	}
	if res.Violation {
		t.Fatalf("safe training violated at step %d", res.ViolationStep)
	}
	if res.PolicySteps != 0 {
		t.Fatalf("policy steps = %d, want 0 under safe training", res.PolicySteps)
	}
	if res.ShieldSteps != res.Steps {
		t.Fatalf("shield steps = %d, want all %d", res.ShieldSteps, res.Steps)
	}
}

func TestRunEpisodePolicyErrorPropagates(t *testing.T) {
	env := cruiseEnv(t)
	h := New(env, failingSource{}, cruiseRuntime(t, env, 1.5), nil, "")

	if _, err := h.RunEpisode(context.Background(), 0, 50, rand.New(rand.NewSource(4))); err == nil {
		t.Fatal("expected the actor failure to propagate")
	}
}

func TestRunAggregatesAndPersists(t *testing.T) {
	env := cruiseEnv(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "shield.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	runID, err := st.BeginRun("cruise", 1, 10)
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}

	h := New(env, maxThrottle{}, cruiseRuntime(t, env, 1.5), st, runID)
	sum, err := h.Run(context.Background(), 5, 20, 7)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Episodes != 5 {
		t.Fatalf("episodes = %d, want 5", sum.Episodes)
	}
	if sum.Violations != 0 {
		t.Fatalf("violations = %d, want 0", sum.Violations)
	}
	if sum.MeanReward >= 0 {
		t.Fatalf("mean reward = %g, want negative", sum.MeanReward)
	}

	counts, err := st.CountSteps(runID)
	if err != nil {
		t.Fatalf("count steps: %v", err)
	}
	logged := counts["policy"] + counts["shield"]
	if logged != sum.PolicySteps+sum.ShieldSteps {
		t.Fatalf("store logged %d steps, summary has %d", logged, sum.PolicySteps+sum.ShieldSteps)
	}
}

func TestRunDeterministicForSeed(t *testing.T) {
	env := cruiseEnv(t)
	h := New(env, maxThrottle{}, cruiseRuntime(t, env, 1.5), nil, "")

	s1, err := h.Run(context.Background(), 3, 20, 11)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	s2, err := h.Run(context.Background(), 3, 20, 11)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("same seed produced different summaries: %+v vs %+v", s1, s2)
	}
}
