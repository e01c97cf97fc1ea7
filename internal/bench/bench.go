// Package bench registers the benchmark plants: vehicle platoons, cruise
// control, suspension, quadcopter attitude, tape drive, and magnetic
// pointer. Each carries its dynamics, bound boxes, probe parameters, and,
// where one is known, a pre-verified seed shield entry.
package bench

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/synth"
)

// #region types
// Benchmark bundles a plant with the parameters its shield is synthesized
// under.
type Benchmark struct {
	Name      string
	Env       *dynamics.Environment
	Seed      *shield.Entry // pre-verified entry, nil when synthesis is required
	Synth     synth.Options
	Invariant invariant.BuildOptions
}

var registry = map[string]func() (Benchmark, error){
	"cruise":           cruise,
	"quadcopter":       quadcopter,
	"tape":             tape,
	"suspension":       suspension,
	"magnetic-pointer": magneticPointer,
	"4-car-platoon":    carPlatoon4,
	"8-car-platoon":    carPlatoon8,
}

// Names lists the registered benchmarks in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named benchmark.
func Lookup(name string) (Benchmark, error) {
	build, ok := registry[name]
	if !ok {
		return Benchmark{}, fmt.Errorf("bench: unknown benchmark %q", name)
	}
	return build()
}

// #endregion types

// #region helpers

func box(min, max []float64) dynamics.Box {
	b, err := dynamics.NewBox(min, max)
	if err != nil {
		panic(err) // static benchmark data
	}
	return b
}

func uniformBox(n int, lo, hi float64) dynamics.Box {
	min := make([]float64, n)
	max := make([]float64, n)
	for i := range min {
		min[i] = lo
		max[i] = hi
	}
	return box(min, max)
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func scaledIdentity(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}
	return m
}

// axisEntry builds the axis-aligned seed entry used by the original call
// sites: one +1 and one -1 face per axis at the given symmetric bound.
func axisEntry(k *mat.Dense, lower, upper []float64) shield.Entry {
	n := len(lower)
	h := mat.NewDense(2*n, n, nil)
	c := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		h.Set(2*i, i, 1)
		c.SetVec(2*i, upper[i])
		h.Set(2*i+1, i, -1)
		c.SetVec(2*i+1, -lower[i])
	}
	return shield.Entry{
		K:     k,
		Inv:   invariant.Polytope{H: h, C: c},
		Cover: invariant.Cover{Lower: mat.NewVecDense(n, lower), Upper: mat.NewVecDense(n, upper)},
	}
}

func symmetric(n int, v float64) ([]float64, []float64) {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range lower {
		lower[i] = -v
		upper[i] = v
	}
	return lower, upper
}

// #endregion helpers

// #region small-plants

func cruise() (Benchmark, error) {
	env, err := dynamics.New(
		mat.NewDense(1, 1, []float64{0.99501}),
		mat.NewDense(1, 1, []float64{0.0078125}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{0.0005}),
		uniformBox(1, -1.0, 1.0),
		uniformBox(1, -1.5, 1.5),
		uniformBox(1, -10, 10),
		nil,
	)
	if err != nil {
		return Benchmark{}, err
	}

	lower, upper := symmetric(1, 1.0)
	seed := axisEntry(mat.NewDense(1, 1, []float64{-127.36128}), lower, upper)
	return Benchmark{
		Name:      "cruise",
		Env:       env,
		Seed:      &seed,
		Synth:     synthOptions(200, 100),
		Invariant: invariantOptions(0.5, 0.5, 100),
	}, nil
}

func quadcopter() (Benchmark, error) {
	env, err := dynamics.New(
		mat.NewDense(2, 2, []float64{
			1, 1,
			0, 1,
		}),
		mat.NewDense(2, 1, []float64{0, 1}),
		mat.NewDense(2, 2, []float64{
			1, 0,
			0, 0,
		}),
		mat.NewDense(1, 1, []float64{1}),
		uniformBox(2, -0.5, 0.5),
		uniformBox(2, -1.0, 1.0),
		uniformBox(1, -15, 15),
		nil,
	)
	if err != nil {
		return Benchmark{}, err
	}

	lower, upper := symmetric(2, 0.5)
	seed := axisEntry(mat.NewDense(1, 2, []float64{-2, -1}), lower, upper)
	return Benchmark{
		Name:      "quadcopter",
		Env:       env,
		Seed:      &seed,
		Synth:     synthOptions(200, 100),
		Invariant: invariantOptions(0.5, 0.5, 100),
	}, nil
}

func tape() (Benchmark, error) {
	env, err := dynamics.New(
		mat.NewDense(3, 3, []float64{
			5.5197e-17, -3.5503e-17, 6.2468e-32,
			2.7756e-17, 0, 0,
			0, 2.7756e-17, 0,
		}),
		mat.NewDense(3, 1, []float64{0.25, 0, 0}),
		identity(3),
		mat.NewDense(1, 1, []float64{0.0005}),
		uniformBox(3, -1.0, 1.0),
		uniformBox(3, -3.0, 3.0),
		uniformBox(1, -10, 10),
		nil,
	)
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Name:      "tape",
		Env:       env,
		Synth:     synthOptions(200, 100),
		Invariant: invariantOptions(0.5, 0.5, 100),
	}, nil
}

func suspension() (Benchmark, error) {
	env, err := dynamics.New(
		mat.NewDense(4, 4, []float64{
			0.02366, -0.31922, 0.0012041, -4.0292e-17,
			0.25, 0, 0, 0,
			0, 0.0019531, 0, 0,
			0, 0, 0.0019531, 0,
		}),
		mat.NewDense(4, 1, []float64{256, 0, 0, 0}),
		identity(4),
		mat.NewDense(1, 1, []float64{0.0005}),
		uniformBox(4, -1.0, 1.0),
		uniformBox(4, -3.0, 3.0),
		uniformBox(1, -10, 10),
		nil,
	)
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Name:      "suspension",
		Env:       env,
		Synth:     synthOptions(200, 100),
		Invariant: invariantOptions(0.0004, 0.0005, 100),
	}, nil
}

func magneticPointer() (Benchmark, error) {
	env, err := dynamics.New(
		mat.NewDense(3, 3, []float64{
			2.6629, -1.1644, 0.66598,
			2, 0, 0,
			0, 0.5, 0,
		}),
		mat.NewDense(3, 1, []float64{0.25, 0, 0}),
		identity(3),
		mat.NewDense(1, 1, []float64{1}),
		uniformBox(3, -1.0, 1.0),
		uniformBox(3, -3.5, 3.5),
		uniformBox(1, -15, 15),
		nil,
	)
	if err != nil {
		return Benchmark{}, err
	}

	lower, upper := symmetric(3, 1.0)
	seed := axisEntry(mat.NewDense(1, 3, []float64{-10, 0, 0}), lower, upper)
	return Benchmark{
		Name:      "magnetic-pointer",
		Env:       env,
		Seed:      &seed,
		Synth:     synthOptions(200, 100),
		Invariant: invariantOptions(0.5, 0.5, 100),
	}, nil
}

// #endregion small-plants

// #region platoons

func carPlatoon4() (Benchmark, error) {
	a := mat.NewDense(7, 7, []float64{
		1, 0, 0, 0, 0, 0, 0,
		0, 1, 0.1, 0, 0, 0, 0,
		0, 0, 1, 0, 0, 0, 0,
		0, 0, 0, 1, 0.1, 0, 0,
		0, 0, 0, 0, 1, 0, 0,
		0, 0, 0, 0, 0, 1, 0.1,
		0, 0, 0, 0, 0, 0, 1,
	})
	b := mat.NewDense(7, 4, []float64{
		0.1, 0, 0, 0,
		0, 0, 0, 0,
		0.1, -0.1, 0, 0,
		0, 0, 0, 0,
		0, 0.1, -0.1, 0,
		0, 0, 0, 0,
		0, 0, 0.1, -0.1,
	})
	origin := mat.NewVecDense(7, []float64{20, 1, 0, 1, 0, 1, 0})

	env, err := dynamics.New(
		a, b,
		identity(7),
		scaledIdentity(4, 0.0005),
		box(
			[]float64{19.9, 0.9, -0.1, 0.9, -0.1, 0.9, -0.1},
			[]float64{20.1, 1.1, 0.1, 1.1, 0.1, 1.1, 0.1},
		),
		box(
			[]float64{18, 0.5, -0.35, 0.5, -1, 0.5, -1},
			[]float64{22, 1.5, 0.35, 1.5, 1, 1.5, 1},
		),
		uniformBox(4, -10, 10),
		origin,
	)
	if err != nil {
		return Benchmark{}, err
	}

	// Seed faces sit on the re-centered initial box (±0.1 per axis).
	lower, upper := symmetric(7, 0.1)
	seed := axisEntry(mat.NewDense(4, 7, []float64{
		-10, 0, 0, 0, 0, 0, 0,
		-10, 0, 10, 0, 0, 0, 0,
		-10, 0, 10, 0, 10, 0, 0,
		-10, 0, 10, 0, 10, 0, 10,
	}), lower, upper)
	return Benchmark{
		Name:      "4-car-platoon",
		Env:       env,
		Seed:      &seed,
		Synth:     synthOptions(100, 200),
		Invariant: invariantOptions(0.5, 0.5, 200),
	}, nil
}

func carPlatoon8() (Benchmark, error) {
	a := mat.NewDense(15, 15, []float64{
		1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 1, 0.1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 1, 0.1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 1, 0.1, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 1, 0.1, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0.1, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0.1, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0.1,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
	})
	b := mat.NewDense(15, 8, []float64{
		0.1, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0.1, -0.1, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0.1, -0.1, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0.1, -0.1, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0.1, -0.1, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0.1, -0.1, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0.1, -0.1, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0.1, -0.1,
	})
	origin := mat.NewVecDense(15, []float64{20, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0})

	env, err := dynamics.New(
		a, b,
		identity(15),
		scaledIdentity(8, 0.0005),
		box(
			[]float64{19.9, 0.9, -0.1, 0.9, -0.1, 0.9, -0.1, 0.9, -0.1, 0.9, -0.1, 0.9, -0.1, 0.9, -0.1},
			[]float64{20.1, 1.1, 0.1, 1.1, 0.1, 1.1, 0.1, 1.1, 0.1, 1.1, 0.1, 1.1, 0.1, 1.1, 0.1},
		),
		box(
			[]float64{18, 0.5, -1, 0.5, -1, 0.5, -1, 0.5, -1, 0.5, -1, 0.5, -1, 0.5, -1},
			[]float64{22, 1.5, 1, 1.5, 1, 1.5, 1, 1.5, 1, 1.5, 1, 1.5, 1, 1.5, 1},
		),
		uniformBox(8, -10, 10),
		origin,
	)
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Name:      "8-car-platoon",
		Env:       env,
		Synth:     synthOptions(100, 200),
		Invariant: invariantOptions(0.5, 0.5, 200),
	}, nil
}

// #endregion platoons

// #region option-defaults

func synthOptions(rollouts, steps int) synth.Options {
	opts := synth.DefaultOptions()
	opts.RolloutCount = rollouts
	opts.RolloutLen = steps
	return opts
}

func invariantOptions(exploreMag, stepSize float64, horizon int) invariant.BuildOptions {
	opts := invariant.DefaultBuildOptions()
	opts.ExploreMag = exploreMag
	opts.StepSize = stepSize
	opts.Horizon = horizon
	return opts
}

// #endregion option-defaults
