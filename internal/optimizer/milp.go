package optimizer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// #region mixed-integer
// SolveMixedInteger minimizes the program with the first nc variables
// continuous and the remainder binary. Plain branch and bound: each node
// relaxes the binaries into [0,1] bounds, prunes on infeasibility and on the
// incumbent, and branches on the most fractional binary.
func SolveMixedInteger(nc int, p Problem) (Solution, error) {
	if err := validate(p); err != nil {
		return Solution{}, err
	}
	n := p.F.Len()
	if nc < 0 || nc > n {
		return Solution{}, fmt.Errorf("optimizer: nc=%d out of range for %d variables", nc, n)
	}
	if nc == n {
		return Solve(p)
	}

	root := withBinaryBounds(nc, p)

	type node struct {
		fixIdx []int
		fixVal []float64
	}
	stack := []node{{}}

	best := Solution{Min: math.Inf(1)}
	found := false

	for len(stack) > 0 {
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		relaxed := withFixed(root, nd.fixIdx, nd.fixVal)
		sol, err := Solve(relaxed)
		if err != nil {
			if errors.Is(err, ErrInfeasible) {
				continue
			}
			return Solution{}, err
		}
		if found && sol.Min >= best.Min {
			continue
		}

		branch := mostFractional(sol.Argmin, nc)
		if branch < 0 {
			best = sol
			found = true
			continue
		}

		for _, v := range [2]float64{0, 1} {
			child := node{
				fixIdx: append(append([]int(nil), nd.fixIdx...), branch),
				fixVal: append(append([]float64(nil), nd.fixVal...), v),
			}
			stack = append(stack, child)
		}
	}

	if !found {
		return Solution{}, fmt.Errorf("%w: no integral assignment", ErrInfeasible)
	}
	// Mixed-integer solutions report min/argmin only, as at the solver
	// boundary multipliers are undefined for the integral program.
	best.ActiveSet = nil
	best.MultIneq = nil
	best.MultEq = nil
	return best, nil
}

// #endregion mixed-integer

// #region node-construction
// withBinaryBounds appends 0 <= x_i <= 1 rows for every binary variable.
func withBinaryBounds(nc int, p Problem) Problem {
	n := p.F.Len()
	nb := n - nc
	k := rows(p.A)

	a := mat.NewDense(k+2*nb, n, nil)
	b := mat.NewVecDense(k+2*nb, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, p.A.At(i, j))
		}
		b.SetVec(i, p.B.AtVec(i))
	}
	for i := 0; i < nb; i++ {
		a.Set(k+2*i, nc+i, 1) // x_i <= 1
		b.SetVec(k+2*i, 1)
		a.Set(k+2*i+1, nc+i, -1) // -x_i <= 0
	}

	out := p
	out.A = a
	out.B = b
	return out
}

// withFixed appends equality rows x_idx = val for each branching decision.
func withFixed(p Problem, idx []int, val []float64) Problem {
	if len(idx) == 0 {
		return p
	}
	n := p.F.Len()
	l := rows(p.C)

	c := mat.NewDense(l+len(idx), n, nil)
	d := mat.NewVecDense(l+len(idx), nil)
	for i := 0; i < l; i++ {
		for j := 0; j < n; j++ {
			c.Set(i, j, p.C.At(i, j))
		}
		d.SetVec(i, p.D.AtVec(i))
	}
	for i, j := range idx {
		c.Set(l+i, j, 1)
		d.SetVec(l+i, val[i])
	}

	out := p
	out.C = c
	out.D = d
	return out
}

// mostFractional returns the binary index farthest from integrality, or -1
// when every binary is integral within tolerance.
func mostFractional(x *mat.VecDense, nc int) int {
	bestIdx := -1
	bestDist := intTol
	for i := nc; i < x.Len(); i++ {
		frac := math.Abs(x.AtVec(i) - math.Round(x.AtVec(i)))
		if frac > bestDist {
			bestDist = frac
			bestIdx = i
		}
	}
	return bestIdx
}

// #endregion node-construction
