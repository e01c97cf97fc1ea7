package optimizer

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// #region solve
// Solve minimizes the program. The linear path runs gonum's simplex on the
// standard-form conversion; the quadratic path runs Frank-Wolfe with the
// simplex as its linear oracle, which converges for convex H over a bounded
// polytope. Infeasible and unbounded programs return the sentinel errors, an
// Argmin is always present on success.
func Solve(p Problem) (Solution, error) {
	if err := validate(p); err != nil {
		return Solution{}, err
	}
	if p.H == nil {
		return solveLinear(p)
	}
	return solveQuadratic(p)
}

// #endregion solve

// #region validate
func validate(p Problem) error {
	if p.F == nil {
		return fmt.Errorf("optimizer: nil cost vector")
	}
	n := p.F.Len()
	if p.H != nil {
		hr, hc := p.H.Dims()
		if hr != n || hc != n {
			return fmt.Errorf("optimizer: H is %dx%d, want %dx%d", hr, hc, n, n)
		}
	}
	if p.A != nil {
		ar, ac := p.A.Dims()
		if ac != n {
			return fmt.Errorf("optimizer: A has %d columns, want %d", ac, n)
		}
		if p.B == nil || p.B.Len() != ar {
			return fmt.Errorf("optimizer: inequality rhs does not match %d rows", ar)
		}
	}
	if p.C != nil {
		cr, cc := p.C.Dims()
		if cc != n {
			return fmt.Errorf("optimizer: C has %d columns, want %d", cc, n)
		}
		if p.D == nil || p.D.Len() != cr {
			return fmt.Errorf("optimizer: equality rhs does not match %d rows", cr)
		}
	}
	return nil
}

// #endregion validate

// #region linear
// solveLinear converts min f'x s.t. Ax<=b, Cx=d (x free) into standard form
// with split positive/negative parts and slacks, then runs the simplex.
func solveLinear(p Problem) (Solution, error) {
	n := p.F.Len()
	k := rows(p.A)
	l := rows(p.C)

	// z = [xp(n), xm(n), s(k)] >= 0
	//   A xp - A xm + s = b
	//   C xp - C xm     = d
	cols := 2*n + k
	c := make([]float64, cols)
	for i := 0; i < n; i++ {
		c[i] = p.F.AtVec(i)
		c[n+i] = -p.F.AtVec(i)
	}

	aStd := mat.NewDense(k+l, cols, nil)
	bStd := make([]float64, k+l)
	for i := 0; i < k; i++ {
		for j := 0; j < n; j++ {
			aStd.Set(i, j, p.A.At(i, j))
			aStd.Set(i, n+j, -p.A.At(i, j))
		}
		aStd.Set(i, 2*n+i, 1)
		bStd[i] = p.B.AtVec(i)
	}
	for i := 0; i < l; i++ {
		for j := 0; j < n; j++ {
			aStd.Set(k+i, j, p.C.At(i, j))
			aStd.Set(k+i, n+j, -p.C.At(i, j))
		}
		bStd[k+i] = p.D.AtVec(i)
	}

	opt, z, err := lp.Simplex(c, aStd, bStd, 0, nil)
	if err != nil {
		return Solution{}, mapSimplexErr(err)
	}

	x := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.SetVec(i, z[i]-z[n+i])
	}

	sol := Solution{Min: opt, Argmin: x, ActiveSet: activeSet(p, x)}
	sol.MultIneq, sol.MultEq = recoverDuals(p)
	return sol, nil
}

// mapSimplexErr folds gonum's simplex failures into the package sentinels.
func mapSimplexErr(err error) error {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return fmt.Errorf("%w: %v", ErrInfeasible, err)
	case errors.Is(err, lp.ErrUnbounded):
		return fmt.Errorf("%w: %v", ErrUnbounded, err)
	default:
		return fmt.Errorf("optimizer: simplex: %w", err)
	}
}

// #endregion linear

// #region duals
// recoverDuals solves the dual program
//
//	min b'λ + d'ν  s.t.  A'λ + C'ν = -f, λ >= 0
//
// with a second simplex call. Failure here is tolerated: the primal solution
// stands and the multiplier fields stay nil.
func recoverDuals(p Problem) (*mat.VecDense, *mat.VecDense) {
	n := p.F.Len()
	k := rows(p.A)
	l := rows(p.C)
	if k == 0 && l == 0 {
		return nil, nil
	}

	// z = [λ(k), νp(l), νm(l)] >= 0
	cols := k + 2*l
	c := make([]float64, cols)
	for i := 0; i < k; i++ {
		c[i] = p.B.AtVec(i)
	}
	for i := 0; i < l; i++ {
		c[k+i] = p.D.AtVec(i)
		c[k+l+i] = -p.D.AtVec(i)
	}

	aStd := mat.NewDense(n, cols, nil)
	bStd := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < k; i++ {
			aStd.Set(j, i, p.A.At(i, j))
		}
		for i := 0; i < l; i++ {
			aStd.Set(j, k+i, p.C.At(i, j))
			aStd.Set(j, k+l+i, -p.C.At(i, j))
		}
		bStd[j] = -p.F.AtVec(j)
	}

	_, z, err := lp.Simplex(c, aStd, bStd, 0, nil)
	if err != nil {
		return nil, nil
	}

	var multIneq, multEq *mat.VecDense
	if k > 0 {
		multIneq = mat.NewVecDense(k, nil)
		for i := 0; i < k; i++ {
			multIneq.SetVec(i, z[i])
		}
	}
	if l > 0 {
		multEq = mat.NewVecDense(l, nil)
		for i := 0; i < l; i++ {
			multEq.SetVec(i, z[k+i]-z[k+l+i])
		}
	}
	return multIneq, multEq
}

// #endregion duals

// #region quadratic
// solveQuadratic minimizes ½x'Hx + f'x by Frank-Wolfe: at each step the
// gradient is linearized and the simplex oracle supplies the extreme point
// toward which an exact line search moves. The duality gap g'(x-s) bounds
// suboptimality and drives termination.
func solveQuadratic(p Problem) (Solution, error) {
	n := p.F.Len()

	// Feasible starting point: zero-cost LP over the same polytope.
	feas := p
	feas.H = nil
	feas.F = mat.NewVecDense(n, nil)
	start, err := solveLinear(feas)
	if err != nil {
		return Solution{}, err
	}
	x := start.Argmin

	grad := mat.NewVecDense(n, nil)
	dir := mat.NewVecDense(n, nil)
	hd := mat.NewVecDense(n, nil)
	for iter := 0; iter < fwMaxIter; iter++ {
		grad.MulVec(p.H, x)
		grad.AddVec(grad, p.F)

		oracle := p
		oracle.H = nil
		oracle.F = grad
		vertex, err := solveLinear(oracle)
		if err != nil {
			return Solution{}, err
		}

		dir.SubVec(vertex.Argmin, x)
		gap := -mat.Dot(grad, dir)
		if gap < fwGapTol {
			break
		}

		hd.MulVec(p.H, dir)
		denom := mat.Dot(dir, hd)
		gamma := 1.0
		if denom > 0 {
			gamma = gap / denom
			if gamma > 1 {
				gamma = 1
			}
		}
		x.AddScaledVec(x, gamma, dir)
	}

	hx := mat.NewVecDense(n, nil)
	hx.MulVec(p.H, x)
	min := 0.5*mat.Dot(x, hx) + mat.Dot(p.F, x)

	return Solution{Min: min, Argmin: x, ActiveSet: activeSet(p, x)}, nil
}

// #endregion quadratic

// #region helpers
// activeSet lists the inequality rows tight at x within the tolerance.
func activeSet(p Problem, x *mat.VecDense) []int {
	tol := p.Tol
	if tol == 0 {
		tol = defaultActiveTol
	}
	var active []int
	for i := 0; i < rows(p.A); i++ {
		var ax float64
		for j := 0; j < x.Len(); j++ {
			ax += p.A.At(i, j) * x.AtVec(j)
		}
		if p.B.AtVec(i)-ax <= tol {
			active = append(active, i)
		}
	}
	return active
}

func rows(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

// #endregion helpers
