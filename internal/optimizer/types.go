package optimizer

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// #region errors
var (
	// ErrInfeasible reports that the constraint system has no solution.
	// Callers probing containment treat this as a negative result, not a crash.
	ErrInfeasible = errors.New("optimizer: problem is infeasible")

	// ErrUnbounded reports that the objective decreases without limit.
	ErrUnbounded = errors.New("optimizer: problem is unbounded")
)

// #endregion errors

// #region problem
// Problem is the mathematical program
//
//	min ½ x'Hx + f'x  s.t.  Ax <= b, Cx = d.
//
// H nil selects the pure linear program. A/B and C/D may each be nil
// when the corresponding constraint set is empty.
type Problem struct {
	H *mat.Dense    // positive semi-definite quadratic term, or nil
	F *mat.VecDense // linear cost term
	A *mat.Dense    // inequality left-hand side
	B *mat.VecDense // inequality right-hand side
	C *mat.Dense    // equality left-hand side
	D *mat.VecDense // equality right-hand side

	// Tol is the maximum slack for an inequality row to count as active
	// at the optimum. Zero selects the default.
	Tol float64
}

// #endregion problem

// #region solution
// Solution reports the optimum of a solved program.
type Solution struct {
	Min       float64
	Argmin    *mat.VecDense
	ActiveSet []int // indices of tight inequality rows

	// Lagrange multipliers, recovered from the dual program. Populated for
	// the linear path only; the quadratic path derives ActiveSet from
	// constraint slack instead (gonum's simplex exposes no duals).
	MultIneq *mat.VecDense
	MultEq   *mat.VecDense
}

// #endregion solution

const (
	defaultActiveTol = 1e-5
	intTol           = 1e-6
	fwGapTol         = 1e-9
	fwMaxIter        = 2000
)
