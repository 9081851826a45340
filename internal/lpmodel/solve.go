package lpmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Status is the solver's verdict on a model.
type Status int

const (
	// StatusOptimal means an optimal basis was found; duals and
	// reduced costs are valid.
	StatusOptimal Status = iota
	// StatusInfeasible means the model's constraints admit no solution.
	StatusInfeasible
	// StatusUnbounded means the objective can grow without limit.
	StatusUnbounded
	// StatusNumericFailure covers singular or otherwise degenerate
	// bases where the solver gave up without a verdict.
	StatusNumericFailure
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "numeric failure"
	}
}

// Solution holds the outcome of solving a model. Dual prices and
// reduced costs are only meaningful when Status is StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64

	duals   []float64 // shadow price per named constraint
	reduced []float64 // reduced cost per variable
	names   map[string]int
}

// Dual returns the shadow price of the named constraint. Asking for a
// constraint that was never added is a programming error and panics.
func (s *Solution) Dual(name string) float64 {
	i, ok := s.names[name]
	if !ok {
		panic(fmt.Sprintf("lpmodel: no constraint named %q", name))
	}
	return s.duals[i]
}

// ReducedCost returns the reduced cost of a variable. It is nonzero
// only for variables resting on one of their box bounds.
func (s *Solution) ReducedCost(v *Var) float64 {
	return s.reduced[v.index]
}

const simplexTol = 1e-10

// Solve runs the simplex method on the model.
//
// gonum's lp.Simplex reports only the primal solution of the program
// it is handed, while the callers here consume dual quantities. Solve
// therefore hands gonum the model's dual: box bounds are first
// materialized as explicit rows so that every variable is free, which
// makes the dual exactly a standard-form program
// (min b'y subject to A'y = c, y >= 0). The solution vector y then
// holds the shadow price of every row; the reduced cost of a bounded
// variable is the price of its upper-bound row minus the price of its
// lower-bound row, and the objective value carries over by strong
// duality.
func (m *Model) Solve() (*Solution, error) {
	if len(m.vars) == 0 {
		return nil, errors.New("lpmodel: model has no variables")
	}

	// Rows of the original program: named constraints first, then
	// bound rows in variable order. ubRow/lbRow remember where each
	// variable's bound rows land.
	nVars := len(m.vars)
	type row struct {
		coefs map[int]float64
		rhs   float64
	}
	rows := make([]row, 0, len(m.cons)+2*nVars)
	for _, c := range m.cons {
		coefs := make(map[int]float64, len(c.terms))
		for _, t := range c.terms {
			coefs[t.Var.index] += t.Coef
		}
		rows = append(rows, row{coefs: coefs, rhs: c.rhs})
	}
	ubRow := make([]int, nVars)
	lbRow := make([]int, nVars)
	for i, v := range m.vars {
		ubRow[i], lbRow[i] = -1, -1
		if !math.IsInf(v.upper, 1) {
			ubRow[i] = len(rows)
			rows = append(rows, row{coefs: map[int]float64{i: 1}, rhs: v.upper})
		}
		if !math.IsInf(v.lower, -1) {
			lbRow[i] = len(rows)
			rows = append(rows, row{coefs: map[int]float64{i: -1}, rhs: -v.lower})
		}
	}

	// Dual standard form: one equality per original variable, one
	// nonnegative dual variable per row.
	nRows := len(rows)
	aDual := mat.NewDense(nVars, nRows, nil)
	cDual := make([]float64, nRows)
	bDual := make([]float64, nVars)
	for r, rw := range rows {
		cDual[r] = rw.rhs
		for j, coef := range rw.coefs {
			aDual.Set(j, r, coef)
		}
	}
	for i, v := range m.vars {
		bDual[i] = v.objCof
	}

	sol := &Solution{
		duals:   make([]float64, len(m.cons)),
		reduced: make([]float64, nVars),
		names:   m.conIndex,
	}
	optF, y, err := lp.Simplex(cDual, aDual, bDual, simplexTol, nil)
	switch {
	case err == nil:
		sol.Status = StatusOptimal
	case errors.Is(err, lp.ErrUnbounded):
		// Unbounded dual means the original program is infeasible.
		sol.Status = StatusInfeasible
		return sol, nil
	case errors.Is(err, lp.ErrInfeasible):
		sol.Status = StatusUnbounded
		return sol, nil
	default:
		sol.Status = StatusNumericFailure
		return sol, nil
	}

	sol.Objective = optF
	for i := range m.cons {
		sol.duals[i] = y[i]
	}
	for i := range m.vars {
		var rc float64
		if ubRow[i] >= 0 {
			rc += y[ubRow[i]]
		}
		if lbRow[i] >= 0 {
			rc -= y[lbRow[i]]
		}
		sol.reduced[i] = rc
	}
	return sol, nil
}
