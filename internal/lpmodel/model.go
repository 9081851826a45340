// Package lpmodel builds linear programs (continuous variables with
// optional box bounds, a linear maximize objective and named "less or
// equal" constraints) and solves them through gonum's simplex solver,
// reporting constraint dual prices and variable reduced costs along
// with the optimal objective value.
package lpmodel

import (
	"fmt"
	"math"
)

// Var is a continuous decision variable. Infinite bounds mean the
// variable is unbounded on that side.
type Var struct {
	name   string
	index  int
	lower  float64
	upper  float64
	objCof float64
}

// Name returns the variable's name.
func (v *Var) Name() string { return v.name }

// Term is a coefficient applied to a variable in a linear expression.
type Term struct {
	Var  *Var
	Coef float64
}

type constr struct {
	name  string
	terms []Term
	rhs   float64
}

// Model is a linear program under construction. Models are built
// fresh per solve and are not safe for concurrent use.
type Model struct {
	name     string
	vars     []*Var
	cons     []constr
	conIndex map[string]int
}

// NewMaximize creates an empty model with a maximize-sense objective.
func NewMaximize(name string) *Model {
	return &Model{name: name, conIndex: make(map[string]int)}
}

// Var adds a continuous variable with the given box bounds.
// Pass math.Inf(-1) and math.Inf(1) for free variables.
func (m *Model) Var(name string, lower, upper float64) *Var {
	v := &Var{name: name, index: len(m.vars), lower: lower, upper: upper}
	m.vars = append(m.vars, v)
	return v
}

// FreeVar adds a variable unbounded on both sides.
func (m *Model) FreeVar(name string) *Var {
	return m.Var(name, math.Inf(-1), math.Inf(1))
}

// SetObjectiveCoef sets the objective coefficient of v.
func (m *Model) SetObjectiveCoef(v *Var, coef float64) {
	v.objCof = coef
}

// AddObjectiveCoef adds to the objective coefficient of v.
func (m *Model) AddObjectiveCoef(v *Var, coef float64) {
	v.objCof += coef
}

// AddConstr adds the named constraint "sum of terms <= rhs".
// Constraint names must be unique within a model; a duplicate name is
// a programming error and panics.
func (m *Model) AddConstr(name string, terms []Term, rhs float64) {
	if _, dup := m.conIndex[name]; dup {
		panic(fmt.Sprintf("lpmodel: duplicate constraint name %q", name))
	}
	m.conIndex[name] = len(m.cons)
	m.cons = append(m.cons, constr{name: name, terms: terms, rhs: rhs})
}

// NumVars returns the number of variables in the model.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstrs returns the number of named constraints in the model.
func (m *Model) NumConstrs() int { return len(m.cons) }
