/*
Copyright © 2026 the CPlan authors.
This file is part of CPlan.

CPlan is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

CPlan is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with CPlan.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package milp holds a minimal representation of binary linear programs
// and a reference branch-and-bound solver for them.
package milp

import (
	"context"
	"fmt"
	"math"
)

// Sense is the relation between the left- and right-hand sides of a
// constraint.
type Sense int

// Constraint senses.
const (
	LE Sense = iota // ≤
	GE              // ≥
	EQ              // =
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "=="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Term is one coefficient-variable product of a linear expression.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a named linear constraint Σ Coef·x (Sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a linear program over binary variables.
type Model struct {
	// VarNames holds one name per variable. Variables are numbered in the
	// order they were added.
	VarNames []string

	// Maximize is true if the objective is to be maximized.
	Maximize bool

	// Objective is the linear objective function.
	Objective []Term

	// Constraints are kept in the order they were added.
	Constraints []Constraint
}

// NewModel returns an empty model.
func NewModel(maximize bool) *Model {
	return &Model{Maximize: maximize}
}

// AddVar adds a binary variable and returns its index.
func (m *Model) AddVar(name string) int {
	m.VarNames = append(m.VarNames, name)
	return len(m.VarNames) - 1
}

// NumVars returns the number of variables in the model.
func (m *Model) NumVars() int { return len(m.VarNames) }

// AddConstraint appends a constraint to the model.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.Constraints = append(m.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// Validate checks that every term refers to an existing variable and that
// all coefficients are finite.
func (m *Model) Validate() error {
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if t.Var < 0 || t.Var >= m.NumVars() {
				return fmt.Errorf("milp: %s refers to variable %d; model has %d variables", where, t.Var, m.NumVars())
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("milp: %s has non-finite coefficient %g for variable %d", where, t.Coef, t.Var)
			}
		}
		return nil
	}
	if err := check("objective", m.Objective); err != nil {
		return err
	}
	for i, c := range m.Constraints {
		if err := check(fmt.Sprintf("constraint %d (%s)", i, c.Name), c.Terms); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("milp: constraint %d (%s) has non-finite right-hand side %g", i, c.Name, c.RHS)
		}
		if c.Sense < LE || c.Sense > EQ {
			return fmt.Errorf("milp: constraint %d (%s) has invalid sense %v", i, c.Name, c.Sense)
		}
	}
	return nil
}

// Eval returns the value of terms at x.
func Eval(terms []Term, x []float64) float64 {
	var v float64
	for _, t := range terms {
		v += t.Coef * x[t.Var]
	}
	return v
}

// Satisfied reports whether x satisfies c to within tol.
func (c Constraint) Satisfied(x []float64, tol float64) bool {
	lhs := Eval(c.Terms, x)
	switch c.Sense {
	case LE:
		return lhs <= c.RHS+tol
	case GE:
		return lhs >= c.RHS-tol
	default:
		return math.Abs(lhs-c.RHS) <= tol
	}
}

// Feasible reports whether x satisfies every constraint of m to within tol.
func (m *Model) Feasible(x []float64, tol float64) bool {
	for _, c := range m.Constraints {
		if !c.Satisfied(x, tol) {
			return false
		}
	}
	return true
}

// Status is the outcome of a solve.
type Status int

// Solve outcomes.
const (
	NotSolved Status = iota
	Optimal
	Infeasible
	Unbounded
	Undefined
)

func (s Status) String() string {
	switch s {
	case NotSolved:
		return "Not Solved"
	case Optimal:
		return "Optimal"
	case Infeasible:
		return "Infeasible"
	case Unbounded:
		return "Unbounded"
	case Undefined:
		return "Undefined"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result holds the outcome of a solve.
type Result struct {
	Status Status

	// Objective is the objective value at X. It is only meaningful if X
	// is non-nil.
	Objective float64

	// X holds one value per model variable, or is nil if no solution was
	// found.
	X []float64

	// Nodes is the number of branch-and-bound nodes explored.
	Nodes int
}

// Solver solves binary linear programs. A non-optimal outcome is reported
// through Result.Status; an error means the solver itself failed.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Result, error)
}
