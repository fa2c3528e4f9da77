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

package milp

import (
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// DefaultMaxNodes is the node limit used when BranchAndBound.MaxNodes is
// zero.
const DefaultMaxNodes = 100000

const (
	intTol  = 1e-6
	feasTol = 1e-6
)

// DefaultSolver returns the solver used when none is configured. Builds
// with the highs tag use HiGHS; others use BranchAndBound.
func DefaultSolver(log logrus.FieldLogger) Solver { return defaultSolver(log) }

var defaultSolver = func(log logrus.FieldLogger) Solver {
	return &BranchAndBound{Log: log}
}

// BranchAndBound is a depth-first branch-and-bound solver for binary
// programs. LP relaxations are solved with a bounded-variable simplex
// method, so the tableau has one row per constraint.
type BranchAndBound struct {
	// MaxNodes limits the number of nodes explored. If the limit is hit the
	// result status is Undefined when a feasible solution has been found and
	// NotSolved otherwise.
	MaxNodes int

	Log logrus.FieldLogger
}

func (bb *BranchAndBound) log() logrus.FieldLogger {
	if bb.Log == nil {
		return logrus.StandardLogger()
	}
	return bb.Log
}

// Solve implements Solver.
func (bb *BranchAndBound) Solve(ctx context.Context, m *Model) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	p := newProblem(m)
	fixed, ok := p.presolve()
	if !ok {
		bb.log().WithField("stage", "presolve").Info("milp: conflicting fixed variables")
		return &Result{Status: Infeasible}, nil
	}
	bb.log().WithFields(logrus.Fields{
		"vars":        m.NumVars(),
		"constraints": len(m.Constraints),
		"fixed":       len(fixed),
	}).Debug("milp: presolve complete")

	maxNodes := bb.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	var (
		best    []float64
		bestVal = math.Inf(1)
		nodes   int
		stack   = []map[int]float64{fixed}
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if nodes >= maxNodes {
			bb.log().WithField("nodes", nodes).Warn("milp: node limit reached")
			res := &Result{Status: NotSolved, Nodes: nodes}
			if best != nil {
				res.Status = Undefined
				res.X = best
				res.Objective = Eval(m.Objective, best)
			}
			return res, nil
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		val, x, feasible, err := p.relax(ctx, node)
		if err != nil {
			return nil, err
		}
		if !feasible || val >= bestVal-feasTol {
			continue
		}
		v, frac := mostFractional(x, node, intTol)
		if v < 0 {
			xi := make([]float64, len(x))
			for i, xv := range x {
				xi[i] = math.Round(xv)
			}
			if p.feasible(xi) {
				best, bestVal = xi, p.minValue(xi)
				continue
			}
			// Rounding broke a row, so keep branching on the least
			// integral free variable.
			if v, frac = mostFractional(x, node, 0); v < 0 {
				continue
			}
		}
		// Depth-first: push the farther branch first so the nearer one is
		// explored next.
		near, far := 1.0, 0.0
		if frac < 0.5 {
			near, far = 0, 1
		}
		stack = append(stack, with(node, v, far), with(node, v, near))
	}
	if best == nil {
		return &Result{Status: Infeasible, Nodes: nodes}, nil
	}
	return &Result{Status: Optimal, X: best, Objective: Eval(m.Objective, best), Nodes: nodes}, nil
}

// with returns a copy of fix with variable v set to val.
func with(fix map[int]float64, v int, val float64) map[int]float64 {
	o := make(map[int]float64, len(fix)+1)
	for k, x := range fix {
		o[k] = x
	}
	o[v] = val
	return o
}

// mostFractional returns the free variable whose value is farthest from an
// integer, or -1 if no free variable is more than tol from one.
func mostFractional(x []float64, fixed map[int]float64, tol float64) (int, float64) {
	v, dist, frac := -1, tol, 0.0
	for i, xv := range x {
		if _, ok := fixed[i]; ok {
			continue
		}
		f := xv - math.Floor(xv)
		if d := math.Min(f, 1-f); d > dist {
			v, dist, frac = i, d, f
		}
	}
	return v, frac
}

// problem is a model in minimization form with coefficients aggregated per
// variable.
type problem struct {
	n    int
	c    []float64
	rows []row
}

type row struct {
	coef  map[int]float64
	vars  []int // keys of coef in ascending order
	sense Sense
	rhs   float64
	// tol is the feasibility tolerance of the row, scaled to the size of
	// its coefficients.
	tol float64
}

func newProblem(m *Model) *problem {
	p := &problem{n: m.NumVars(), c: make([]float64, m.NumVars())}
	sign := 1.0
	if m.Maximize {
		sign = -1
	}
	for _, t := range m.Objective {
		p.c[t.Var] += sign * t.Coef
	}
	for _, c := range m.Constraints {
		r := row{coef: make(map[int]float64, len(c.Terms)), sense: c.Sense, rhs: c.RHS}
		for _, t := range c.Terms {
			r.coef[t.Var] += t.Coef
		}
		scale := math.Max(1, math.Abs(c.RHS))
		for v, a := range r.coef {
			if a == 0 {
				delete(r.coef, v)
				continue
			}
			r.vars = append(r.vars, v)
			scale = math.Max(scale, math.Abs(a))
		}
		sort.Ints(r.vars)
		r.tol = feasTol * scale
		p.rows = append(p.rows, r)
	}
	return p
}

// feasible reports whether x satisfies every row to within its scaled
// tolerance.
func (p *problem) feasible(x []float64) bool {
	for _, r := range p.rows {
		var lhs float64
		for v, a := range r.coef {
			lhs += a * x[v]
		}
		if !(Constraint{Sense: r.sense, RHS: r.rhs - lhs}).Satisfied(nil, r.tol) {
			return false
		}
	}
	return true
}

func (p *problem) minValue(x []float64) float64 {
	var v float64
	for i, c := range p.c {
		v += c * x[i]
	}
	return v
}

// presolve fixes the variables of single-variable equality rows. ok is
// false if two rows conflict or a row fixes a variable to a value other
// than 0 or 1.
func (p *problem) presolve() (fixed map[int]float64, ok bool) {
	fixed = make(map[int]float64)
	for _, r := range p.rows {
		if r.sense != EQ || len(r.coef) != 1 {
			continue
		}
		for v, a := range r.coef {
			val := r.rhs / a
			rv := math.Round(val)
			if math.Abs(val-rv) > intTol || (rv != 0 && rv != 1) {
				return nil, false
			}
			if prev, ok := fixed[v]; ok && prev != rv {
				return nil, false
			}
			fixed[v] = rv
		}
	}
	return fixed, true
}

// relax solves the LP relaxation of p with the given variables fixed. It
// returns the minimization objective value and the full variable vector.
func (p *problem) relax(ctx context.Context, fixed map[int]float64) (val float64, x []float64, feasible bool, err error) {
	free := make([]int, 0, p.n-len(fixed))
	col := make(map[int]int, p.n)
	for i := 0; i < p.n; i++ {
		if _, ok := fixed[i]; !ok {
			col[i] = len(free)
			free = append(free, i)
		}
	}
	x = make([]float64, p.n)
	for v, xv := range fixed {
		val += p.c[v] * xv
		x[v] = xv
	}

	var rows []lpRow
	for _, r := range p.rows {
		lr := lpRow{sense: r.sense, rhs: r.rhs}
		for _, v := range r.vars {
			coef := r.coef[v]
			if xv, ok := fixed[v]; ok {
				lr.rhs -= coef * xv
				continue
			}
			lr.cols = append(lr.cols, col[v])
			lr.vals = append(lr.vals, coef)
		}
		if len(lr.cols) == 0 {
			if !(Constraint{Sense: r.sense, RHS: lr.rhs}).Satisfied(nil, r.tol) {
				return 0, nil, false, nil
			}
			continue
		}
		rows = append(rows, lr)
	}
	if len(free) == 0 {
		return val, x, true, nil
	}

	c := make([]float64, len(free))
	for j, v := range free {
		c[j] = p.c[v]
	}
	opt, xs, feasible, err := solveLP(ctx, c, rows)
	if err != nil || !feasible {
		return 0, nil, false, err
	}
	for j, v := range free {
		x[v] = xs[j]
	}
	return val + opt, x, true, nil
}
