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
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	pivTol = 1e-9
	optTol = 1e-9

	// blandAfter is the number of consecutive degenerate pivots after which
	// entering columns are chosen by smallest index, which cannot cycle.
	blandAfter = 50

	// ctxEvery is how often, in iterations, the simplex loop checks for
	// cancellation.
	ctxEvery = 64
)

var errUnbounded = errors.New("milp: LP relaxation is unbounded")

// lpRow is a sparse row of an LP relaxation.
type lpRow struct {
	cols  []int
	vals  []float64
	sense Sense
	rhs   float64
}

// boundedLP is a dense simplex tableau for
//
//	min c·x  s.t.  A x (sense) b,  lo ≤ x ≤ up
//
// where variable bounds are handled by the ratio test rather than as
// rows. Columns are the structural variables, then one slack per
// inequality row, then one artificial per row.
type boundedLP struct {
	m, n   int // rows, structural columns
	t      *mat.Dense
	lo, up []float64
	x      []float64
	basis  []int // basic column of each row
	row    []int // row of each basic column, -1 if nonbasic
}

// newBoundedLP builds the phase 1 tableau with every structural and slack
// variable at zero and the artificials basic.
func newBoundedLP(n int, rows []lpRow) *boundedLP {
	m := len(rows)
	var slacks int
	for _, r := range rows {
		if r.sense != EQ {
			slacks++
		}
	}
	nc := n + slacks + m
	lp := &boundedLP{
		m:     m,
		n:     n,
		t:     mat.NewDense(max(m, 1), nc, nil),
		lo:    make([]float64, nc),
		up:    make([]float64, nc),
		x:     make([]float64, nc),
		basis: make([]int, m),
		row:   make([]int, nc),
	}
	for j := range lp.up {
		lp.up[j] = math.Inf(1)
		lp.row[j] = -1
	}
	for j := 0; j < n; j++ {
		lp.up[j] = 1
	}
	s := n
	for i, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		tr := lp.t.RawRowView(i)
		for k, j := range r.cols {
			tr[j] += sign * r.vals[k]
		}
		switch r.sense {
		case LE:
			tr[s] = sign
			s++
		case GE:
			tr[s] = -sign
			s++
		}
		a := n + slacks + i
		tr[a] = 1
		lp.basis[i] = a
		lp.row[a] = i
		lp.x[a] = math.Abs(r.rhs)
	}
	return lp
}

// reducedCosts returns c_j - c_B·T_j for every column.
func (lp *boundedLP) reducedCosts(cost []float64) []float64 {
	d := append([]float64(nil), cost...)
	for i := 0; i < lp.m; i++ {
		if cb := cost[lp.basis[i]]; cb != 0 {
			floats.AddScaled(d, -cb, lp.t.RawRowView(i))
		}
	}
	return d
}

// entering picks the nonbasic column to move and its direction, or -1 if
// the basis is optimal.
func (lp *boundedLP) entering(d []float64, bland bool) (int, float64) {
	best, dir, score := -1, 0.0, optTol
	for j, dj := range d {
		if lp.row[j] >= 0 || lp.lo[j] == lp.up[j] {
			continue
		}
		var s, sd float64
		switch {
		case dj < -optTol && lp.x[j] < lp.up[j]:
			s, sd = -dj, 1
		case dj > optTol && lp.x[j] > lp.lo[j]:
			s, sd = dj, -1
		default:
			continue
		}
		if bland {
			return j, sd
		}
		if s > score {
			best, dir, score = j, sd, s
		}
	}
	return best, dir
}

// optimize runs the bounded primal simplex method on cost.
func (lp *boundedLP) optimize(ctx context.Context, cost []float64) error {
	d := lp.reducedCosts(cost)
	nc := len(cost)
	maxIter := 50*(lp.m+nc) + 1000
	col := make([]float64, lp.m)
	var degenerate int
	for iter := 0; ; iter++ {
		if iter%ctxEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if iter > maxIter {
			return fmt.Errorf("milp: simplex did not converge in %d iterations", maxIter)
		}
		j, dir := lp.entering(d, degenerate > blandAfter)
		if j < 0 {
			return nil
		}
		for i := range col {
			col[i] = lp.t.At(i, j)
		}

		step, r := lp.up[j]-lp.lo[j], -1
		for i := 0; i < lp.m; i++ {
			alpha := dir * col[i]
			b := lp.basis[i]
			var lim float64
			switch {
			case alpha > pivTol:
				lim = (lp.x[b] - lp.lo[b]) / alpha
			case alpha < -pivTol && !math.IsInf(lp.up[b], 1):
				lim = (lp.up[b] - lp.x[b]) / -alpha
			default:
				continue
			}
			if lim < step {
				step, r = lim, i
			}
		}
		if math.IsInf(step, 1) {
			return errUnbounded
		}
		if step < 0 {
			step = 0
		}
		if step <= pivTol {
			degenerate++
		} else {
			degenerate = 0
		}

		lp.x[j] += dir * step
		for i := 0; i < lp.m; i++ {
			lp.x[lp.basis[i]] -= dir * step * col[i]
		}
		if r < 0 {
			// The entering column reached its other bound.
			lp.x[j] = lp.up[j]
			if dir < 0 {
				lp.x[j] = lp.lo[j]
			}
			continue
		}
		leaving := lp.basis[r]
		if dir*col[r] > 0 {
			lp.x[leaving] = lp.lo[leaving]
		} else {
			lp.x[leaving] = lp.up[leaving]
		}
		lp.pivot(r, j, d)
	}
}

// pivot makes column j basic in row r.
func (lp *boundedLP) pivot(r, j int, d []float64) {
	pr := lp.t.RawRowView(r)
	floats.Scale(1/pr[j], pr)
	for i := 0; i < lp.m; i++ {
		if i == r {
			continue
		}
		ri := lp.t.RawRowView(i)
		if f := ri[j]; f != 0 {
			floats.AddScaled(ri, -f, pr)
		}
	}
	if f := d[j]; f != 0 {
		floats.AddScaled(d, -f, pr)
	}
	lp.row[lp.basis[r]] = -1
	lp.basis[r] = j
	lp.row[j] = r
}

// solveLP minimizes c·x over 0 ≤ x ≤ 1 subject to rows. feasible is false
// if no such x exists.
func solveLP(ctx context.Context, c []float64, rows []lpRow) (obj float64, x []float64, feasible bool, err error) {
	n := len(c)
	lp := newBoundedLP(n, rows)
	nc := len(lp.x)
	art := nc - lp.m

	// Phase 1 minimizes the sum of the artificials.
	cost := make([]float64, nc)
	scale := 1.0
	for i := art; i < nc; i++ {
		cost[i] = 1
	}
	for _, r := range rows {
		scale = math.Max(scale, math.Abs(r.rhs))
	}
	if err := lp.optimize(ctx, cost); err != nil {
		return 0, nil, false, err
	}
	var infeas float64
	for i := art; i < nc; i++ {
		infeas += lp.x[i]
	}
	if infeas > feasTol*scale {
		return 0, nil, false, nil
	}
	for i := art; i < nc; i++ {
		lp.up[i] = 0
		if lp.row[i] < 0 {
			lp.x[i] = 0
		}
	}

	for i := range cost {
		cost[i] = 0
	}
	copy(cost, c)
	if err := lp.optimize(ctx, cost); err != nil {
		return 0, nil, false, err
	}
	x = make([]float64, n)
	for j := range x {
		x[j] = math.Max(0, math.Min(1, lp.x[j]))
		obj += c[j] * x[j]
	}
	return obj, x, true, nil
}
