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

package cplan

import (
	"context"
	"math"

	"github.com/ctessum/geom"

	"github.com/spatialmodel/cplan/milp"
)

// Solution holds the solved value, in [0, 1], of each cell that had a
// decision variable.
type Solution map[Cell]float64

// Selected returns the number of cells with a value of at least 0.5.
func (s Solution) Selected() int {
	var n int
	for _, v := range s {
		if v >= 0.5 {
			n++
		}
	}
	return n
}

// Solve solves c with solver. A non-optimal outcome is reported through the
// returned status; the solution is empty if the solver found no values.
// Errors raised by the solver are returned as *SolveError.
func Solve(ctx context.Context, solver milp.Solver, c *Compiled) (milp.Status, Solution, error) {
	res, err := solver.Solve(ctx, c.Model)
	if err != nil {
		return milp.NotSolved, nil, &SolveError{Err: err}
	}
	sol := make(Solution, len(c.Cells))
	if res.X == nil {
		return res.Status, sol, nil
	}
	for i, cell := range c.Cells {
		sol[cell] = math.Max(0, math.Min(1, res.X[i]))
	}
	return res.Status, sol, nil
}

// Project places sol onto a zeroed layer on g and zeroes every cell whose
// center is outside boundary. The result is the same for the same inputs.
func Project(sol Solution, g Grid, boundary []geom.Polygonal) (*Layer, error) {
	if len(boundary) == 0 {
		return nil, ConfigErrorf("no boundary geometry provided")
	}
	out := NewLayer(g, 0)
	var outside int
	for cell, v := range sol {
		if !g.Contains(cell.Row, cell.Col) {
			outside++
			continue
		}
		out.Set(cell.Row, cell.Col, v)
	}
	if outside > 0 {
		return nil, DataErrorf("", outside, "solution has cells outside the %d×%d grid", g.Rows, g.Cols)
	}
	for i, ok := range Rasterize(g, boundary) {
		if !ok {
			out.Data[i] = 0
		}
	}
	return out, nil
}
