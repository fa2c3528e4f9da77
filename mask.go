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
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// Mask marks the grid cells that are eligible for selection.
type Mask struct {
	Grid
	// Valid holds one flag per cell in row-major order.
	Valid []bool
}

// At reports whether cell (row, col) is valid.
func (m *Mask) At(row, col int) bool { return m.Valid[m.Index(row, col)] }

// Count returns the number of valid cells.
func (m *Mask) Count() int {
	var n int
	for _, v := range m.Valid {
		if v {
			n++
		}
	}
	return n
}

// Cells returns the valid cells in row-major order.
func (m *Mask) Cells() []Cell {
	cells := make([]Cell, 0, m.Count())
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.At(r, c) {
				cells = append(cells, Cell{Row: r, Col: c})
			}
		}
	}
	return cells
}

// ComputeMask rasterizes boundary onto the frame of ref. A cell is valid
// when its center is inside, or on the edge of, any boundary polygon.
func ComputeMask(ref Grid, boundary []geom.Polygonal) (*Mask, error) {
	if len(boundary) == 0 {
		return nil, ConfigErrorf("no boundary geometry provided")
	}
	if ref.CRS == "" {
		return nil, ConfigErrorf("reference grid has no coordinate reference system")
	}
	if ref.Len() == 0 {
		return nil, DataErrorf("", 0, "reference grid is empty (%d×%d)", ref.Rows, ref.Cols)
	}
	return &Mask{Grid: ref, Valid: Rasterize(ref, boundary)}, nil
}

// Rasterize returns one flag per cell of g, in row-major order, that is
// true where the cell center falls within any of the polygons.
func Rasterize(g Grid, polygons []geom.Polygonal) []bool {
	out := make([]bool, g.Len())
	if len(polygons) == 0 {
		return out
	}
	// Index each polygon separately: within a single MultiPolygon, nested
	// polygons would otherwise cancel each other out.
	index := rtree.NewTree(25, 50)
	extent := geom.NewBounds()
	for _, p := range polygons {
		if p == nil {
			continue
		}
		for _, poly := range p.Polygons() {
			if len(poly) == 0 {
				continue
			}
			index.Insert(poly)
			extent.Extend(poly.Bounds())
		}
	}
	if !extent.Overlaps(g.Bounds()) {
		return out
	}
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			x, y := g.Center(r, c)
			pt := geom.Point{X: x, Y: y}
			for _, s := range index.SearchIntersect(pt.Bounds()) {
				if pt.Within(s.(geom.Polygon)) != geom.Outside {
					out[g.Index(r, c)] = true
					break
				}
			}
		}
	}
	return out
}
