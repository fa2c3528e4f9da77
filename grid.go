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

// Package cplan compiles weighted, constrained raster layers into a binary
// cell-selection program, solves it, and projects the result back onto the
// raster grid.
package cplan

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// Affine is a six-coefficient affine transform mapping (column, row)
// pixel coordinates to (x, y) map coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// The coefficient naming follows the rasterio/affine convention.
type Affine struct {
	A, B, C, D, E, F float64
}

// NewAffineFromGDAL creates an Affine from coefficients in GDAL
// GeoTransform order (C, A, B, F, D, E).
func NewAffineFromGDAL(c []float64) (Affine, error) {
	if len(c) != 6 {
		return Affine{}, fmt.Errorf("cplan: GDAL transform must have 6 coefficients, has %d", len(c))
	}
	return Affine{C: c[0], A: c[1], B: c[2], F: c[3], D: c[4], E: c[5]}, nil
}

// GDAL returns the transform coefficients in GDAL GeoTransform order.
func (a Affine) GDAL() []float64 {
	return []float64{a.C, a.A, a.B, a.F, a.D, a.E}
}

// Apply returns the map coordinates of fractional pixel position (col, row).
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a.A*col + a.B*row + a.C, a.D*col + a.E*row + a.F
}

func (a Affine) determinant() float64 { return a.A*a.E - a.B*a.D }

// Invert returns the fractional pixel position (col, row) of map
// coordinates (x, y).
func (a Affine) Invert(x, y float64) (col, row float64, err error) {
	det := a.determinant()
	if det == 0 {
		return math.NaN(), math.NaN(), fmt.Errorf("cplan: affine transform %+v is degenerate", a)
	}
	dx, dy := x-a.C, y-a.F
	col = (a.E*dx - a.B*dy) / det
	row = (-a.D*dx + a.A*dy) / det
	return col, row, nil
}

// Scale returns a transform whose pixels are factor times as large,
// keeping the same origin.
func (a Affine) Scale(factor float64) Affine {
	return Affine{A: a.A * factor, B: a.B * factor, C: a.C, D: a.D * factor, E: a.E * factor, F: a.F}
}

// Translate returns a transform whose origin is moved to pixel (col, row)
// of a.
func (a Affine) Translate(col, row float64) Affine {
	x, y := a.Apply(col, row)
	return Affine{A: a.A, B: a.B, C: x, D: a.D, E: a.E, F: y}
}

// Resolution returns the mean absolute pixel edge length.
func (a Affine) Resolution() float64 {
	return (math.Hypot(a.A, a.D) + math.Hypot(a.B, a.E)) / 2
}

// almostEqual compares transforms to within a relative tolerance.
func (a Affine) almostEqual(b Affine) bool {
	av := []float64{a.A, a.B, a.C, a.D, a.E, a.F}
	bv := []float64{b.A, b.B, b.C, b.D, b.E, b.F}
	for i := range av {
		scale := math.Max(1, math.Max(math.Abs(av[i]), math.Abs(bv[i])))
		if math.Abs(av[i]-bv[i]) > 1e-9*scale {
			return false
		}
	}
	return true
}

// Grid is the coordinate frame shared by every layer, the validity mask and
// the solution of one run.
type Grid struct {
	Rows, Cols int
	Transform  Affine
	// CRS is the coordinate reference system of the transform, in any form
	// accepted by ParseCRS.
	CRS string
}

// Len returns the number of cells in the grid.
func (g Grid) Len() int { return g.Rows * g.Cols }

// Index returns the row-major index of cell (row, col).
func (g Grid) Index(row, col int) int { return row*g.Cols + col }

// Contains reports whether (row, col) is inside the grid.
func (g Grid) Contains(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// Center returns the map coordinates of the center of cell (row, col).
func (g Grid) Center(row, col int) (x, y float64) {
	return g.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
}

// CellAt returns the cell containing map coordinates (x, y). ok is false if
// the point falls outside the grid.
func (g Grid) CellAt(x, y float64) (row, col int, ok bool) {
	c, r, err := g.Transform.Invert(x, y)
	if err != nil {
		return 0, 0, false
	}
	row, col = int(math.Floor(r)), int(math.Floor(c))
	return row, col, g.Contains(row, col)
}

// Bounds returns the map-coordinate extent of the grid.
func (g Grid) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	for _, corner := range [][2]float64{{0, 0}, {float64(g.Cols), 0},
		{0, float64(g.Rows)}, {float64(g.Cols), float64(g.Rows)}} {
		x, y := g.Transform.Apply(corner[0], corner[1])
		b.Extend(geom.Point{X: x, Y: y}.Bounds())
	}
	return b
}

// SameFrame reports whether g and g2 have the same shape and transform.
// The CRS strings are not compared because equivalent systems may be
// spelled differently.
func (g Grid) SameFrame(g2 Grid) bool {
	return g.Rows == g2.Rows && g.Cols == g2.Cols && g.Transform.almostEqual(g2.Transform)
}

// Layer is a 2D numeric raster on a Grid. Missing values are NaN.
type Layer struct {
	Grid
	// Data holds the values in row-major order.
	Data []float64
}

// NewLayer returns a layer on g with every value set to fill.
func NewLayer(g Grid, fill float64) *Layer {
	l := &Layer{Grid: g, Data: make([]float64, g.Len())}
	if fill != 0 {
		for i := range l.Data {
			l.Data[i] = fill
		}
	}
	return l
}

// NewLayerFromRows creates a layer from a slice of rows, which must all
// have the same length.
func NewLayerFromRows(rows [][]float64, transform Affine, crs string) (*Layer, error) {
	g := Grid{Rows: len(rows), Transform: transform, CRS: crs}
	if len(rows) > 0 {
		g.Cols = len(rows[0])
	}
	l := &Layer{Grid: g, Data: make([]float64, 0, g.Len())}
	for i, r := range rows {
		if len(r) != g.Cols {
			return nil, fmt.Errorf("cplan: row %d has %d columns; want %d", i, len(r), g.Cols)
		}
		l.Data = append(l.Data, r...)
	}
	return l, nil
}

// At returns the value at (row, col).
func (l *Layer) At(row, col int) float64 { return l.Data[l.Index(row, col)] }

// Set sets the value at (row, col).
func (l *Layer) Set(row, col int, v float64) { l.Data[l.Index(row, col)] = v }

// CountPositive returns the number of cells with a value greater than zero.
func (l *Layer) CountPositive() int {
	var n int
	for _, v := range l.Data {
		if v > 0 {
			n++
		}
	}
	return n
}

// Cell identifies one grid cell.
type Cell struct {
	Row, Col int
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }
