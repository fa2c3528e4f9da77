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
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// CoarsenFactor returns the integer block size that takes a grid with
// cells of size sourceRes to cells of size resolution. It is 1 when no
// downsampling is needed.
func CoarsenFactor(resolution, sourceRes float64) int {
	if sourceRes <= 0 || resolution <= sourceRes {
		return 1
	}
	f := int(math.RoundToEven(resolution / sourceRes))
	if f < 1 {
		return 1
	}
	return f
}

// Coarsen aggregates l into blocks of factor×factor cells. Blocks at the
// right and bottom edges are padded with missing values. Missing values
// are ignored and all-missing blocks stay missing.
func Coarsen(l *Layer, factor int, method Resampling) (*Layer, error) {
	if factor < 1 {
		return nil, fmt.Errorf("cplan: invalid coarsening factor %d", factor)
	}
	if factor == 1 {
		o := &Layer{Grid: l.Grid, Data: make([]float64, len(l.Data))}
		copy(o.Data, l.Data)
		return o, nil
	}
	var agg func([]float64) float64
	switch method {
	case ResampleMode:
		agg = mode
	case ResampleMin:
		agg = floats.Min
	case ResampleMax:
		agg = floats.Max
	default:
		return nil, ConfigErrorf("unsupported resampling method %v", method)
	}
	g := Grid{
		Rows:      (l.Rows + factor - 1) / factor,
		Cols:      (l.Cols + factor - 1) / factor,
		Transform: l.Transform.Scale(float64(factor)),
		CRS:       l.CRS,
	}
	o := NewLayer(g, math.NaN())
	block := make([]float64, 0, factor*factor)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			block = block[:0]
			for rr := r * factor; rr < (r+1)*factor && rr < l.Rows; rr++ {
				for cc := c * factor; cc < (c+1)*factor && cc < l.Cols; cc++ {
					if v := l.At(rr, cc); !math.IsNaN(v) {
						block = append(block, v)
					}
				}
			}
			if len(block) > 0 {
				o.Set(r, c, agg(block))
			}
		}
	}
	return o, nil
}

// mode returns the most common value in v, choosing the smallest value
// among ties. v must not be empty and is reordered.
func mode(v []float64) float64 {
	sort.Float64s(v)
	best, bestN := v[0], 0
	for i := 0; i < len(v); {
		j := i
		for j < len(v) && v[j] == v[i] {
			j++
		}
		if j-i > bestN {
			best, bestN = v[i], j-i
		}
		i = j
	}
	return best
}

// ResolutionToMaxZoom maps a grid resolution in meters to the deepest
// useful tile zoom level: 30 m or finer gives 13 and 5000 m or coarser
// gives 7, interpolated on a log scale in between.
func ResolutionToMaxZoom(resolution float64) int {
	const (
		minRes, maxRes   = 30.0, 5000.0
		minZoom, maxZoom = 7.0, 13.0
	)
	res := math.Max(minRes, math.Min(maxRes, resolution))
	t := (math.Log(res) - math.Log(minRes)) / (math.Log(maxRes) - math.Log(minRes))
	return int(math.RoundToEven(maxZoom - t*(maxZoom-minZoom)))
}
