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

package tiles

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"

	"github.com/spatialmodel/cplan"
)

// Highlight is the color of selected cells.
var Highlight = color.NRGBA{R: 255, G: 0, B: 0, A: 170}

var palette = color.Palette{color.NRGBA{}, Highlight}

// Level scales a cell value in [0, 1] to 8 bits. NaN is 0.
func Level(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.RoundToEven(v * 255))
}

// worldPoint is a position in zoom 0 tile coordinates, so both axes run
// from 0 to 1.
type worldPoint struct{ x, y float64 }

// selectedCenters returns the centers of the cells of l with a nonzero
// level, sorted by x.
func selectedCenters(l *cplan.Layer) ([]worldPoint, error) {
	t, err := cplan.NewTransform(l.CRS, cplan.WGS84)
	if err != nil {
		return nil, err
	}
	var pts []worldPoint
	for row := 0; row < l.Rows; row++ {
		for col := 0; col < l.Cols; col++ {
			if Level(l.At(row, col)) == 0 {
				continue
			}
			x, y := l.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
			lon, lat, err := t(x, y)
			if err != nil {
				return nil, fmt.Errorf("tiles: transforming cell (%d, %d): %w", row, col, err)
			}
			wx, wy := tileXY(lon, lat, 0)
			pts = append(pts, worldPoint{x: wx, y: wy})
		}
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	return pts, nil
}

// renderer samples a layer onto tiles. It is not safe for concurrent use
// because the coordinate transform it holds is not.
type renderer struct {
	l    *cplan.Layer
	size int
	// fromLonLat maps degrees to the layer CRS.
	fromLonLat func(lon, lat float64) (x, y float64, err error)
	// centers are the selected cell centers, shared read-only between
	// renderers.
	centers []worldPoint
}

func newRenderer(l *cplan.Layer, size int, centers []worldPoint) (*renderer, error) {
	t, err := cplan.NewTransform(cplan.WGS84, l.CRS)
	if err != nil {
		return nil, err
	}
	return &renderer{l: l, size: size, fromLonLat: t, centers: centers}, nil
}

// render draws tile (z, x, y). Each pixel takes the value of the cell
// under its center, and any pixel holding a selected cell's center is
// highlighted too, so cells smaller than a pixel stay visible at low
// zooms. It returns nil if no pixel is highlighted.
func (r *renderer) render(z uint8, x, y uint32) ([]byte, error) {
	img := image.NewPaletted(image.Rect(0, 0, r.size, r.size), palette)
	var drawn bool
	for py := 0; py < r.size; py++ {
		for px := 0; px < r.size; px++ {
			lon, lat := lonLat(float64(x)+(float64(px)+0.5)/float64(r.size),
				float64(y)+(float64(py)+0.5)/float64(r.size), z)
			sx, sy, err := r.fromLonLat(lon, lat)
			if err != nil {
				continue
			}
			row, col, ok := r.l.CellAt(sx, sy)
			if !ok || Level(r.l.At(row, col)) == 0 {
				continue
			}
			img.SetColorIndex(px, py, 1)
			drawn = true
		}
	}
	n, size := math.Exp2(float64(z)), float64(r.size)
	first := sort.Search(len(r.centers), func(i int) bool { return r.centers[i].x*n >= float64(x) })
	for _, c := range r.centers[first:] {
		px := (c.x*n - float64(x)) * size
		if px >= size {
			break
		}
		py := (c.y*n - float64(y)) * size
		if py < 0 || py >= size {
			continue
		}
		img.SetColorIndex(int(px), int(py), 1)
		drawn = true
	}
	if !drawn {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("tiles: encoding tile %d/%d/%d: %w", z, x, y, err)
	}
	return buf.Bytes(), nil
}
