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
	"math"

	"github.com/ctessum/geom"
)

// EarthRadius is the sphere radius of the Web Mercator projection, in
// meters.
const EarthRadius = 6378137.0

// MaxLat is the latitude limit of the Web Mercator tile pyramid.
const MaxLat = 85.05112877980659

func clampLat(lat float64) float64 {
	return math.Max(-MaxLat, math.Min(MaxLat, lat))
}

// ToMercator converts longitude and latitude in degrees to Web Mercator
// meters.
func ToMercator(lon, lat float64) (x, y float64) {
	lat = clampLat(lat)
	x = EarthRadius * lon * math.Pi / 180
	y = EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// tileXY returns the fractional tile coordinates of (lon, lat) at zoom z.
func tileXY(lon, lat float64, z uint8) (x, y float64) {
	n := math.Exp2(float64(z))
	lat = clampLat(lat) * math.Pi / 180
	x = (lon + 180) / 360 * n
	y = (1 - math.Log(math.Tan(lat)+1/math.Cos(lat))/math.Pi) / 2 * n
	return x, y
}

// lonLat is the inverse of tileXY.
func lonLat(x, y float64, z uint8) (lon, lat float64) {
	n := math.Exp2(float64(z))
	lon = x/n*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
	return lon, lat
}

// TileBounds returns the longitude and latitude extent of tile (z, x, y).
func TileBounds(z uint8, x, y uint32) *geom.Bounds {
	west, north := lonLat(float64(x), float64(y), z)
	east, south := lonLat(float64(x+1), float64(y+1), z)
	return &geom.Bounds{
		Min: geom.Point{X: west, Y: south},
		Max: geom.Point{X: east, Y: north},
	}
}

// TileRange returns the inclusive range of tiles at zoom z that cover b,
// which is in degrees.
func TileRange(b *geom.Bounds, z uint8) (minX, minY, maxX, maxY uint32) {
	last := math.Exp2(float64(z)) - 1
	clamp := func(v float64) uint32 {
		return uint32(math.Max(0, math.Min(last, math.Floor(v))))
	}
	x0, y0 := tileXY(b.Min.X, b.Max.Y, z)
	x1, y1 := tileXY(b.Max.X, b.Min.Y, z)
	// A bound on a tile edge belongs to the tile before it.
	if x1 > x0 && x1 == math.Floor(x1) {
		x1--
	}
	if y1 > y0 && y1 == math.Floor(y1) {
		y1--
	}
	return clamp(x0), clamp(y0), clamp(x1), clamp(y1)
}
