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

// Package pmtiles reads and writes PMTiles version 3 tile archives.
package pmtiles

import (
	"fmt"

	gopmtiles "github.com/protomaps/go-pmtiles/pmtiles"
)

// MaxZoom is the deepest zoom level accepted by Reader and the tile
// publisher.
const MaxZoom = 26

// ZxyToID returns the Hilbert tile ID of tile (z, x, y).
func ZxyToID(z uint8, x, y uint32) uint64 { return gopmtiles.ZxyToID(z, x, y) }

// IDToZxy is the inverse of ZxyToID.
func IDToZxy(id uint64) (z uint8, x, y uint32) { return gopmtiles.IDToZxy(id) }

// checkTile returns an error if (z, x, y) is not a valid tile.
func checkTile(z uint8, x, y uint32) error {
	if z > MaxZoom {
		return fmt.Errorf("pmtiles: zoom %d exceeds maximum %d", z, MaxZoom)
	}
	if n := uint64(1) << z; uint64(x) >= n || uint64(y) >= n {
		return fmt.Errorf("pmtiles: tile %d/%d/%d out of range", z, x, y)
	}
	return nil
}
