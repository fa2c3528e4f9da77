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

package pmtiles

import (
	"fmt"
	"math"

	gopmtiles "github.com/protomaps/go-pmtiles/pmtiles"
)

// HeaderLen is the length of a serialized header in bytes.
const HeaderLen = 127

// Header is the fixed-length archive header.
type Header = gopmtiles.HeaderV3

// Compression identifies a compression method.
type Compression = gopmtiles.Compression

// TileType identifies the format of the tile payloads.
type TileType = gopmtiles.TileType

// Compression methods and tile types written by this package.
const (
	UnknownCompression = gopmtiles.UnknownCompression
	NoCompression      = gopmtiles.NoCompression
	Gzip               = gopmtiles.Gzip

	PNG = gopmtiles.Png
)

// CompressionName returns the short name of c.
func CompressionName(c Compression) string {
	switch c {
	case gopmtiles.NoCompression:
		return "none"
	case gopmtiles.Gzip:
		return "gzip"
	case gopmtiles.Brotli:
		return "brotli"
	case gopmtiles.Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// TileTypeName returns the file extension of tiles of type t.
func TileTypeName(t TileType) string {
	switch t {
	case gopmtiles.Mvt:
		return "mvt"
	case gopmtiles.Png:
		return "png"
	case gopmtiles.Jpeg:
		return "jpg"
	case gopmtiles.Webp:
		return "webp"
	case gopmtiles.Avif:
		return "avif"
	default:
		return "unknown"
	}
}

// E7 converts degrees to the fixed-point header representation.
func E7(deg float64) int32 { return int32(math.Round(deg * 1e7)) }

// SetBounds sets the geographic bounds and center of h.
func SetBounds(h *Header, minLon, minLat, maxLon, maxLat float64, centerZoom uint8) {
	h.MinLonE7, h.MinLatE7 = E7(minLon), E7(minLat)
	h.MaxLonE7, h.MaxLatE7 = E7(maxLon), E7(maxLat)
	h.CenterLonE7, h.CenterLatE7 = E7((minLon+maxLon)/2), E7((minLat+maxLat)/2)
	h.CenterZoom = centerZoom
}

// decodeHeader parses a version 3 header.
func decodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("pmtiles: header is %d bytes; want %d", len(b), HeaderLen)
	}
	h, err := gopmtiles.DeserializeHeader(b[:HeaderLen])
	if err != nil {
		return Header{}, fmt.Errorf("pmtiles: %w", err)
	}
	if h.SpecVersion != 3 {
		return Header{}, fmt.Errorf("pmtiles: unsupported version %d", h.SpecVersion)
	}
	return h, nil
}
