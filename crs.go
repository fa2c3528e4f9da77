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
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
)

// DefaultCRS is used for layers that do not declare a coordinate
// reference system (BC Albers).
const DefaultCRS = "EPSG:3005"

// WGS84 is the geographic coordinate system used for tile bounds.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

var epsg = map[int]string{
	3005: "+proj=aea +lat_1=50 +lat_2=58.5 +lat_0=45 +lon_0=-126 +x_0=1000000 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	3857: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
	4269: "+proj=longlat +ellps=GRS80 +datum=NAD83 +no_defs",
	4326: WGS84,
}

// ProjString returns the PROJ.4 definition of crs. crs may be a PROJ.4
// string, a WKT string, or one of the supported "EPSG:<code>" shorthands,
// which include the WGS 84 UTM zones (326xx north, 327xx south). WKT is
// returned unchanged.
func ProjString(crs string) (string, error) {
	crs = strings.TrimSpace(crs)
	if crs == "" {
		return "", ConfigErrorf("missing coordinate reference system")
	}
	up := strings.ToUpper(crs)
	if !strings.HasPrefix(up, "EPSG:") {
		return crs, nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(crs[len("EPSG:"):]))
	if err != nil {
		return "", ConfigErrorf("invalid EPSG code '%s'", crs)
	}
	if s, ok := epsg[code]; ok {
		return s, nil
	}
	switch {
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), nil
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700), nil
	}
	return "", ConfigErrorf("unsupported EPSG code %d; use a PROJ.4 or WKT definition instead", code)
}

func identity(x, y float64) (float64, float64, error) { return x, y, nil }

// ParseCRS parses crs into a spatial reference. See ProjString for the
// accepted forms.
func ParseCRS(crs string) (*proj.SR, error) {
	s, err := ProjString(crs)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(s)
	if err != nil {
		return nil, ConfigErrorf("parsing coordinate reference system '%s': %v", crs, err)
	}
	return sr, nil
}

// NewTransform returns a transformer from CRS src to CRS dst. Equivalent
// systems get an identity transformer.
func NewTransform(src, dst string) (proj.Transformer, error) {
	s, err := ParseCRS(src)
	if err != nil {
		return nil, err
	}
	d, err := ParseCRS(dst)
	if err != nil {
		return nil, err
	}
	t, err := s.NewTransform(d)
	if err != nil {
		return nil, fmt.Errorf("cplan: creating transform from '%s' to '%s': %w", src, dst, err)
	}
	if t == nil {
		return identity, nil
	}
	return t, nil
}
