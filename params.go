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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// Mode specifies how a layer takes part in the optimization.
type Mode int

// Layer modes. The zero value is not a valid mode.
const (
	modeUnset Mode = iota
	// Flexible layers contribute importance-weighted terms to the objective.
	Flexible
	// LockedIn layers force the selection of cells at or above a threshold.
	LockedIn
	// LockedOut layers forbid the selection of cells above a threshold.
	LockedOut
)

var modeNames = map[Mode]string{
	Flexible:  "flexible",
	LockedIn:  "locked-in",
	LockedOut: "locked-out",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	s, ok := modeNames[m]
	if !ok {
		return nil, fmt.Errorf("cplan: invalid mode %d", int(m))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	for k, v := range modeNames {
		if v == string(b) {
			*m = k
			return nil
		}
	}
	return ConfigErrorf("invalid layer mode '%s'; valid modes are flexible, locked-in and locked-out", b)
}

// ConstraintType specifies how the bounds of a ValueConstraint are
// interpreted.
type ConstraintType int

const (
	// Unit bounds are absolute sums of layer values.
	Unit ConstraintType = iota
	// Percent bounds are percentages of the layer total over valid cells.
	Percent
)

func (t ConstraintType) String() string {
	if t == Percent {
		return "percent"
	}
	return "unit"
}

// MarshalText implements encoding.TextMarshaler.
func (t ConstraintType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. An empty type means
// Unit.
func (t *ConstraintType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "unit":
		*t = Unit
	case "percent":
		*t = Percent
	default:
		return ConfigErrorf("invalid constraint type '%s'; valid types are percent and unit", b)
	}
	return nil
}

// ValueConstraint bounds the sum of layer values over selected cells.
type ValueConstraint struct {
	Min  *float64       `json:"min,omitempty" toml:"min"`
	Max  *float64       `json:"max,omitempty" toml:"max"`
	Type ConstraintType `json:"type,omitempty" toml:"type"`
}

// LayerRule is the declarative rule for one layer.
type LayerRule struct {
	Mode        Mode              `json:"mode" toml:"mode"`
	Importance  *float64          `json:"importance,omitempty" toml:"importance"`
	Threshold   *float64          `json:"threshold,omitempty" toml:"threshold"`
	Constraints []ValueConstraint `json:"constraints,omitempty" toml:"constraints"`
}

// Validate checks the rule for the layer at path.
func (r LayerRule) Validate(path string) error {
	switch r.Mode {
	case Flexible:
	case LockedIn, LockedOut:
		if r.Threshold == nil {
			return ConfigErrorf("threshold required for %s mode on layer '%s'", r.Mode, path)
		}
	default:
		return ConfigErrorf("missing or invalid mode for layer '%s'", path)
	}
	for i, c := range r.Constraints {
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return ConfigErrorf("constraint %d on layer '%s' has min %g > max %g", i, path, *c.Min, *c.Max)
		}
	}
	return nil
}

// Resampling is the aggregation used when downsampling a source layer to
// the run resolution.
type Resampling int

// Resampling methods.
const (
	ResampleMode Resampling = iota
	ResampleMin
	ResampleMax
)

func (r Resampling) String() string {
	switch r {
	case ResampleMin:
		return "min"
	case ResampleMax:
		return "max"
	default:
		return "mode"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Resampling) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Resampling) UnmarshalText(b []byte) error {
	switch string(b) {
	case "mode":
		*r = ResampleMode
	case "min":
		*r = ResampleMin
	case "max":
		*r = ResampleMax
	default:
		return ConfigErrorf("unsupported resampling method '%s'", b)
	}
	return nil
}

// Geometries is a list of boundary polygons. In JSON it may be given as a
// GeoJSON geometry, a Feature, a FeatureCollection, or an array of any of
// these.
type Geometries []geom.Polygonal

// UnmarshalJSON implements json.Unmarshaler.
func (g *Geometries) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*g = nil
		return nil
	}
	var items []json.RawMessage
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
	} else {
		items = []json.RawMessage{b}
	}
	var out Geometries
	for _, item := range items {
		p, err := decodeGeoJSON(item)
		if err != nil {
			return err
		}
		out = append(out, p...)
	}
	*g = out
	return nil
}

// DecodeGeoJSON decodes a GeoJSON geometry, Feature or FeatureCollection
// into its polygonal members.
func DecodeGeoJSON(b []byte) (Geometries, error) {
	var g Geometries
	if err := g.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return g, nil
}

func decodeGeoJSON(b []byte) (Geometries, error) {
	var head struct {
		Type     string            `json:"type"`
		Geometry json.RawMessage   `json:"geometry"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("cplan: decoding GeoJSON: %w", err)
	}
	switch head.Type {
	case "Feature":
		return decodeGeoJSON(head.Geometry)
	case "FeatureCollection":
		var out Geometries
		for _, f := range head.Features {
			p, err := decodeGeoJSON(f)
			if err != nil {
				return nil, err
			}
			out = append(out, p...)
		}
		return out, nil
	}
	gg, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("cplan: decoding GeoJSON %s geometry: %w", head.Type, err)
	}
	p, ok := gg.(geom.Polygonal)
	if !ok {
		return nil, ConfigErrorf("boundary geometry must be polygonal, not %T", gg)
	}
	return Geometries{p}, nil
}

// Parameters holds everything needed to run one optimization.
type Parameters struct {
	// Geometry is the boundary of the area eligible for selection.
	Geometry Geometries `json:"geometry,omitempty" toml:"-"`

	// Resolution is the edge length of the optimization grid cells in
	// units of the layer CRS.
	Resolution int `json:"resolution" toml:"resolution"`

	// Resampling is used when downsampling layers to Resolution.
	Resampling Resampling `json:"resampling" toml:"resampling"`

	// Layers maps "group/variable" layer paths to their rules.
	Layers map[string]LayerRule `json:"layers" toml:"layers"`

	// TargetArea is the number (or percentage, if IsPercentage) of valid
	// cells to select when no other constraint applies.
	TargetArea   float64 `json:"target_area" toml:"target_area"`
	IsPercentage bool    `json:"is_percentage" toml:"is_percentage"`

	// MinZoom and MaxZoom bound the published tile pyramid. A MaxZoom of
	// zero means it is derived from Resolution.
	MinZoom  int `json:"min_zoom" toml:"min_zoom"`
	MaxZoom  int `json:"max_zoom" toml:"max_zoom"`
	TileSize int `json:"tile_size" toml:"tile_size"`
}

// DefaultParameters returns parameters with default values filled in.
// Decode into the result so absent fields keep their defaults.
func DefaultParameters() *Parameters {
	return &Parameters{
		Resolution:   1000,
		Resampling:   ResampleMode,
		TargetArea:   50,
		IsPercentage: true,
		TileSize:     512,
	}
}

// LayerPaths returns the sorted layer paths referenced by p.
func (p *Parameters) LayerPaths() []string {
	return sortedKeys(p.Layers)
}

// Validate checks p for consistency.
func (p *Parameters) Validate() error {
	if p.Resolution <= 0 {
		return ConfigErrorf("resolution must be > 0, is %d", p.Resolution)
	}
	if len(p.Layers) == 0 {
		return ConfigErrorf("no layers provided")
	}
	for _, path := range p.LayerPaths() {
		if _, _, err := SplitLayerPath(path); err != nil {
			return err
		}
		if err := p.Layers[path].Validate(path); err != nil {
			return err
		}
	}
	if !(p.TargetArea >= 0) || math.IsInf(p.TargetArea, 1) {
		return ConfigErrorf("target_area must be a finite number >= 0, is %g", p.TargetArea)
	}
	if p.IsPercentage && p.TargetArea > 100 {
		return ConfigErrorf("target_area is a percentage but is %g > 100", p.TargetArea)
	}
	if p.TileSize <= 0 {
		return ConfigErrorf("tile_size must be > 0, is %d", p.TileSize)
	}
	if p.MinZoom < 0 || (p.MaxZoom != 0 && p.MaxZoom < p.MinZoom) {
		return ConfigErrorf("invalid zoom range [%d, %d]", p.MinZoom, p.MaxZoom)
	}
	return nil
}

// SplitLayerPath splits a "group/variable" layer path. The group may
// itself contain slashes.
func SplitLayerPath(path string) (group, variable string, err error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", ConfigErrorf("invalid layer path '%s'; must be in 'group/variable' format", path)
	}
	return path[:i], path[i+1:], nil
}
