package cplan

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
)

const testParamsJSON = `{
	"geometry": {"type": "Feature", "properties": {}, "geometry":
		{"type": "Polygon", "coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]}},
	"resolution": 250,
	"resampling": "max",
	"layers": {
		"species/caribou": {"mode": "flexible", "importance": 2,
			"constraints": [{"min": 30, "type": "percent"}]},
		"human/roads": {"mode": "locked-out", "threshold": 0.5}
	},
	"target_area": 25
}`

func TestParametersJSON(t *testing.T) {
	p := DefaultParameters()
	if err := json.Unmarshal([]byte(testParamsJSON), p); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	if p.Resolution != 250 || p.Resampling != ResampleMax || p.TargetArea != 25 {
		t.Errorf("bad scalars: %+v", p)
	}
	if !p.IsPercentage || p.TileSize != 512 {
		t.Errorf("defaults lost: %+v", p)
	}
	if len(p.Geometry) != 1 {
		t.Fatalf("geometry: %d polygons", len(p.Geometry))
	}
	if _, ok := p.Geometry[0].(geom.Polygon); !ok {
		t.Errorf("geometry type %T", p.Geometry[0])
	}
	caribou := p.Layers["species/caribou"]
	if caribou.Mode != Flexible || *caribou.Importance != 2 || caribou.Constraints[0].Type != Percent || *caribou.Constraints[0].Min != 30 {
		t.Errorf("bad caribou rule %+v", caribou)
	}
	if caribou.Constraints[0].Max != nil {
		t.Error("absent max should be nil")
	}
	roads := p.Layers["human/roads"]
	if roads.Mode != LockedOut || *roads.Threshold != 0.5 {
		t.Errorf("bad roads rule %+v", roads)
	}
	if paths := p.LayerPaths(); paths[0] != "human/roads" || paths[1] != "species/caribou" {
		t.Errorf("LayerPaths: %v", paths)
	}
}

func TestParametersTOML(t *testing.T) {
	const in = `
resolution = 1000
is_percentage = false
target_area = 40

[layers."species/moose"]
mode = "locked-in"
threshold = 0.8

[[layers."species/moose".constraints]]
max = 100
`
	p := DefaultParameters()
	if _, err := toml.Decode(in, p); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	moose := p.Layers["species/moose"]
	if moose.Mode != LockedIn || *moose.Threshold != 0.8 || moose.Constraints[0].Type != Unit || *moose.Constraints[0].Max != 100 {
		t.Errorf("bad moose rule %+v", moose)
	}
	if p.IsPercentage || p.TargetArea != 40 {
		t.Errorf("bad target: %+v", p)
	}
}

func TestGeometries(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
	}{
		{"geometry", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`, 1},
		{"multipolygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[2,2],[3,2],[3,3],[2,2]]]]}`, 1},
		{"list", `[{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]`, 2},
		{"collection", `{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`, 2},
		{"null", `null`, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g, err := DecodeGeoJSON([]byte(test.in))
			if err != nil {
				t.Fatal(err)
			}
			if len(g) != test.n {
				t.Errorf("%d != %d", len(g), test.n)
			}
		})
	}
	t.Run("point", func(t *testing.T) {
		_, err := DecodeGeoJSON([]byte(`{"type":"Point","coordinates":[1,2]}`))
		var ce *ConfigurationError
		if !errors.As(err, &ce) {
			t.Errorf("want ConfigurationError, have %v", err)
		}
	})
}

func TestParametersValidate(t *testing.T) {
	valid := func() *Parameters {
		p := DefaultParameters()
		p.Layers = map[string]LayerRule{"a/b": {Mode: Flexible}}
		return p
	}
	tests := []struct {
		name   string
		modify func(*Parameters)
	}{
		{"resolution", func(p *Parameters) { p.Resolution = 0 }},
		{"no layers", func(p *Parameters) { p.Layers = nil }},
		{"path", func(p *Parameters) { p.Layers = map[string]LayerRule{"ab": {Mode: Flexible}} }},
		{"trailing slash", func(p *Parameters) { p.Layers = map[string]LayerRule{"ab/": {Mode: Flexible}} }},
		{"mode", func(p *Parameters) { p.Layers = map[string]LayerRule{"a/b": {}} }},
		{"threshold", func(p *Parameters) { p.Layers = map[string]LayerRule{"a/b": {Mode: LockedOut}} }},
		{"min > max", func(p *Parameters) {
			p.Layers = map[string]LayerRule{"a/b": {Mode: Flexible,
				Constraints: []ValueConstraint{{Min: float(2), Max: float(1)}}}}
		}},
		{"percentage", func(p *Parameters) { p.TargetArea = 101 }},
		{"negative target", func(p *Parameters) { p.IsPercentage = false; p.TargetArea = -1 }},
		{"nan target", func(p *Parameters) { p.IsPercentage = false; p.TargetArea = math.NaN() }},
		{"infinite target", func(p *Parameters) { p.IsPercentage = false; p.TargetArea = math.Inf(1) }},
		{"zoom", func(p *Parameters) { p.MinZoom = 5; p.MaxZoom = 4 }},
		{"tile size", func(p *Parameters) { p.TileSize = 0 }},
	}
	if err := valid().Validate(); err != nil {
		t.Fatal(err)
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := valid()
			test.modify(p)
			var ce *ConfigurationError
			if err := p.Validate(); !errors.As(err, &ce) {
				t.Errorf("want ConfigurationError, have %v", err)
			}
		})
	}
	t.Run("absolute target above 100", func(t *testing.T) {
		p := valid()
		p.IsPercentage = false
		p.TargetArea = 150
		if err := p.Validate(); err != nil {
			t.Error(err)
		}
	})
}

func TestModeText(t *testing.T) {
	for _, m := range []Mode{Flexible, LockedIn, LockedOut} {
		b, err := m.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var m2 Mode
		if err := m2.UnmarshalText(b); err != nil || m2 != m {
			t.Errorf("%v: %v %v", m, m2, err)
		}
	}
	var m Mode
	if err := m.UnmarshalText([]byte("locked")); err == nil {
		t.Error("expected error for unknown mode")
	}
	var r Resampling
	if err := r.UnmarshalText([]byte("bilinear")); err == nil {
		t.Error("expected error for unsupported resampling")
	}
}

func TestSplitLayerPath(t *testing.T) {
	g, v, err := SplitLayerPath("cultural/protected_areas/conservancy")
	if err != nil {
		t.Fatal(err)
	}
	if g != "cultural/protected_areas" || v != "conservancy" {
		t.Errorf("%s, %s", g, v)
	}
}
