package cplanutil

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/geom"

	"github.com/spatialmodel/cplan"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func float(v float64) *float64 { return &v }

func TestLoadParams(t *testing.T) {
	dir := t.TempDir()
	t.Run("json", func(t *testing.T) {
		path := writeFile(t, dir, "params.json", `{
  "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [4, 0], [4, 4], [0, 4], [0, 0]]]},
  "resolution": 2,
  "layers": {
    "species/moose": {"mode": "flexible", "importance": 1.5},
    "human/roads": {"mode": "locked-out", "threshold": 1}
  }
}`)
		p, err := loadParams(path)
		if err != nil {
			t.Fatal(err)
		}
		if p.Resolution != 2 || p.TargetArea != 50 || !p.IsPercentage || p.Resampling != cplan.ResampleMode || p.TileSize != 512 {
			t.Errorf("parameters %+v", p)
		}
		want := map[string]cplan.LayerRule{
			"species/moose": {Mode: cplan.Flexible, Importance: float(1.5)},
			"human/roads":   {Mode: cplan.LockedOut, Threshold: float(1)},
		}
		if !reflect.DeepEqual(p.Layers, want) {
			t.Errorf("%+v != %+v", p.Layers, want)
		}
		if len(p.Geometry) != 1 {
			t.Fatalf("%d geometries", len(p.Geometry))
		}
		wantGeom := geom.Polygon{{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}, {X: 0, Y: 0}}}
		if !reflect.DeepEqual(p.Geometry[0], wantGeom) {
			t.Errorf("%v != %v", p.Geometry[0], wantGeom)
		}
	})
	t.Run("toml", func(t *testing.T) {
		path := writeFile(t, dir, "params.toml", `
resolution = 1
resampling = "min"
target_area = 25
max_zoom = 9

[layers."species/moose"]
mode = "flexible"
importance = 2.0

[[layers."species/moose".constraints]]
min = 10.0
type = "percent"
`)
		p, err := loadParams(path)
		if err != nil {
			t.Fatal(err)
		}
		if p.Resolution != 1 || p.Resampling != cplan.ResampleMin || p.TargetArea != 25 || p.MaxZoom != 9 {
			t.Errorf("parameters %+v", p)
		}
		want := map[string]cplan.LayerRule{
			"species/moose": {
				Mode:        cplan.Flexible,
				Importance:  float(2),
				Constraints: []cplan.ValueConstraint{{Min: float(10), Type: cplan.Percent}},
			},
		}
		if !reflect.DeepEqual(p.Layers, want) {
			t.Errorf("%+v != %+v", p.Layers, want)
		}
	})
	t.Run("errors", func(t *testing.T) {
		for name, path := range map[string]string{
			"missing":      filepath.Join(dir, "nope.json"),
			"empty path":   "",
			"extension":    writeFile(t, dir, "params.yaml", "resolution: 1"),
			"bad mode":     writeFile(t, dir, "mode.json", `{"layers": {"a/b": {"mode": "sometimes"}}}`),
			"no layers":    writeFile(t, dir, "nolayers.json", `{"resolution": 10}`),
			"no threshold": writeFile(t, dir, "threshold.json", `{"layers": {"a/b": {"mode": "locked-in"}}}`),
			"bad path":     writeFile(t, dir, "path.json", `{"layers": {"moose": {"mode": "flexible"}}}`),
			"bad json":     writeFile(t, dir, "bad.json", `{"layers": `),
			"nan target":   writeFile(t, dir, "nan.toml", "is_percentage = false\ntarget_area = nan\n[layers.\"a/b\"]\nmode = \"flexible\"\n"),
		} {
			t.Run(name, func(t *testing.T) {
				var ce *cplan.ConfigurationError
				if _, err := loadParams(path); !errors.As(err, &ce) {
					t.Errorf("%v is not a ConfigurationError", err)
				}
			})
		}
	})
}

func TestLoadBoundary(t *testing.T) {
	dir := t.TempDir()
	square := writeFile(t, dir, "square.geojson", `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {}, "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 1], [0, 0]]]}},
  {"type": "Feature", "properties": {}, "geometry": {"type": "MultiPolygon", "coordinates": [[[[2, 2], [3, 2], [3, 3], [2, 2]]]]}}
]}`)

	t.Run("same crs", func(t *testing.T) {
		b, err := loadBoundary(square, cplan.DefaultCRS, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(b) != 2 {
			t.Fatalf("%d polygons != 2", len(b))
		}
		want := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}}
		if !reflect.DeepEqual(b[0], want) {
			t.Errorf("%v != %v", b[0], want)
		}
	})
	t.Run("reproject", func(t *testing.T) {
		b, err := loadBoundary(square, "EPSG:3857", "EPSG:4326")
		if err != nil {
			t.Fatal(err)
		}
		bounds := b[0].Bounds()
		if math.Abs(bounds.Min.X) > 1e-6 || math.Abs(bounds.Max.X-111319.49079327357) > 1e-3 {
			t.Errorf("bounds %v", bounds)
		}
	})
	t.Run("errors", func(t *testing.T) {
		point := writeFile(t, dir, "point.json", `{"type": "Point", "coordinates": [1, 1]}`)
		empty := writeFile(t, dir, "empty.json", `{"type": "FeatureCollection", "features": []}`)
		for _, path := range []string{point, empty, filepath.Join(dir, "missing.json"), filepath.Join(dir, "boundary.kml")} {
			var ce *cplan.ConfigurationError
			if _, err := loadBoundary(path, cplan.DefaultCRS, ""); !errors.As(err, &ce) {
				t.Errorf("%s: %v is not a ConfigurationError", path, err)
			}
		}
	})
}

func TestCheckOutput(t *testing.T) {
	dir := t.TempDir()
	if d, err := checkOutputDir(dir); err != nil || d != dir {
		t.Errorf("%s, %v", d, err)
	}
	if _, err := checkOutputDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
	if _, err := checkOutputDir(""); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := checkOutputFile(filepath.Join(dir, "missing", "a.pmtiles")); err == nil {
		t.Error("expected error for missing file directory")
	}
	if got, want := checkLogFile("", dir), filepath.Join(dir, "cplan.log"); got != want {
		t.Errorf("%s != %s", got, want)
	}
	if got, want := checkLogFile("", "out/solution.pmtiles"), "out/solution.log"; got != want {
		t.Errorf("%s != %s", got, want)
	}
	if got := checkLogFile("x.log", dir); got != "x.log" {
		t.Errorf("%s != x.log", got)
	}
}

func TestZoomRange(t *testing.T) {
	tests := []struct {
		min, max   int
		resolution float64
		z0, z1     uint8
		err        bool
	}{
		{min: 0, max: 5, z0: 0, z1: 5},
		{min: 0, max: -1, resolution: 30, z0: 0, z1: 13},
		{min: 2, max: -1, resolution: 5000, z0: 2, z1: 7},
		{min: 0, max: 0, z0: 0, z1: 0},
		{min: 3, max: 2, err: true},
		{min: -1, max: 2, err: true},
		{min: 0, max: 27, err: true},
	}
	for _, test := range tests {
		z0, z1, err := zoomRange(test.min, test.max, test.resolution)
		if test.err {
			if err == nil {
				t.Errorf("[%d, %d]: expected error", test.min, test.max)
			}
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if z0 != test.z0 || z1 != test.z1 {
			t.Errorf("[%d, %d]: %d, %d != %d, %d", test.min, test.max, z0, z1, test.z0, test.z1)
		}
	}
}
