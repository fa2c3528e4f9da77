package cplan

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func sameFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return false
		}
	}
	return true
}

func TestCoarsen(t *testing.T) {
	l, err := NewLayerFromRows([][]float64{
		{1, 1, 2, nan, 7},
		{2, 3, 2, 2, 7},
		{nan, nan, 5, 5, 7},
		{nan, nan, 4, 6, 7},
	}, Affine{A: 10, E: -10, C: 100, F: 200}, DefaultCRS)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		method Resampling
		want   []float64
	}{
		{ResampleMode, []float64{1, 2, 7, nan, 5, 7}},
		{ResampleMin, []float64{1, 2, 7, nan, 4, 7}},
		{ResampleMax, []float64{3, 2, 7, nan, 6, 7}},
	}
	for _, test := range tests {
		t.Run(test.method.String(), func(t *testing.T) {
			o, err := Coarsen(l, 2, test.method)
			if err != nil {
				t.Fatal(err)
			}
			if o.Rows != 2 || o.Cols != 3 {
				t.Fatalf("shape %d×%d", o.Rows, o.Cols)
			}
			if !sameFloats(o.Data, test.want) {
				t.Errorf("%v != %v", o.Data, test.want)
			}
			if want := (Affine{A: 20, E: -20, C: 100, F: 200}); o.Transform != want {
				t.Errorf("%+v != %+v", o.Transform, want)
			}
		})
	}
	t.Run("factor 1 copies", func(t *testing.T) {
		o, err := Coarsen(l, 1, ResampleMode)
		if err != nil {
			t.Fatal(err)
		}
		o.Data[0] = 99
		if l.Data[0] == 99 {
			t.Error("Coarsen should not share data")
		}
	})
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{3}, 3},
		{[]float64{3, 1, 3, 1}, 1},
		{[]float64{2, 5, 5, 2, 5}, 5},
		{[]float64{-1, 4, 0}, -1},
	}
	for _, test := range tests {
		if got := mode(test.in); got != test.want {
			t.Errorf("mode(%v) = %g; want %g", test.in, got, test.want)
		}
	}
}

func TestCoarsenFactor(t *testing.T) {
	tests := []struct {
		res, src float64
		want     int
	}{
		{1000, 100, 10},
		{1000, 300, 3},
		{1000, 400, 2}, // 2.5 rounds half to even
		{100, 100, 1},
		{50, 100, 1},
	}
	for _, test := range tests {
		if got := CoarsenFactor(test.res, test.src); got != test.want {
			t.Errorf("CoarsenFactor(%g, %g) = %d; want %d", test.res, test.src, got, test.want)
		}
	}
}

func TestResolutionToMaxZoom(t *testing.T) {
	tests := []struct {
		res  float64
		want int
	}{
		{10, 13},
		{30, 13},
		{100, 12},
		{1000, 9},
		{5000, 7},
		{100000, 7},
	}
	for _, test := range tests {
		if got := ResolutionToMaxZoom(test.res); got != test.want {
			t.Errorf("ResolutionToMaxZoom(%g) = %d; want %d", test.res, got, test.want)
		}
	}
}

func TestParseCRS(t *testing.T) {
	for _, crs := range []string{"EPSG:3005", "epsg:4326", "EPSG:3857", "EPSG:4269", "EPSG:32610", "EPSG:32733", WGS84} {
		if _, err := ParseCRS(crs); err != nil {
			t.Errorf("%s: %v", crs, err)
		}
	}
	s, err := ProjString("EPSG:32610")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s, "+zone=10") || strings.Contains(s, "+south") {
		t.Errorf("bad UTM definition %s", s)
	}
	var ce *ConfigurationError
	for _, crs := range []string{"", "EPSG:9999", "EPSG:abc"} {
		if _, err := ParseCRS(crs); !errors.As(err, &ce) {
			t.Errorf("%q: want ConfigurationError, have %v", crs, err)
		}
	}
}

func TestTransformRoundTrip(t *testing.T) {
	fwd, err := NewTransform("EPSG:4326", "EPSG:3005")
	if err != nil {
		t.Fatal(err)
	}
	inv, err := NewTransform("EPSG:3005", "EPSG:4326")
	if err != nil {
		t.Fatal(err)
	}
	x, y, err := fwd(-123.1, 49.3)
	if err != nil {
		t.Fatal(err)
	}
	lon, lat, err := inv(x, y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lon+123.1) > 1e-6 || math.Abs(lat-49.3) > 1e-6 {
		t.Errorf("round trip gave (%g, %g)", lon, lat)
	}
}

func TestTransformIdentity(t *testing.T) {
	for _, crs := range [][2]string{{"EPSG:4326", WGS84}, {WGS84, WGS84}, {DefaultCRS, DefaultCRS}} {
		tr, err := NewTransform(crs[0], crs[1])
		if err != nil {
			t.Fatal(err)
		}
		if tr == nil {
			t.Fatalf("%s to %s: nil transform", crs[0], crs[1])
		}
		x, y, err := tr(-123.1, 49.3)
		if err != nil || x != -123.1 || y != 49.3 {
			t.Errorf("%s to %s: (%g, %g), %v", crs[0], crs[1], x, y, err)
		}
	}
}
