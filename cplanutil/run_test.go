package cplanutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/spatialmodel/cplan"
	"github.com/spatialmodel/cplan/pmtiles"
	"github.com/spatialmodel/cplan/store"
)

// testStore writes a store with one group holding a 4×4 grid of
// one-degree cells covering longitude and latitude 0 to 4.
func testStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	moose, err := cplan.NewLayerFromRows([][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}, cplan.Affine{A: 1, E: -1, F: 4}, "EPSG:4326")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.WriteLayer(filepath.Join(dir, "species"+store.Ext), "moose", moose); err != nil {
		t.Fatal(err)
	}
	return dir
}

const testParams = `{
  "resolution": 1,
  "layers": {"species/moose": {"mode": "flexible", "importance": 1}},
  "target_area": 50,
  "min_zoom": 2,
  "max_zoom": 4,
  "tile_size": 32
}`

const testBoundary = `{"type": "Polygon", "coordinates": [[[0, 0], [4, 0], [4, 4], [0, 4], [0, 0]]]}`

func testCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	return cmd, buf
}

// checkSolution checks that the bottom half of the test grid, which holds
// the largest values, was selected.
func checkSolution(t *testing.T, path string) {
	t.Helper()
	sol, err := store.ReadLayer(path, SolutionVariable)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1}
	if !reflect.DeepEqual(sol.Data, want) {
		t.Errorf("%v != %v", sol.Data, want)
	}
}

func TestRun(t *testing.T) {
	storeDir := testStore(t)
	dir := t.TempDir()
	params := writeFile(t, dir, "params.json", testParams)
	boundary := writeFile(t, dir, "boundary.geojson", testBoundary)
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(out, 0755); err != nil {
		t.Fatal(err)
	}

	cmd, buf := testCommand()
	logFile := filepath.Join(out, "cplan.log")
	if err := Run(cmd, logFile, "info", storeDir, params, boundary, "", out, false, 2); err != nil {
		t.Fatal(err)
	}
	checkSolution(t, filepath.Join(out, SolutionFile))

	f, err := pmtiles.Open(filepath.Join(out, ArchiveFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Header.MinZoom != 2 || f.Header.MaxZoom != 4 || f.Header.AddressedTilesCount == 0 {
		t.Errorf("header %+v", f.Header)
	}

	if !strings.Contains(buf.String(), "optimization complete") {
		t.Errorf("missing log output: %s", buf.String())
	}
	b, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != buf.String() {
		t.Error("log file does not match command output")
	}
}

func TestRunNoTiles(t *testing.T) {
	storeDir := testStore(t)
	dir := t.TempDir()
	params := writeFile(t, dir, "params.json", strings.Replace(testParams, `"resolution": 1,`,
		`"resolution": 1, "geometry": `+testBoundary+`,`, 1))

	cmd, _ := testCommand()
	if err := Run(cmd, filepath.Join(dir, "cplan.log"), "warning", storeDir, params, "", "", dir, true, 0); err != nil {
		t.Fatal(err)
	}
	checkSolution(t, filepath.Join(dir, SolutionFile))
	if _, err := os.Stat(filepath.Join(dir, ArchiveFile)); !os.IsNotExist(err) {
		t.Errorf("archive written with notiles: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	storeDir := testStore(t)
	dir := t.TempDir()
	params := writeFile(t, dir, "params.json", testParams)
	boundary := writeFile(t, dir, "boundary.geojson", testBoundary)
	otherGroup := writeFile(t, dir, "other.json", `{"layers": {"birds/owl": {"mode": "flexible"}}}`)
	logFile := filepath.Join(dir, "cplan.log")

	tests := []struct {
		name                    string
		store, params, boundary string
		level                   string
	}{
		{name: "no boundary", store: storeDir, params: params},
		{name: "no store", params: params, boundary: boundary},
		{name: "unknown group", store: storeDir, params: otherGroup, boundary: boundary},
		{name: "bad level", store: storeDir, params: params, boundary: boundary, level: "loud"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmd, _ := testCommand()
			err := Run(cmd, logFile, test.level, test.store, test.params, test.boundary, "", dir, true, 0)
			var ce *cplan.ConfigurationError
			if !errors.As(err, &ce) {
				t.Errorf("%v is not a ConfigurationError", err)
			}
		})
	}
}

func TestTileAndInspect(t *testing.T) {
	storeDir := testStore(t)
	dir := t.TempDir()
	params := writeFile(t, dir, "params.json", testParams)
	boundary := writeFile(t, dir, "boundary.geojson", testBoundary)
	cmd, _ := testCommand()
	if err := Run(cmd, filepath.Join(dir, "run.log"), "info", storeDir, params, boundary, "", dir, true, 0); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(dir, "tiled.pmtiles")
	cmd, buf := testCommand()
	if err := Tile(cmd, filepath.Join(dir, "tile.log"), "debug", filepath.Join(dir, SolutionFile), archive, 3, 3, 16, 1); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "tiling complete") {
		t.Errorf("missing log output: %s", buf.String())
	}

	var out bytes.Buffer
	if err := Inspect(&out, archive); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"tile type: png\n",
		"tile compression: none\n",
		"zoom: 3-3\n",
		"bounds: 0.0000000,0.0000000,4.0000000,4.0000000\n",
		`"name": "tiled"`,
		"checksum: ",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("inspect output missing %q:\n%s", want, out.String())
		}
	}

	// A one-pixel zoom 1 tile still shows the selection.
	cmd, _ = testCommand()
	coarse := filepath.Join(dir, "coarse.pmtiles")
	if err := Tile(cmd, filepath.Join(dir, "coarse.log"), "info", filepath.Join(dir, SolutionFile), coarse, 1, 1, 1, 1); err != nil {
		t.Errorf("coarse tiling: %v", err)
	}

	sol, err := store.ReadLayer(filepath.Join(dir, SolutionFile), SolutionVariable)
	if err != nil {
		t.Fatal(err)
	}
	for i := range sol.Data {
		sol.Data[i] = 0
	}
	zero := filepath.Join(dir, "zero"+store.Ext)
	if err := store.WriteLayer(zero, SolutionVariable, sol); err != nil {
		t.Fatal(err)
	}
	var te *cplan.TilingError
	cmd, _ = testCommand()
	if err := Tile(cmd, filepath.Join(dir, "empty.log"), "info", zero, filepath.Join(dir, "empty.pmtiles"), 1, 1, 1, 1); !errors.As(err, &te) {
		t.Errorf("%v is not a TilingError", err)
	}
}

func TestRootCommand(t *testing.T) {
	var buf bytes.Buffer
	Root.SetOut(&buf)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "CPlan v" + cplan.Version + "\n"; buf.String() != want {
		t.Errorf("%q != %q", buf.String(), want)
	}

	storeDir := testStore(t)
	dir := t.TempDir()
	params := writeFile(t, dir, "params.json", testParams)
	boundary := writeFile(t, dir, "boundary.geojson", testBoundary)
	Root.SetArgs([]string{"run", "--store=" + storeDir, "--params=" + params, "--boundary=" + boundary,
		"--output=" + dir, "--notiles"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	checkSolution(t, filepath.Join(dir, SolutionFile))
	if _, err := os.Stat(filepath.Join(dir, "cplan.log")); err != nil {
		t.Error(err)
	}
}
