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

package cplanutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/cplan"
)

// loadParams reads optimization parameters from a JSON or TOML file.
// Fields missing from the file keep their default values.
func loadParams(path string) (*cplan.Parameters, error) {
	if path == "" {
		return nil, cplan.ConfigErrorf("you need to specify a parameters file (for example: --params=params.json)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, cplan.ConfigErrorf("problem reading parameters file: %v", err)
	}
	p := cplan.DefaultParameters()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(b, p); err != nil {
			return nil, wrapConfig(err, "decoding parameters file %s", path)
		}
	case ".toml":
		if _, err := toml.Decode(string(b), p); err != nil {
			return nil, wrapConfig(err, "decoding parameters file %s", path)
		}
	default:
		return nil, cplan.ConfigErrorf("parameters file %s must have a .json or .toml extension", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// wrapConfig keeps configuration errors as they are and turns anything
// else into one.
func wrapConfig(err error, format string, a ...interface{}) error {
	var ce *cplan.ConfigurationError
	if errors.As(err, &ce) {
		return err
	}
	return cplan.ConfigErrorf("%s: %v", fmt.Sprintf(format, a...), err)
}

// loadBoundary reads the polygons in a GeoJSON file or shapefile and
// converts them to gridCRS. If boundaryCRS is empty, GeoJSON is assumed to
// already be in gridCRS and shapefiles use their .prj file.
func loadBoundary(path, gridCRS, boundaryCRS string) ([]geom.Polygonal, error) {
	var (
		polys []geom.Polygonal
		srcSR *proj.SR
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".geojson":
		polys, err = readGeoJSONBoundary(path)
	case ".shp":
		polys, srcSR, err = readShapefileBoundary(path)
	default:
		return nil, cplan.ConfigErrorf("boundary file %s must have a .json, .geojson or .shp extension", path)
	}
	if err != nil {
		return nil, err
	}
	if len(polys) == 0 {
		return nil, cplan.ConfigErrorf("boundary file %s has no polygons", path)
	}

	var trans proj.Transformer
	switch {
	case boundaryCRS != "":
		if trans, err = cplan.NewTransform(boundaryCRS, gridCRS); err != nil {
			return nil, err
		}
	case srcSR != nil:
		gridSR, err := cplan.ParseCRS(gridCRS)
		if err != nil {
			return nil, err
		}
		if trans, err = srcSR.NewTransform(gridSR); err != nil {
			return nil, cplan.ConfigErrorf("problem creating a spatial reprojector for boundary %s: %v", path, err)
		}
	}
	if trans == nil {
		return polys, nil
	}
	for i, p := range polys {
		g, err := p.Transform(trans)
		if err != nil {
			return nil, cplan.ConfigErrorf("problem reprojecting boundary %s: %v", path, err)
		}
		polys[i] = g.(geom.Polygonal)
	}
	return polys, nil
}

func readGeoJSONBoundary(path string) ([]geom.Polygonal, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, cplan.ConfigErrorf("problem reading boundary file: %v", err)
	}
	g, err := cplan.DecodeGeoJSON(b)
	if err != nil {
		return nil, wrapConfig(err, "decoding boundary file %s", path)
	}
	return g, nil
}

// readShapefileBoundary returns the polygons in a shapefile and, if there
// is a .prj file, its spatial reference.
func readShapefileBoundary(path string) ([]geom.Polygonal, *proj.SR, error) {
	f, err := shp.NewDecoder(path)
	if err != nil {
		return nil, nil, cplan.ConfigErrorf("there was a problem reading the boundary shapefile '%s': %v", path, err)
	}
	defer f.Close()
	sr, err := f.SR()
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, cplan.ConfigErrorf("there was a problem reading the projection information for boundary shapefile '%s': %v", path, err)
	}
	var polys []geom.Polygonal
	for {
		var rec struct {
			geom.Geom
		}
		if more := f.DecodeRow(&rec); !more {
			break
		}
		p, ok := rec.Geom.(geom.Polygonal)
		if !ok {
			return nil, nil, cplan.ConfigErrorf("boundary shapefile '%s' has a %T shape; it must only have polygons", path, rec.Geom)
		}
		polys = append(polys, p)
	}
	if err := f.Error(); err != nil {
		return nil, nil, cplan.ConfigErrorf("problem decoding boundary shapefile '%s': %v", path, err)
	}
	return polys, sr, nil
}

// checkOutputDir makes sure that the output directory is specified and
// exists, and expands any environment variables.
func checkOutputDir(d string) (string, error) {
	if d == "" {
		return "", cplan.ConfigErrorf("you need to specify an output directory (for example: --output=results)")
	}
	d = os.ExpandEnv(d)
	fi, err := os.Stat(d)
	if err != nil {
		return d, cplan.ConfigErrorf("the output directory doesn't exist: %v", err)
	}
	if !fi.IsDir() {
		return d, cplan.ConfigErrorf("output %s is not a directory", d)
	}
	return d, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", cplan.ConfigErrorf("you need to specify an output file (for example: --archive=solution.pmtiles)")
	}
	f = os.ExpandEnv(f)
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, cplan.ConfigErrorf("the output file directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified. Output directories get a cplan.log file inside them.
func checkLogFile(logFile, output string) string {
	if logFile != "" {
		return logFile
	}
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		return filepath.Join(output, "cplan.log")
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".log"
}

// parseLogLevel parses a logrus level name, accepting an empty name as
// info.
func parseLogLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return l, cplan.ConfigErrorf("%v", err)
	}
	return l, nil
}
