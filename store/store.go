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

// Package store reads and writes gridded layers as NetCDF files. Each
// layer group is one file, <root>/<group>.nc, holding one variable per
// layer on the dimensions (y, x). The global attributes "transform" (six
// GDAL-ordered affine coefficients) and "crs" locate the grid.
package store

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/cplan"
)

// Ext is the file extension of group files.
const Ext = ".nc"

// Store is a directory of group files.
type Store struct {
	Root string
	Log  logrus.FieldLogger
}

// New returns a store rooted at root.
func New(root string) *Store { return &Store{Root: root} }

func (s *Store) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// GroupPath returns the file holding group.
func (s *Store) GroupPath(group string) string {
	return filepath.Join(s.Root, group+Ext)
}

// Groups returns the names of the groups in the store, sorted.
func (s *Store) Groups() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.Root, "*"+Ext))
	if err != nil {
		return nil, err
	}
	groups := make([]string, len(files))
	for i, f := range files {
		groups[i] = strings.TrimSuffix(filepath.Base(f), Ext)
	}
	sort.Strings(groups)
	return groups, nil
}

// Variables returns the names of the variables in group, sorted.
func (s *Store) Variables(group string) ([]string, error) {
	g, err := openGroup(s.GroupPath(group))
	if err != nil {
		return nil, err
	}
	defer g.Close()
	return g.variables(), nil
}

// Grid returns the grid of group, before clipping or resampling.
func (s *Store) Grid(group string) (cplan.Grid, error) {
	g, err := openGroup(s.GroupPath(group))
	if err != nil {
		return cplan.Grid{}, err
	}
	defer g.Close()
	return g.grid, nil
}

// group is an open group file.
type group struct {
	f    *os.File
	cf   *cdf.File
	grid cplan.Grid
	// defaultCRS is true if the file has no crs attribute.
	defaultCRS bool
}

func openGroup(path string) (*group, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cplan.ConfigErrorf("layer group file %s does not exist", path)
		}
		return nil, err
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("store: opening %s: %v", path, err)
	}
	g := &group{f: f, cf: cf}
	if err := g.readGrid(); err != nil {
		f.Close()
		return nil, fmt.Errorf("store: %s: %w", path, err)
	}
	return g, nil
}

func (g *group) Close() error { return g.f.Close() }

func (g *group) variables() []string {
	v := append([]string(nil), g.cf.Header.Variables()...)
	sort.Strings(v)
	return v
}

func (g *group) readGrid() error {
	t, ok := g.cf.Header.GetAttribute("", "transform").([]float64)
	if !ok {
		return fmt.Errorf("missing or non-double transform attribute")
	}
	a, err := cplan.NewAffineFromGDAL(t)
	if err != nil {
		return err
	}
	g.grid.Transform = a
	if crs, ok := g.cf.Header.GetAttribute("", "crs").(string); ok && strings.TrimSpace(crs) != "" {
		g.grid.CRS = strings.TrimRight(crs, "\x00")
	} else {
		g.grid.CRS = cplan.DefaultCRS
		g.defaultCRS = true
	}
	for _, v := range g.cf.Header.Variables() {
		l := g.cf.Header.Lengths(v)
		if len(l) != 2 {
			return fmt.Errorf("variable %s has %d dimensions; want 2 (y, x)", v, len(l))
		}
		if g.grid.Rows == 0 && g.grid.Cols == 0 {
			g.grid.Rows, g.grid.Cols = l[0], l[1]
		} else if l[0] != g.grid.Rows || l[1] != g.grid.Cols {
			return fmt.Errorf("variable %s is %d×%d; other variables are %d×%d",
				v, l[0], l[1], g.grid.Rows, g.grid.Cols)
		}
	}
	return nil
}

// read returns the full grid of variable v. Values equal to the
// variable's _FillValue attribute are returned as NaN.
func (g *group) read(v string) (*cplan.Layer, error) {
	l := cplan.NewLayer(g.grid, 0)
	r := g.cf.Reader(v, nil, nil)
	if r == nil {
		return nil, fmt.Errorf("store: no variable %s", v)
	}
	buf := r.Zero(len(l.Data))
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("store: reading %s: %v", v, err)
	}
	switch b := buf.(type) {
	case []float64:
		copy(l.Data, b)
	case []float32:
		for i, x := range b {
			l.Data[i] = float64(x)
		}
	case []int32:
		for i, x := range b {
			l.Data[i] = float64(x)
		}
	case []int16:
		for i, x := range b {
			l.Data[i] = float64(x)
		}
	case []uint8:
		for i, x := range b {
			l.Data[i] = float64(x)
		}
	default:
		return nil, fmt.Errorf("store: variable %s has unsupported type %T", v, buf)
	}
	if fill, ok := fillValue(g.cf.Header.GetAttribute(v, "_FillValue")); ok {
		for i, x := range l.Data {
			if x == fill {
				l.Data[i] = math.NaN()
			}
		}
	}
	return l, nil
}

func fillValue(a interface{}) (float64, bool) {
	switch v := a.(type) {
	case []float64:
		if len(v) == 1 {
			return v[0], true
		}
	case []float32:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	case []int16:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

// Clip returns the part of l that overlaps b, which is in the CRS of l.
// ok is false if there is no overlap.
func Clip(l *cplan.Layer, b *geom.Bounds) (clipped *cplan.Layer, ok bool) {
	if b == nil {
		return l, true
	}
	minC, minR := math.Inf(1), math.Inf(1)
	maxC, maxR := math.Inf(-1), math.Inf(-1)
	for _, p := range []geom.Point{b.Min, b.Max, {X: b.Min.X, Y: b.Max.Y}, {X: b.Max.X, Y: b.Min.Y}} {
		c, r, err := l.Transform.Invert(p.X, p.Y)
		if err != nil {
			return nil, false
		}
		minC, maxC = math.Min(minC, c), math.Max(maxC, c)
		minR, maxR = math.Min(minR, r), math.Max(maxR, r)
	}
	c0 := int(math.Max(0, math.Floor(minC)))
	r0 := int(math.Max(0, math.Floor(minR)))
	c1 := int(math.Min(float64(l.Cols), math.Ceil(maxC)))
	r1 := int(math.Min(float64(l.Rows), math.Ceil(maxR)))
	if c1 <= c0 || r1 <= r0 {
		return nil, false
	}
	g := cplan.Grid{
		Rows:      r1 - r0,
		Cols:      c1 - c0,
		Transform: l.Transform.Translate(float64(c0), float64(r0)),
		CRS:       l.CRS,
	}
	o := cplan.NewLayer(g, 0)
	for r := 0; r < g.Rows; r++ {
		copy(o.Data[r*g.Cols:(r+1)*g.Cols], l.Data[(r+r0)*l.Cols+c0:(r+r0)*l.Cols+c1])
	}
	return o, true
}

func boundaryBounds(boundary []geom.Polygonal) *geom.Bounds {
	if len(boundary) == 0 {
		return nil
	}
	b := geom.NewBounds()
	for _, p := range boundary {
		b.Extend(p.Bounds())
	}
	return b
}

func allMissing(l *cplan.Layer) bool {
	for _, v := range l.Data {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Load reads the layers named by paths, each of the form "group/variable".
// Layers are clipped to the bounding box of boundary, if it is not empty,
// and coarsened to cells of the given resolution using method. A layer
// with no data after clipping is replaced by an all-missing layer on the
// same grid; if that happens to every requested layer of a group, Load
// returns a *cplan.DataError.
func (s *Store) Load(paths []string, boundary []geom.Polygonal, resolution float64, method cplan.Resampling) (map[string]*cplan.Layer, error) {
	byGroup := make(map[string][]string)
	for _, p := range paths {
		grp, v, err := cplan.SplitLayerPath(p)
		if err != nil {
			return nil, err
		}
		byGroup[grp] = append(byGroup[grp], v)
	}
	groups := make([]string, 0, len(byGroup))
	for grp := range byGroup {
		groups = append(groups, grp)
	}
	sort.Strings(groups)

	bounds := boundaryBounds(boundary)
	out := make(map[string]*cplan.Layer, len(paths))
	for _, grp := range groups {
		layers, err := s.loadGroup(grp, byGroup[grp], bounds, resolution, method)
		if err != nil {
			return nil, err
		}
		for v, l := range layers {
			out[grp+"/"+v] = l
		}
	}
	return out, nil
}

func (s *Store) loadGroup(grp string, vars []string, bounds *geom.Bounds, resolution float64, method cplan.Resampling) (map[string]*cplan.Layer, error) {
	g, err := openGroup(s.GroupPath(grp))
	if err != nil {
		return nil, err
	}
	defer g.Close()
	log := s.log().WithField("group", grp)
	if g.defaultCRS {
		log.WithField("crs", cplan.DefaultCRS).Warn("store: group has no crs attribute; using default")
	}

	found := g.variables()
	have := make(map[string]bool, len(found))
	for _, v := range found {
		have[v] = true
	}
	factor := cplan.CoarsenFactor(resolution, g.grid.Transform.Resolution())

	out := make(map[string]*cplan.Layer, len(vars))
	var empty int
	for _, v := range vars {
		if !have[v] {
			return nil, cplan.ConfigErrorf("No variable named %s in group %s. Found: [%s]",
				v, grp, strings.Join(found, " "))
		}
		full, err := g.read(v)
		if err != nil {
			return nil, err
		}
		l, ok := Clip(full, bounds)
		if ok {
			if l, err = cplan.Coarsen(l, factor, method); err != nil {
				return nil, err
			}
		}
		if !ok || allMissing(l) {
			log.WithField("layer", grp+"/"+v).Warn("store: layer has no data inside the boundary; using an empty layer")
			empty++
			if !ok {
				// No overlap; keep the frame of the whole group.
				l, _ = cplan.Coarsen(full, factor, method)
			}
			l = cplan.NewLayer(l.Grid, math.NaN())
		}
		log.WithFields(logrus.Fields{
			"layer":  grp + "/" + v,
			"rows":   l.Rows,
			"cols":   l.Cols,
			"factor": factor,
		}).Debug("store: loaded layer")
		out[v] = l
	}
	if empty == len(vars) {
		return nil, cplan.DataErrorf(grp, 0, "no data inside the boundary for any requested layer of group %s", grp)
	}
	return out, nil
}

// WriteGroup writes layers, which must share one grid, to a new group file
// at path. Variables are written in name order. The transform, CRS and
// resolution of the grid are stored as global attributes.
func WriteGroup(path string, layers map[string]*cplan.Layer) error {
	if len(layers) == 0 {
		return fmt.Errorf("store: no layers to write to %s", path)
	}
	names := make([]string, 0, len(layers))
	for n := range layers {
		names = append(names, n)
	}
	sort.Strings(names)
	grid := layers[names[0]].Grid
	for _, n := range names[1:] {
		if !layers[n].SameFrame(grid) {
			return fmt.Errorf("store: layer %s does not share the grid of layer %s", n, names[0])
		}
	}

	h := cdf.NewHeader([]string{"y", "x"}, []int{grid.Rows, grid.Cols})
	h.AddAttribute("", "comment", "CPlan layer group")
	h.AddAttribute("", "transform", grid.Transform.GDAL())
	h.AddAttribute("", "crs", grid.CRS)
	h.AddAttribute("", "resolution", []float64{grid.Transform.Resolution()})
	for _, n := range names {
		h.AddVariable(n, []string{"y", "x"}, []float64{0})
	}
	h.Define()

	w, err := os.Create(path)
	if err != nil {
		return err
	}
	f, err := cdf.Create(w, h)
	if err != nil {
		w.Close()
		return fmt.Errorf("store: creating %s: %v", path, err)
	}
	for _, n := range names {
		wr := f.Writer(n, nil, nil)
		// The writer reports io.EOF once it reaches the end of the variable.
		if _, err := wr.Write(layers[n].Data); err != nil && err != io.EOF {
			w.Close()
			return fmt.Errorf("store: writing variable %s to %s: %v", n, path, err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// WriteLayer writes l as the only variable of a new group file.
func WriteLayer(path, variable string, l *cplan.Layer) error {
	return WriteGroup(path, map[string]*cplan.Layer{variable: l})
}

// ReadLayer reads variable from the group file at path without clipping
// or resampling.
func ReadLayer(path, variable string) (*cplan.Layer, error) {
	g, err := openGroup(path)
	if err != nil {
		return nil, err
	}
	defer g.Close()
	for _, v := range g.variables() {
		if v == variable {
			return g.read(v)
		}
	}
	return nil, cplan.ConfigErrorf("No variable named %s in %s. Found: [%s]",
		variable, path, strings.Join(g.variables(), " "))
}
