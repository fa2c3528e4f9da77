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

// Package tiles renders solution grids into PMTiles archives of PNG
// raster tiles in the Web Mercator tile scheme.
package tiles

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/spatialmodel/cplan"
	"github.com/spatialmodel/cplan/pmtiles"
)

// DefaultTileSize is the tile width and height used when Options.TileSize
// is zero.
const DefaultTileSize = 512

// densify is the number of segments each grid edge is split into when
// computing geographic bounds.
const densify = 20

// Options control Publish.
type Options struct {
	MinZoom, MaxZoom uint8

	// TileSize is the tile edge length in pixels.
	TileSize int

	// Concurrency is the maximum number of tiles rendered at once. It
	// defaults to the number of CPUs.
	Concurrency int

	// Name is stored in the archive metadata. It defaults to the output
	// file name without its extension.
	Name string

	Log logrus.FieldLogger
}

func (o *Options) log() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// Tile is one rendered tile.
type Tile struct {
	Z    uint8
	X, Y uint32
	ID   uint64
	Data []byte
}

// Metadata is the JSON metadata stored in published archives.
type Metadata struct {
	Format   string     `json:"format"`
	Bounds   [4]float64 `json:"bounds"`
	Center   [3]float64 `json:"center"`
	TileJSON string     `json:"tilejson"`
	Type     string     `json:"type"`
	Name     string     `json:"name"`
	MinZoom  uint8      `json:"minzoom"`
	MaxZoom  uint8      `json:"maxzoom"`
}

// LonLatBounds returns the extent of g in degrees. The grid edges are
// densified before transformation so curved edges are covered.
func LonLatBounds(g cplan.Grid) (*geom.Bounds, error) {
	t, err := cplan.NewTransform(g.CRS, cplan.WGS84)
	if err != nil {
		return nil, err
	}
	b := geom.NewBounds()
	add := func(col, row float64) error {
		x, y := g.Transform.Apply(col, row)
		lon, lat, err := t(x, y)
		if err != nil {
			return err
		}
		b.Extend(geom.Point{X: lon, Y: lat}.Bounds())
		return nil
	}
	cols, rows := float64(g.Cols), float64(g.Rows)
	for i := 0; i <= densify; i++ {
		f := float64(i) / densify
		for _, p := range [][2]float64{{f * cols, 0}, {f * cols, rows}, {0, f * rows}, {cols, f * rows}} {
			if err := add(p[0], p[1]); err != nil {
				return nil, fmt.Errorf("tiles: transforming grid bounds: %w", err)
			}
		}
	}
	return b, nil
}

// Publish renders l at every zoom in [opts.MinZoom, opts.MaxZoom] and
// writes the tiles that contain at least one selected cell to a PMTiles
// archive at outPath. Cells with a value above zero are drawn in
// Highlight; everything else is transparent. It returns the number of
// tiles written. If no tile has content, it returns a *cplan.TilingError
// and leaves no archive behind.
func Publish(ctx context.Context, l *cplan.Layer, outPath string, opts Options) (int, error) {
	if opts.TileSize == 0 {
		opts.TileSize = DefaultTileSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
	}
	switch {
	case opts.TileSize < 0:
		return 0, cplan.ConfigErrorf("tile size must be positive; got %d", opts.TileSize)
	case opts.MinZoom > opts.MaxZoom:
		return 0, cplan.ConfigErrorf("minimum zoom %d is greater than maximum zoom %d", opts.MinZoom, opts.MaxZoom)
	case opts.MaxZoom > pmtiles.MaxZoom:
		return 0, cplan.ConfigErrorf("maximum zoom %d is greater than %d", opts.MaxZoom, pmtiles.MaxZoom)
	case l.Len() == 0:
		return 0, cplan.DataErrorf("", 0, "cannot tile an empty grid")
	}

	bounds, err := LonLatBounds(l.Grid)
	if err != nil {
		return 0, cplan.WrapTilingError(err, "computing geographic bounds")
	}
	mx0, my0 := ToMercator(bounds.Min.X, bounds.Min.Y)
	mx1, my1 := ToMercator(bounds.Max.X, bounds.Max.Y)
	opts.log().WithFields(logrus.Fields{
		"bounds":   []float64{bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y},
		"mercator": []float64{mx0, my0, mx1, my1},
		"selected": l.CountPositive(),
	}).Info("tiles: publishing")

	w, err := pmtiles.NewWriter(outPath)
	if err != nil {
		return 0, cplan.WrapTilingError(err, "creating archive")
	}
	defer w.Close()

	for z := opts.MinZoom; z <= opts.MaxZoom; z++ {
		tiles, err := RenderZoom(ctx, l, z, bounds, opts)
		if err != nil {
			return 0, err
		}
		for _, t := range tiles {
			if err := w.WriteTile(t.ID, t.Data); err != nil {
				return 0, cplan.WrapTilingError(err, "writing tile")
			}
		}
		opts.log().WithFields(logrus.Fields{"zoom": z, "tiles": len(tiles)}).Debug("tiles: rendered zoom level")
	}
	if w.Len() == 0 {
		return 0, cplan.TilingErrorf("no tiles rendered for zooms %d-%d; the grid has %d selected cells",
			opts.MinZoom, opts.MaxZoom, l.CountPositive())
	}

	h := pmtiles.Header{
		TileType:        pmtiles.PNG,
		TileCompression: pmtiles.NoCompression,
		MinZoom:         opts.MinZoom,
		MaxZoom:         opts.MaxZoom,
	}
	pmtiles.SetBounds(&h, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y, opts.MinZoom)
	meta := Metadata{
		Format:   "png",
		Bounds:   [4]float64{bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y},
		Center:   [3]float64{(bounds.Min.X + bounds.Max.X) / 2, (bounds.Min.Y + bounds.Max.Y) / 2, float64(opts.MinZoom)},
		TileJSON: "2.2.0",
		Type:     "overlay",
		Name:     opts.Name,
		MinZoom:  opts.MinZoom,
		MaxZoom:  opts.MaxZoom,
	}
	out, err := w.Finalize(h, meta)
	if err != nil {
		return 0, cplan.WrapTilingError(err, "finalizing archive")
	}
	opts.log().WithFields(logrus.Fields{
		"path":    outPath,
		"tiles":   out.AddressedTilesCount,
		"entries": out.TileEntriesCount,
		"unique":  out.TileContentsCount,
	}).Info("tiles: wrote archive")
	return int(out.AddressedTilesCount), nil
}

// RenderZoom renders the tiles at zoom z that cover bounds, in parallel,
// and returns the non-empty ones sorted by tile ID.
func RenderZoom(ctx context.Context, l *cplan.Layer, z uint8, bounds *geom.Bounds, opts Options) ([]Tile, error) {
	if opts.TileSize <= 0 {
		opts.TileSize = DefaultTileSize
	}
	centers, err := selectedCenters(l)
	if err != nil {
		return nil, cplan.WrapTilingError(err, "locating selected cells")
	}
	minX, minY, maxX, maxY := TileRange(bounds, z)
	var tiles []Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, Tile{Z: z, X: x, Y: y, ID: pmtiles.ZxyToID(z, x, y)})
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i := range tiles {
		t := &tiles[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := newRenderer(l, opts.TileSize, centers)
			if err != nil {
				return err
			}
			t.Data, err = r.render(t.Z, t.X, t.Y)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := tiles[:0]
	for _, t := range tiles {
		if t.Data != nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
