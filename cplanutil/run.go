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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/cplan"
	"github.com/spatialmodel/cplan/internal/hash"
	"github.com/spatialmodel/cplan/pmtiles"
	"github.com/spatialmodel/cplan/store"
	"github.com/spatialmodel/cplan/tiles"
	"github.com/spf13/cobra"
)

// Output file names written by Run.
const (
	SolutionFile = "solution.nc"
	ArchiveFile  = "solution.pmtiles"

	// SolutionVariable is the variable holding the selection grid in
	// SolutionFile.
	SolutionVariable = "selection"
)

// newLogger returns a logger that writes to both the command output and
// logFile. The returned file must be closed by the caller.
func newLogger(cmd *cobra.Command, logFile, level string) (*logrus.Logger, *os.File, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Create(logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cplan: problem creating log file: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.MultiWriter(cmd.OutOrStdout(), f))
	log.SetLevel(lvl)
	return log, f, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// zoomRange checks a zoom range given as ints and converts it for
// tiles.Options. A negative maxZoom is derived from resolution.
func zoomRange(minZoom, maxZoom int, resolution float64) (uint8, uint8, error) {
	if maxZoom < 0 {
		maxZoom = cplan.ResolutionToMaxZoom(resolution)
	}
	if minZoom < 0 || maxZoom > pmtiles.MaxZoom || minZoom > maxZoom {
		return 0, 0, cplan.ConfigErrorf("invalid zoom range [%d, %d]; zooms must be between 0 and %d", minZoom, maxZoom, pmtiles.MaxZoom)
	}
	return uint8(minZoom), uint8(maxZoom), nil
}

// Run loads the layers named in the parameters file from the store at
// storeDir, optimizes them and writes the solution grid to outputDir. Unless
// noTiles is true it then publishes the solution as a tile archive in
// outputDir. If the parameters include no geometry, the boundary is read
// from boundaryFile.
func Run(cmd *cobra.Command, logFile, logLevel, storeDir, paramsFile, boundaryFile, boundaryCRS, outputDir string, noTiles bool, concurrency int) error {
	startTime := time.Now()

	log, f, err := newLogger(cmd, logFile, logLevel)
	if err != nil {
		return err
	}
	defer f.Close()
	ctx := commandContext(cmd)

	params, err := loadParams(paramsFile)
	if err != nil {
		return err
	}
	if storeDir == "" {
		return cplan.ConfigErrorf("you need to specify a layer store directory (for example: --store=layers)")
	}
	s := store.New(storeDir)
	s.Log = log

	paths := params.LayerPaths()
	group, _, err := cplan.SplitLayerPath(paths[0])
	if err != nil {
		return err
	}
	ref, err := s.Grid(group)
	if err != nil {
		return err
	}
	if len(params.Geometry) == 0 {
		if boundaryFile == "" {
			return cplan.ConfigErrorf("no boundary: the parameters file has no geometry and no --boundary file was given")
		}
		b, err := loadBoundary(boundaryFile, ref.CRS, boundaryCRS)
		if err != nil {
			return err
		}
		params.Geometry = b
	}

	runLog := log.WithField("run", hash.Hash(params))
	runLog.WithFields(logrus.Fields{
		"layers":     len(paths),
		"resolution": params.Resolution,
		"resampling": params.Resampling,
	}).Info("cplan: loading layers")

	layers, err := s.Load(paths, params.Geometry, float64(params.Resolution), params.Resampling)
	if err != nil {
		return err
	}

	p := &cplan.Pipeline{Log: runLog}
	res, err := p.Optimize(ctx, layers, params)
	if err != nil {
		return err
	}
	if res.Selection == nil {
		return &cplan.SolveError{Err: fmt.Errorf("solver finished with status %s and returned no solution", res.Status)}
	}

	solutionPath := filepath.Join(outputDir, SolutionFile)
	if err := store.WriteLayer(solutionPath, SolutionVariable, res.Selection); err != nil {
		return err
	}
	runLog.WithFields(logrus.Fields{
		"path":   solutionPath,
		"status": res.Status,
		"cells":  res.Selected,
	}).Info("cplan: wrote solution")

	if !noTiles {
		maxZoom := params.MaxZoom
		if maxZoom == 0 {
			maxZoom = -1
		}
		z0, z1, err := zoomRange(params.MinZoom, maxZoom, float64(params.Resolution))
		if err != nil {
			return err
		}
		_, err = tiles.Publish(ctx, res.Selection, filepath.Join(outputDir, ArchiveFile), tiles.Options{
			MinZoom:     z0,
			MaxZoom:     z1,
			TileSize:    params.TileSize,
			Concurrency: concurrency,
			Log:         runLog,
		})
		if err != nil {
			return err
		}
	}

	runLog.Infof("cplan: run completed in %v", time.Since(startTime))
	return nil
}

// Tile publishes the solution grid in solutionFile as a tile archive at
// archive. A maxZoom below zero is derived from the grid resolution.
func Tile(cmd *cobra.Command, logFile, logLevel, solutionFile, archive string, minZoom, maxZoom, tileSize, concurrency int) error {
	log, f, err := newLogger(cmd, logFile, logLevel)
	if err != nil {
		return err
	}
	defer f.Close()

	l, err := store.ReadLayer(solutionFile, SolutionVariable)
	if err != nil {
		return err
	}
	z0, z1, err := zoomRange(minZoom, maxZoom, l.Transform.Resolution())
	if err != nil {
		return err
	}
	n, err := tiles.Publish(commandContext(cmd), l, archive, tiles.Options{
		MinZoom:     z0,
		MaxZoom:     z1,
		TileSize:    tileSize,
		Concurrency: concurrency,
		Log:         log,
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"path": archive, "tiles": n}).Info("cplan: tiling complete")
	return nil
}

// Inspect writes a summary of the tile archive at path to w.
func Inspect(w io.Writer, path string) error {
	f, err := pmtiles.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := f.Header
	fmt.Fprintf(w, "version: %d\n", h.SpecVersion)
	fmt.Fprintf(w, "tile type: %s\n", pmtiles.TileTypeName(h.TileType))
	fmt.Fprintf(w, "tile compression: %s\n", pmtiles.CompressionName(h.TileCompression))
	fmt.Fprintf(w, "zoom: %d-%d\n", h.MinZoom, h.MaxZoom)
	fmt.Fprintf(w, "bounds: %.7f,%.7f,%.7f,%.7f\n",
		float64(h.MinLonE7)/1e7, float64(h.MinLatE7)/1e7, float64(h.MaxLonE7)/1e7, float64(h.MaxLatE7)/1e7)
	fmt.Fprintf(w, "center: %.7f,%.7f z%d\n", float64(h.CenterLonE7)/1e7, float64(h.CenterLatE7)/1e7, h.CenterZoom)
	fmt.Fprintf(w, "addressed tiles: %d\n", h.AddressedTilesCount)
	fmt.Fprintf(w, "tile entries: %d\n", h.TileEntriesCount)
	fmt.Fprintf(w, "tile contents: %d\n", h.TileContentsCount)

	entries, err := f.Entries()
	if err != nil {
		return err
	}
	var count uint64
	for _, e := range entries {
		count += uint64(e.RunLength)
	}
	if count != h.AddressedTilesCount {
		return fmt.Errorf("cplan: archive %s directory holds %d tiles but the header says %d", path, count, h.AddressedTilesCount)
	}

	meta, err := f.Metadata()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "metadata: %s\n", b)

	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	sum, err := hash.Reader(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "checksum: %s\n", sum)
	return nil
}
