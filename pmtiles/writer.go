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

package pmtiles

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	gopmtiles "github.com/protomaps/go-pmtiles/pmtiles"
)

// ErrEmpty is returned by Finalize if no tiles were written.
var ErrEmpty = errors.New("pmtiles: archive has no tiles")

// ErrOrder is returned by WriteTile if tile IDs are not strictly
// increasing.
var ErrOrder = errors.New("pmtiles: tile IDs must be written in strictly increasing order")

type blob struct {
	offset uint64
	length uint32
	data   []byte
}

// Writer writes a PMTiles archive. Tiles must be written in strictly
// increasing tile ID order. Tile data is spooled to a temporary file next
// to the output; the archive only appears at its final path once Finalize
// succeeds. Close must always be called.
type Writer struct {
	path string

	data    *os.File
	buf     *bufio.Writer
	entries []Entry
	offset  uint64
	// contents holds the location of every distinct tile payload, keyed
	// by content hash.
	contents  map[uint64][]blob
	addressed uint64
	finalized bool
	maxRoot   int
}

// NewWriter creates a writer for an archive at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".data-*")
	if err != nil {
		return nil, fmt.Errorf("pmtiles: creating tile data file: %w", err)
	}
	return &Writer{
		path:     path,
		data:     f,
		buf:      bufio.NewWriter(f),
		contents: make(map[uint64][]blob),
		maxRoot:  maxRootLen,
	}, nil
}

// Len returns the number of tiles written so far.
func (w *Writer) Len() uint64 { return w.addressed }

// WriteTile adds a tile. Identical payloads are stored once and
// consecutive tiles with identical payloads share one entry.
func (w *Writer) WriteTile(tileID uint64, data []byte) error {
	if w.finalized {
		return errors.New("pmtiles: write after Finalize")
	}
	if len(w.entries) > 0 {
		last := w.entries[len(w.entries)-1]
		if tileID < last.TileID+uint64(last.RunLength) {
			return fmt.Errorf("%w: %d after %d", ErrOrder, tileID, last.TileID+uint64(last.RunLength)-1)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("pmtiles: tile %d has no data", tileID)
	}
	w.addressed++

	h := xxhash.Sum64(data)
	for _, b := range w.contents[h] {
		if !bytes.Equal(b.data, data) {
			continue
		}
		if n := len(w.entries); n > 0 {
			last := &w.entries[n-1]
			if last.Offset == b.offset && tileID == last.TileID+uint64(last.RunLength) {
				last.RunLength++
				return nil
			}
		}
		w.entries = append(w.entries, Entry{TileID: tileID, Offset: b.offset, Length: b.length, RunLength: 1})
		return nil
	}

	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("pmtiles: writing tile %d: %w", tileID, err)
	}
	b := blob{offset: w.offset, length: uint32(len(data)), data: append([]byte(nil), data...)}
	w.contents[h] = append(w.contents[h], b)
	w.entries = append(w.entries, Entry{TileID: tileID, Offset: b.offset, Length: b.length, RunLength: 1})
	w.offset += uint64(len(data))
	return nil
}

// Finalize writes the archive to its final path. h supplies the tile
// type, compression, zoom range, bounds and center; the layout fields are
// filled in. metadata is stored as JSON.
func (w *Writer) Finalize(h Header, metadata interface{}) (*Header, error) {
	if w.finalized {
		return nil, errors.New("pmtiles: already finalized")
	}
	if len(w.entries) == 0 {
		return nil, ErrEmpty
	}
	if err := w.buf.Flush(); err != nil {
		return nil, fmt.Errorf("pmtiles: flushing tile data: %w", err)
	}
	root, leaves, _, err := optimizeDirectories(w.entries, w.maxRoot)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: building directories: %w", err)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: encoding metadata: %w", err)
	}
	if meta, err = gzipBytes(meta); err != nil {
		return nil, fmt.Errorf("pmtiles: compressing metadata: %w", err)
	}

	distinct := 0
	for _, bs := range w.contents {
		distinct += len(bs)
	}
	h.SpecVersion = 3
	h.RootOffset = HeaderLen
	h.RootLength = uint64(len(root))
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(meta))
	h.LeafDirectoryOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirectoryLength = uint64(len(leaves))
	h.TileDataOffset = h.LeafDirectoryOffset + h.LeafDirectoryLength
	h.TileDataLength = w.offset
	h.AddressedTilesCount = w.addressed
	h.TileEntriesCount = uint64(len(w.entries))
	h.TileContentsCount = uint64(distinct)
	h.Clustered = true
	h.InternalCompression = Gzip
	if h.TileCompression == UnknownCompression {
		h.TileCompression = NoCompression
	}
	hb := gopmtiles.SerializeHeader(h)

	out, err := os.CreateTemp(filepath.Dir(w.path), "."+filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("pmtiles: creating archive: %w", err)
	}
	tmp := out.Name()
	fail := func(err error) (*Header, error) {
		out.Close()
		os.Remove(tmp)
		return nil, err
	}
	bw := bufio.NewWriter(out)
	for _, part := range [][]byte{hb, root, meta, leaves} {
		if _, err := bw.Write(part); err != nil {
			return fail(fmt.Errorf("pmtiles: writing archive: %w", err))
		}
	}
	if _, err := w.data.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("pmtiles: rewinding tile data: %w", err))
	}
	if n, err := io.Copy(bw, w.data); err != nil {
		return fail(fmt.Errorf("pmtiles: copying tile data: %w", err))
	} else if uint64(n) != w.offset {
		return fail(fmt.Errorf("pmtiles: copied %d bytes of tile data; want %d", n, w.offset))
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("pmtiles: writing archive: %w", err))
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("pmtiles: closing archive: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("pmtiles: moving archive into place: %w", err)
	}
	w.finalized = true
	return &h, nil
}

// Close releases the temporary tile data. It does not remove an archive
// created by Finalize.
func (w *Writer) Close() error {
	if w.data == nil {
		return nil
	}
	name := w.data.Name()
	err := w.data.Close()
	w.data = nil
	if rerr := os.Remove(name); err == nil && rerr != nil && !os.IsNotExist(rerr) {
		err = rerr
	}
	return err
}
