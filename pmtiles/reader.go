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
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxDepth bounds the directory nesting followed by Reader.
const maxDepth = 4

// Reader reads tiles from an archive.
type Reader struct {
	r      io.ReaderAt
	Header Header
	root   []Entry
}

// NewReader reads the header and root directory of the archive in r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	b := make([]byte, HeaderLen)
	if _, err := r.ReadAt(b, 0); err != nil {
		return nil, fmt.Errorf("pmtiles: reading header: %w", err)
	}
	h, err := decodeHeader(b)
	if err != nil {
		return nil, err
	}
	rd := &Reader{r: r, Header: h}
	root, err := rd.directory(rd.Header.RootOffset, rd.Header.RootLength)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: reading root directory: %w", err)
	}
	rd.root = root
	return rd, nil
}

func (rd *Reader) section(offset, length uint64) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rd.r.ReadAt(b, int64(offset)); err != nil {
		return nil, err
	}
	return b, nil
}

func (rd *Reader) directory(offset, length uint64) ([]Entry, error) {
	b, err := rd.section(offset, length)
	if err != nil {
		return nil, err
	}
	return deserializeEntries(b, rd.Header.InternalCompression)
}

// Metadata returns the decoded JSON metadata.
func (rd *Reader) Metadata() (map[string]interface{}, error) {
	b, err := rd.section(rd.Header.MetadataOffset, rd.Header.MetadataLength)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: reading metadata: %w", err)
	}
	if b, err = decompress(b, rd.Header.InternalCompression); err != nil {
		return nil, fmt.Errorf("pmtiles: reading metadata: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("pmtiles: decoding metadata: %w", err)
	}
	return m, nil
}

// Tile returns the data of tile (z, x, y). ok is false if the archive does
// not contain the tile.
func (rd *Reader) Tile(z uint8, x, y uint32) (data []byte, ok bool, err error) {
	if err := checkTile(z, x, y); err != nil {
		return nil, false, err
	}
	id := ZxyToID(z, x, y)
	dir := rd.root
	for depth := 0; depth < maxDepth; depth++ {
		e, found := FindTile(dir, id)
		if !found {
			return nil, false, nil
		}
		if e.RunLength > 0 {
			b, err := rd.section(rd.Header.TileDataOffset+e.Offset, uint64(e.Length))
			if err != nil {
				return nil, false, fmt.Errorf("pmtiles: reading tile %d/%d/%d: %w", z, x, y, err)
			}
			return b, true, nil
		}
		dir, err = rd.directory(rd.Header.LeafDirectoryOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return nil, false, fmt.Errorf("pmtiles: reading leaf directory: %w", err)
		}
	}
	return nil, false, fmt.Errorf("pmtiles: directories nested deeper than %d", maxDepth)
}

// Entries returns every tile entry in the archive, in tile ID order, with
// leaf directories expanded.
func (rd *Reader) Entries() ([]Entry, error) {
	return rd.collect(rd.root, 0)
}

func (rd *Reader) collect(dir []Entry, depth int) ([]Entry, error) {
	if depth >= maxDepth {
		return nil, fmt.Errorf("pmtiles: directories nested deeper than %d", maxDepth)
	}
	var out []Entry
	for _, e := range dir {
		if e.RunLength > 0 {
			out = append(out, e)
			continue
		}
		leaf, err := rd.directory(rd.Header.LeafDirectoryOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return nil, fmt.Errorf("pmtiles: reading leaf directory: %w", err)
		}
		sub, err := rd.collect(leaf, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// File is a Reader on an open archive file.
type File struct {
	*Reader
	f *os.File
}

// Open opens the archive at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Reader: r, f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error { return f.f.Close() }
