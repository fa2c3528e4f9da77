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
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	gopmtiles "github.com/protomaps/go-pmtiles/pmtiles"
)

// maxRootLen is the largest root directory that fits in the first 16 KiB
// of an archive together with the header.
const maxRootLen = 16384 - HeaderLen

// Entry is one directory entry. An entry with a RunLength of zero points
// to a leaf directory; otherwise it addresses RunLength consecutive tile
// IDs that share the same data.
type Entry = gopmtiles.EntryV3

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// decompress undoes the internal compression c.
func decompress(b []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression:
		return b, nil
	case Gzip:
		return gunzipBytes(b)
	default:
		return nil, fmt.Errorf("pmtiles: unsupported internal compression %s", CompressionName(c))
	}
}

// serializeEntries encodes and gzips a directory.
func serializeEntries(entries []Entry) []byte {
	return gopmtiles.SerializeEntries(entries, gopmtiles.Gzip)
}

// deserializeEntries decodes a directory stored with compression c.
func deserializeEntries(b []byte, c Compression) ([]Entry, error) {
	if c != NoCompression && c != Gzip {
		return nil, fmt.Errorf("pmtiles: unsupported internal compression %s", CompressionName(c))
	}
	if c == Gzip {
		// Reject corrupt streams here; the decoder below does not report
		// them.
		if _, err := gunzipBytes(b); err != nil {
			return nil, fmt.Errorf("pmtiles: decompressing directory: %w", err)
		}
	}
	return gopmtiles.DeserializeEntries(bytes.NewBuffer(b), c), nil
}

// buildRootLeaves splits entries into leaf directories of leafSize entries
// and returns the serialized root and the concatenated leaves.
func buildRootLeaves(entries []Entry, leafSize int) (root, leaves []byte, numLeaves int) {
	var rootEntries []Entry
	for i := 0; i < len(entries); i += leafSize {
		end := i + leafSize
		if end > len(entries) {
			end = len(entries)
		}
		leaf := serializeEntries(entries[i:end])
		rootEntries = append(rootEntries, Entry{
			TileID: entries[i].TileID,
			Offset: uint64(len(leaves)),
			Length: uint32(len(leaf)),
		})
		leaves = append(leaves, leaf...)
		numLeaves++
	}
	return serializeEntries(rootEntries), leaves, numLeaves
}

// optimizeDirectories returns a root directory no longer than maxRoot
// bytes, moving entries into leaf directories if needed.
func optimizeDirectories(entries []Entry, maxRoot int) (root, leaves []byte, numLeaves int, err error) {
	root = serializeEntries(entries)
	if len(root) <= maxRoot {
		return root, nil, 0, nil
	}
	leafSize := len(entries) / 3500
	if leafSize < 4096 {
		leafSize = 4096
	}
	for {
		root, leaves, numLeaves = buildRootLeaves(entries, leafSize)
		if len(root) <= maxRoot {
			return root, leaves, numLeaves, nil
		}
		if numLeaves == 1 {
			return nil, nil, 0, fmt.Errorf("pmtiles: root directory of %d bytes exceeds %d", len(root), maxRoot)
		}
		leafSize = int(float64(leafSize) * 1.2)
	}
}

// FindTile returns the entry of a sorted directory that covers tileID. The
// returned entry is either a tile run containing tileID or a leaf
// directory pointer whose subtree may contain it.
func FindTile(entries []Entry, tileID uint64) (Entry, bool) {
	return gopmtiles.FindTile(entries, tileID)
}
