// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package segment implements the immutable, columnar on-disk block
// format a memtable is flushed into: a fixed header, one compressed
// block per column (plus the VIN and timestamp columns, stored raw so a
// reader can binary-search them), and a zstd-compressed footer of
// per-column offsets. An Int32 column is packed with whichever of
// Simple-8b or RLE produces the smaller block; the footer records which
// one won so the reader never has to guess.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sjyango/vintsdb/compr"
	"github.com/sjyango/vintsdb/internal/floatcodec"
	"github.com/sjyango/vintsdb/internal/intcodec"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
)

// magic identifies a vintsdb segment file.
const magic = 0x56534442 // "VSDB"

// codec identifies how a column block's bytes were produced, recorded
// per-column in the footer so a reader never has to guess.
type codec uint8

const (
	codecRaw codec = iota
	codecSimple8b
	codecGorilla
	codecS2
	codecRLE
)

// ErrCorruption is returned when a segment's header, footer, or a column
// block fails a structural check on read.
var ErrCorruption = errors.New("segment: corrupt file")

type columnDesc struct {
	offset     uint32
	compSize   uint32
	uncompSize uint32
	codec      codec
}

const columnDescSize = 4 + 4 + 4 + 1

// Writer accumulates rows in memory and, on Finalize, encodes them into
// a segment file. Rows must already be sorted ascending by (VIN,
// timestamp); Writer does not sort.
type Writer struct {
	path   string
	schema schema.Schema
	tmp    string
	f      *os.File
	rows   []row.Row
}

// NewWriter opens a temporary file alongside path (named with a random
// uuid so concurrent flushes never collide) that Finalize renames into
// place.
func NewWriter(path string, s schema.Schema) (*Writer, error) {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+uuid.New().String()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: create temp file: %w", err)
	}
	return &Writer{path: path, schema: s, tmp: tmp, f: f}, nil
}

// Append buffers rows for the next Finalize. It does not validate sort
// order; callers (memtable.Flush) are responsible for that invariant.
func (w *Writer) Append(rows []row.Row) error {
	w.rows = append(w.rows, rows...)
	return nil
}

// Finalize writes the header, column blocks, and the zstd-compressed
// footer (plus its small fixed trailer), then atomically renames the
// temp file into place. The Writer must not be used again afterward.
func (w *Writer) Finalize() error {
	defer w.f.Close()

	var buf []byte
	buf = appendUint32(buf, magic)
	buf = appendUint32(buf, uint32(len(w.rows)))
	buf = appendUint32(buf, w.schema.Digest())
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("segment: write header: %w", err)
	}

	offset := uint32(len(buf))
	descs := make([]columnDesc, 0, 2+len(w.schema.Columns))

	vinBytes := make([]byte, 0, len(w.rows)*17)
	for _, r := range w.rows {
		vinBytes = append(vinBytes, r.VIN[:]...)
	}
	d, err := w.writeBlock(vinBytes, codecRaw)
	if err != nil {
		return err
	}
	d.offset = offset
	offset += d.compSize
	descs = append(descs, d)

	tsBytes := make([]byte, 0, len(w.rows)*8)
	for _, r := range w.rows {
		tsBytes = binary.LittleEndian.AppendUint64(tsBytes, uint64(r.Timestamp))
	}
	d, err = w.writeBlock(tsBytes, codecRaw)
	if err != nil {
		return err
	}
	d.offset = offset
	offset += d.compSize
	descs = append(descs, d)

	for ci, col := range w.schema.Columns {
		blob, c, uncompSize, err := w.encodeColumn(col, ci)
		if err != nil {
			return err
		}
		d, err := w.writeBlock(blob, c)
		if err != nil {
			return err
		}
		d.uncompSize = uncompSize
		d.offset = offset
		offset += d.compSize
		descs = append(descs, d)
	}

	footerStart := offset
	var footer []byte
	for _, d := range descs {
		footer = appendUint32(footer, d.offset)
		footer = appendUint32(footer, d.compSize)
		footer = appendUint32(footer, d.uncompSize)
		footer = append(footer, byte(d.codec))
	}
	footerUncompSize := uint32(len(footer))
	compFooter := compr.Compression("zstd").Compress(footer, nil)
	if _, err := w.f.Write(compFooter); err != nil {
		return fmt.Errorf("segment: write footer: %w", err)
	}

	trailer := appendUint32(nil, footerStart)
	trailer = appendUint32(trailer, footerUncompSize)
	if _, err := w.f.Write(trailer); err != nil {
		return fmt.Errorf("segment: write trailer: %w", err)
	}

	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("segment: sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("segment: close: %w", err)
	}
	w.f = nil
	if err := os.Rename(w.tmp, w.path); err != nil {
		return fmt.Errorf("segment: finalize rename: %w", err)
	}
	return nil
}

// writeBlock writes raw (already codec-chosen) bytes for one column and
// returns its descriptor (offset left zero for the caller to fill in).
func (w *Writer) writeBlock(data []byte, c codec) (columnDesc, error) {
	if _, err := w.f.Write(data); err != nil {
		return columnDesc{}, fmt.Errorf("segment: write column block: %w", err)
	}
	return columnDesc{compSize: uint32(len(data)), uncompSize: uint32(len(data)), codec: c}, nil
}

func (w *Writer) encodeColumn(col schema.Column, ci int) ([]byte, codec, uint32, error) {
	switch col.Type {
	case schema.Int32:
		xs := make([]int32, len(w.rows))
		for i, r := range w.rows {
			xs[i] = r.Columns[ci].(int32)
		}
		s8b, err := intcodec.EncodeSimple8b(xs)
		if err != nil {
			return nil, codecRaw, 0, fmt.Errorf("segment: column %q: %w", col.Name, err)
		}
		// RLE wins on low-cardinality/repetitive columns (odometer resets,
		// gear position, a flag held steady for a long stretch); Simple-8b
		// wins otherwise, so keep whichever packed smaller.
		xs64 := make([]int64, len(xs))
		for i, v := range xs {
			xs64[i] = int64(v)
		}
		rle := intcodec.EncodeRLE(xs64)
		if len(rle) < len(s8b) {
			return rle, codecRLE, uint32(len(xs) * 4), nil
		}
		return s8b, codecSimple8b, uint32(len(xs) * 4), nil

	case schema.Float64:
		xs := make([]uint64, len(w.rows))
		for i, r := range w.rows {
			xs[i] = math.Float64bits(r.Columns[ci].(float64))
		}
		blob := floatcodec.EncodeGorilla(xs)
		return blob, codecGorilla, uint32(len(xs) * 8), nil

	case schema.Bytes:
		var raw []byte
		for _, r := range w.rows {
			v := r.Columns[ci].([]byte)
			raw = appendUint32(raw, uint32(len(v)))
			raw = append(raw, v...)
		}
		s2 := compr.Compression("s2")
		blob := s2.Compress(raw, nil)
		return blob, codecS2, uint32(len(raw)), nil

	default:
		return nil, codecRaw, 0, fmt.Errorf("segment: column %q: unknown type %v", col.Name, col.Type)
	}
}

func appendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}
