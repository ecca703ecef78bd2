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

package segment

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/sjyango/vintsdb/compr"
	"github.com/sjyango/vintsdb/internal/floatcodec"
	"github.com/sjyango/vintsdb/internal/intcodec"
	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
)

// Block is a materialized, columnar slice of rows produced by NextBatch.
type Block struct {
	VINs       []shard.VIN
	Timestamps []int64
	Columns    []any // one []int32, []float64, or [][]byte per schema column
}

// Reader provides positional and keyed access to a finalized segment
// file. It decodes every column block into memory on Open, so its memory
// use grows with the segment's row count; a segment written by the
// engine's compaction holds every row its table buffered since the
// previous compaction.
type Reader struct {
	schema     schema.Schema
	rowCount   int
	vins       []shard.VIN
	timestamps []int64
	columns    []any
	cursor     int
	closer     func() error
}

// Open reads and validates path's header and footer against s, then
// decodes every column block.
func Open(path string, s schema.Schema) (*Reader, error) {
	data, closer, err := openData(path)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			closer()
		}
	}()

	if len(data) < 12+8 {
		return nil, ErrCorruption
	}
	if binary.LittleEndian.Uint32(data[0:4]) != magic {
		return nil, ErrCorruption
	}
	rowCount := int(binary.LittleEndian.Uint32(data[4:8]))
	digest := binary.LittleEndian.Uint32(data[8:12])
	if digest != s.Digest() {
		return nil, fmt.Errorf("%w: schema digest mismatch", ErrCorruption)
	}

	trailer := data[len(data)-8:]
	footerStart := binary.LittleEndian.Uint32(trailer[0:4])
	footerUncompSize := binary.LittleEndian.Uint32(trailer[4:8])
	if int(footerStart) > len(data)-8 {
		return nil, ErrCorruption
	}
	compFooter := data[footerStart : len(data)-8]
	footer := make([]byte, footerUncompSize)
	if err := compr.Decompression("zstd").Decompress(compFooter, footer); err != nil {
		return nil, fmt.Errorf("%w: footer: %v", ErrCorruption, err)
	}
	numCols := 2 + len(s.Columns)
	if len(footer) != numCols*columnDescSize {
		return nil, ErrCorruption
	}
	descs := make([]columnDesc, numCols)
	for i := range descs {
		b := footer[i*columnDescSize:]
		descs[i] = columnDesc{
			offset:     binary.LittleEndian.Uint32(b[0:4]),
			compSize:   binary.LittleEndian.Uint32(b[4:8]),
			uncompSize: binary.LittleEndian.Uint32(b[8:12]),
			codec:      codec(b[12]),
		}
	}

	blockBytes := func(d columnDesc) ([]byte, error) {
		end := uint64(d.offset) + uint64(d.compSize)
		if end > uint64(len(data)) {
			return nil, ErrCorruption
		}
		return data[d.offset:end], nil
	}

	vinBlob, err := blockBytes(descs[0])
	if err != nil {
		return nil, err
	}
	if len(vinBlob) != rowCount*shard.VINLength {
		return nil, ErrCorruption
	}
	vins := make([]shard.VIN, rowCount)
	for i := range vins {
		copy(vins[i][:], vinBlob[i*shard.VINLength:])
	}

	tsBlob, err := blockBytes(descs[1])
	if err != nil {
		return nil, err
	}
	if len(tsBlob) != rowCount*8 {
		return nil, ErrCorruption
	}
	timestamps := make([]int64, rowCount)
	for i := range timestamps {
		timestamps[i] = int64(binary.LittleEndian.Uint64(tsBlob[i*8:]))
	}

	columns := make([]any, len(s.Columns))
	for ci, col := range s.Columns {
		blob, err := blockBytes(descs[2+ci])
		if err != nil {
			return nil, err
		}
		v, err := decodeColumn(col, descs[2+ci], blob, rowCount)
		if err != nil {
			return nil, err
		}
		columns[ci] = v
	}

	ok = true
	return &Reader{
		schema:     s,
		rowCount:   rowCount,
		vins:       vins,
		timestamps: timestamps,
		columns:    columns,
		closer:     closer,
	}, nil
}

func decodeColumn(col schema.Column, d columnDesc, blob []byte, n int) (any, error) {
	switch col.Type {
	case schema.Int32:
		switch d.codec {
		case codecSimple8b:
			xs, err := intcodec.DecodeSimple8b(blob, n)
			if err != nil {
				return nil, fmt.Errorf("segment: column %q: %w", col.Name, err)
			}
			return xs, nil
		case codecRLE:
			xs64, err := intcodec.DecodeRLE(blob, n)
			if err != nil {
				return nil, fmt.Errorf("segment: column %q: %w", col.Name, err)
			}
			xs := make([]int32, n)
			for i, v := range xs64 {
				xs[i] = int32(v)
			}
			return xs, nil
		default:
			return nil, fmt.Errorf("%w: column %q: unexpected codec %d", ErrCorruption, col.Name, d.codec)
		}

	case schema.Float64:
		if d.codec != codecGorilla {
			return nil, fmt.Errorf("%w: column %q: unexpected codec %d", ErrCorruption, col.Name, d.codec)
		}
		bits, err := floatcodec.DecodeGorilla[uint64](blob)
		if err != nil {
			return nil, fmt.Errorf("segment: column %q: %w", col.Name, err)
		}
		xs := make([]float64, len(bits))
		for i, b := range bits {
			xs[i] = math.Float64frombits(b)
		}
		return xs, nil

	case schema.Bytes:
		if d.codec != codecS2 {
			return nil, fmt.Errorf("%w: column %q: unexpected codec %d", ErrCorruption, col.Name, d.codec)
		}
		raw := make([]byte, d.uncompSize)
		dec := compr.Decompression("s2")
		if err := dec.Decompress(blob, raw); err != nil {
			return nil, fmt.Errorf("segment: column %q: %w", col.Name, err)
		}
		xs := make([][]byte, n)
		pos := 0
		for i := 0; i < n; i++ {
			if pos+4 > len(raw) {
				return nil, fmt.Errorf("%w: column %q: truncated bytes block", ErrCorruption, col.Name)
			}
			l := int(binary.LittleEndian.Uint32(raw[pos:]))
			pos += 4
			if pos+l > len(raw) {
				return nil, fmt.Errorf("%w: column %q: truncated bytes block", ErrCorruption, col.Name)
			}
			xs[i] = raw[pos : pos+l]
			pos += l
		}
		return xs, nil

	default:
		return nil, fmt.Errorf("%w: column %q: unknown type %v", ErrCorruption, col.Name, col.Type)
	}
}

// Close releases the reader's backing storage (unmaps the file on
// platforms where Open mmap'd it).
func (r *Reader) Close() error { return r.closer() }

// RowCount returns the number of rows in the segment.
func (r *Reader) RowCount() int { return r.rowCount }

// SeekToFirst repositions the read cursor at row 0.
func (r *Reader) SeekToFirst() { r.cursor = 0 }

// SeekToOrdinal repositions the read cursor at row n.
func (r *Reader) SeekToOrdinal(n int) { r.cursor = n }

func (r *Reader) rowAt(i int) row.Row {
	cols := make([]any, len(r.schema.Columns))
	for ci, col := range r.schema.Columns {
		switch col.Type {
		case schema.Int32:
			cols[ci] = r.columns[ci].([]int32)[i]
		case schema.Float64:
			cols[ci] = r.columns[ci].([]float64)[i]
		case schema.Bytes:
			cols[ci] = r.columns[ci].([][]byte)[i]
		}
	}
	return row.Row{VIN: r.vins[i], Timestamp: r.timestamps[i], Columns: cols}
}

// NextBatch materializes up to count rows starting at the cursor,
// advancing it by the number actually returned.
func (r *Reader) NextBatch(count int) (Block, int, error) {
	start := r.cursor
	end := start + count
	if end > r.rowCount {
		end = r.rowCount
	}
	if start >= end {
		return Block{}, 0, nil
	}
	blk := Block{
		VINs:       append([]shard.VIN(nil), r.vins[start:end]...),
		Timestamps: append([]int64(nil), r.timestamps[start:end]...),
		Columns:    make([]any, len(r.schema.Columns)),
	}
	for ci, col := range r.schema.Columns {
		switch col.Type {
		case schema.Int32:
			blk.Columns[ci] = append([]int32(nil), r.columns[ci].([]int32)[start:end]...)
		case schema.Float64:
			blk.Columns[ci] = append([]float64(nil), r.columns[ci].([]float64)[start:end]...)
		case schema.Bytes:
			blk.Columns[ci] = append([][]byte(nil), r.columns[ci].([][]byte)[start:end]...)
		}
	}
	r.cursor = end
	return blk, end - start, nil
}

// vinBounds returns the half-open [lo, hi) index range of rows whose VIN
// equals v, via binary search over the ascending VIN column.
func (r *Reader) vinBounds(v shard.VIN) (int, int) {
	lo := sort.Search(r.rowCount, func(i int) bool { return !vinLess(r.vins[i], v) })
	hi := sort.Search(r.rowCount, func(i int) bool { return vinLess(v, r.vins[i]) })
	return lo, hi
}

func vinLess(a, b shard.VIN) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// HandleLatestQuery returns the row with the greatest timestamp for vin,
// or false if vin has no rows in this segment. Rows for a given VIN are
// contiguous and timestamp-ascending, so the answer is the last row in
// the VIN's bound range.
func (r *Reader) HandleLatestQuery(v shard.VIN) (row.Row, bool, error) {
	lo, hi := r.vinBounds(v)
	if lo >= hi {
		return row.Row{}, false, nil
	}
	return r.rowAt(hi - 1), true, nil
}

// HandleTimeRangeQuery returns every row for vin with lo <= timestamp < hi.
func (r *Reader) HandleTimeRangeQuery(v shard.VIN, lo, hi int64) ([]row.Row, error) {
	start, end := r.vinBounds(v)
	var out []row.Row
	for i := start; i < end; i++ {
		t := r.timestamps[i]
		if t >= lo && t < hi {
			out = append(out, r.rowAt(i))
		}
	}
	return out, nil
}
