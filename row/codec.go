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

package row

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/schema"
)

// ErrTruncated is returned by the Decode* functions when data ends
// mid-record.
var ErrTruncated = fmt.Errorf("row: truncated record")

// AppendRaw appends r's timestamp and column payloads (but not its VIN,
// which append streams imply from their file path) to dst, in the exact
// layout the table package's shard files and the engine's latest_records
// file share: timestamp:int64_le, then per schema column in order
// int32_le | float64_le | int32_le length + bytes.
func AppendRaw(dst []byte, s schema.Schema, r Row) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(r.Timestamp))
	for i, c := range s.Columns {
		switch c.Type {
		case schema.Int32:
			dst = binary.LittleEndian.AppendUint32(dst, uint32(r.Columns[i].(int32)))
		case schema.Float64:
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(r.Columns[i].(float64)))
		case schema.Bytes:
			v := r.Columns[i].([]byte)
			dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
			dst = append(dst, v...)
		}
	}
	return dst
}

// DecodeRaw reverses AppendRaw, reading one record's timestamp and
// columns from the front of src and returning the number of bytes
// consumed. vin is supplied by the caller (the append stream's file
// path, or the VIN field already read from a latest_records entry).
func DecodeRaw(s schema.Schema, vin shard.VIN, src []byte) (Row, int, error) {
	if len(src) < 8 {
		return Row{}, 0, ErrTruncated
	}
	ts := int64(binary.LittleEndian.Uint64(src))
	pos := 8
	cols := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		switch c.Type {
		case schema.Int32:
			if pos+4 > len(src) {
				return Row{}, 0, ErrTruncated
			}
			cols[i] = int32(binary.LittleEndian.Uint32(src[pos:]))
			pos += 4
		case schema.Float64:
			if pos+8 > len(src) {
				return Row{}, 0, ErrTruncated
			}
			cols[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[pos:]))
			pos += 8
		case schema.Bytes:
			if pos+4 > len(src) {
				return Row{}, 0, ErrTruncated
			}
			l := int(binary.LittleEndian.Uint32(src[pos:]))
			pos += 4
			if pos+l > len(src) {
				return Row{}, 0, ErrTruncated
			}
			cols[i] = append([]byte(nil), src[pos:pos+l]...)
			pos += l
		}
	}
	return Row{VIN: vin, Timestamp: ts, Columns: cols}, pos, nil
}

// RawSize returns the exact encoded size of AppendRaw(nil, s, r), without
// allocating, for callers sizing a buffer up front.
func RawSize(s schema.Schema, r Row) int {
	n := 8
	for i, c := range s.Columns {
		switch c.Type {
		case schema.Int32:
			n += 4
		case schema.Float64:
			n += 8
		case schema.Bytes:
			n += 4 + len(r.Columns[i].([]byte))
		}
	}
	return n
}

// AppendLatestRecord appends r in the latest_records file's fixed entry
// format: vin[17] followed by AppendRaw's layout.
func AppendLatestRecord(dst []byte, s schema.Schema, r Row) []byte {
	dst = append(dst, r.VIN[:]...)
	return AppendRaw(dst, s, r)
}

// DecodeLatestRecord reverses AppendLatestRecord.
func DecodeLatestRecord(s schema.Schema, src []byte) (Row, int, error) {
	if len(src) < shard.VINLength {
		return Row{}, 0, ErrTruncated
	}
	var vin shard.VIN
	copy(vin[:], src[:shard.VINLength])
	r, n, err := DecodeRaw(s, vin, src[shard.VINLength:])
	if err != nil {
		return Row{}, 0, err
	}
	return r, shard.VINLength + n, nil
}
