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

package table

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
)

// readRawRow reads one record in row.AppendRaw's layout from r,
// attaching vin (the shard file's own VIN, implied by its path rather
// than stored in the stream). It returns io.EOF only when r is
// exhausted exactly at a record boundary.
func readRawRow(r io.Reader, s schema.Schema, vin shard.VIN) (row.Row, error) {
	var tsBuf [8]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		return row.Row{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(tsBuf[:]))

	cols := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		switch c.Type {
		case schema.Int32:
			var b [4]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return row.Row{}, unexpectedIfEOF(err)
			}
			cols[i] = int32(binary.LittleEndian.Uint32(b[:]))
		case schema.Float64:
			var b [8]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return row.Row{}, unexpectedIfEOF(err)
			}
			cols[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
		case schema.Bytes:
			var lb [4]byte
			if _, err := io.ReadFull(r, lb[:]); err != nil {
				return row.Row{}, unexpectedIfEOF(err)
			}
			l := binary.LittleEndian.Uint32(lb[:])
			buf := make([]byte, l)
			if _, err := io.ReadFull(r, buf); err != nil {
				return row.Row{}, unexpectedIfEOF(err)
			}
			cols[i] = buf
		}
	}
	return row.Row{VIN: vin, Timestamp: ts, Columns: cols}, nil
}

func unexpectedIfEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
