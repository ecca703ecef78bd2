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

// Package row defines the record shape shared by every layer of the
// engine: a VIN, a timestamp, and a fixed-order slice of column values
// matching a table's schema.
package row

import (
	"errors"
	"fmt"

	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/schema"
)

// ErrSchemaMismatch is returned by Validate when a row's column values
// don't match its table's declared schema, either in count or in type.
var ErrSchemaMismatch = errors.New("row: column values do not match schema")

// Row is one record: a VIN, a timestamp, and one value per schema
// column, in schema order.
type Row struct {
	VIN       shard.VIN
	Timestamp int64
	Columns   []any // each element is int32, float64, or []byte
}

// Validate reports whether r's columns match s in count and type.
func Validate(s schema.Schema, r Row) error {
	if len(r.Columns) != len(s.Columns) {
		return fmt.Errorf("%w: row has %d columns, schema has %d", ErrSchemaMismatch, len(r.Columns), len(s.Columns))
	}
	for i, c := range s.Columns {
		v := r.Columns[i]
		ok := false
		switch c.Type {
		case schema.Int32:
			_, ok = v.(int32)
		case schema.Float64:
			_, ok = v.(float64)
		case schema.Bytes:
			_, ok = v.([]byte)
		}
		if !ok {
			return fmt.Errorf("%w: column %q (%s) holds %T", ErrSchemaMismatch, c.Name, c.Type, v)
		}
	}
	return nil
}

// Less orders rows by (VIN, timestamp) ascending, the order segments and
// append streams require.
func Less(a, b Row) bool {
	if c := compareVIN(a.VIN, b.VIN); c != 0 {
		return c < 0
	}
	return a.Timestamp < b.Timestamp
}

func compareVIN(a, b shard.VIN) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
