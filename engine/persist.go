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

package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
	"github.com/sjyango/vintsdb/table"
)

const latestRecordsFile = "latest_records"

// zeroRow is the placeholder record written for a vin_num slot that has
// never been written, matching the "timestamp == 0 if none" invariant
// for LatestRecord.
func zeroRow(s schema.Schema) row.Row {
	cols := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		switch c.Type {
		case schema.Int32:
			cols[i] = int32(0)
		case schema.Float64:
			cols[i] = float64(0)
		case schema.Bytes:
			cols[i] = []byte{}
		}
	}
	return row.Row{Columns: cols}
}

// saveLatestRecords writes every vin_num slot of t's in-memory latest
// array, in order, to dir/latest_records, using a temp-file-then-rename
// so a crash mid-write never corrupts the previous snapshot.
func saveLatestRecords(dir string, s schema.Schema, t *table.Table) error {
	latest := make(map[int]row.Row, shard.VINRangeLength)
	t.EachLatest(func(vinNum int, r row.Row) { latest[vinNum] = r })

	zero := zeroRow(s)
	buf := make([]byte, 0, shard.VINRangeLength*(shard.VINLength+8))
	for vinNum := 0; vinNum < shard.VINRangeLength; vinNum++ {
		r, ok := latest[vinNum]
		if !ok {
			r = zero
		}
		buf = row.AppendLatestRecord(buf, s, r)
	}
	return atomicWriteFile(filepath.Join(dir, latestRecordsFile), buf)
}

// loadLatestRecords restores t's in-memory latest array from a snapshot
// previously written by saveLatestRecords. A missing file is not an
// error: connect leaves the latest array zero-filled, per spec.
func loadLatestRecords(dir string, s schema.Schema, t *table.Table) error {
	data, err := os.ReadFile(filepath.Join(dir, latestRecordsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	pos := 0
	for vinNum := 0; vinNum < shard.VINRangeLength; vinNum++ {
		r, n, err := row.DecodeLatestRecord(s, data[pos:])
		if err != nil {
			return fmt.Errorf("engine: %w: %v", ErrCorruption, err)
		}
		pos += n
		if r.Timestamp != 0 {
			if err := t.SetLatest(vinNum, r); err != nil {
				return fmt.Errorf("engine: %w: %v", ErrCorruption, err)
			}
		}
	}
	return nil
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, ".tmp-"+uuid.New().String())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	return nil
}
