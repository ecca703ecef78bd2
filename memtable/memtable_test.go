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

package memtable

import (
	"path/filepath"
	"testing"

	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
	"github.com/sjyango/vintsdb/segment"
)

func testSchema() schema.Schema {
	return schema.Schema{Columns: []schema.Column{
		{Name: "speed", Type: schema.Int32},
	}}
}

func vinOf(b byte) shard.VIN {
	var v shard.VIN
	for i := range v {
		v[i] = b
	}
	return v
}

func TestInsertAndLen(t *testing.T) {
	m := New(testSchema())
	rows := []row.Row{
		{VIN: vinOf('A'), Timestamp: 10, Columns: []any{int32(1)}},
		{VIN: vinOf('A'), Timestamp: 20, Columns: []any{int32(2)}},
		{VIN: vinOf('B'), Timestamp: 5, Columns: []any{int32(3)}},
	}
	if err := m.Insert(rows); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
}

func TestLastWriterWins(t *testing.T) {
	m := New(testSchema())
	v := vinOf('A')
	if err := m.Insert([]row.Row{{VIN: v, Timestamp: 10, Columns: []any{int32(1)}}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert([]row.Row{{VIN: v, Timestamp: 10, Columns: []any{int32(99)}}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (duplicate key should overwrite)", m.Len())
	}
	rows := m.Rows()
	if rows[0].Columns[0].(int32) != 99 {
		t.Fatalf("Columns[0] = %d, want 99 (later write should win)", rows[0].Columns[0])
	}
}

func TestRowsAscendingOrder(t *testing.T) {
	m := New(testSchema())
	in := []row.Row{
		{VIN: vinOf('C'), Timestamp: 1, Columns: []any{int32(0)}},
		{VIN: vinOf('A'), Timestamp: 50, Columns: []any{int32(0)}},
		{VIN: vinOf('A'), Timestamp: 10, Columns: []any{int32(0)}},
		{VIN: vinOf('B'), Timestamp: 5, Columns: []any{int32(0)}},
	}
	if err := m.Insert(in); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	out := m.Rows()
	for i := 1; i < len(out); i++ {
		if !row.Less(out[i-1], out[i]) {
			t.Fatalf("rows not ascending at %d: %v then %v", i, out[i-1], out[i])
		}
	}
}

func TestInsertRejectsSchemaMismatch(t *testing.T) {
	m := New(testSchema())
	bad := []row.Row{{VIN: vinOf('A'), Timestamp: 1, Columns: []any{"not an int32"}}}
	if err := m.Insert(bad); err == nil {
		t.Fatal("Insert with mismatched column type succeeded, want error")
	}
}

func bytesSchema() schema.Schema {
	return schema.Schema{Columns: []schema.Column{
		{Name: "speed", Type: schema.Int32},
		{Name: "label", Type: schema.Bytes},
	}}
}

// TestInsertCopiesBytesColumn checks that Insert takes its own copy of
// a Bytes column rather than aliasing the caller's buffer: mutating the
// buffer after Insert must not change what the memtable holds.
func TestInsertCopiesBytesColumn(t *testing.T) {
	m := New(bytesSchema())
	buf := []byte("original")
	if err := m.Insert([]row.Row{{VIN: vinOf('A'), Timestamp: 1, Columns: []any{int32(1), buf}}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	copy(buf, "mutated!")

	got := m.Rows()
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if string(got[0].Columns[1].([]byte)) != "original" {
		t.Fatalf("Columns[1] = %q, want %q (mutating caller's buffer must not leak in)", got[0].Columns[1], "original")
	}
	if m.Size() <= 0 {
		t.Fatalf("Size() = %d, want > 0 after inserting a Bytes column", m.Size())
	}
}

func TestFlush(t *testing.T) {
	s := testSchema()
	m := New(s)
	rows := []row.Row{
		{VIN: vinOf('A'), Timestamp: 10, Columns: []any{int32(1)}},
		{VIN: vinOf('A'), Timestamp: 20, Columns: []any{int32(2)}},
	}
	if err := m.Insert(rows); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	path := filepath.Join(t.TempDir(), "seg0")
	n, err := m.Flush(path)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 2 {
		t.Fatalf("Flush wrote %d rows, want 2", n)
	}

	r, err := segment.Open(path, s)
	if err != nil {
		t.Fatalf("segment.Open: %v", err)
	}
	defer r.Close()
	if r.RowCount() != 2 {
		t.Fatalf("segment RowCount() = %d, want 2", r.RowCount())
	}
}
