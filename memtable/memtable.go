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

// Package memtable holds recently-written rows in a sorted in-memory
// structure ahead of being flushed to an immutable segment file.
//
// MemTable is not safe for concurrent use; callers serialize access to a
// given MemTable themselves (the engine package does so with a mutex per
// table).
package memtable

import (
	"bytes"

	"golang.org/x/exp/slices"

	"github.com/sjyango/vintsdb/internal/arena"
	"github.com/sjyango/vintsdb/internal/skiplist"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
	"github.com/sjyango/vintsdb/segment"
)

func cmpKey(a, b row.Row) int {
	if c := bytes.Compare(a.VIN[:], b.VIN[:]); c != 0 {
		return c
	}
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	default:
		return 0
	}
}

// MemTable is a SkipList of rows keyed by (VIN, timestamp), ahead of
// being flushed into a segment.
//
// Node storage comes from the skip list's own arena.Pool (GC-safe
// fixed-size structs, see internal/skiplist). The variable-length
// Bytes column of each inserted row is different: it's caller-owned
// memory with no fixed size, and the memtable must keep its own
// durable copy rather than alias a buffer the caller may reuse or
// mutate after Insert returns. bytes is a plain byte-oriented
// arena.Arena dedicated to that copy, so those payloads are bump
// allocated rather than causing one small GC-tracked allocation per
// Bytes column per row.
type MemTable struct {
	schema schema.Schema
	list   *skiplist.SkipList[row.Row]
	bytes  *arena.Arena
}

// New creates an empty MemTable for rows conforming to s.
func New(s schema.Schema) *MemTable {
	return &MemTable{schema: s, list: skiplist.New(cmpKey), bytes: arena.New(0, 0, 0)}
}

// Size reports the cumulative bytes owned by the memtable: its skip
// list nodes plus its Bytes-column arena.
func (m *MemTable) Size() int { return m.list.Size() + m.bytes.Size() }

// copyBytesColumns returns a copy of r whose Bytes columns point into
// m's arena instead of the caller's buffers.
func (m *MemTable) copyBytesColumns(r row.Row) row.Row {
	hasBytes := false
	for _, c := range m.schema.Columns {
		if c.Type == schema.Bytes {
			hasBytes = true
			break
		}
	}
	if !hasBytes {
		return r
	}
	cols := make([]any, len(r.Columns))
	copy(cols, r.Columns)
	for i, c := range m.schema.Columns {
		if c.Type != schema.Bytes {
			continue
		}
		src := r.Columns[i].([]byte)
		dst := m.bytes.Alloc(len(src))
		copy(dst, src)
		cols[i] = dst
	}
	r.Columns = cols
	return r
}

// Insert adds rows to the memtable. Rows should be presented in
// ascending (VIN, timestamp) order, matching the SkipList's own
// comparator, though Insert does not require this of the input itself
// (each row finds its own position via the skip list's search).
// Duplicate keys follow last-writer-wins: a row whose (VIN, timestamp)
// already exists overwrites the previously stored row's column values.
func (m *MemTable) Insert(rows []row.Row) error {
	for _, r := range rows {
		if err := row.Validate(m.schema, r); err != nil {
			return err
		}
		r = m.copyBytesColumns(r)
		var hint skiplist.Hint[row.Row]
		if m.list.Find(r, &hint) {
			m.list.Replace(&hint, r)
			continue
		}
		m.list.InsertWithHint(r, false, &hint)
	}
	return nil
}

// Len reports the number of distinct (VIN, timestamp) keys currently
// held.
func (m *MemTable) Len() int {
	n := 0
	it := skiplist.NewIterator(m.list)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// Rows returns every row currently held, in ascending (VIN, timestamp)
// order.
func (m *MemTable) Rows() []row.Row {
	out := slices.Grow([]row.Row(nil), m.Len())
	it := skiplist.NewIterator(m.list)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		out = append(out, it.Key())
	}
	return out
}

// Flush writes every row held by the memtable to a new segment file at
// path and reports the number of rows written. The memtable is left
// intact; callers discard it themselves once Flush succeeds.
func (m *MemTable) Flush(path string) (int, error) {
	rows := m.Rows()
	w, err := segment.NewWriter(path, m.schema)
	if err != nil {
		return 0, err
	}
	if err := w.Append(rows); err != nil {
		return 0, err
	}
	if err := w.Finalize(); err != nil {
		return 0, err
	}
	return len(rows), nil
}
