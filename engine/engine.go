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

// Package engine is the single entry point embedding applications use:
// Connect a database rooted at a directory, CreateTable, Upsert rows,
// and run the two query shapes, with state surviving a clean
// Shutdown/Connect cycle.
//
// Engine owns every Table and the thread pool; process-wide state that
// the original implementation kept in global arrays lives here instead,
// allocated at Connect and released at Shutdown. There is no hidden
// singleton: two Engines can coexist, rooted at different directories.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sjyango/vintsdb/internal/pool"
	"github.com/sjyango/vintsdb/memtable"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
	"github.com/sjyango/vintsdb/table"
)

const schemaFile = "schema"

// tableEntry bundles the per-table state the Engine owns: its schema,
// its durable writer/reader (table.Table), and a memtable accumulating
// rows ahead of an explicit CompactTable call.
type tableEntry struct {
	dir    string
	schema schema.Schema

	tbl *table.Table

	memMu sync.Mutex
	mem   *memtable.MemTable
}

// Engine is a connected database rooted at a directory.
type Engine struct {
	root string
	opts Options
	pool *pool.Pool

	mu       sync.RWMutex
	tables   map[string]*tableEntry
	shutdown bool
}

// Connect opens (or initializes) the database rooted at root. Existing
// tables — subdirectories containing a schema file — are loaded along
// with their persisted latest_records snapshot, if any.
func Connect(root string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("engine: %w: %v", ErrIO, err)
	}

	e := &Engine{
		root:   root,
		opts:   opts,
		pool:   pool.New(opts.Workers),
		tables: make(map[string]*tableEntry),
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(root, de.Name())
		sp := filepath.Join(dir, schemaFile)
		if _, err := os.Stat(sp); err != nil {
			continue
		}
		s, err := schema.Load(sp)
		if err != nil {
			return nil, fmt.Errorf("engine: table %q: %w: %v", de.Name(), ErrInvalidSchema, err)
		}
		tbl, err := table.New(dir, s)
		if err != nil {
			return nil, fmt.Errorf("engine: table %q: %w", de.Name(), err)
		}
		if err := loadLatestRecords(dir, s, tbl); err != nil {
			return nil, fmt.Errorf("engine: table %q: %w", de.Name(), err)
		}
		e.tables[de.Name()] = &tableEntry{dir: dir, schema: s, tbl: tbl, mem: memtable.New(s)}
	}
	return e, nil
}

// CreateTable declares a new table with a fixed schema. It fails with
// ErrDuplicate if name already exists.
func (e *Engine) CreateTable(name string, s schema.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return ErrState
	}
	if _, exists := e.tables[name]; exists {
		return ErrDuplicate
	}

	dir := filepath.Join(e.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	if err := s.Save(filepath.Join(dir, schemaFile)); err != nil {
		return fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	tbl, err := table.New(dir, s)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.tables[name] = &tableEntry{dir: dir, schema: s, tbl: tbl, mem: memtable.New(s)}
	return nil
}

// lookup returns the entry for name, or ErrNotFound.
func (e *Engine) lookup(name string) (*tableEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.shutdown {
		return nil, ErrState
	}
	entry, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("engine: table %q: %w", name, ErrNotFound)
	}
	return entry, nil
}

// Upsert writes req.Rows to req.Table, updating each VIN's latest-row
// cache and appending to the corresponding shard streams, and buffers
// the rows in the table's memtable for later compaction.
func (e *Engine) Upsert(req WriteRequest) error {
	entry, err := e.lookup(req.Table)
	if err != nil {
		return err
	}
	for _, r := range req.Rows {
		if err := row.Validate(entry.schema, r); err != nil {
			return fmt.Errorf("engine: %w: %v", ErrInvalidSchema, err)
		}
	}
	if err := entry.tbl.Append(req.Rows); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	entry.memMu.Lock()
	err = entry.mem.Insert(req.Rows)
	entry.memMu.Unlock()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// Shutdown stops the thread pool, closes every table's append streams,
// and persists each table's latest_records snapshot. It is idempotent:
// a second call returns nil without doing anything. Persisting
// latest_records is always attempted for every table, even if closing
// an earlier table's streams failed.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil
	}
	e.shutdown = true
	tables := make(map[string]*tableEntry, len(e.tables))
	for name, entry := range e.tables {
		tables[name] = entry
	}
	e.mu.Unlock()

	e.pool.Shutdown()

	var firstErr error
	for name, entry := range tables {
		if err := entry.tbl.Close(); err != nil {
			e.opts.Logger.Printf("close table %q: %v", name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("engine: table %q: %w: %v", name, ErrIO, err)
			}
		}
	}
	for name, entry := range tables {
		if err := saveLatestRecords(entry.dir, entry.schema, entry.tbl); err != nil {
			e.opts.Logger.Printf("persist latest_records for %q: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
