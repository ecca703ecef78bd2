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

	"github.com/sjyango/vintsdb/memtable"
)

const segmentsDir = "segments"

// CompactTable flushes every row buffered in name's memtable since the
// last compaction into a new immutable segment file under
// <table_dir>/segments, and resets the memtable.
//
// Queries never read segment files directly (latest and range queries
// are served from the in-memory latest cache and the shard append
// streams, per the table package); compaction exists so the columnar,
// compressed segment format is reachable as an explicit maintenance
// step rather than dead code, and so long-lived tables have a path to
// reclaim the memtable's memory.
func (e *Engine) CompactTable(name string) (string, error) {
	entry, err := e.lookup(name)
	if err != nil {
		return "", err
	}

	entry.memMu.Lock()
	defer entry.memMu.Unlock()
	if entry.mem.Len() == 0 {
		return "", nil
	}

	dir := filepath.Join(entry.dir, segmentsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	path := filepath.Join(dir, uuid.New().String()+".seg")
	if _, err := entry.mem.Flush(path); err != nil {
		return "", fmt.Errorf("engine: %w", err)
	}
	entry.mem = memtable.New(entry.schema)
	return path, nil
}
