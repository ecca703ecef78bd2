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

// Package table is the hot write/read path for a single table: an
// in-memory "latest row per VIN" array backed by append-only shard files
// on disk, addressed by (vin_num, time_bucket). The VIN -> vin_num
// assignment a Table hands out is itself durable (vin_registry), so a
// VIN always finds its own shard files again after a restart.
//
// A Table does not itself own flushing to segment files or schema
// persistence; the engine package composes Table with memtable/segment
// for that. Table itself makes one thing durable: every row ever
// appended, recoverable by scanning its time bucket. The latest row per
// VIN is held in memory only; the engine writes it out (EachLatest) and
// restores it (SetLatest) through its latest_records file.
package table

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
)

// bucketKey identifies one (vin_num, time_bucket) append stream.
type bucketKey struct {
	vinNum int
	bucket int
}

// Table holds the shard locks, the open append-stream handles, and the
// in-memory latest-row array for one table rooted at a directory.
type Table struct {
	root     string
	schema   schema.Schema
	registry *shard.Registry

	registryLogMu sync.Mutex
	registryLog   *os.File

	latestMu  []sync.RWMutex
	latest    []row.Row
	hasLatest []bool

	streamsMu sync.Mutex
	streams   map[bucketKey]*streamHandle
}

type streamHandle struct {
	mu sync.RWMutex
	f  *os.File
}

// New creates a Table rooted at dir for rows conforming to s. The
// directory is created if absent. Any VIN -> vin_num assignments
// recorded in a previous run's vin_registry log are replayed first, so
// a VIN resolves to the same vin_num (and therefore the same shard
// append-stream path) across a restart. The latest-row array itself
// starts empty; callers restoring a persisted latest_records file
// should populate it via SetLatest before serving queries.
func New(dir string, s schema.Schema) (*Table, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	t := &Table{
		root:      dir,
		schema:    s,
		registry:  shard.NewRegistry(),
		latestMu:  make([]sync.RWMutex, shard.VINRangeLength),
		latest:    make([]row.Row, shard.VINRangeLength),
		hasLatest: make([]bool, shard.VINRangeLength),
		streams:   make(map[bucketKey]*streamHandle),
	}
	if err := t.loadRegistryLog(dir); err != nil {
		return nil, err
	}
	if err := t.openRegistryLog(dir); err != nil {
		return nil, err
	}
	return t, nil
}

// SetLatest seeds the in-memory latest-row array for vinNum, bypassing
// the normal "only replace if newer" comparison, and records r.VIN as
// vinNum's registry assignment. Used during recovery to load a
// previously persisted latest_records file, so a known VIN keeps the
// same vin_num across a restart.
func (t *Table) SetLatest(vinNum int, r row.Row) error {
	if err := t.registry.Assign(r.VIN, vinNum); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	t.latestMu[vinNum].Lock()
	t.latest[vinNum] = r
	t.hasLatest[vinNum] = true
	t.latestMu[vinNum].Unlock()
	return nil
}

// EachLatest calls fn once for every vin_num that currently holds a
// latest row, in vin_num order. Used to serialize the latest_records
// file at shutdown.
func (t *Table) EachLatest(fn func(vinNum int, r row.Row)) {
	for i := range t.latest {
		t.latestMu[i].RLock()
		has := t.hasLatest[i]
		r := t.latest[i]
		t.latestMu[i].RUnlock()
		if has {
			fn(i, r)
		}
	}
}

// Append writes rows to the table. For each row it first updates the
// latest-row cell for its VIN if the row is at least as new (so a later
// write of an equal timestamp wins), then appends it to the shard file
// for its (vin_num, time_bucket).
//
// Rows need not be presented sorted or grouped by VIN; each row is
// independently routed.
func (t *Table) Append(rows []row.Row) error {
	for _, r := range rows {
		if err := row.Validate(t.schema, r); err != nil {
			return err
		}
		vinNum, isNew, err := t.registry.ResolveNew(r.VIN)
		if err != nil {
			return fmt.Errorf("table: %w", err)
		}
		if isNew {
			if err := t.appendRegistryEntry(r.VIN, vinNum); err != nil {
				return err
			}
		}
		bucket := shard.Bucket(r.Timestamp)
		if bucket < 0 {
			return fmt.Errorf("table: timestamp %d out of addressable range", r.Timestamp)
		}

		t.latestMu[vinNum].Lock()
		if !t.hasLatest[vinNum] || r.Timestamp >= t.latest[vinNum].Timestamp {
			t.latest[vinNum] = r
			t.hasLatest[vinNum] = true
		}
		t.latestMu[vinNum].Unlock()

		if err := t.appendToStream(vinNum, bucket, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) appendToStream(vinNum, bucket int, r row.Row) error {
	h, err := t.streamFor(vinNum, bucket, r.VIN)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := row.AppendRaw(make([]byte, 0, row.RawSize(t.schema, r)), t.schema, r)
	_, err = h.f.Write(buf)
	return err
}

// streamFor returns the open append handle for (vinNum, bucket),
// opening it (and its parent directory) on first use.
func (t *Table) streamFor(vinNum, bucket int, v shard.VIN) (*streamHandle, error) {
	key := bucketKey{vinNum: vinNum, bucket: bucket}

	t.streamsMu.Lock()
	h, ok := t.streams[key]
	if ok {
		t.streamsMu.Unlock()
		return h, nil
	}
	h = &streamHandle{}
	t.streams[key] = h
	t.streamsMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f != nil {
		return h, nil
	}
	path := shard.AppendPath(t.root, v, vinNum)(bucket)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	h.f = f
	return h, nil
}

// Latest returns the most recently appended row for vin, if any.
func (t *Table) Latest(vin shard.VIN) (row.Row, bool) {
	vinNum, ok := t.registry.Lookup(vin)
	if !ok {
		return row.Row{}, false
	}
	t.latestMu[vinNum].RLock()
	defer t.latestMu[vinNum].RUnlock()
	if !t.hasLatest[vinNum] || t.latest[vinNum].VIN != vin {
		return row.Row{}, false
	}
	return t.latest[vinNum], true
}

// TimeRange returns every row recorded for vin with lower <= timestamp <
// upper, ascending by timestamp. Where the same timestamp was appended
// more than once, only the most recently appended row for it is returned.
//
// It computes the bucket range [bucket(lower), bucket(upper-1)],
// clamped to the addressable range, and scans each bucket's shard file
// in turn. A bucket whose shard file does not exist contributes no rows.
func (t *Table) TimeRange(vin shard.VIN, lower, upper int64) ([]row.Row, error) {
	if upper <= lower {
		return nil, nil
	}
	// Bucket ids are computed here rather than with shard.Bucket, which
	// maps both ends of the out-of-range spectrum to the same -1.
	startBucket := 0
	if lower > 0 {
		startBucket = int(min(lower/shard.TimeRangeWidth, shard.TimeRangeBuckets))
	}
	endBucket := int(min((upper-1)/shard.TimeRangeWidth, shard.TimeRangeBuckets-1))
	if startBucket >= shard.TimeRangeBuckets || startBucket > endBucket {
		return nil, nil
	}

	vinNum, ok := t.registry.Lookup(vin)
	if !ok {
		return nil, nil
	}
	pathFor := shard.AppendPath(t.root, vin, vinNum)

	var out []row.Row
	for b := startBucket; b <= endBucket; b++ {
		rows, err := t.scanBucket(vinNum, b, vin, pathFor(b), lower, upper)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (t *Table) scanBucket(vinNum, bucket int, vin shard.VIN, path string, lower, upper int64) ([]row.Row, error) {
	t.streamsMu.Lock()
	h, ok := t.streams[bucketKey{vinNum: vinNum, bucket: bucket}]
	t.streamsMu.Unlock()

	var rl sync.Locker
	if ok {
		rl = h.mu.RLocker()
		rl.Lock()
		defer rl.Unlock()
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	defer f.Close()

	var out []row.Row
	// a later record for a timestamp already seen replaces the earlier one
	seen := make(map[int64]int)
	br := bufio.NewReader(f)
	for {
		r, err := readRawRow(br, t.schema, vin)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table: %w", err)
		}
		if r.Timestamp >= lower && r.Timestamp < upper {
			if i, dup := seen[r.Timestamp]; dup {
				out[i] = r
				continue
			}
			seen[r.Timestamp] = len(out)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// Close releases every open append-stream handle and the vin_registry
// log. It does not flush or fsync; callers that require durability
// should do so before Close.
func (t *Table) Close() error {
	t.streamsMu.Lock()
	var first error
	for _, h := range t.streams {
		if err := h.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	t.streamsMu.Unlock()

	t.registryLogMu.Lock()
	if err := t.registryLog.Close(); err != nil && first == nil {
		first = err
	}
	t.registryLogMu.Unlock()
	return first
}
