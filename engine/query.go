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
	"bytes"
	"fmt"
	"sort"

	"github.com/sjyango/vintsdb/internal/pool"
	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
)

// Row is one query result: a VIN, a timestamp, and its columns
// projected down to the caller's requested subset, keyed by name (the
// data model's "columns: map<name->value>" view, as opposed to row.Row's
// positional, full-schema view used internally).
type Row struct {
	VIN       shard.VIN
	Timestamp int64
	Values    map[string]any
}

// WriteRequest is the argument to Upsert.
type WriteRequest struct {
	Table string
	Rows  []row.Row
}

// LatestQueryRequest is the argument to ExecuteLatestQuery. An empty
// Columns projects every schema column.
type LatestQueryRequest struct {
	Table   string
	VINs    []shard.VIN
	Columns []string
}

// TimeRangeQueryRequest is the argument to ExecuteTimeRangeQuery. The
// range is half-open: Lower <= timestamp < Upper. An empty Columns
// projects every schema column.
type TimeRangeQueryRequest struct {
	Table   string
	VIN     shard.VIN
	Lower   int64
	Upper   int64
	Columns []string
}

// ExecuteLatestQuery returns, for each requested VIN that has ever been
// written, its row with the greatest timestamp, sorted ascending by
// VIN. VINs never written are silently omitted from the result.
//
// One task per VIN is submitted to the engine's thread pool
// unconditionally (no branch on whether the table has been persisted to
// disk yet); results are collected by waiting on each future in turn,
// which serializes the append to the output slice without needing an
// explicit spin lock around it.
func (e *Engine) ExecuteLatestQuery(req LatestQueryRequest) ([]Row, error) {
	entry, err := e.lookup(req.Table)
	if err != nil {
		return nil, err
	}

	futures := make([]*pool.Future, len(req.VINs))
	for i, v := range req.VINs {
		v := v
		futures[i] = e.pool.Submit(func() (any, error) {
			r, ok := entry.tbl.Latest(v)
			if !ok {
				return nil, nil
			}
			return projectRow(entry.schema, r, req.Columns), nil
		})
	}

	out := make([]Row, 0, len(futures))
	for _, fut := range futures {
		res, err := fut.Wait()
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if res == nil {
			continue
		}
		out = append(out, res.(Row))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].VIN[:], out[j].VIN[:]) < 0
	})
	return out, nil
}

// ExecuteTimeRangeQuery returns every row of req.VIN with
// req.Lower <= timestamp < req.Upper, ascending by timestamp, projected
// to req.Columns. Lower == Upper returns an empty result.
func (e *Engine) ExecuteTimeRangeQuery(req TimeRangeQueryRequest) ([]Row, error) {
	entry, err := e.lookup(req.Table)
	if err != nil {
		return nil, err
	}
	if req.Upper <= req.Lower {
		return nil, nil
	}
	rows, err := entry.tbl.TimeRange(req.VIN, req.Lower, req.Upper)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = projectRow(entry.schema, r, req.Columns)
	}
	return out, nil
}

func projectRow(s schema.Schema, r row.Row, columns []string) Row {
	vals := make(map[string]any)
	if len(columns) == 0 {
		for i, c := range s.Columns {
			vals[c.Name] = r.Columns[i]
		}
	} else {
		for _, name := range columns {
			if idx := s.IndexOf(name); idx >= 0 {
				vals[name] = r.Columns[idx]
			}
		}
	}
	return Row{VIN: r.VIN, Timestamp: r.Timestamp, Values: vals}
}
