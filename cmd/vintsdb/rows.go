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

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sjyango/vintsdb/engine"
	"github.com/sjyango/vintsdb/row"
	"github.com/sjyango/vintsdb/schema"
)

func tableSchemaPath(root, table string) string {
	return filepath.Join(root, table, "schema")
}

// jsonRow is the on-the-wire shape a rows.json upsert batch uses: a
// 17-byte ASCII VIN, an integer timestamp, and one column value per
// schema column in order. Bytes columns are base64-encoded.
type jsonRow struct {
	VIN       string `json:"vin"`
	Timestamp int64  `json:"timestamp"`
	Raw       []any  `json:"columns"`
}

// loadRows decodes a JSON array of jsonRow objects from path into
// row.Row values conforming to s.
func loadRows(path string, s schema.Schema) []row.Row {
	data, err := os.ReadFile(path)
	if err != nil {
		exitf("read %s: %s", path, err)
	}
	var parsed []jsonRow
	if err := json.Unmarshal(data, &parsed); err != nil {
		exitf("parse %s: %s", path, err)
	}

	out := make([]row.Row, len(parsed))
	for i, jr := range parsed {
		out[i] = decodeJSONRow(jr, s)
	}
	return out
}

func decodeJSONRow(jr jsonRow, s schema.Schema) row.Row {
	r := row.Row{Timestamp: jr.Timestamp, Columns: make([]any, len(s.Columns))}
	if len(jr.VIN) != len(r.VIN) {
		exitf("vin %q must be exactly %d bytes", jr.VIN, len(r.VIN))
	}
	copy(r.VIN[:], jr.VIN)

	if len(jr.Raw) != len(s.Columns) {
		exitf("row for vin %q has %d columns, schema has %d", jr.VIN, len(jr.Raw), len(s.Columns))
	}
	for i, c := range s.Columns {
		v := jr.Raw[i]
		switch c.Type {
		case schema.Int32:
			n, ok := v.(float64)
			if !ok {
				exitf("column %q: expected a number, got %T", c.Name, v)
			}
			r.Columns[i] = int32(n)
		case schema.Float64:
			n, ok := v.(float64)
			if !ok {
				exitf("column %q: expected a number, got %T", c.Name, v)
			}
			r.Columns[i] = n
		case schema.Bytes:
			str, ok := v.(string)
			if !ok {
				exitf("column %q: expected a base64 string, got %T", c.Name, v)
			}
			b, err := base64.StdEncoding.DecodeString(str)
			if err != nil {
				exitf("column %q: invalid base64: %s", c.Name, err)
			}
			r.Columns[i] = b
		}
	}
	return r
}

// printRows writes query results as tab-separated "vin  timestamp
// name=value ..." lines, sorted columns within a row for stable output.
func printRows(rows []engine.Row) {
	for _, r := range rows {
		names := make([]string, 0, len(r.Values))
		for name := range r.Values {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Printf("%s\t%d", r.VIN.String(), r.Timestamp)
		for _, name := range names {
			fmt.Printf("\t%s=%v", name, r.Values[name])
		}
		fmt.Println()
	}
}
