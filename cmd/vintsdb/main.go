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

// Command vintsdb is a thin CLI driver over the engine package: each
// invocation connects to a database rooted at a directory, performs one
// operation, shuts down, and exits 0 on success or non-zero on the
// first failure, preserving the "0 ok / non-zero error" contract spec.md
// describes for the test harness this replaces.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sjyango/vintsdb/engine"
	"github.com/sjyango/vintsdb/internal/shard"
	"github.com/sjyango/vintsdb/schema"
)

var (
	dashv       bool
	dashh       bool
	dashWorkers int
	dashColumns string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.IntVar(&dashWorkers, "workers", 0, "thread pool size (default: engine default)")
	flag.StringVar(&dashColumns, "columns", "", "comma-separated column projection (default: all)")
}

func exitf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func logf(f string, args ...any) {
	if dashv {
		fmt.Fprintf(os.Stderr, f+"\n", args...)
	}
}

func connect(root string) *engine.Engine {
	e, err := engine.Connect(root, engine.Options{Workers: dashWorkers})
	if err != nil {
		exitf("connect %s: %s", root, err)
	}
	return e
}

func columns() []string {
	if dashColumns == "" {
		return nil
	}
	return strings.Split(dashColumns, ",")
}

func parseVIN(s string) shard.VIN {
	var v shard.VIN
	if len(s) != shard.VINLength {
		exitf("vin %q must be exactly %d bytes", s, shard.VINLength)
	}
	copy(v[:], s)
	return v
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		exitf("invalid integer %q: %s", s, err)
	}
	return n
}

// entry point for 'vintsdb create <root> <table> <schema-file>'
func cmdCreate(root, table, schemaPath string) {
	e := connect(root)
	defer e.Shutdown()
	s := loadSchema(schemaPath)
	if err := e.CreateTable(table, s); err != nil {
		exitf("createTable %s: %s", table, err)
	}
	logf("created table %q with %d columns", table, len(s.Columns))
}

// entry point for 'vintsdb upsert <root> <table> <rows.json>'
func cmdUpsert(root, table, rowsPath string) {
	e := connect(root)
	defer e.Shutdown()
	s := loadSchema(tableSchemaPath(root, table))
	rows := loadRows(rowsPath, s)
	if err := e.Upsert(engine.WriteRequest{Table: table, Rows: rows}); err != nil {
		exitf("upsert %s: %s", table, err)
	}
	logf("upserted %d rows into %q", len(rows), table)
}

// entry point for 'vintsdb latest <root> <table> <vin>...'
func cmdLatest(root, table string, vins []string) {
	e := connect(root)
	defer e.Shutdown()
	req := engine.LatestQueryRequest{Table: table, Columns: columns()}
	for _, v := range vins {
		req.VINs = append(req.VINs, parseVIN(v))
	}
	out, err := e.ExecuteLatestQuery(req)
	if err != nil {
		exitf("executeLatestQuery %s: %s", table, err)
	}
	printRows(out)
}

// entry point for 'vintsdb range <root> <table> <vin> <lower> <upper>'
func cmdRange(root, table, vin, lower, upper string) {
	e := connect(root)
	defer e.Shutdown()
	req := engine.TimeRangeQueryRequest{
		Table:   table,
		VIN:     parseVIN(vin),
		Lower:   parseInt64(lower),
		Upper:   parseInt64(upper),
		Columns: columns(),
	}
	out, err := e.ExecuteTimeRangeQuery(req)
	if err != nil {
		exitf("executeTimeRangeQuery %s: %s", table, err)
	}
	printRows(out)
}

func loadSchema(path string) schema.Schema {
	s, err := schema.Load(path)
	if err != nil {
		exitf("load schema %s: %s", path, err)
	}
	return s
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 || dashh {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s create <root> <table> <schema-file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        declare a new table from a schema catalog file\n")
		fmt.Fprintf(os.Stderr, "    %s upsert <root> <table> <rows.json>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        write a batch of rows described in a JSON file\n")
		fmt.Fprintf(os.Stderr, "    %s latest <root> <table> <vin>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        print each VIN's latest row\n")
		fmt.Fprintf(os.Stderr, "    %s range <root> <table> <vin> <lower> <upper>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        print every row of vin in [lower, upper)\n")
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.Usage()
		os.Exit(1)
	}

	switch args[0] {
	case "create":
		if len(args) != 4 {
			exitf("usage: create <root> <table> <schema-file>")
		}
		cmdCreate(args[1], args[2], args[3])
	case "upsert":
		if len(args) != 4 {
			exitf("usage: upsert <root> <table> <rows.json>")
		}
		cmdUpsert(args[1], args[2], args[3])
	case "latest":
		if len(args) < 3 {
			exitf("usage: latest <root> <table> <vin>...")
		}
		cmdLatest(args[1], args[2], args[3:])
	case "range":
		if len(args) != 6 {
			exitf("usage: range <root> <table> <vin> <lower> <upper>")
		}
		cmdRange(args[1], args[2], args[3], args[4], args[5])
	default:
		exitf("unknown subcommand %q", args[0])
	}
}
