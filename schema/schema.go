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

// Package schema describes a table's fixed column layout and its
// on-disk catalog file, an ASCII format chosen so the table root can be
// inspected without any tooling beyond a text editor.
package schema

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Type identifies the wire/storage representation of a column's values.
type Type int

const (
	Int32 Type = iota
	Float64
	Bytes
)

func (t Type) String() string {
	switch t {
	case Int32:
		return "Int32"
	case Float64:
		return "Float64"
	case Bytes:
		return "Bytes"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Column is one (name, type) pair in a table's schema.
type Column struct {
	Name string
	Type Type
}

// Schema is a table's fixed, ordered column list. It is immutable once a
// table is created — this package has no notion of schema evolution.
type Schema struct {
	Columns []Column
}

// ErrInvalidSchema is returned by Load when the catalog file is malformed
// or names an unknown type id.
var ErrInvalidSchema = fmt.Errorf("schema: invalid schema file")

// IndexOf returns the ordinal of the named column, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Save writes the schema to path in the catalog's ASCII format:
// "<n> <name_0> <type_0> ... <name_n-1> <type_n-1>".
func (s Schema) Save(path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", len(s.Columns))
	for _, c := range s.Columns {
		fmt.Fprintf(&b, " %s %d", c.Name, int(c.Type))
	}
	b.WriteByte('\n')
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Load reads a schema previously written by Save.
func Load(path string) (Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return Schema{}, fmt.Errorf("schema: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	readInt := func() (int, bool) {
		if !sc.Scan() {
			return 0, false
		}
		n, err := strconv.Atoi(sc.Text())
		return n, err == nil
	}

	n, ok := readInt()
	if !ok || n < 0 {
		return Schema{}, ErrInvalidSchema
	}
	cols := make([]Column, n)
	for i := 0; i < n; i++ {
		if !sc.Scan() {
			return Schema{}, ErrInvalidSchema
		}
		name := sc.Text()
		typeID, ok := readInt()
		if !ok {
			return Schema{}, ErrInvalidSchema
		}
		switch typeID {
		case int(Int32), int(Float64), int(Bytes):
		default:
			return Schema{}, ErrInvalidSchema
		}
		cols[i] = Column{Name: name, Type: Type(typeID)}
	}
	return Schema{Columns: cols}, nil
}

// Digest returns a blake2b-256 digest of the schema's canonical text
// form, truncated to 32 bits, for the segment header's schema_digest
// field. It is order-sensitive: reordering columns changes the digest.
func (s Schema) Digest() uint32 {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", len(s.Columns))
	for _, c := range s.Columns {
		fmt.Fprintf(&b, " %s %d", c.Name, int(c.Type))
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return uint32(sum[0]) | uint32(sum[1])<<8 | uint32(sum[2])<<16 | uint32(sum[3])<<24
}
