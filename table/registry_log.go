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

package table

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sjyango/vintsdb/internal/shard"
)

// registryLogFile records every VIN -> vin_num assignment a Table's
// registry has ever made, in assignment order, so a fresh process
// reopening the same directory resolves the same VIN to the same
// vin_num its shard append streams were written under.
//
// Each entry is fixed-width: VINLength bytes of VIN followed by a
// 4-byte little-endian vin_num. The file is append-only; a vin_num is
// written at most once, the first time Append resolves a VIN it has
// never seen.
const registryLogFile = "vin_registry"

const registryEntrySize = shard.VINLength + 4

// loadRegistryLog replays dir's registry log (if any) into t.registry.
func (t *Table) loadRegistryLog(dir string) error {
	f, err := os.Open(filepath.Join(dir, registryLogFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("table: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	buf := make([]byte, registryEntrySize)
	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("table: corrupt vin_registry: %w", err)
		}
		var v shard.VIN
		copy(v[:], buf[:shard.VINLength])
		vinNum := int(binary.LittleEndian.Uint32(buf[shard.VINLength:]))
		if err := t.registry.Assign(v, vinNum); err != nil {
			return fmt.Errorf("table: vin_registry: %w", err)
		}
	}
}

// openRegistryLog opens dir's registry log for appending, creating it
// if absent.
func (t *Table) openRegistryLog(dir string) error {
	f, err := os.OpenFile(filepath.Join(dir, registryLogFile), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("table: %w", err)
	}
	t.registryLog = f
	return nil
}

// appendRegistryEntry durably records that v was just assigned vinNum.
func (t *Table) appendRegistryEntry(v shard.VIN, vinNum int) error {
	buf := make([]byte, registryEntrySize)
	copy(buf, v[:])
	binary.LittleEndian.PutUint32(buf[shard.VINLength:], uint32(vinNum))

	t.registryLogMu.Lock()
	defer t.registryLogMu.Unlock()
	_, err := t.registryLog.Write(buf)
	if err != nil {
		return fmt.Errorf("table: %w", err)
	}
	return nil
}
