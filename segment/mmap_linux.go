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

//go:build linux

package segment

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// openData memory-maps path read-only, since a finalized segment is
// immutable for its whole lifetime as a reader's backing store.
func openData(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("segment: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("segment: stat: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil, ErrCorruption
	}
	if info.Size() > math.MaxInt {
		return nil, nil, fmt.Errorf("segment: file size %d exceeds max int", info.Size())
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("segment: mmap: %w", err)
	}
	return mem, func() error { return unix.Munmap(mem) }, nil
}
