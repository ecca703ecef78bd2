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

package intcodec

import "encoding/binary"

// EncodeRLE run-length encodes xs as a sequence of (value int64,
// run_length uint64) 16-byte pairs.
func EncodeRLE(xs []int64) []byte {
	out := make([]byte, 0, 16)
	for i := 0; i < len(xs); {
		v := xs[i]
		run := uint64(1)
		j := i + 1
		for j < len(xs) && xs[j] == v {
			run++
			j++
		}
		var pair [16]byte
		binary.LittleEndian.PutUint64(pair[:8], uint64(v))
		binary.LittleEndian.PutUint64(pair[8:], run)
		out = append(out, pair[:]...)
		i = j
	}
	return out
}

// DecodeRLE reverses EncodeRLE, expecting exactly n decoded elements.
func DecodeRLE(src []byte, n int) ([]int64, error) {
	out := make([]int64, 0, n)
	pos := 0
	for len(out) < n {
		if pos+16 > len(src) {
			return nil, ErrBufferTooSmall
		}
		v := int64(binary.LittleEndian.Uint64(src[pos : pos+8]))
		run := binary.LittleEndian.Uint64(src[pos+8 : pos+16])
		pos += 16
		for k := uint64(0); k < run; k++ {
			out = append(out, v)
		}
	}
	if len(out) != n {
		return nil, ErrBufferTooSmall
	}
	return out, nil
}
