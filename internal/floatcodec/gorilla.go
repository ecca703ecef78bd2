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

// Package floatcodec implements the Gorilla and Chimp-128 XOR-delta
// compressors for arrays of IEEE-754 floats, reinterpreted as unsigned
// integers of matching width.
package floatcodec

import (
	"encoding/binary"
	"errors"

	"github.com/sjyango/vintsdb/internal/bitio"
)

// ErrCorruption is returned when a decoded stream violates the codec's
// invariants (e.g. an all-zero 0b11 triple).
var ErrCorruption = errors.New("floatcodec: corrupt stream")

// Unsigned is the set of integer widths the codecs operate over; floats
// are reinterpreted bit-for-bit into one of these before encoding.
type Unsigned interface {
	uint16 | uint32 | uint64
}

func bitSize[T Unsigned]() uint8 {
	var z T
	switch any(z).(type) {
	case uint16:
		return 16
	case uint32:
		return 32
	default:
		return 64
	}
}

func dataByteSize[T Unsigned]() uint8 {
	return bitSize[T]() / 8
}

// dataBitLength is the number of bits needed to represent a bit-length
// in [0, bitSize(T)]: 1-byte values need 4 bits (up to 15), 2-byte
// values need 5 (up to 31), 4-byte values need 6 (up to 63), 8-byte
// values need 7 (up to 127).
func dataBitLength(dataBytes uint8) uint8 {
	switch dataBytes {
	case 1:
		return 4
	case 2:
		return 5
	case 4:
		return 6
	case 8:
		return 7
	default:
		panic("floatcodec: unsupported data byte size")
	}
}

func loadT[T Unsigned](b []byte) T {
	switch bitSize[T]() {
	case 16:
		return T(binary.LittleEndian.Uint16(b))
	case 32:
		return T(binary.LittleEndian.Uint32(b))
	default:
		return T(binary.LittleEndian.Uint64(b))
	}
}

func storeT[T Unsigned](dst []byte, v T) {
	switch bitSize[T]() {
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	default:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	}
}

func leadingZeros[T Unsigned](v T) uint8 {
	bits := bitSize[T]()
	if v == 0 {
		return bits
	}
	var n uint8
	top := T(1) << (bits - 1)
	for top != 0 && v&top == 0 {
		n++
		top >>= 1
	}
	return n
}

func trailingZeros[T Unsigned](v T) uint8 {
	bits := bitSize[T]()
	if v == 0 {
		return bits
	}
	var n uint8
	for v&1 == 0 {
		n++
		v >>= 1
	}
	return n
}

// EncodeGorilla compresses xs using XOR-delta coding against the
// previous value, per the header/payload layout documented in the
// package's design notes (data_bytes_size, bytes_to_skip, items_count,
// then tagged XOR deltas).
func EncodeGorilla[T Unsigned](xs []T) []byte {
	dataBytes := dataByteSize[T]()
	sourceSize := len(xs) * int(dataBytes)
	bytesToSkip := sourceSize % int(dataBytes) // always 0 for a homogeneous []T; kept for format fidelity

	out := make([]byte, 0, 2+bytesToSkip+4+sourceSize/2)
	out = append(out, dataBytes, byte(bytesToSkip))
	// bytesToSkip raw bytes preserving source alignment: for a []T
	// slice there is nothing to skip, but the field is always present.

	var items [4]byte
	binary.LittleEndian.PutUint32(items[:], uint32(len(xs)))
	out = append(out, items[:]...)

	if len(xs) == 0 {
		return out
	}

	prev := xs[0]
	var prevBuf [8]byte
	storeT(prevBuf[:dataBytes], prev)
	out = append(out, prevBuf[:dataBytes]...)

	dataBitLen := dataBitLength(dataBytes)
	leadingBitLen := dataBitLen - 1

	w := bitio.NewWriter(nil)
	var prevLZ, prevData, prevTZ uint8
	havePrevWindow := false
	for i := 1; i < len(xs); i++ {
		cur := xs[i]
		xored := cur ^ prev
		if xored == 0 {
			w.WriteBits(1, 0)
		} else {
			lz := leadingZeros(xored)
			tz := trailingZeros(xored)
			dataBits := bitSize[T]() - lz - tz
			if havePrevWindow && prevData != 0 && prevLZ <= lz && prevTZ <= tz {
				w.WriteBits(2, 0b10)
				w.WriteBits(prevData, uint64(xored>>prevTZ))
			} else {
				w.WriteBits(2, 0b11)
				w.WriteBits(leadingBitLen, uint64(lz))
				w.WriteBits(dataBitLen, uint64(dataBits))
				w.WriteBits(dataBits, uint64(xored>>tz))
				prevLZ, prevData, prevTZ = lz, dataBits, tz
				havePrevWindow = true
			}
		}
		prev = cur
	}
	out = append(out, w.Flush()...)
	return out
}

// DecodeGorilla reverses EncodeGorilla.
func DecodeGorilla[T Unsigned](src []byte) ([]T, error) {
	if len(src) < 2 {
		return nil, ErrCorruption
	}
	dataBytes := src[0]
	bytesToSkip := int(src[1])
	pos := 2 + bytesToSkip
	if pos+4 > len(src) {
		return nil, ErrCorruption
	}
	items := int(binary.LittleEndian.Uint32(src[pos:]))
	pos += 4

	out := make([]T, 0, items)
	if items == 0 {
		return out, nil
	}
	if pos+int(dataBytes) > len(src) {
		return nil, ErrCorruption
	}
	prev := loadT[T](src[pos:])
	pos += int(dataBytes)
	out = append(out, prev)

	dataBitLen := dataBitLength(dataBytes)
	leadingBitLen := dataBitLen - 1
	bits := bitSize[T]()

	r := bitio.NewReader(src[pos:])
	var prevData, prevTZ uint8
	havePrevWindow := false
	for i := 1; i < items; i++ {
		tag := r.ReadBits(1)
		if tag == 0 {
			out = append(out, prev)
			continue
		}
		tag2 := r.ReadBits(1)
		var xored T
		if tag2 == 0 {
			// 0b10: reuse previous window
			if !havePrevWindow {
				return nil, ErrCorruption
			}
			data := T(r.ReadBits(prevData))
			xored = data << prevTZ
		} else {
			// 0b11: new window
			lz := uint8(r.ReadBits(leadingBitLen))
			dataBits := uint8(r.ReadBits(dataBitLen))
			if lz == 0 && dataBits == 0 {
				return nil, ErrCorruption
			}
			tz := bits - lz - dataBits
			data := T(r.ReadBits(dataBits))
			xored = data << tz
			prevData, prevTZ = dataBits, tz
			havePrevWindow = true
		}
		cur := xored ^ prev
		out = append(out, cur)
		prev = cur
	}
	return out, nil
}
