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

package floatcodec

import (
	"encoding/binary"

	"github.com/sjyango/vintsdb/internal/bitio"
)

// chimpGroupSize is the number of values per Chimp-128 group; each
// group ends with its own backward offset so a reader scanning forward
// can locate group boundaries without decoding everything that precedes
// the group it actually wants.
const chimpGroupSize = 1024

// chimpLZTable maps a 3-bit index to a canonical leading-zero count,
// letting the leading-zero-index stream spend 3 bits/value instead of
// the full leading-zero bit-length.
var chimpLZTable = [8]uint8{0, 8, 12, 16, 18, 20, 22, 24}

func chimpLZIndex(lz uint8) (idx uint8, canonical uint8) {
	for i := len(chimpLZTable) - 1; i >= 0; i-- {
		if chimpLZTable[i] <= lz {
			return uint8(i), chimpLZTable[i]
		}
	}
	return 0, chimpLZTable[0]
}

const (
	chimpFlagZero     = 0b00 // xor == 0
	chimpFlagReuse    = 0b01 // reuse previous window's (leading,trailing) cut
	chimpFlagNew      = 0b10 // new window: emit lz-index + explicit trailing zeros + data bits
	chimpFlagReserved = 0b11 // never emitted; all-zero triple is the corruption signal
)

// EncodeChimp128 compresses xs in groups of chimpGroupSize values. Each
// group is: a 2-bit flag stream interleaved with, for chimpFlagNew
// values, a 3-bit leading-zero-index plus explicit trailing-zero and
// data-bit counts and the significant bits themselves; the group ends
// with a 4-byte backward offset to the start of its own encoded bytes.
func EncodeChimp128[T uint32 | uint64](xs []T) []byte {
	bits := bitSize[T]()
	dataBitLen := dataBitLength(dataByteSize[T]())

	out := make([]byte, 0, len(xs)/2+8)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(xs)))
	out = append(out, hdr[:]...)

	for start := 0; start < len(xs); start += chimpGroupSize {
		end := start + chimpGroupSize
		if end > len(xs) {
			end = len(xs)
		}
		groupStart := len(out)
		group := xs[start:end]

		w := bitio.NewWriter(nil)
		var prev T
		var prevTZ, prevDataBits uint8
		havePrevWindow := false
		for i, cur := range group {
			if i == 0 {
				var buf [8]byte
				storeT(buf[:bits/8], cur)
				out = append(out, buf[:bits/8]...)
				prev = cur
				continue
			}
			xored := cur ^ prev
			if xored == 0 {
				w.WriteBits(2, chimpFlagZero)
				prev = cur
				continue
			}
			lz := leadingZeros(xored)
			tz := trailingZeros(xored)
			// reuse the previous window only if it's lossless: the
			// previous trailing-zero cut must chop off nothing but
			// real trailing zeros, and the remaining significant span
			// must fit the previous window's data-bit width.
			if havePrevWindow && tz >= prevTZ && (bits-lz-prevTZ) <= prevDataBits {
				w.WriteBits(2, chimpFlagReuse)
				w.WriteBits(prevDataBits, uint64(xored>>prevTZ))
				prev = cur
				continue
			}
			idx, canonical := chimpLZIndex(lz)
			dataBits := bits - canonical - tz
			w.WriteBits(2, chimpFlagNew)
			w.WriteBits(3, uint64(idx))
			w.WriteBits(6, uint64(tz))
			w.WriteBits(dataBitLen, uint64(dataBits))
			w.WriteBits(dataBits, uint64(xored>>tz))
			prevTZ, prevDataBits = tz, dataBits
			havePrevWindow = true
			prev = cur
		}
		payload := w.Flush()
		out = append(out, payload...)
		var back [4]byte
		binary.LittleEndian.PutUint32(back[:], uint32(len(out)-groupStart))
		out = append(out, back[:]...)
	}
	return out
}

// DecodeChimp128 reverses EncodeChimp128.
func DecodeChimp128[T uint32 | uint64](src []byte) ([]T, error) {
	if len(src) < 4 {
		return nil, ErrCorruption
	}
	dataBytes := dataByteSize[T]()
	dataBitLen := dataBitLength(dataBytes)

	items := int(binary.LittleEndian.Uint32(src[:4]))
	pos := 4
	out := make([]T, 0, items)

	remaining := items
	for remaining > 0 {
		n := remaining
		if n > chimpGroupSize {
			n = chimpGroupSize
		}
		if pos+int(dataBytes) > len(src) {
			return nil, ErrCorruption
		}
		groupStart := pos
		prev := loadT[T](src[pos:])
		pos += int(dataBytes)
		out = append(out, prev)

		// the group's payload runs up to (but not including) its
		// trailing 4-byte backward offset; since groups are decoded
		// strictly in order we don't need the offset to navigate, but
		// we still validate it's present and consistent.
		groupBodyStart := pos
		r := bitio.NewReader(src[pos:])
		var prevTZ, prevDataBits uint8
		havePrevWindow := false
		for i := 1; i < n; i++ {
			flag := r.ReadBits(2)
			var cur T
			switch flag {
			case chimpFlagZero:
				cur = prev
			case chimpFlagReuse:
				if !havePrevWindow {
					return nil, ErrCorruption
				}
				data := T(r.ReadBits(prevDataBits))
				cur = (data << prevTZ) ^ prev
			case chimpFlagNew:
				idx := uint8(r.ReadBits(3))
				if int(idx) >= len(chimpLZTable) {
					return nil, ErrCorruption
				}
				tz := uint8(r.ReadBits(6))
				dataBits := uint8(r.ReadBits(dataBitLen))
				if idx == 0 && tz == 0 && dataBits == 0 {
					return nil, ErrCorruption
				}
				data := T(r.ReadBits(dataBits))
				cur = (data << tz) ^ prev
				prevTZ, prevDataBits = tz, dataBits
				havePrevWindow = true
			default:
				return nil, ErrCorruption
			}
			out = append(out, cur)
			prev = cur
		}
		// advance pos past the consumed bits (rounded to the byte the
		// writer padded to) and the group's 4-byte backward offset.
		consumedBytes := (r.BitsConsumed() + 7) / 8
		end := groupBodyStart + consumedBytes
		if end+4 > len(src) || int(binary.LittleEndian.Uint32(src[end:])) != end-groupStart {
			return nil, ErrCorruption
		}
		pos = end + 4
		remaining -= n
	}
	return out, nil
}
