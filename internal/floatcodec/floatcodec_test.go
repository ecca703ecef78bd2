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
	"math"
	"math/rand"
	"testing"
)

func float64sToBits(xs []float64) []uint64 {
	out := make([]uint64, len(xs))
	for i, x := range xs {
		out[i] = math.Float64bits(x)
	}
	return out
}

func bitsToFloat64s(xs []uint64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Float64frombits(x)
	}
	return out
}

func randFloat64Series(rnd *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	v := rnd.Float64() * 1000
	for i := range out {
		v += rnd.NormFloat64()
		out[i] = v
	}
	return out
}

func TestGorillaRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, 17, 1000, 100_000} {
		xs := float64sToBits(randFloat64Series(rnd, n))
		enc := EncodeGorilla(xs)
		dec, err := DecodeGorilla[uint64](enc)
		if err != nil {
			t.Fatalf("n=%d: DecodeGorilla: %v", n, err)
		}
		if len(dec) != len(xs) {
			t.Fatalf("n=%d: decoded length %d, want %d", n, len(dec), len(xs))
		}
		for i := range xs {
			if dec[i] != xs[i] {
				t.Fatalf("n=%d: element %d = %#x, want %#x", n, i, dec[i], xs[i])
			}
		}
	}
}

func TestGorillaRoundTripConstant(t *testing.T) {
	xs := make([]uint32, 5000)
	for i := range xs {
		xs[i] = 0x3f800000
	}
	enc := EncodeGorilla(xs)
	dec, err := DecodeGorilla[uint32](enc)
	if err != nil {
		t.Fatalf("DecodeGorilla: %v", err)
	}
	for i := range xs {
		if dec[i] != xs[i] {
			t.Fatalf("element %d = %#x, want %#x", i, dec[i], xs[i])
		}
	}
}

func TestGorillaCorruptHeader(t *testing.T) {
	if _, err := DecodeGorilla[uint64](nil); err != ErrCorruption {
		t.Fatalf("DecodeGorilla(nil) = %v, want ErrCorruption", err)
	}
	if _, err := DecodeGorilla[uint64]([]byte{8}); err != ErrCorruption {
		t.Fatalf("DecodeGorilla(truncated) = %v, want ErrCorruption", err)
	}
}

func TestChimpRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for _, n := range []int{0, 1, 2, 17, 1023, 1024, 1025, 5000, 100_000} {
		xs := float64sToBits(randFloat64Series(rnd, n))
		enc := EncodeChimp128(xs)
		dec, err := DecodeChimp128[uint64](enc)
		if err != nil {
			t.Fatalf("n=%d: DecodeChimp128: %v", n, err)
		}
		if len(dec) != len(xs) {
			t.Fatalf("n=%d: decoded length %d, want %d", n, len(dec), len(xs))
		}
		for i := range xs {
			if dec[i] != xs[i] {
				t.Fatalf("n=%d: element %d = %#x, want %#x", n, i, dec[i], xs[i])
			}
		}
	}
}

func TestChimpRoundTripUint32(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	xs := make([]uint32, 3000)
	v := float32(rnd.Float64() * 1000)
	for i := range xs {
		v += float32(rnd.NormFloat64())
		xs[i] = math.Float32bits(v)
	}
	enc := EncodeChimp128(xs)
	dec, err := DecodeChimp128[uint32](enc)
	if err != nil {
		t.Fatalf("DecodeChimp128: %v", err)
	}
	for i := range xs {
		if dec[i] != xs[i] {
			t.Fatalf("element %d = %#x, want %#x", i, dec[i], xs[i])
		}
	}
}

func TestChimpRoundTripRepeatedDeltas(t *testing.T) {
	// a series whose successive XOR deltas share the same (leading,
	// trailing) window, to exercise the reuse-flag path.
	xs := make([]uint64, 2000)
	base := math.Float64bits(42.0)
	for i := range xs {
		xs[i] = base ^ uint64(i&0xff)
	}
	enc := EncodeChimp128(xs)
	dec, err := DecodeChimp128[uint64](enc)
	if err != nil {
		t.Fatalf("DecodeChimp128: %v", err)
	}
	for i := range xs {
		if dec[i] != xs[i] {
			t.Fatalf("element %d = %#x, want %#x", i, dec[i], xs[i])
		}
	}
}

func TestChimpCorruptAllZeroTriple(t *testing.T) {
	xs := []uint64{math.Float64bits(1.0), math.Float64bits(2.0)}
	enc := EncodeChimp128(xs)
	// locate the group's first flag (right after the 8-byte seed value
	// and 4-byte item count header) and force it to the reserved
	// all-zero new-window triple (idx=0, tz=0, dataBits=0).
	corrupt := make([]byte, len(enc))
	copy(corrupt, enc)
	flagBytePos := 4 + 8
	corrupt[flagBytePos] = 0b10000000 // flag=10 (chimpFlagNew), idx=0, tz high bits=0
	corrupt[flagBytePos+1] = 0x00     // tz low bits=0, dataBits high bits=0
	corrupt[flagBytePos+2] &= 0b00111111 // dataBits low bits=0
	if _, err := DecodeChimp128[uint64](corrupt); err != ErrCorruption {
		t.Fatalf("DecodeChimp128(corrupt) = %v, want ErrCorruption", err)
	}
}

func TestChimpCorruptShort(t *testing.T) {
	if _, err := DecodeChimp128[uint64]([]byte{1, 2, 3}); err != ErrCorruption {
		t.Fatalf("DecodeChimp128(short) = %v, want ErrCorruption", err)
	}
}

func TestBitsToFloat64RoundTripHelper(t *testing.T) {
	xs := []float64{0, -0, 1, -1, 3.14159, math.Inf(1), math.Inf(-1)}
	bits := float64sToBits(xs)
	back := bitsToFloat64s(bits)
	for i := range xs {
		if math.Float64bits(xs[i]) != math.Float64bits(back[i]) {
			t.Fatalf("helper round-trip mismatch at %d", i)
		}
	}
}
