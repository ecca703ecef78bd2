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

import "testing"

func TestRLERoundTrip(t *testing.T) {
	xs := []int64{1, 1, 1, 2, 2, 3, 3, 3, 3, 3, -7, -7, 0}
	enc := EncodeRLE(xs)
	dec, err := DecodeRLE(enc, len(xs))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(dec) != len(xs) {
		t.Fatalf("decoded length %d, want %d", len(dec), len(xs))
	}
	for i := range xs {
		if dec[i] != xs[i] {
			t.Fatalf("element %d = %d, want %d", i, dec[i], xs[i])
		}
	}
}

func TestRLENoRuns(t *testing.T) {
	xs := []int64{1, 2, 3, 4, 5}
	enc := EncodeRLE(xs)
	if len(enc) != 16*len(xs) {
		t.Fatalf("encoded length %d, want %d (no runs to collapse)", len(enc), 16*len(xs))
	}
	dec, err := DecodeRLE(enc, len(xs))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	for i := range xs {
		if dec[i] != xs[i] {
			t.Fatalf("element %d = %d, want %d", i, dec[i], xs[i])
		}
	}
}

func TestRLEEmpty(t *testing.T) {
	dec, err := DecodeRLE(nil, 0)
	if err != nil {
		t.Fatalf("DecodeRLE(nil, 0): %v", err)
	}
	if len(dec) != 0 {
		t.Fatalf("expected empty, got %v", dec)
	}
}

func TestRLETruncated(t *testing.T) {
	xs := []int64{9, 9, 9}
	enc := EncodeRLE(xs)
	if _, err := DecodeRLE(enc[:8], len(xs)); err != ErrBufferTooSmall {
		t.Fatalf("DecodeRLE(truncated) = %v, want ErrBufferTooSmall", err)
	}
}
