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

package skiplist

import (
	"math/rand"
	"testing"
)

func cmpInt(a, b int) int { return a - b }

func TestInsertContains(t *testing.T) {
	s := New(cmpInt)
	for _, k := range []int{5, 3, 9, 1, 7} {
		s.Insert(k)
	}
	for _, k := range []int{5, 3, 9, 1, 7} {
		if !s.Contains(k) {
			t.Fatalf("Contains(%d) = false, want true", k)
		}
	}
	if s.Contains(42) {
		t.Fatalf("Contains(42) = true, want false")
	}
}

func TestIteratorAscendingNoDuplicates(t *testing.T) {
	s := New(cmpInt)
	keys := rand.Perm(500)
	for _, k := range keys {
		s.Insert(k)
	}
	it := NewIterator(s)
	it.SeekToFirst()
	prev := -1
	count := 0
	for it.Valid() {
		k := it.Key()
		if k <= prev {
			t.Fatalf("keys out of order or duplicated: prev=%d cur=%d", prev, k)
		}
		prev = k
		count++
		it.Next()
	}
	if count != len(keys) {
		t.Fatalf("iterated %d keys, want %d", count, len(keys))
	}
}

func TestSeekAndBackward(t *testing.T) {
	s := New(cmpInt)
	for _, k := range []int{10, 20, 30, 40, 50} {
		s.Insert(k)
	}
	it := NewIterator(s)
	it.Seek(25)
	if !it.Valid() || it.Key() != 30 {
		t.Fatalf("Seek(25) landed on %v, want 30", it.Key())
	}
	it.SeekToLast()
	if !it.Valid() || it.Key() != 50 {
		t.Fatalf("SeekToLast landed on %v, want 50", it.Key())
	}
	it.Prev()
	if !it.Valid() || it.Key() != 40 {
		t.Fatalf("Prev from 50 landed on %v, want 40", it.Key())
	}
}

func TestFindThenInsertWithHint(t *testing.T) {
	s := New(cmpInt)
	s.Insert(1)
	s.Insert(3)
	var hint Hint[int]
	if s.Find(2, &hint) {
		t.Fatal("Find(2) should report not-found before insert")
	}
	s.InsertWithHint(2, false, &hint)
	if !s.Contains(2) {
		t.Fatal("InsertWithHint(2) did not make 2 visible")
	}
}
