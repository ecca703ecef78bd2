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

// Package skiplist implements an ordered map that supports any number
// of concurrent readers racing a single writer, backed by an arena:
// nodes are never individually freed and the arena's lifetime bounds
// the skip list's lifetime.
//
// Readers never block, never allocate, and are wait-free with respect
// to a concurrent writer: every link a reader follows was published
// with a release store, so an in-progress insert is either entirely
// invisible or entirely visible at each level a reader passes through.
package skiplist

import (
	"math/rand"
	"sync/atomic"

	"github.com/sjyango/vintsdb/internal/arena"
)

// MaxHeight bounds the number of forward-pointer levels a node can have.
const MaxHeight = 12

const branching = 4

type node[K any] struct {
	key  K
	next [MaxHeight]atomic.Pointer[node[K]]
}

func (n *node[K]) loadNext(level int) *node[K] {
	return n.next[level].Load()
}

func (n *node[K]) storeNext(level int, x *node[K]) {
	n.next[level].Store(x)
}

// SkipList is an ordered map keyed by K, compared with cmp. Keys must
// be unique; inserting a key that already exists is a caller error (use
// Find to check first).
type SkipList[K any] struct {
	cmp    func(a, b K) int
	nodes  *arena.Pool[node[K]]
	head   *node[K]
	height atomic.Int32
	rnd    *rand.Rand
}

// New creates an empty SkipList whose nodes are carved out of a
// dedicated arena.Pool (one bump allocator per list, never individually
// freed; released in bulk when the SkipList is discarded).
func New[K any](cmp func(a, b K) int) *SkipList[K] {
	nodes := arena.NewPool[node[K]](0, 0, 0)
	s := &SkipList[K]{
		cmp:   cmp,
		nodes: nodes,
		head:  nodes.Alloc(),
		rnd:   rand.New(rand.NewSource(0xdeadbeef)),
	}
	s.height.Store(1)
	return s
}

// Size reports the cumulative bytes owned by the list's node arena.
func (s *SkipList[K]) Size() int { return s.nodes.Size() }

// Hint records the search path produced by Find, reusable by
// InsertWithHint to avoid a second descent.
type Hint[K any] struct {
	curr *node[K]
	prev [MaxHeight]*node[K]
}

func (s *SkipList[K]) maxHeight() int { return int(s.height.Load()) }

func (s *SkipList[K]) newNode(key K, height int) *node[K] {
	// node[K] is fixed-size (MaxHeight pointers regardless of the
	// random height, unlike the source's variable-length trailing
	// array); the unused tail levels above height are simply never
	// linked in.
	n := s.nodes.Alloc()
	n.key = key
	return n
}

func (s *SkipList[K]) randomHeight() int {
	h := 1
	for h < MaxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

func (s *SkipList[K]) keyIsAfter(key K, n *node[K]) bool {
	return n != nil && s.cmp(n.key, key) < 0
}

// findGreaterOrEqual descends from the top level, recording the
// predecessor at each level in prev (if non-nil), and returns the first
// node whose key is >= key (or nil).
func (s *SkipList[K]) findGreaterOrEqual(key K, prev *[MaxHeight]*node[K]) *node[K] {
	x := s.head
	level := s.maxHeight() - 1
	for {
		next := x.loadNext(level)
		if s.keyIsAfter(key, next) {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

func (s *SkipList[K]) findLessThan(key K) *node[K] {
	x := s.head
	level := s.maxHeight() - 1
	for {
		next := x.loadNext(level)
		if next == nil || s.cmp(next.key, key) >= 0 {
			if level == 0 {
				return x
			}
			level--
			continue
		}
		x = next
	}
}

func (s *SkipList[K]) findLast() *node[K] {
	x := s.head
	level := s.maxHeight() - 1
	for {
		next := x.loadNext(level)
		if next == nil {
			if level == 0 {
				return x
			}
			level--
			continue
		}
		x = next
	}
}

func (s *SkipList[K]) equal(a, b K) bool { return s.cmp(a, b) == 0 }

// Contains reports whether key is present.
func (s *SkipList[K]) Contains(key K) bool {
	x := s.findGreaterOrEqual(key, nil)
	return x != nil && s.equal(key, x.key)
}

// Find looks up key and records the search path into hint so a
// subsequent InsertWithHint can skip the descent. It reports whether
// key is already present.
func (s *SkipList[K]) Find(key K, hint *Hint[K]) bool {
	x := s.findGreaterOrEqual(key, &hint.prev)
	hint.curr = x
	return x != nil && s.equal(key, x.key)
}

// Insert adds key to the list. The caller must ensure key is not
// already present (use Find first if duplicates are possible).
func (s *SkipList[K]) Insert(key K) {
	var prev [MaxHeight]*node[K]
	s.findGreaterOrEqual(key, &prev)
	s.insertAt(key, &prev)
}

// InsertWithHint inserts key using a search path previously produced by
// Find. isExist is informational only (mirrors the source API) and is
// not checked here; when isExist is true (hint.curr matches key) callers
// that want last-writer-wins semantics should call Replace instead, since
// InsertWithHint always links a new node.
func (s *SkipList[K]) InsertWithHint(key K, isExist bool, hint *Hint[K]) {
	s.insertAt(key, &hint.prev)
}

// Replace overwrites the key found by a prior Find call in place,
// without inserting a new node. It is the mechanism for last-writer-wins
// semantics on duplicate keys: Find reports the key already exists,
// then Replace swaps in the new value. hint.curr must be non-nil (i.e.
// Find must have returned true).
func (s *SkipList[K]) Replace(hint *Hint[K], key K) {
	hint.curr.key = key
}

func (s *SkipList[K]) insertAt(key K, prev *[MaxHeight]*node[K]) {
	height := s.randomHeight()
	if cur := s.maxHeight(); height > cur {
		for i := cur; i < height; i++ {
			prev[i] = s.head
		}
		s.height.Store(int32(height))
	}
	x := s.newNode(key, height)
	for i := 0; i < height; i++ {
		x.storeNext(i, prev[i].loadNext(i))
		prev[i].storeNext(i, x)
	}
}

// Iterator walks the list in ascending (or, via Prev, descending) key
// order. An Iterator is only safe for use by the goroutine that created
// it.
type Iterator[K any] struct {
	list *SkipList[K]
	n    *node[K]
}

// NewIterator creates an Iterator over s.
func NewIterator[K any](s *SkipList[K]) *Iterator[K] {
	return &Iterator[K]{list: s}
}

// Valid reports whether the iterator is positioned at an element.
func (it *Iterator[K]) Valid() bool { return it.n != nil }

// Key returns the key at the iterator's current position.
func (it *Iterator[K]) Key() K { return it.n.key }

// Next advances to the next key in ascending order.
func (it *Iterator[K]) Next() { it.n = it.n.loadNext(0) }

// Prev moves to the previous key in ascending order.
func (it *Iterator[K]) Prev() {
	it.n = it.list.findLessThan(it.n.key)
	if it.n == it.list.head {
		it.n = nil
	}
}

// Seek positions the iterator at the first key >= target.
func (it *Iterator[K]) Seek(target K) {
	it.n = it.list.findGreaterOrEqual(target, nil)
}

// SeekToFirst positions the iterator at the smallest key.
func (it *Iterator[K]) SeekToFirst() {
	it.n = it.list.head.loadNext(0)
}

// SeekToLast positions the iterator at the largest key.
func (it *Iterator[K]) SeekToLast() {
	it.n = it.list.findLast()
	if it.n == it.list.head {
		it.n = nil
	}
}
