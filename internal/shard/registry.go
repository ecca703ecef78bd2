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

package shard

import (
	"errors"
	"sync"

	"github.com/dchest/siphash"
)

// ErrRegistryFull is returned by Resolve when every vin_num slot is
// already occupied by a different VIN.
var ErrRegistryFull = errors.New("shard: vin_num address space exhausted")

// hash keys seeding the open-addressing probe sequence. Fixed so two
// Registries built from the same insertion order land on the same
// vin_nums.
const (
	hashKey0 = 0x564f9a17c2d34b11
	hashKey1 = 0x1b7d8ee536fa0c29
)

// Registry assigns each distinct VIN a stable vin_num in
// [0, VINRangeLength), guaranteeing the mapping is an injection: no two
// VINs ever share a slot, regardless of collisions in the seed hash.
//
// A VIN's seed slot is a keyed siphash of its bytes, reduced modulo
// VINRangeLength. If that slot is already occupied (by a different
// VIN, because the seed hash is not itself injective), Resolve probes
// linearly for the next free slot. The first VIN to claim a slot keeps
// it for the registry's lifetime.
type Registry struct {
	mu    sync.RWMutex
	byVIN map[VIN]int
	byNum map[int]VIN
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byVIN: make(map[VIN]int),
		byNum: make(map[int]VIN),
	}
}

// Resolve returns v's vin_num, assigning it the next free slot (probed
// from its seed hash) if v has not been seen before. It fails with
// ErrRegistryFull only once every one of the VINRangeLength slots is
// occupied by some other VIN.
func (r *Registry) Resolve(v VIN) (int, error) {
	n, _, err := r.ResolveNew(v)
	return n, err
}

// ResolveNew is Resolve, additionally reporting whether this call is
// what assigned v's slot, so a caller can persist only genuinely new
// assignments instead of the whole registry on every write.
func (r *Registry) ResolveNew(v VIN) (vinNum int, isNew bool, err error) {
	r.mu.RLock()
	if n, ok := r.byVIN[v]; ok {
		r.mu.RUnlock()
		return n, false, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.byVIN[v]; ok {
		return n, false, nil
	}
	if len(r.byVIN) >= VINRangeLength {
		return 0, false, ErrRegistryFull
	}
	seed := int(siphash.Hash(hashKey0, hashKey1, v[:]) % uint64(VINRangeLength))
	for i := 0; i < VINRangeLength; i++ {
		slot := (seed + i) % VINRangeLength
		if _, taken := r.byNum[slot]; !taken {
			r.byVIN[v] = slot
			r.byNum[slot] = v
			return slot, true, nil
		}
	}
	return 0, false, ErrRegistryFull
}

// Lookup returns v's vin_num without assigning one, so a read of a VIN
// that has never been written does not consume a slot.
func (r *Registry) Lookup(v VIN) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byVIN[v]
	return n, ok
}

// Each calls fn once for every (vinNum, VIN) pair currently assigned, in
// no particular order.
func (r *Registry) Each(fn func(vinNum int, v VIN)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n, v := range r.byNum {
		fn(n, v)
	}
}

// Assign records that v occupies vinNum, for restoring a registry from
// a durable snapshot that already fixed the assignment. It fails if
// vinNum is already assigned to a different VIN.
func (r *Registry) Assign(v VIN, vinNum int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byNum[vinNum]; ok && existing != v {
		return errors.New("shard: vin_num already assigned to a different VIN")
	}
	r.byVIN[v] = vinNum
	r.byNum[vinNum] = v
	return nil
}
