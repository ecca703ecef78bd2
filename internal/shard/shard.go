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

// Package shard computes the deterministic (VIN, timestamp) -> (shard,
// bucket) mapping used to address append streams and segment files on
// disk.
package shard

import (
	"path/filepath"
	"strconv"
)

// VINLength is the fixed byte width of a vehicle identifier.
const VINLength = 17

// VINRangeLength is the size of the vin_num address space: every VIN
// known to a Registry occupies exactly one slot in [0, VINRangeLength).
const VINRangeLength = 30000

// DirCount is the number of top-level shard directories; vin_num is
// reduced modulo this count to pick a directory.
const DirCount = 200

// TimeRangeWidth is the width, in the same units as the timestamp, of
// one time bucket.
const TimeRangeWidth = 1000

// TimeRangeBuckets is the number of addressable time buckets.
const TimeRangeBuckets = 3600

// VIN is a fixed-width vehicle identifier.
type VIN [VINLength]byte

// String returns the ASCII representation of the VIN.
func (v VIN) String() string { return string(v[:]) }

// Bucket maps a timestamp to its bucket id in [0, TimeRangeBuckets).
//
// Timestamps outside the addressable range (negative, or at or past
// TimeRangeBuckets*TimeRangeWidth) map to -1 so callers can detect an
// out-of-range bucket without a second comparison.
func Bucket(ts int64) int {
	b := ts / TimeRangeWidth
	if ts < 0 || b >= TimeRangeBuckets {
		return -1
	}
	return int(b)
}

// Dir returns the top-level shard directory index for vinNum.
func Dir(vinNum int) int {
	return vinNum % DirCount
}

// AppendPath returns the path of the append-only row stream for the
// given table root, VIN and its already-resolved vin_num.
func AppendPath(root string, v VIN, vinNum int) func(bucket int) string {
	dir := Dir(vinNum)
	return func(bucket int) string {
		return filepath.Join(root, strconv.Itoa(dir), strconv.Itoa(bucket), v.String())
	}
}
