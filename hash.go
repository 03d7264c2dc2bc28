// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package lpmap

import (
	"math"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// Hasher computes hashes for, and compares, keys of type K. The following
// are the Hasher's responsibility:
//   - Equal(a, b) implies Hash(a) == Hash(b).
//   - Equal(a, a) is true for all a. Be careful around NaN float values.
//
// Only the low 31 bits of Hash are stored, and the low bits select the ideal
// slot, so they should be well distributed.
//
// PutAll requires both maps to use the same Hasher, which is decided with
// ==. Hashers should therefore be comparable values: empty structs or
// pointers.
type Hasher[K any] interface {
	Hash(key K) uint32
	Equal(a, b K) bool
}

// IntHasher hashes integer keys using Thomas Wang's integer mix functions.
type IntHasher[K constraints.Integer] struct{}

// Hash implements Hasher.
func (IntHasher[K]) Hash(key K) uint32 {
	if unsafe.Sizeof(key) <= 4 {
		return hash32(uint32(key))
	}
	return hash64(uint64(key))
}

// Equal implements Hasher.
func (IntHasher[K]) Equal(a, b K) bool {
	return a == b
}

// FloatHasher hashes floating point keys by their bit pattern. Negative zero
// hashes the same as zero. NaN keys are never equal to anything, so a NaN
// key can be inserted but never found.
type FloatHasher[K constraints.Float] struct{}

// Hash implements Hasher.
func (FloatHasher[K]) Hash(key K) uint32 {
	if key == 0 {
		// Fold -0 into +0.
		key = 0
	}
	if unsafe.Sizeof(key) == 4 {
		return hash32(math.Float32bits(float32(key)))
	}
	return hash64(math.Float64bits(float64(key)))
}

// Equal implements Hasher.
func (FloatHasher[K]) Equal(a, b K) bool {
	return a == b
}

// StringHasher hashes string keys using xxhash.
type StringHasher struct{}

// Hash implements Hasher.
func (StringHasher) Hash(key string) uint32 {
	h := xxhash.Sum64String(key)
	return uint32(h) ^ uint32(h>>32)
}

// Equal implements Hasher.
func (StringHasher) Equal(a, b string) bool {
	return a == b
}

// HasherFunc adapts a pair of functions to the Hasher interface. Use a
// *HasherFunc so that maps sharing it are compatible for PutAll.
type HasherFunc[K any] struct {
	HashFn  func(key K) uint32
	EqualFn func(a, b K) bool
}

// NewHasherFunc returns a Hasher using the supplied functions.
func NewHasherFunc[K any](hash func(key K) uint32, equal func(a, b K) bool) *HasherFunc[K] {
	return &HasherFunc[K]{HashFn: hash, EqualFn: equal}
}

// NewComparableHasher returns a Hasher using the supplied hash function and
// == for equality.
func NewComparableHasher[K comparable](hash func(key K) uint32) *HasherFunc[K] {
	return NewHasherFunc(hash, func(a, b K) bool {
		return a == b
	})
}

// Hash implements Hasher.
func (f *HasherFunc[K]) Hash(key K) uint32 {
	return f.HashFn(key)
}

// Equal implements Hasher.
func (f *HasherFunc[K]) Equal(a, b K) bool {
	return f.EqualFn(a, b)
}

// HashCombine mixes hash b into hash a. Useful for hashing composite keys.
func HashCombine(a, b uint32) uint32 {
	return a ^ (b + 0x9e3779b9 + (a << 6) + (a >> 2))
}

// hash32 is Thomas Wang's 32-bit integer hash.
func hash32(key uint32) uint32 {
	key += ^(key << 16)
	key ^= key >> 5
	key += key << 3
	key ^= key >> 13
	key += ^(key << 9)
	key ^= key >> 17
	return key
}

// hash64 is Thomas Wang's 64-bit integer hash, truncated to 32 bits.
func hash64(key uint64) uint32 {
	key += ^(key << 34)
	key ^= key >> 29
	key += ^(key << 11)
	key ^= key >> 14
	key += ^(key << 7)
	key ^= key >> 28
	key += ^(key << 26)
	return uint32(key)
}
