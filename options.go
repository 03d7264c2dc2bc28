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

// option provide an interface to do work on Map while it is being created.
type option[K any, V any] interface {
	apply(m *Map[K, V])
}

type maxLoadFactorOption[K any, V any] struct {
	maxLoadFactor float32
}

func (op maxLoadFactorOption[K, V]) apply(m *Map[K, V]) {
	m.maxLoadFactor = op.maxLoadFactor
}

// WithMaxLoadFactor is an option to specify the ratio of entries to slots
// above which a Map[K,V] grows. It must be in the range (0, 1]. A Map always
// keeps at least one slot free regardless of the load factor.
func WithMaxLoadFactor[K any, V any](maxLoadFactor float32) option[K, V] {
	return maxLoadFactorOption[K, V]{maxLoadFactor}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Map. The default allocator utilizes Go's builtin make() and allows the
// GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Map.Close must be called in order to ensure Free is called.
type Allocator[K any, V any] interface {
	// Alloc should return a slice equivalent to make([]Slot[K,V], n), or an
	// error if the memory cannot be provided. The Map reports such errors
	// wrapped with ErrOutOfMemory.
	Alloc(n int) ([]Slot[K, V], error)

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc.
	Free(v []Slot[K, V])
}

type defaultAllocator[K any, V any] struct{}

func (defaultAllocator[K, V]) Alloc(n int) ([]Slot[K, V], error) {
	return make([]Slot[K, V], n), nil
}

func (defaultAllocator[K, V]) Free(v []Slot[K, V]) {
}

type allocatorOption[K any, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K any, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
