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

// Package lpmap is a Go implementation of an open-addressed hash table using
// linear probing and backward-shift deletion. See also:
// https://en.wikipedia.org/wiki/Open_addressing and
// https://en.wikipedia.org/wiki/Linear_probing.
//
// # Layout
//
// A Map stores every entry directly in a single contiguous array of slots.
// The number of slots is always a power of 2 and never less than
// MinCapacity, so i%N can be computed as i&(N-1). Each slot holds a 32-bit
// tag word followed by the key and the value:
//
//	tag:   1 h h h ... h   (31 bits of hash(key))  occupied
//	       0 ? ? ? ... ?                            free
//
// The high bit of the tag is the occupied flag. The remaining 31 bits hold
// the key's hash, which lets a probe reject most non-matching slots with a
// single integer comparison before calling Hasher.Equal, and lets growth and
// PutAll reinsert entries without rehashing their keys.
//
// # Probing
//
// A key whose hash is h ideally lives in slot h&mask. If that slot is taken
// the probe walks forward one slot at a time, wrapping at the end of the
// array, until it finds the key or a free slot. The load factor is capped so
// that at least one slot is always free, which guarantees every probe
// terminates.
//
// # Deletion
//
// Removal does not leave tombstones. After freeing a slot we walk the run of
// occupied slots that follows it and move back any entry whose ideal slot is
// not on the cyclic arc between the hole and the entry's current position.
// The moved entry's old slot becomes the new hole and the walk continues
// until a free slot is reached. Afterwards every entry is again reachable from
// its ideal slot without crossing a free slot, so probe sequences never
// degrade with churn. This only works for linear probing.
//
// # Growth
//
// When an insert of a new key would push the number of entries past
// floor(capacity*maxLoadFactor), a new slot array of twice the capacity is
// built by reinserting every entry using the stored hash. The old array is
// released only after the new one is complete, so an allocation failure
// during growth leaves the Map exactly as it was.
package lpmap

import (
	"fmt"
	"math/bits"
	"reflect"
	"strings"
)

const (
	debug = false

	// MinCapacity is the smallest number of slots a Map ever has.
	MinCapacity = 32
	// DefaultMaxLoadFactor is the ratio of entries to slots above which a
	// Map grows, unless overridden with WithMaxLoadFactor.
	DefaultMaxLoadFactor = 0.75

	// maxCapacityN bounds the capacity so that slot indexes computed from a
	// tag never include the occupied bit.
	maxCapacityN = 31

	tagOccupied tag = 0x80000000
)

// tag is the per-slot metadata word. See the package comment for the bit
// layout.
type tag uint32

func makeTag(h uint32) tag {
	return tag(h) | tagOccupied
}

func (t tag) occupied() bool {
	return t&tagOccupied != 0
}

// hash returns the 31 hash bits stored in the tag.
func (t tag) hash() uint32 {
	return uint32(t &^ tagOccupied)
}

// Slot holds a tag, a key and a value.
type Slot[K any, V any] struct {
	tag   tag
	key   K
	value V
}

// Cursor is a position in a Map's slot array used by Next. The zero Cursor
// is the start of the array.
type Cursor int

// Map is an unordered map from keys to values using open addressing with
// linear probing. Hashing and key equality are supplied by a Hasher when the
// Map is created.
//
// A Map is NOT goroutine-safe.
type Map[K any, V any] struct {
	hasher Hasher[K]
	// The allocator to use for the slots slice.
	allocator Allocator[K, V]
	// slots is capacity in length, capacity is always 2^capacityN.
	slots     []Slot[K, V]
	capacityN uint
	// mask is capacity-1 and is used to compute i%capacity.
	mask uint32
	// The number of occupied slots (i.e. the number of elements in the map).
	count int
	// The number of elements the map can hold before it must grow. Always
	// less than capacity so that probing finds a free slot.
	maxCount      int
	maxLoadFactor float32
	// version is bumped on every structural mutation. Used to detect
	// mutation during iteration in invariant builds.
	version uint64
}

// New constructs a new Map with room for at least initialCapacity slots. The
// capacity is rounded up to a power of 2 and to at least MinCapacity. The
// hasher must not be nil.
func New[K any, V any](
	initialCapacity int, hasher Hasher[K], options ...option[K, V],
) (*Map[K, V], error) {
	if hasher == nil {
		panic("lpmap: nil hasher")
	}
	m := &Map[K, V]{
		hasher:        hasher,
		allocator:     defaultAllocator[K, V]{},
		maxLoadFactor: DefaultMaxLoadFactor,
	}

	for _, op := range options {
		op.apply(m)
	}

	// NB: written so that NaN is rejected.
	if !(m.maxLoadFactor > 0 && m.maxLoadFactor <= 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLoadFactor, m.maxLoadFactor)
	}
	if err := m.init(initialCapacity); err != nil {
		return nil, err
	}
	m.checkInvariants()
	return m, nil
}

// init allocates the slots for a map with at least the specified capacity.
func (m *Map[K, V]) init(initialCapacity int) error {
	capacityN := capacityExponent(initialCapacity)
	if capacityN > maxCapacityN {
		return fmt.Errorf("%w: capacity %d exceeds the maximum of %d",
			ErrOutOfMemory, initialCapacity, int64(1)<<maxCapacityN)
	}
	capacity := 1 << capacityN
	slots, err := m.allocator.Alloc(capacity)
	if err != nil {
		return fmt.Errorf("%w: allocating %d slots: %w", ErrOutOfMemory, capacity, err)
	}

	m.slots = slots
	m.capacityN = capacityN
	m.mask = uint32(capacity - 1)
	m.count = 0
	m.maxCount = maxCountFor(capacity, m.maxLoadFactor)

	if debug {
		fmt.Printf("init: capacity=%d max-count=%d\n", capacity, m.maxCount)
	}
	return nil
}

// capacityExponent returns n such that 2^n is the smallest power of 2 which
// is >= max(initialCapacity, MinCapacity).
func capacityExponent(initialCapacity int) uint {
	if initialCapacity < MinCapacity {
		initialCapacity = MinCapacity
	}
	return uint(bits.Len(uint(initialCapacity - 1)))
}

func maxCountFor(capacity int, maxLoadFactor float32) int {
	maxCount := int(float64(capacity) * float64(maxLoadFactor))
	// Make sure there is always at least one free slot so that find
	// terminates.
	if maxCount >= capacity {
		maxCount = capacity - 1
	}
	return maxCount
}

// Close closes the map, releasing the slots back to its configured
// allocator. It is unnecessary to close a map using the default allocator. It
// is invalid to use a Map after it has been closed, though Close itself is
// idempotent.
func (m *Map[K, V]) Close() {
	if m.slots != nil {
		m.allocator.Free(m.slots)
		m.slots = nil
	}
	m.count = 0
	m.maxCount = 0
	m.version++
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.count
}

// Capacity returns the number of slots in the map. The capacity never
// shrinks. A nil map reports MinCapacity.
func (m *Map[K, V]) Capacity() int {
	if m == nil {
		return MinCapacity
	}
	return len(m.slots)
}

// Put inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists. An error wrapping ErrOutOfMemory is
// returned if the map needed to grow and could not, in which case the map is
// unchanged.
func (m *Map[K, V]) Put(key K, value V) error {
	i, err := m.findOrInsert(key, m.hasher.Hash(key))
	if err != nil {
		return err
	}
	m.slots[i].value = value
	m.checkInvariants()
	return nil
}

// PutPtr returns a pointer to the value associated with key, inserting an
// entry holding the zero value if the key is not present. Callers should
// write the value before relying on it.
//
// The returned pointer is only valid until the next operation which adds or
// removes an entry (Put, PutPtr, Update, Remove, PutAll, Clear, Close).
// Writing through a stale pointer silently modifies memory the map no longer
// uses.
func (m *Map[K, V]) PutPtr(key K) (*V, error) {
	i, err := m.findOrInsert(key, m.hasher.Hash(key))
	if err != nil {
		return nil, err
	}
	m.checkInvariants()
	return &m.slots[i].value, nil
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present. The value returned for a missing key
// is the zero value of V.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	i, found := m.find(key, m.hasher.Hash(key))
	if !found {
		return value, false
	}
	return m.slots[i].value, true
}

// GetPtr returns a pointer to the value associated with key, or nil if the
// key is not present. The pointer is subject to the same validity rules as
// the one returned by PutPtr.
func (m *Map[K, V]) GetPtr(key K) *V {
	i, found := m.find(key, m.hasher.Hash(key))
	if !found {
		return nil
	}
	return &m.slots[i].value
}

// Contains returns true if the map holds an entry for key.
func (m *Map[K, V]) Contains(key K) bool {
	_, found := m.find(key, m.hasher.Hash(key))
	return found
}

// Update performs a read-modify-write of the entry for key. fn is passed a
// pointer to the current value (or to a zero value if the key is absent) and
// whether the key exists. The pointer must not be retained after fn returns.
// fn returns whether an entry for key should be present afterwards: returning
// false removes an existing entry, returning true for an absent key inserts
// the value fn wrote.
func (m *Map[K, V]) Update(key K, fn func(value *V, exists bool) bool) error {
	h := m.hasher.Hash(key)
	if i, found := m.find(key, h); found {
		if !fn(&m.slots[i].value, true) {
			m.removeAt(i)
			m.checkInvariants()
		}
		return nil
	}

	var value V
	if !fn(&value, false) {
		return nil
	}
	i, err := m.findOrInsert(key, h)
	if err != nil {
		return err
	}
	m.slots[i].value = value
	m.checkInvariants()
	return nil
}

// Remove deletes the entry corresponding to the specified key from the map,
// returning false if there was no such entry.
func (m *Map[K, V]) Remove(key K) bool {
	i, found := m.find(key, m.hasher.Hash(key))
	if !found {
		if debug {
			fmt.Printf("remove(%v): not-found\n", key)
		}
		return false
	}
	m.removeAt(i)
	m.checkInvariants()
	return true
}

// PutAll copies every entry of from into m, overwriting the values of keys
// present in both. Both maps must share the same Hasher (a comparable value,
// such as a pointer, which compares equal), otherwise ErrIncompatible is
// returned. Entries are reinserted using their stored hash.
//
// If the map fails to grow part way through, an error wrapping
// ErrOutOfMemory is returned and some of the entries of from may have been
// copied. Callers needing all-or-nothing behavior should copy into a fresh
// map.
func (m *Map[K, V]) PutAll(from *Map[K, V]) error {
	if !sameHasher(m.hasher, from.hasher) {
		return ErrIncompatible
	}
	err := m.putAll(from)
	m.checkInvariants()
	return err
}

// Clone returns a copy of the map with the same capacity, load factor,
// hasher and allocator.
func (m *Map[K, V]) Clone() (*Map[K, V], error) {
	return m.copy(len(m.slots))
}

// Clear deletes all entries from the map, retaining its capacity.
func (m *Map[K, V]) Clear() {
	clear(m.slots)
	m.count = 0
	m.version++
	m.checkInvariants()
}

// Next returns the first entry at or after cursor c in slot order, and the
// cursor from which to continue. ok is false once the end of the slots has
// been reached. Iteration starts from the zero Cursor:
//
//	for c, ok := Cursor(0), true; ok; {
//	  var k K
//	  var v V
//	  if k, v, c, ok = m.Next(c); ok {
//	    ...
//	  }
//	}
//
// The order of entries is unspecified. The map must not be modified while it
// is being iterated.
func (m *Map[K, V]) Next(c Cursor) (key K, value V, next Cursor, ok bool) {
	for i := int(c); i < len(m.slots); i++ {
		if s := &m.slots[i]; s.tag.occupied() {
			return s.key, s.value, Cursor(i + 1), true
		}
	}
	return key, value, Cursor(len(m.slots)), false
}

// All calls yield sequentially for each key and value present in the map. If
// yield returns false, iteration stops. The map must not be modified during
// iteration; invariant builds panic if it is.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	version := m.version
	for i := range m.slots {
		s := &m.slots[i]
		if !s.tag.occupied() {
			continue
		}
		if !yield(s.key, s.value) {
			return
		}
		if invariants && m.version != version {
			panic("lpmap: map modified during iteration")
		}
	}
}

// find looks for key in the map. If found, the index of its slot is
// returned. Otherwise the index of the free slot which terminated the probe
// is returned, which is where key would be inserted.
func (m *Map[K, V]) find(key K, h uint32) (i uint32, found bool) {
	t := makeTag(h)
	i = uint32(t) & m.mask
	if debug {
		fmt.Printf("find(%v): tag=%08x start=%d\n", key, uint32(t), i)
	}
	for {
		s := &m.slots[i]
		if s.tag == t && m.hasher.Equal(s.key, key) {
			return i, true
		}
		if !s.tag.occupied() {
			if debug {
				fmt.Printf("find(%v): not-found free=%d\n", key, i)
			}
			return i, false
		}
		// Linear probing.
		i = (i + 1) & m.mask
	}
}

// findOrInsert returns the index of the slot holding key, inserting key with
// a zero value if it is not present. Inserting may grow the map.
func (m *Map[K, V]) findOrInsert(key K, h uint32) (uint32, error) {
	i, found := m.find(key, h)
	if found {
		return i, nil
	}
	if m.count >= m.maxCount {
		if err := m.grow(); err != nil {
			return 0, err
		}
		i, _ = m.find(key, h)
	}

	s := &m.slots[i]
	s.tag = makeTag(h)
	s.key = key
	m.count++
	m.version++
	if debug {
		fmt.Printf("insert(%v): index=%d count=%d\n", key, i, m.count)
	}
	return i, nil
}

// grow replaces the slots with an array of twice the capacity holding the
// same entries. On failure the map is left untouched.
func (m *Map[K, V]) grow() error {
	// Double the capacity, and keep doubling if a small load factor would
	// leave no room for the entry being inserted.
	capacityN := m.capacityN + 1
	for capacityN <= maxCapacityN && maxCountFor(1<<capacityN, m.maxLoadFactor) <= m.count {
		capacityN++
	}
	if capacityN > maxCapacityN {
		return fmt.Errorf("%w: capacity limit of %d reached", ErrOutOfMemory, int64(1)<<maxCapacityN)
	}
	n, err := m.copy(1 << capacityN)
	if err != nil {
		return err
	}
	if debug {
		fmt.Printf("grow: capacity=%d->%d count=%d\n", len(m.slots), len(n.slots), m.count)
	}

	m.allocator.Free(m.slots)
	m.slots = n.slots
	m.capacityN = n.capacityN
	m.mask = n.mask
	m.count = n.count
	m.maxCount = n.maxCount
	m.version++
	return nil
}

// copy returns a new map with the specified capacity containing the entries
// of m.
func (m *Map[K, V]) copy(capacity int) (*Map[K, V], error) {
	n := &Map[K, V]{
		hasher:        m.hasher,
		allocator:     m.allocator,
		maxLoadFactor: m.maxLoadFactor,
	}
	if err := n.init(capacity); err != nil {
		return nil, err
	}
	if err := n.putAll(m); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (m *Map[K, V]) putAll(from *Map[K, V]) error {
	for i := range from.slots {
		s := &from.slots[i]
		if !s.tag.occupied() {
			continue
		}
		j, err := m.findOrInsert(s.key, s.tag.hash())
		if err != nil {
			return err
		}
		m.slots[j].value = s.value
	}
	return nil
}

// removeAt frees slot i and closes the gap using backward-shift deletion.
func (m *Map[K, V]) removeAt(i uint32) {
	if debug {
		fmt.Printf("remove(%v): index=%d count=%d\n", m.slots[i].key, i, m.count-1)
	}
	m.slots[i] = Slot[K, V]{}
	m.count--
	m.version++

	// i is the hole. Walk the run of occupied slots after it. An entry at j
	// whose ideal slot k lies on the cyclic arc (i, j] is still reachable
	// and stays put. Any other entry would become unreachable because the
	// probe from k would stop at the hole, so it is moved into the hole and
	// its old slot becomes the new hole.
	for j := i; ; {
		j = (j + 1) & m.mask
		s := &m.slots[j]
		if !s.tag.occupied() {
			return
		}
		k := s.tag.hash() & m.mask
		if (i <= j && (k <= i || k > j)) || (i > j && k <= i && k > j) {
			if debug {
				fmt.Printf("remove(shift): %d -> %d ideal=%d\n", j, i, k)
			}
			m.slots[i] = *s
			*s = Slot[K, V]{}
			i = j
		}
	}
}

// sameHasher returns true if a and b are the same hasher. Hashers whose
// dynamic type is not comparable are never considered the same.
func sameHasher[K any](a, b Hasher[K]) bool {
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if err := m.verify(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, m.debugString()))
		}
	}
}

// verify checks the structural invariants of the map, returning the first
// violation found.
func (m *Map[K, V]) verify() error {
	if m.slots == nil {
		// Closed.
		return nil
	}
	capacity := len(m.slots)
	if capacity != 1<<m.capacityN || capacity < MinCapacity {
		return fmt.Errorf("capacity %d is not 2^%d >= %d", capacity, m.capacityN, MinCapacity)
	}
	if m.mask != uint32(capacity-1) {
		return fmt.Errorf("mask %#x does not match capacity %d", m.mask, capacity)
	}
	if m.maxCount >= capacity {
		return fmt.Errorf("max-count %d leaves no free slot in capacity %d", m.maxCount, capacity)
	}
	if m.count > m.maxCount {
		return fmt.Errorf("count %d exceeds max-count %d", m.count, m.maxCount)
	}

	var used int
	for i := range m.slots {
		s := &m.slots[i]
		if !s.tag.occupied() {
			continue
		}
		used++
		if h := makeTag(m.hasher.Hash(s.key)); h != s.tag {
			return fmt.Errorf("slot(%d): %v has tag %08x, but hashes to %08x", i, s.key, uint32(s.tag), uint32(h))
		}
		// The entry must be reachable from its ideal slot without crossing
		// a free slot.
		for j := s.tag.hash() & m.mask; j != uint32(i); j = (j + 1) & m.mask {
			if !m.slots[j].tag.occupied() {
				return fmt.Errorf("slot(%d): %v unreachable from ideal slot %d, free slot at %d",
					i, s.key, s.tag.hash()&m.mask, j)
			}
		}
	}
	if used != m.count {
		return fmt.Errorf("found %d used slots, but count is %d", used, m.count)
	}
	return nil
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  count=%d  max-count=%d\n", len(m.slots), m.count, m.maxCount)
	for i := range m.slots {
		s := &m.slots[i]
		if !s.tag.occupied() {
			fmt.Fprintf(&buf, "  %4d: free\n", i)
			continue
		}
		fmt.Fprintf(&buf, "  %4d: %v [tag=%08x ideal=%d]\n", i, s.key, uint32(s.tag), s.tag.hash()&m.mask)
	}
	return buf.String()
}
