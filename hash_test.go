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
	"strconv"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestIntHasher(t *testing.T) {
	t.Run("int32", func(t *testing.T) {
		// The 32-bit mix is a bijection, so distinct keys never collide.
		var h IntHasher[int32]
		seen := make(map[uint32]struct{})
		for i := int32(0); i < 10000; i++ {
			seen[h.Hash(i)] = struct{}{}
		}
		require.EqualValues(t, 10000, len(seen))
	})

	t.Run("int64", func(t *testing.T) {
		var h IntHasher[int64]
		seen := make(map[uint32]struct{})
		for i := int64(0); i < 10000; i++ {
			seen[h.Hash(i<<32)] = struct{}{}
		}
		// Keys which differ only in their high bits still spread out.
		require.Greater(t, len(seen), 9900)
	})

	t.Run("small", func(t *testing.T) {
		var h8 IntHasher[int8]
		var hu8 IntHasher[uint8]
		require.NotEqual(t, h8.Hash(1), h8.Hash(-1))
		require.Equal(t, hu8.Hash(7), h8.Hash(7))
		require.True(t, h8.Equal(-3, -3))
		require.False(t, h8.Equal(-3, 3))
	})
}

func TestFloatHasher(t *testing.T) {
	var h FloatHasher[float64]
	require.Equal(t, h.Hash(0), h.Hash(math.Copysign(0, -1)))
	require.True(t, h.Equal(0, math.Copysign(0, -1)))
	require.NotEqual(t, h.Hash(1.5), h.Hash(2.5))

	nan := math.NaN()
	require.False(t, h.Equal(nan, nan))

	var h32 FloatHasher[float32]
	require.Equal(t, hash32(math.Float32bits(1.5)), h32.Hash(1.5))
}

func TestStringHasher(t *testing.T) {
	var h StringHasher
	for _, s := range []string{"", "a", "hello", "jenny"} {
		x := xxhash.Sum64String(s)
		require.Equal(t, uint32(x)^uint32(x>>32), h.Hash(s))
		require.True(t, h.Equal(s, s))
	}
	require.False(t, h.Equal("a", "b"))
}

func TestHashCombine(t *testing.T) {
	require.EqualValues(t, 0x9e3779fa, HashCombine(1, 2))
	require.NotEqual(t, HashCombine(1, 2), HashCombine(2, 1))
}

func TestSameHasher(t *testing.T) {
	f := NewComparableHasher(func(k int) uint32 { return uint32(k) })
	g := NewComparableHasher(func(k int) uint32 { return uint32(k) })
	require.True(t, sameHasher[int](f, f))
	require.False(t, sameHasher[int](f, g))
	require.True(t, sameHasher[int](IntHasher[int]{}, IntHasher[int]{}))
	require.False(t, sameHasher[int](IntHasher[int]{}, f))
	require.True(t, sameHasher[string](StringHasher{}, StringHasher{}))
}

// structKey is a composite key hashed with HashCombine.
type structKey struct {
	a int32
	b string
}

type structKeyHasher struct{}

func (structKeyHasher) Hash(k structKey) uint32 {
	return HashCombine(IntHasher[int32]{}.Hash(k.a), StringHasher{}.Hash(k.b))
}

func (structKeyHasher) Equal(x, y structKey) bool {
	return x == y
}

func TestCompositeKey(t *testing.T) {
	m, err := New[structKey, int](0, structKeyHasher{})
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		require.NoError(t, m.Put(structKey{int32(i), strconv.Itoa(i)}, i))
	}
	for i := 0; i < 500; i++ {
		v, ok := m.Get(structKey{int32(i), strconv.Itoa(i)})
		require.True(t, ok)
		require.EqualValues(t, i, v)
		require.False(t, m.Contains(structKey{int32(i), strconv.Itoa(i + 1)}))
	}
	require.NoError(t, m.verify())
}
