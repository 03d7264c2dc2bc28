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


package lpmap_test

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/lpmap"
)

func Example() {
	m, err := lpmap.New[string, string](0, lpmap.StringHasher{})
	if err != nil {
		panic(err)
	}
	defer m.Close()

	_ = m.Put("jenny", "867-5309")
	_ = m.Put("ghostbusters", "555-2368")

	if p, err := m.PutPtr("emergency"); err == nil {
		*p = "911"
	}

	v, ok := m.Get("jenny")
	fmt.Println(v, ok)
	fmt.Println(m.Remove("ghostbusters"), m.Contains("ghostbusters"))

	var names []string
	m.All(func(k, v string) bool {
		names = append(names, k+"="+v)
		return true
	})
	sort.Strings(names)
	fmt.Println(names, m.Len(), m.Capacity())

	// Output:
	// 867-5309 true
	// true false
	// [emergency=911 jenny=867-5309] 2 32
}

func ExampleMap_PutAll() {
	a, _ := lpmap.New[string, int](0, lpmap.StringHasher{})
	b, _ := lpmap.New[string, int](0, lpmap.StringHasher{})
	_ = a.Put("x", 1)
	_ = a.Put("y", 2)
	_ = b.Put("y", 3)
	_ = b.Put("z", 4)

	if err := a.PutAll(b); err != nil {
		panic(err)
	}
	for _, k := range []string{"x", "y", "z"} {
		v, _ := a.Get(k)
		fmt.Println(k, v)
	}
	// Output:
	// x 1
	// y 3
	// z 4
}
