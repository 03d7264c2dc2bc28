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

import "errors"

var (
	// ErrOutOfMemory is returned when a Map cannot obtain the slots it needs,
	// either at construction or while growing. A Map which fails to grow is
	// left unchanged.
	ErrOutOfMemory = errors.New("lpmap: out of memory")

	// ErrIncompatible is returned by PutAll when the two maps do not share
	// the same Hasher.
	ErrIncompatible = errors.New("lpmap: maps have different hashers")

	// ErrInvalidLoadFactor is returned by New when the maximum load factor
	// is not in the range (0, 1].
	ErrInvalidLoadFactor = errors.New("lpmap: max load factor must be in (0, 1]")
)
