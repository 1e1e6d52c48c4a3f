/*
 *
 * Copyright 2025 cmmio authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package mmio provides memory-mapped file objects: open, create, resize
// and sync of a file mapping, with the base address tracked across remaps.
package mmio

import (
	"errors"
	"os"
)

// ErrNotMapped is returned by operations that require an active mapping.
var ErrNotMapped = errors.New("mmio: file is not mapped")

// ErrReadOnly is returned when a write-side operation is attempted on a
// read-only mapping.
var ErrReadOnly = errors.New("mmio: mapping is read-only")

// File is a memory-mapped file. The zero value is unmapped; bind it with
// OpenRW/OpenRO/CreateRW/CreateRO. A File is not safe for concurrent use by
// multiple goroutines; callers serialize access (the queue producer owns its
// files exclusively, consumers remap only from their own goroutine).
type File struct {
	f        *os.File
	data     []byte
	size     int64
	writable bool
	path     string
}

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Path returns the path this File was bound to, or "" if unbound.
func (m *File) Path() string {
	return m.path
}

// Size returns the size in bytes of the current mapping.
func (m *File) Size() int64 {
	return m.size
}

// IsWriteable reports whether the current mapping is writable.
func (m *File) IsWriteable() bool {
	return m.data != nil && m.writable
}

// AddressRW returns the writable mapped region, or nil if the mapping is
// read-only or absent. The slice is invalidated by ExtendSize and Close.
func (m *File) AddressRW() []byte {
	if !m.writable {
		return nil
	}
	return m.data
}

// AddressRO returns the mapped region for reading, or nil if absent. The
// slice is invalidated by ExtendSize and Close.
func (m *File) AddressRO() []byte {
	return m.data
}
