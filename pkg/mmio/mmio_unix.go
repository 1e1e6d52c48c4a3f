//go:build unix

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

package mmio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenRW opens an existing file and maps it read-write at its current size.
func (m *File) OpenRW(path string) error {
	return m.open(path, true)
}

// OpenRO opens an existing file and maps it read-only at its current size.
func (m *File) OpenRO(path string) error {
	return m.open(path, false)
}

func (m *File) open(path string, writable bool) error {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return fmt.Errorf("mmio: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("mmio: stat %s: %w", path, err)
	}
	data, err := mapFile(f, info.Size(), writable)
	if err != nil {
		f.Close()
		return err
	}
	m.f = f
	m.data = data
	m.size = info.Size()
	m.writable = writable
	m.path = path
	return nil
}

// CreateRW creates the file at the given size (truncating any existing
// content) and maps it read-write.
func (m *File) CreateRW(path string, size int64) error {
	return m.create(path, size, true)
}

// CreateRO creates the file at the given size and maps it read-only.
func (m *File) CreateRO(path string, size int64) error {
	return m.create(path, size, false)
}

func (m *File) create(path string, size int64, writable bool) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("mmio: create %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("mmio: truncate %s to %d: %w", path, size, err)
	}
	data, err := mapFile(f, size, writable)
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	m.f = f
	m.data = data
	m.size = size
	m.writable = writable
	m.path = path
	return nil
}

// ExtendSize grows the underlying file to newSize and remaps it. The base
// address may change; callers re-derive any pointers into the mapping.
// Contents up to the old size are preserved. Shrinking is not supported.
func (m *File) ExtendSize(newSize int64) error {
	if m.data == nil {
		return ErrNotMapped
	}
	if !m.writable {
		return ErrReadOnly
	}
	if newSize <= m.size {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("mmio: munmap %s: %w", m.path, err)
	}
	m.data = nil
	if err := m.f.Truncate(newSize); err != nil {
		return fmt.Errorf("mmio: truncate %s to %d: %w", m.path, newSize, err)
	}
	data, err := mapFile(m.f, newSize, true)
	if err != nil {
		return err
	}
	m.data = data
	m.size = newSize
	return nil
}

// Remap refreshes the mapping to the file's current on-disk size, keeping
// the access mode. Used by consumers after a producer grew the file.
func (m *File) Remap() error {
	if m.data == nil {
		return ErrNotMapped
	}
	info, err := m.f.Stat()
	if err != nil {
		return fmt.Errorf("mmio: stat %s: %w", m.path, err)
	}
	if info.Size() == m.size {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("mmio: munmap %s: %w", m.path, err)
	}
	m.data = nil
	data, err := mapFile(m.f, info.Size(), m.writable)
	if err != nil {
		return err
	}
	m.data = data
	m.size = info.Size()
	return nil
}

// Sync flushes the whole mapping to the underlying file.
func (m *File) Sync() error {
	if m.data == nil {
		return ErrNotMapped
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmio: msync %s: %w", m.path, err)
	}
	return nil
}

// SyncRange flushes [off, off+n) of the mapping. The range is widened to
// page boundaries as msync requires.
func (m *File) SyncRange(off, n int64) error {
	if m.data == nil {
		return ErrNotMapped
	}
	if off < 0 || n <= 0 || off+n > m.size {
		return fmt.Errorf("mmio: sync range [%d,%d) out of bounds (size %d)", off, off+n, m.size)
	}
	page := int64(os.Getpagesize())
	start := off &^ (page - 1)
	end := (off + n + page - 1) &^ (page - 1)
	if end > m.size {
		end = m.size
	}
	if err := unix.Msync(m.data[start:end], unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmio: msync %s: %w", m.path, err)
	}
	return nil
}

// Close unmaps the region and closes the file descriptor. It is a no-op on
// an unbound File and proceeds through both releases even if the first fails.
func (m *File) Close() error {
	var firstErr error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mmio: munmap %s: %w", m.path, err)
		}
		m.data = nil
	}
	if m.f != nil {
		if err := m.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.f = nil
	}
	m.size = 0
	m.writable = false
	return firstErr
}

// mapFile maps size bytes of f with the requested protection.
func mapFile(f *os.File, size int64, writable bool) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmio: invalid mapping size %d for %s", size, f.Name())
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmio: mmap %s: %w", f.Name(), err)
	}
	return data, nil
}
