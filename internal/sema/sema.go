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

// Package sema implements named, host-global counting semaphores shared
// between processes. Each semaphore is a small memory-mapped file holding a
// single counter word; waiters sleep on the word with a shared futex where
// the host supports one, and with short sleep slices elsewhere. Names follow
// POSIX named-semaphore conventions (leading '/').
package sema

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/jurgen-kluft/cmmio/pkg/mmio"
)

const (
	semMagic    = uint32(0x53454D31) // "SEM1"
	semFileSize = 16

	offMagic = 0
	offValue = 4
)

// ErrTimedOut is returned by WaitTimeout when the deadline expires before a
// token could be consumed.
var ErrTimedOut = errors.New("sema: timed out")

// ErrBadName is returned for names that do not start with '/' or that are
// empty after the slash.
var ErrBadName = errors.New("sema: name must be '/name'")

// Semaphore is a named counting semaphore backed by a mapped file. It is safe
// for concurrent use by multiple goroutines and multiple processes.
type Semaphore struct {
	mf   mmio.File
	name string
}

// Create opens the semaphore under name, creating it with the given initial
// count if it does not exist yet. An existing semaphore is adopted as-is and
// initial is ignored.
func Create(name string, initial uint32) (*Semaphore, error) {
	path, err := semPath(name)
	if err != nil {
		return nil, err
	}

	// Exclusive create, adopt on EEXIST.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
	if err == nil {
		var img [semFileSize]byte
		binary.LittleEndian.PutUint32(img[offMagic:], semMagic)
		binary.LittleEndian.PutUint32(img[offValue:], initial)
		if _, werr := f.Write(img[:]); werr != nil {
			f.Close()
			os.Remove(path)
			return nil, fmt.Errorf("sema: initialize %s: %w", path, werr)
		}
		if cerr := f.Close(); cerr != nil {
			os.Remove(path)
			return nil, fmt.Errorf("sema: initialize %s: %w", path, cerr)
		}
	} else if !os.IsExist(err) {
		return nil, fmt.Errorf("sema: create %s: %w", path, err)
	}

	return openPath(name, path)
}

// Open opens an existing semaphore under name.
func Open(name string) (*Semaphore, error) {
	path, err := semPath(name)
	if err != nil {
		return nil, err
	}
	if !mmio.Exists(path) {
		return nil, fmt.Errorf("sema: open %s: %w", name, os.ErrNotExist)
	}
	return openPath(name, path)
}

func openPath(name, path string) (*Semaphore, error) {
	s := &Semaphore{name: name}
	if err := s.mf.OpenRW(path); err != nil {
		return nil, err
	}
	if s.mf.Size() < semFileSize {
		s.mf.Close()
		return nil, fmt.Errorf("sema: %s: file too small (%d bytes)", name, s.mf.Size())
	}
	if atomic.LoadUint32(s.magic()) != semMagic {
		s.mf.Close()
		return nil, fmt.Errorf("sema: %s: bad magic", name)
	}
	return s, nil
}

// Unlink removes the semaphore's backing file by name. Live handles keep
// working until closed; subsequent Opens under the same name fail.
func Unlink(name string) error {
	path, err := semPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sema: unlink %s: %w", name, err)
	}
	return nil
}

// Name returns the semaphore's name.
func (s *Semaphore) Name() string {
	return s.name
}

func (s *Semaphore) magic() *uint32 {
	data := s.mf.AddressRW()
	return (*uint32)(unsafe.Pointer(&data[offMagic]))
}

func (s *Semaphore) value() *uint32 {
	data := s.mf.AddressRW()
	return (*uint32)(unsafe.Pointer(&data[offValue]))
}

// Post increments the count by one and wakes at most one waiter.
func (s *Semaphore) Post() error {
	if s.mf.AddressRW() == nil {
		return mmio.ErrNotMapped
	}
	addr := s.value()
	atomic.AddUint32(addr, 1)
	_, err := futexWake(addr, 1)
	return err
}

// TryWait consumes one token without blocking. It reports whether a token
// was consumed.
func (s *Semaphore) TryWait() bool {
	if s.mf.AddressRW() == nil {
		return false
	}
	addr := s.value()
	for {
		v := atomic.LoadUint32(addr)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(addr, v, v-1) {
			return true
		}
	}
}

// Wait blocks until a token can be consumed.
func (s *Semaphore) Wait() error {
	if s.mf.AddressRW() == nil {
		return mmio.ErrNotMapped
	}
	addr := s.value()
	for {
		if s.TryWait() {
			return nil
		}
		// Sleep while the count is zero. Spurious wakeups are fine; the
		// loop re-checks the count.
		if err := futexWait(addr, 0); err != nil {
			return err
		}
	}
}

// WaitTimeout blocks until a token can be consumed or the timeout elapses,
// in which case it returns ErrTimedOut. A non-positive timeout degenerates
// to TryWait.
func (s *Semaphore) WaitTimeout(d time.Duration) error {
	if s.mf.AddressRW() == nil {
		return mmio.ErrNotMapped
	}
	if s.TryWait() {
		return nil
	}
	if d <= 0 {
		return ErrTimedOut
	}
	addr := s.value()
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimedOut
		}
		if err := futexWaitTimeout(addr, 0, remaining); err != nil && err != ErrTimedOut {
			return err
		}
		if s.TryWait() {
			return nil
		}
	}
}

// Close releases the mapping and file descriptor. The semaphore itself stays
// on the host until Unlink. Double-close is a no-op.
func (s *Semaphore) Close() error {
	return s.mf.Close()
}

// semPath maps a POSIX-style semaphore name to its backing file path under
// the host's shared-memory directory.
func semPath(name string) (string, error) {
	if len(name) < 2 || name[0] != '/' || strings.ContainsRune(name[1:], '/') {
		return "", ErrBadName
	}
	return filepath.Join(semDir(), "mmq.sem."+name[1:]), nil
}

// semDir prefers /dev/shm so that waiters across processes share page cache,
// falling back to the temporary directory.
func semDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}
