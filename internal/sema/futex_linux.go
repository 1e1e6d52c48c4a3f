//go:build linux && (amd64 || arm64)

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

package sema

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The futex ops deliberately omit FUTEX_PRIVATE_FLAG: the word lives in a
// file mapping shared across processes.
//
// golang.org/x/sys/unix does not export these op codes (they're kernel ABI
// constants, not syscall numbers or errnos), so they're defined locally.
const (
	_FUTEX_WAIT = 0
	_FUTEX_WAKE = 1
)

// futexWait sleeps until the value at addr is no longer val, a wake arrives,
// or the call is interrupted. Callers always re-check their condition after
// return; wakeups may be spurious.
func futexWait(addr *uint32, val uint32) error {
	// Re-check atomically before entering the syscall. This closes the
	// lost-wake race where a poster increments the count between our
	// snapshot and futex entry.
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		_FUTEX_WAIT,
		uintptr(val),
		0, // timeout: infinite
		0,
		0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	default:
		return fmt.Errorf("sema: futex wait: %w", errno)
	}
}

// futexWaitTimeout is futexWait with a bounded sleep. It returns ErrTimedOut
// when the kernel reports expiry; the caller still owns the deadline and
// re-checks its condition either way.
func futexWaitTimeout(addr *uint32, val uint32, timeout time.Duration) error {
	if timeout <= 0 {
		return ErrTimedOut
	}
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		_FUTEX_WAIT,
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0,
		0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrTimedOut
	default:
		return fmt.Errorf("sema: futex wait: %w", errno)
	}
}

// futexWake wakes up to n waiters sleeping on addr and returns how many were
// woken.
func futexWake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		_FUTEX_WAKE,
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("sema: futex wake: %w", errno)
	}
	return int(r1), nil
}
