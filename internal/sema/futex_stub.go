//go:build !linux || !(amd64 || arm64)

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
	"sync/atomic"
	"time"
)

// Hosts without a usable futex fall back to sleep polling in 500µs slices.
// The outer loops in Wait/WaitTimeout re-check the counter after every slice.
const pollSlice = 500 * time.Microsecond

func futexWait(addr *uint32, val uint32) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	time.Sleep(pollSlice)
	return nil
}

func futexWaitTimeout(addr *uint32, val uint32, timeout time.Duration) error {
	if timeout <= 0 {
		return ErrTimedOut
	}
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	if timeout < pollSlice {
		time.Sleep(timeout)
		return ErrTimedOut
	}
	time.Sleep(pollSlice)
	return nil
}

func futexWake(addr *uint32, n int) (int, error) {
	// Pollers notice the increment on their next slice.
	return 0, nil
}
