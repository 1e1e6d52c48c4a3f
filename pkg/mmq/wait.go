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

package mmq

import (
	"errors"
	"time"

	"github.com/jurgen-kluft/cmmio/internal/sema"
)

// WaitForNew blocks until the producer posts a wakeup token. Tokens drift:
// a consumer can see nextSeq advance without consuming a token, and a token
// may arrive with nothing left to read. The semaphore is strictly a wake
// hint; callers re-check with Drain after every return.
func (h *Handle) WaitForNew() error {
	if h.role != roleConsumer {
		return ErrBadRole
	}
	if err := h.notify.Wait(); err != nil {
		return codeErr(CodeSemaphoreOpen, err)
	}
	return nil
}

// WaitForNewTimeout is WaitForNew with a deadline. It returns ErrTimedOut
// if no token could be consumed within d. The same wake-hint caveat
// applies: a nil return does not guarantee a message is available.
func (h *Handle) WaitForNewTimeout(d time.Duration) error {
	if h.role != roleConsumer {
		return ErrBadRole
	}
	err := h.notify.WaitTimeout(d)
	if errors.Is(err, sema.ErrTimedOut) {
		return ErrTimedOut
	}
	if err != nil {
		return codeErr(CodeSemaphoreOpen, err)
	}
	return nil
}
