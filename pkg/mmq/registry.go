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

import "time"

// RegisterConsumer claims a slot in the control file under the registry
// lock. An active slot whose name matches exactly is reused with its cursor
// left untouched, so a consumer that re-attaches resumes where it stopped
// and startSeq is ignored. Otherwise the first inactive slot is claimed with
// lastSeq = startSeq and the name copied truncated to slot capacity.
//
// startSeq beyond the current nextSeq is legal; the consumer simply blocks
// until the producer catches up.
func (h *Handle) RegisterConsumer(name string, startSeq uint64) (int, error) {
	if h.role != roleConsumer {
		return -1, ErrBadRole
	}

	if err := h.registry.Wait(); err != nil {
		return -1, codeErr(CodeRegistryLock, err)
	}
	defer h.registry.Post()

	ch := controlHeaderAt(h.controlBase)
	maxc := ch.maxConsumers

	for i := uint32(0); i < maxc; i++ {
		s := slotAt(h.controlBase, i)
		if s.Active() && slotNameMatches(s, name) {
			s.SetLastUpdateNS(uint64(time.Now().UnixNano()))
			return int(i), nil
		}
	}

	for i := uint32(0); i < maxc; i++ {
		s := slotAt(h.controlBase, i)
		if !s.Active() {
			s.SetLastSeq(startSeq)
			s.SetLastUpdateNS(uint64(time.Now().UnixNano()))
			putCstr(s.name[:], name)
			s.SetActive(true)
			return int(i), nil
		}
	}

	return -1, ErrSlotsFull
}

// UnregisterConsumer releases a slot so another consumer can claim it. The
// cursor is discarded. Consumers that intend to resume later simply close
// their handle without unregistering.
func (h *Handle) UnregisterConsumer(slot int) error {
	if h.role != roleConsumer {
		return ErrBadRole
	}

	if err := h.registry.Wait(); err != nil {
		return codeErr(CodeRegistryLock, err)
	}
	defer h.registry.Post()

	ch := controlHeaderAt(h.controlBase)
	if slot < 0 || uint32(slot) >= ch.maxConsumers {
		return nil
	}
	s := slotAt(h.controlBase, uint32(slot))
	s.SetActive(false)
	s.SetLastSeq(0)
	s.SetLastUpdateNS(0)
	putCstr(s.name[:], "")
	return nil
}

// slotNameMatches compares name against the slot's fixed buffer the way the
// registry stores it: bounded at slot capacity, so a name longer than the
// buffer matches its stored truncation.
func slotNameMatches(s *consumerSlot, name string) bool {
	b := []byte(name)
	if len(b) > SlotNameSize-1 {
		b = b[:SlotNameSize-1]
	}
	for i := 0; i < SlotNameSize; i++ {
		var c byte
		if i < len(b) {
			c = b[i]
		}
		if s.name[i] != c {
			return false
		}
		if c == 0 {
			return true
		}
	}
	return true
}
