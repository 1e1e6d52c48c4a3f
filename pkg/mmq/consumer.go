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
	"fmt"
	"time"

	"github.com/jurgen-kluft/cmmio/internal/sema"
)

// AttachConsumer binds the handle to an existing queue in the consumer role:
// index and data read-only, control read-write. Each header's magic is
// checked against its own constant along with version and alignment, and the
// two named semaphores are opened under the names stored in the control
// header.
func (h *Handle) AttachConsumer(indexPath, dataPath, controlPath string) error {
	if err := h.index.OpenRO(indexPath); err != nil {
		return codeErr(CodeIndexOpenRW, err)
	}
	if err := h.data.OpenRO(dataPath); err != nil {
		return codeErr(CodeDataOpenRW, err)
	}
	if err := h.control.OpenRW(controlPath); err != nil {
		return codeErr(CodeControlOpenRW, err)
	}

	h.indexBase = h.index.AddressRO()
	h.dataBase = h.data.AddressRO()
	h.controlBase = h.control.AddressRW()

	if len(h.indexBase) < IndexHeaderSize || !validateIndexHeader(indexHeaderAt(h.indexBase)) {
		return codeErr(CodeIndexSanity, nil)
	}
	if len(h.dataBase) < DataHeaderSize || !validateDataHeader(dataHeaderAt(h.dataBase)) {
		return codeErr(CodeDataSanity, nil)
	}
	ch := controlHeaderAt(h.controlBase)
	if len(h.controlBase) < ControlHeaderSize || !validateControlHeader(ch) {
		return codeErr(CodeControlSanity, nil)
	}

	var err error
	if h.notify, err = sema.Open(ch.NotifySemName()); err != nil {
		return codeErr(CodeSemaphoreOpen, err)
	}
	if h.registry, err = sema.Open(ch.RegistrySemName()); err != nil {
		h.notify.Close()
		h.notify = nil
		return codeErr(CodeSemaphoreOpen, err)
	}

	h.role = roleConsumer
	return nil
}

// Drain returns the next message for the given slot as a zero-copy view
// into the shared data arena, or ok=false when the consumer has caught up
// with the producer. Entries flagged ABORTED are skipped. Delivery within
// one slot is in strictly increasing sequence order with no duplicates.
//
// The returned slice stays valid until the next call on this handle that
// can change its view of the data file (a Drain that triggers a remap, or
// Close). Callers that hold messages across calls copy them out.
//
// When the producer has grown a file past this consumer's mapping, Drain
// remaps at the file's current size before reading; outside of growth it
// never blocks.
func (h *Handle) Drain(slot int) ([]byte, bool) {
	if h.role != roleConsumer {
		return nil, false
	}

	ch := controlHeaderAt(h.controlBase)
	if slot < 0 || uint32(slot) >= ch.maxConsumers {
		return nil, false
	}
	self := slotAt(h.controlBase, uint32(slot))

	ih := indexHeaderAt(h.indexBase)
	nseq := ih.NextSeq()
	for {
		s := self.LastSeq()
		if s >= nseq {
			return nil, false
		}

		// The producer may have grown the index since we mapped it;
		// nextSeq covering s guarantees the entry exists on disk.
		if indexBytesFor(s+1) > int64(len(h.indexBase)) {
			if !h.remapIndex() {
				return nil, false
			}
		}

		e := indexEntryAt(h.indexBase, s)
		flags := e.Flags()
		if flags&FlagAborted != 0 || flags&FlagReady == 0 {
			self.SetLastSeq(s + 1)
			continue
		}

		off := uint64(e.off8) << 3
		length := uint64(e.length)
		if DataHeaderSize+off+length > uint64(len(h.dataBase)) {
			if !h.remapData() {
				return nil, false
			}
			if DataHeaderSize+off+length > uint64(len(h.dataBase)) {
				return nil, false
			}
		}

		self.SetLastSeq(s + 1)
		self.SetLastUpdateNS(uint64(time.Now().UnixNano()))
		return payloadAt(h.dataBase)[off : off+length], true
	}
}

// remapIndex refreshes the consumer's read-only index mapping to the file's
// current size.
func (h *Handle) remapIndex() bool {
	if err := h.index.Remap(); err != nil {
		return false
	}
	h.indexBase = h.index.AddressRO()
	return len(h.indexBase) >= IndexHeaderSize
}

// remapData refreshes the consumer's read-only data mapping to the file's
// current size.
func (h *Handle) remapData() bool {
	if err := h.data.Remap(); err != nil {
		return false
	}
	h.dataBase = h.data.AddressRO()
	return len(h.dataBase) >= DataHeaderSize
}

// Peek returns the number of entries published beyond the slot's cursor
// without consuming anything.
func (h *Handle) Peek(slot int) (uint64, error) {
	if h.role != roleConsumer {
		return 0, ErrBadRole
	}
	ch := controlHeaderAt(h.controlBase)
	if slot < 0 || uint32(slot) >= ch.maxConsumers {
		return 0, codeErr(CodeNoMessage, fmt.Errorf("slot %d out of range", slot))
	}
	self := slotAt(h.controlBase, uint32(slot))
	nseq := indexHeaderAt(h.indexBase).NextSeq()
	s := self.LastSeq()
	if s >= nseq {
		return 0, nil
	}
	return nseq - s, nil
}
