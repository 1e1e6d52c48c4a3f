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

	"github.com/jurgen-kluft/cmmio/internal/sema"
	"github.com/jurgen-kluft/cmmio/pkg/mmio"
)

// InitProducer binds the handle to the three queue files in the producer
// role, creating any that do not exist. Existing index and data files are
// opened read-write and their contents treated as authoritative. The control
// file is always zeroed and re-stamped, so a producer restart invalidates
// live consumer registrations: the producer owns the control header.
//
// Both named semaphores are created if missing (notify counting from 0,
// registry lock from 1) and adopted if they already exist.
func (h *Handle) InitProducer(cfg Config, indexPath, dataPath, controlPath, notifySemName, registrySemName string) error {
	if mmio.Exists(indexPath) {
		if err := h.index.OpenRW(indexPath); err != nil {
			return codeErr(CodeIndexOpenRW, err)
		}
		h.indexBase = h.index.AddressRW()
	} else {
		if err := h.index.CreateRW(indexPath, cfg.IndexInitialBytes); err != nil {
			return codeErr(CodeIndexOpenRW, err)
		}
		h.indexBase = h.index.AddressRW()
		ih := indexHeaderAt(h.indexBase)
		ih.magic = MagicIndex
		ih.version = FormatVersion
		ih.align = uint32(Align)
		ih.SetNextSeq(0)
		ih.SetEntryCount(0)
	}

	if mmio.Exists(dataPath) {
		if err := h.data.OpenRW(dataPath); err != nil {
			return codeErr(CodeDataOpenRW, err)
		}
		h.dataBase = h.data.AddressRW()
	} else {
		if err := h.data.CreateRW(dataPath, cfg.DataInitialBytes); err != nil {
			return codeErr(CodeDataOpenRW, err)
		}
		h.dataBase = h.data.AddressRW()
		dh := dataHeaderAt(h.dataBase)
		dh.magic = MagicData
		dh.version = FormatVersion
		dh.align = uint32(Align)
		dh.SetWritePos(0)
		dh.SetFileSize(uint64(h.data.Size()) - DataHeaderSize)
	}

	controlBytes := controlBytesFor(cfg.MaxConsumers)
	if mmio.Exists(controlPath) {
		if err := h.control.OpenRW(controlPath); err != nil {
			return codeErr(CodeControlOpenRW, err)
		}
		if h.control.Size() < controlBytes {
			if err := h.control.ExtendSize(controlBytes); err != nil {
				return codeErr(CodeControlOpenRW, err)
			}
		}
	} else {
		if err := h.control.CreateRW(controlPath, controlBytes); err != nil {
			return codeErr(CodeControlOpenRW, err)
		}
	}
	h.controlBase = h.control.AddressRW()

	// The whole control area is zeroed and re-stamped unconditionally.
	clear(h.controlBase)
	ch := controlHeaderAt(h.controlBase)
	ch.magic = MagicControl
	ch.version = FormatVersion
	ch.align = uint32(Align)
	ch.maxConsumers = cfg.MaxConsumers
	putCstr(ch.notifySem[:], notifySemName)
	putCstr(ch.registrySem[:], registrySemName)

	var err error
	if h.notify, err = sema.Create(ch.NotifySemName(), 0); err != nil {
		return codeErr(CodeSemaphoreOpen, err)
	}
	if h.registry, err = sema.Create(ch.RegistrySemName(), 1); err != nil {
		h.notify.Close()
		h.notify = nil
		return codeErr(CodeSemaphoreOpen, err)
	}

	h.role = roleProducer
	return nil
}

// Publish appends one message and makes it visible to consumers. The entry
// body (seq, offset, length, READY flag) is fully written before nextSeq is
// published with a release store, so a consumer that acquire-reads
// nextSeq > s always observes a fully formed entry s and its payload bytes.
//
// Zero-length messages are legal: they consume a sequence number and leave
// the write cursor unchanged. A post failure on the notify semaphore is
// advisory and does not fail the publish.
func (h *Handle) Publish(msg []byte) error {
	if h.role != roleProducer {
		return ErrBadRole
	}

	dh := dataHeaderAt(h.dataBase)
	pos := alignUp(dh.WritePos())
	span := alignUp(uint64(len(msg)))
	end := pos + span

	if pos>>3 > 0xFFFFFFFF {
		// off8 is 32-bit on the wire; the arena tops out at 32 GiB.
		return codeErr(CodeDataExtend, fmt.Errorf("arena full: offset %d exceeds off8 range", pos))
	}

	if end > dh.FileSize() {
		grown := uint64(h.data.Size()) * 11 / 10
		need := DataHeaderSize + end
		if grown < need {
			grown = need
		}
		if err := h.data.ExtendSize(int64(grown)); err != nil {
			// The publish is aborted before any entry commit; prior
			// state is intact.
			return codeErr(CodeDataExtend, err)
		}
		h.dataBase = h.data.AddressRW()
		dh = dataHeaderAt(h.dataBase)
		dh.SetFileSize(uint64(h.data.Size()) - DataHeaderSize)
	}

	payload := payloadAt(h.dataBase)
	copy(payload[pos:], msg)
	for i := pos + uint64(len(msg)); i < end; i++ {
		payload[i] = 0
	}
	dh.SetWritePos(end)

	ih := indexHeaderAt(h.indexBase)
	seq := ih.NextSeq()
	if indexBytesFor(seq+1) > h.index.Size() {
		if err := h.index.ExtendSize(indexBytesFor(seq + indexGrowEntries)); err != nil {
			return codeErr(CodeIndexExtend, err)
		}
		h.indexBase = h.index.AddressRW()
		ih = indexHeaderAt(h.indexBase)
	}

	e := indexEntryAt(h.indexBase, seq)
	e.seq = seq
	e.off8 = uint32(pos >> 3)
	e.length = uint32(len(msg))
	e.reserved = 0
	e.SetFlags(FlagReady)

	// Publication fence: the release store on nextSeq makes the entry body
	// and payload visible to any consumer that acquire-reads it.
	ih.SetNextSeq(seq + 1)
	ih.SetEntryCount(seq + 1)

	ch := controlHeaderAt(h.controlBase)
	ch.IncNotifySeq()
	// A failed post is advisory: consumers re-check nextSeq on every wake.
	_ = h.notify.Post()
	return nil
}

// Abort marks a committed entry ABORTED so consumers skip it. Only the
// producer may call this; the payload bytes stay in the arena.
func (h *Handle) Abort(seq uint64) error {
	if h.role != roleProducer {
		return ErrBadRole
	}
	ih := indexHeaderAt(h.indexBase)
	if seq >= ih.NextSeq() {
		return codeErr(CodeNoMessage, fmt.Errorf("seq %d not yet published", seq))
	}
	e := indexEntryAt(h.indexBase, seq)
	e.SetFlags(e.Flags() | FlagAborted)
	return nil
}

// Sync flushes the index and data mappings to disk. The queue is a live IPC
// channel, not a durable log; this exists for operators that want a best-
// effort on-disk snapshot.
func (h *Handle) Sync() error {
	if h.role != roleProducer {
		return ErrBadRole
	}
	if err := h.index.Sync(); err != nil {
		return err
	}
	return h.data.Sync()
}
