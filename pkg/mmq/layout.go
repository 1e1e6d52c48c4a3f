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
	"sync/atomic"
	"unsafe"
)

// On-disk format constants. All structures are 8-byte aligned; multi-byte
// integers are little-endian host order (the queue is host-local).
const (
	// Magic numbers identifying each of the three files.
	MagicIndex   = uint64(0x1CEB00FDEADBEEF)
	MagicData    = uint64(0xDA7A5E90D0D0F0D)
	MagicControl = uint64(0xC017301D00DFACE)

	// Current on-disk format version.
	FormatVersion = uint32(1)

	// Alignment of payload spans and header fields.
	Align = uint64(8)

	// Per-entry flag bits.
	FlagPending = uint32(1 << 0)
	FlagReady   = uint32(1 << 1)
	FlagAborted = uint32(1 << 2)

	// Fixed structure sizes.
	IndexHeaderSize   = 32
	IndexEntrySize    = 24
	DataHeaderSize    = 40
	ControlHeaderSize = 160
	ConsumerSlotSize  = 64

	// Capacity of a semaphore name stored in the control header, including
	// the NUL terminator.
	SemNameSize = 64

	// Usable bytes of a consumer slot name, including the NUL terminator.
	SlotNameSize = 44

	// Index growth chunk: room for this many additional entries is added
	// whenever the index file runs out of space.
	indexGrowEntries = 64 * 1024

	// Control file sizes are rounded up to this granularity.
	controlSizeRound = 1024
)

// indexHeader is the fixed prefix of the index file, followed by a dense
// append-only array of indexEntry records.
type indexHeader struct {
	magic      uint64 // 0x00: MagicIndex
	version    uint32 // 0x08: FormatVersion
	align      uint32 // 0x0C: Align
	nextSeq    uint64 // 0x10: count of committed entries (producer-owned)
	entryCount uint64 // 0x18: mirror of nextSeq
}

// indexEntry describes one published message.
type indexEntry struct {
	seq      uint64 // 0x00: sequence number, equals the entry's array index
	off8     uint32 // 0x08: payload offset in data divided by 8
	length   uint32 // 0x0C: payload length in bytes
	flags    uint32 // 0x10: FlagPending/FlagReady/FlagAborted
	reserved uint32 // 0x14: zero
}

// dataHeader is the fixed prefix of the data file, followed by the payload
// arena.
type dataHeader struct {
	magic    uint64 // 0x00: MagicData
	version  uint32 // 0x08: FormatVersion
	align    uint32 // 0x0C: Align
	reserved uint64 // 0x10: zero
	writePos uint64 // 0x18: byte cursor into the arena, always 8-aligned
	fileSize uint64 // 0x20: payload bytes available in the current mapping
}

// controlHeader is the fixed prefix of the control file, followed by
// maxConsumers consumerSlot records.
type controlHeader struct {
	magic        uint64            // 0x00: MagicControl
	version      uint32            // 0x08: FormatVersion
	align        uint32            // 0x0C: Align
	maxConsumers uint32            // 0x10: fixed slot capacity
	reserved     uint32            // 0x14: zero
	notifySeq    uint64            // 0x18: incremented per publish, advisory
	notifySem    [SemNameSize]byte // 0x20: NUL-terminated notify semaphore name
	registrySem  [SemNameSize]byte // 0x60: NUL-terminated registry-lock name
}

// consumerSlot is one registered consumer. Exactly one cache line.
type consumerSlot struct {
	lastSeq      uint64             // 0x00: next seq this consumer will read
	lastUpdateNS uint64             // 0x08: heartbeat, unix nanos
	active       uint32             // 0x10: 1 = in use
	name         [SlotNameSize]byte // 0x14: NUL-terminated consumer id
}

// indexHeader accessors. nextSeq is the publication fence: the producer
// stores it with release semantics after the entry body, consumers load it
// with acquire semantics before touching entries below it.

func (h *indexHeader) NextSeq() uint64 {
	return atomic.LoadUint64(&h.nextSeq)
}

func (h *indexHeader) SetNextSeq(v uint64) {
	atomic.StoreUint64(&h.nextSeq, v)
}

func (h *indexHeader) EntryCount() uint64 {
	return atomic.LoadUint64(&h.entryCount)
}

func (h *indexHeader) SetEntryCount(v uint64) {
	atomic.StoreUint64(&h.entryCount, v)
}

// indexEntry accessors. The body fields are written by the producer before
// the nextSeq fence; flags keeps its own acquire/release pair so the
// ABORTED bit can be flipped after commit.

func (e *indexEntry) Flags() uint32 {
	return atomic.LoadUint32(&e.flags)
}

func (e *indexEntry) SetFlags(v uint32) {
	atomic.StoreUint32(&e.flags, v)
}

// dataHeader accessors.

func (h *dataHeader) WritePos() uint64 {
	return atomic.LoadUint64(&h.writePos)
}

func (h *dataHeader) SetWritePos(v uint64) {
	atomic.StoreUint64(&h.writePos, v)
}

func (h *dataHeader) FileSize() uint64 {
	return atomic.LoadUint64(&h.fileSize)
}

func (h *dataHeader) SetFileSize(v uint64) {
	atomic.StoreUint64(&h.fileSize, v)
}

// controlHeader accessors.

func (h *controlHeader) NotifySeq() uint64 {
	return atomic.LoadUint64(&h.notifySeq)
}

func (h *controlHeader) IncNotifySeq() uint64 {
	return atomic.AddUint64(&h.notifySeq, 1)
}

func (h *controlHeader) NotifySemName() string {
	return cstr(h.notifySem[:])
}

func (h *controlHeader) RegistrySemName() string {
	return cstr(h.registrySem[:])
}

// consumerSlot accessors. lastSeq is written by the owning consumer and may
// be observed by other processes; it is always accessed atomically.

func (s *consumerSlot) LastSeq() uint64 {
	return atomic.LoadUint64(&s.lastSeq)
}

func (s *consumerSlot) SetLastSeq(v uint64) {
	atomic.StoreUint64(&s.lastSeq, v)
}

func (s *consumerSlot) LastUpdateNS() uint64 {
	return atomic.LoadUint64(&s.lastUpdateNS)
}

func (s *consumerSlot) SetLastUpdateNS(v uint64) {
	atomic.StoreUint64(&s.lastUpdateNS, v)
}

func (s *consumerSlot) Active() bool {
	return atomic.LoadUint32(&s.active) != 0
}

func (s *consumerSlot) SetActive(active bool) {
	var v uint32
	if active {
		v = 1
	}
	atomic.StoreUint32(&s.active, v)
}

func (s *consumerSlot) NameString() string {
	return cstr(s.name[:])
}

// Typed views over mapped bases. The mappings are 8-aligned (page-aligned in
// practice), so the casts below never produce misaligned accesses.

func indexHeaderAt(base []byte) *indexHeader {
	return (*indexHeader)(unsafe.Pointer(&base[0]))
}

func indexEntryAt(base []byte, seq uint64) *indexEntry {
	off := uintptr(IndexHeaderSize) + uintptr(seq)*IndexEntrySize
	return (*indexEntry)(unsafe.Pointer(&base[off]))
}

func dataHeaderAt(base []byte) *dataHeader {
	return (*dataHeader)(unsafe.Pointer(&base[0]))
}

// payloadAt returns the arena region of a mapped data file.
func payloadAt(base []byte) []byte {
	return base[DataHeaderSize:]
}

func controlHeaderAt(base []byte) *controlHeader {
	return (*controlHeader)(unsafe.Pointer(&base[0]))
}

func slotAt(base []byte, i uint32) *consumerSlot {
	off := uintptr(ControlHeaderSize) + uintptr(i)*ConsumerSlotSize
	return (*consumerSlot)(unsafe.Pointer(&base[off]))
}

// indexBytesFor returns the index file size needed to hold entries [0, n).
func indexBytesFor(n uint64) int64 {
	return int64(IndexHeaderSize) + int64(n)*IndexEntrySize
}

// controlBytesFor returns the control file size for the given slot capacity,
// rounded up to 1 KiB.
func controlBytesFor(maxConsumers uint32) int64 {
	raw := int64(ControlHeaderSize) + int64(maxConsumers)*ConsumerSlotSize
	return (raw + controlSizeRound - 1) &^ (controlSizeRound - 1)
}

// alignUp rounds x up to the next multiple of Align.
func alignUp(x uint64) uint64 {
	return (x + Align - 1) &^ (Align - 1)
}

// cstr returns the leading NUL-terminated portion of b as a string.
func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// putCstr copies s into dst truncated to capacity minus the terminator,
// zero-filling the remainder.
func putCstr(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// validateIndexHeader, validateDataHeader and validateControlHeader check a
// file's magic against its own constant (each file has its own magic) along
// with version and alignment.

func validateIndexHeader(h *indexHeader) bool {
	return h.magic == MagicIndex && h.version == FormatVersion && uint64(h.align) == Align
}

func validateDataHeader(h *dataHeader) bool {
	return h.magic == MagicData && h.version == FormatVersion && uint64(h.align) == Align
}

func validateControlHeader(h *controlHeader) bool {
	return h.magic == MagicControl && h.version == FormatVersion && uint64(h.align) == Align
}
