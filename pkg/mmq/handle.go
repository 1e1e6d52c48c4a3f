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
	"time"

	"github.com/jurgen-kluft/cmmio/internal/sema"
	"github.com/jurgen-kluft/cmmio/pkg/mmio"
)

type role int

const (
	roleNone role = iota
	roleProducer
	roleConsumer
)

// Config holds the options recognized at producer initialization. The sizes
// apply only on first creation of the files; existing files are opened at
// their stored size.
type Config struct {
	IndexInitialBytes int64
	DataInitialBytes  int64
	MaxConsumers      uint32
}

// Handle is a queue endpoint bound to the three shared files. A handle is in
// exactly one role after InitProducer or AttachConsumer. Producer handles
// are single-writer: Publish must not be called concurrently. Consumer
// handles serialize their own Drain calls; distinct consumers in distinct
// processes run fully in parallel.
type Handle struct {
	role role

	index   mmio.File
	data    mmio.File
	control mmio.File

	// Cached mapped bases, re-derived after every grow or remap.
	indexBase   []byte
	dataBase    []byte
	controlBase []byte

	notify   *sema.Semaphore
	registry *sema.Semaphore
}

// New returns an unbound handle. Bind it with InitProducer or
// AttachConsumer.
func New() *Handle {
	return &Handle{}
}

// Close unmaps all three files and closes both semaphore handles. It is
// best-effort: it proceeds through every resource even if individual
// releases fail, returning the first failure. The named semaphores are never
// unlinked here, so surviving processes can reconnect; unlinking is an
// operator action (see sema.Unlink). Double-close is a no-op.
func (h *Handle) Close() error {
	var firstErr error

	if err := h.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.data.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.control.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	h.indexBase = nil
	h.dataBase = nil
	h.controlBase = nil

	if h.notify != nil {
		if err := h.notify.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		h.notify = nil
	}
	if h.registry != nil {
		if err := h.registry.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		h.registry = nil
	}

	h.role = roleNone
	return firstErr
}

// SlotStat is a snapshot of one consumer slot.
type SlotStat struct {
	Index      int
	Active     bool
	Name       string
	LastSeq    uint64
	LastUpdate time.Time
}

// Stat is a point-in-time snapshot of the queue headers, taken without any
// locks. Values may be mutually inconsistent under a racing producer.
type Stat struct {
	NextSeq      uint64
	WritePos     uint64
	DataFileSize uint64
	MaxConsumers uint32
	NotifySeq    uint64
	NotifySem    string
	RegistrySem  string
	Slots        []SlotStat
}

// Stat snapshots the queue state. Valid in either role.
func (h *Handle) Stat() (Stat, error) {
	if h.role == roleNone {
		return Stat{}, ErrBadRole
	}

	ih := indexHeaderAt(h.indexBase)
	dh := dataHeaderAt(h.dataBase)
	ch := controlHeaderAt(h.controlBase)

	st := Stat{
		NextSeq:      ih.NextSeq(),
		WritePos:     dh.WritePos(),
		DataFileSize: dh.FileSize(),
		MaxConsumers: ch.maxConsumers,
		NotifySeq:    ch.NotifySeq(),
		NotifySem:    ch.NotifySemName(),
		RegistrySem:  ch.RegistrySemName(),
	}
	for i := uint32(0); i < ch.maxConsumers; i++ {
		s := slotAt(h.controlBase, i)
		st.Slots = append(st.Slots, SlotStat{
			Index:      int(i),
			Active:     s.Active(),
			Name:       s.NameString(),
			LastSeq:    s.LastSeq(),
			LastUpdate: time.Unix(0, int64(s.LastUpdateNS())),
		})
	}
	return st, nil
}
