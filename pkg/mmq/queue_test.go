/*
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
 */

package mmq

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jurgen-kluft/cmmio/internal/sema"
)

// testQueue binds a producer and hands out consumer handles on the same
// three files, with unique semaphore names per test and full cleanup.
type testQueue struct {
	t                    *testing.T
	dir                  string
	notifySem, regSem    string
	index, data, control string
	producer             *Handle
}

func newTestQueue(t *testing.T, cfg Config) *testQueue {
	t.Helper()

	dir := t.TempDir()
	tag := fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
	q := &testQueue{
		t:         t,
		dir:       dir,
		notifySem: "/mmq-test-" + tag + "-new",
		regSem:    "/mmq-test-" + tag + "-reg",
		index:     filepath.Join(dir, "index.mm"),
		data:      filepath.Join(dir, "data.mm"),
		control:   filepath.Join(dir, "control.mm"),
	}
	t.Cleanup(func() {
		sema.Unlink(q.notifySem)
		sema.Unlink(q.regSem)
	})

	q.producer = New()
	if err := q.producer.InitProducer(cfg, q.index, q.data, q.control, q.notifySem, q.regSem); err != nil {
		t.Fatalf("InitProducer failed: %v", err)
	}
	t.Cleanup(func() { q.producer.Close() })
	return q
}

func (q *testQueue) newConsumer() *Handle {
	q.t.Helper()
	c := New()
	if err := c.AttachConsumer(q.index, q.data, q.control); err != nil {
		q.t.Fatalf("AttachConsumer failed: %v", err)
	}
	q.t.Cleanup(func() { c.Close() })
	return c
}

func defaultConfig() Config {
	return Config{
		IndexInitialBytes: 65536,
		DataInitialBytes:  65536,
		MaxConsumers:      4,
	}
}

func TestEmptyDrain(t *testing.T) {
	q := newTestQueue(t, defaultConfig())
	c := q.newConsumer()

	slot, err := c.RegisterConsumer("c1", 0)
	if err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}

	if msg, ok := c.Drain(slot); ok {
		t.Fatalf("Drain on empty queue returned message %q", msg)
	}
	if err := c.WaitForNewTimeout(1000 * time.Microsecond); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("WaitForNewTimeout = %v, want ErrTimedOut", err)
	}
}

func TestSinglePublishConsume(t *testing.T) {
	q := newTestQueue(t, defaultConfig())
	c := q.newConsumer()

	slot, err := c.RegisterConsumer("c1", 0)
	if err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}

	if err := q.producer.Publish([]byte("hello")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg, ok := c.Drain(slot)
	if !ok {
		t.Fatal("Drain returned no message after publish")
	}
	if len(msg) != 5 || string(msg) != "hello" {
		t.Fatalf("Drain returned %q (len %d), want \"hello\"", msg, len(msg))
	}
	if _, ok := c.Drain(slot); ok {
		t.Fatal("second Drain should be empty")
	}

	// The publish left one wakeup token behind.
	if err := c.WaitForNewTimeout(time.Millisecond); err != nil {
		t.Fatalf("WaitForNewTimeout after publish = %v, want token", err)
	}
}

func TestTwoConsumersIndependentCursors(t *testing.T) {
	q := newTestQueue(t, defaultConfig())

	cA := q.newConsumer()
	slotA, err := cA.RegisterConsumer("cA", 0)
	if err != nil {
		t.Fatalf("register cA: %v", err)
	}
	cB := q.newConsumer()
	slotB, err := cB.RegisterConsumer("cB", 2)
	if err != nil {
		t.Fatalf("register cB: %v", err)
	}

	var want [][]byte
	for i := 0; i < 5; i++ {
		m := []byte(fmt.Sprintf("m%d", i))
		want = append(want, m)
		if err := q.producer.Publish(m); err != nil {
			t.Fatalf("Publish m%d: %v", i, err)
		}
	}

	var gotA [][]byte
	for {
		msg, ok := cA.Drain(slotA)
		if !ok {
			break
		}
		gotA = append(gotA, bytes.Clone(msg))
	}
	if len(gotA) != 5 {
		t.Fatalf("cA drained %d messages, want 5", len(gotA))
	}
	for i, m := range gotA {
		if !bytes.Equal(m, want[i]) {
			t.Errorf("cA message %d = %q, want %q", i, m, want[i])
		}
	}

	var gotB [][]byte
	for {
		msg, ok := cB.Drain(slotB)
		if !ok {
			break
		}
		gotB = append(gotB, bytes.Clone(msg))
	}
	if len(gotB) != 3 {
		t.Fatalf("cB drained %d messages, want 3", len(gotB))
	}
	for i, m := range gotB {
		if !bytes.Equal(m, want[i+2]) {
			t.Errorf("cB message %d = %q, want %q", i, m, want[i+2])
		}
	}
}

func TestRoundTripRandomLengths(t *testing.T) {
	q := newTestQueue(t, Config{
		IndexInitialBytes: 65536,
		DataInitialBytes:  8192,
		MaxConsumers:      2,
	})
	c := q.newConsumer()
	slot, err := c.RegisterConsumer("rt", 0)
	if err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	const n = 300
	var want [][]byte
	for i := 0; i < n; i++ {
		m := make([]byte, rng.Intn(4097))
		rng.Read(m)
		want = append(want, m)
		if err := q.producer.Publish(m); err != nil {
			t.Fatalf("Publish %d (len %d): %v", i, len(m), err)
		}
	}

	for i := 0; i < n; i++ {
		msg, ok := c.Drain(slot)
		if !ok {
			t.Fatalf("Drain returned empty at message %d", i)
		}
		if !bytes.Equal(msg, want[i]) {
			t.Fatalf("message %d mismatch: got %d bytes, want %d bytes", i, len(msg), len(want[i]))
		}
	}
	if _, ok := c.Drain(slot); ok {
		t.Fatal("queue should be drained")
	}
}

func TestZeroLengthMessage(t *testing.T) {
	q := newTestQueue(t, defaultConfig())
	c := q.newConsumer()
	slot, err := c.RegisterConsumer("z", 0)
	if err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}

	st0, _ := q.producer.Stat()
	if err := q.producer.Publish(nil); err != nil {
		t.Fatalf("Publish(nil): %v", err)
	}
	if err := q.producer.Publish([]byte("after")); err != nil {
		t.Fatalf("Publish(after): %v", err)
	}
	st1, _ := q.producer.Stat()

	// The empty message consumes a sequence number but no arena bytes.
	if st1.NextSeq != st0.NextSeq+2 {
		t.Errorf("next_seq advanced by %d, want 2", st1.NextSeq-st0.NextSeq)
	}
	if st1.WritePos != st0.WritePos+8 {
		t.Errorf("write_pos advanced by %d, want 8 (only the non-empty span)", st1.WritePos-st0.WritePos)
	}

	msg, ok := c.Drain(slot)
	if !ok || len(msg) != 0 {
		t.Fatalf("first Drain = (%q, %v), want empty message", msg, ok)
	}
	msg, ok = c.Drain(slot)
	if !ok || string(msg) != "after" {
		t.Fatalf("second Drain = (%q, %v), want \"after\"", msg, ok)
	}
}

func TestAbortedEntriesAreSkipped(t *testing.T) {
	q := newTestQueue(t, defaultConfig())
	c := q.newConsumer()
	slot, err := c.RegisterConsumer("skip", 0)
	if err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := q.producer.Publish([]byte(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := q.producer.Abort(1); err != nil {
		t.Fatalf("Abort(1): %v", err)
	}

	msg, ok := c.Drain(slot)
	if !ok || string(msg) != "m0" {
		t.Fatalf("first Drain = (%q, %v), want m0", msg, ok)
	}
	msg, ok = c.Drain(slot)
	if !ok || string(msg) != "m2" {
		t.Fatalf("second Drain = (%q, %v), want m2 (m1 aborted)", msg, ok)
	}
	if _, ok := c.Drain(slot); ok {
		t.Fatal("queue should be drained")
	}
}

func TestStartSeqBeyondProducer(t *testing.T) {
	q := newTestQueue(t, defaultConfig())
	c := q.newConsumer()
	slot, err := c.RegisterConsumer("future", 999)
	if err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}

	if err := q.producer.Publish([]byte("now")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// next_seq is 1, cursor is 999: nothing to read until the producer
	// catches up.
	if msg, ok := c.Drain(slot); ok {
		t.Fatalf("Drain = %q, want empty for future cursor", msg)
	}
}

func TestMonotoneSequencing(t *testing.T) {
	q := newTestQueue(t, defaultConfig())

	for i := 0; i < 100; i++ {
		if err := q.producer.Publish([]byte{byte(i)}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	// Inspect the raw entries: entries[s].seq == s, offsets 8-aligned,
	// spans within write_pos.
	ih := indexHeaderAt(q.producer.indexBase)
	dh := dataHeaderAt(q.producer.dataBase)
	if ih.NextSeq() != 100 || ih.EntryCount() != 100 {
		t.Fatalf("next_seq=%d entry_count=%d, want 100/100", ih.NextSeq(), ih.EntryCount())
	}
	if dh.WritePos()%8 != 0 {
		t.Errorf("write_pos %d not 8-aligned", dh.WritePos())
	}
	for s := uint64(0); s < 100; s++ {
		e := indexEntryAt(q.producer.indexBase, s)
		if e.seq != s {
			t.Fatalf("entries[%d].seq = %d", s, e.seq)
		}
		off := uint64(e.off8) << 3
		if off%8 != 0 {
			t.Errorf("entry %d offset %d not 8-aligned", s, off)
		}
		if off+alignUp(uint64(e.length)) > dh.WritePos() {
			t.Errorf("entry %d span [%d,%d) beyond write_pos %d", s, off, off+uint64(e.length), dh.WritePos())
		}
		if e.Flags()&FlagReady == 0 {
			t.Errorf("entry %d not READY", s)
		}
	}
}

func TestStatSnapshot(t *testing.T) {
	q := newTestQueue(t, defaultConfig())
	c := q.newConsumer()
	if _, err := c.RegisterConsumer("statc", 0); err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}
	if err := q.producer.Publish([]byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	st, err := c.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.NextSeq != 1 {
		t.Errorf("NextSeq = %d, want 1", st.NextSeq)
	}
	if st.MaxConsumers != 4 {
		t.Errorf("MaxConsumers = %d, want 4", st.MaxConsumers)
	}
	if st.NotifySeq != 1 {
		t.Errorf("NotifySeq = %d, want 1", st.NotifySeq)
	}
	if st.NotifySem != q.notifySem || st.RegistrySem != q.regSem {
		t.Errorf("semaphore names = %q/%q, want %q/%q", st.NotifySem, st.RegistrySem, q.notifySem, q.regSem)
	}
	if len(st.Slots) != 4 {
		t.Fatalf("len(Slots) = %d, want 4", len(st.Slots))
	}
	if !st.Slots[0].Active || st.Slots[0].Name != "statc" {
		t.Errorf("slot 0 = %+v, want active statc", st.Slots[0])
	}
}

func TestProducerRestartRestampsControl(t *testing.T) {
	cfg := defaultConfig()
	q := newTestQueue(t, cfg)

	c := q.newConsumer()
	if _, err := c.RegisterConsumer("old", 0); err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}
	if err := q.producer.Publish([]byte("persisted")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	q.producer.Close()
	c.Close()

	// A new producer on the same files trusts index and data but zeroes
	// the whole control area: registrations do not survive a restart.
	p2 := New()
	if err := p2.InitProducer(cfg, q.index, q.data, q.control, q.notifySem, q.regSem); err != nil {
		t.Fatalf("second InitProducer failed: %v", err)
	}
	t.Cleanup(func() { p2.Close() })

	st, err := p2.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.NextSeq != 1 {
		t.Errorf("NextSeq = %d after restart, want 1 (index is authoritative)", st.NextSeq)
	}
	for _, s := range st.Slots {
		if s.Active {
			t.Errorf("slot %d still active after producer restart", s.Index)
		}
	}

	// The persisted entry is still drainable by a fresh consumer.
	c2 := New()
	if err := c2.AttachConsumer(q.index, q.data, q.control); err != nil {
		t.Fatalf("AttachConsumer failed: %v", err)
	}
	t.Cleanup(func() { c2.Close() })
	slot, err := c2.RegisterConsumer("new", 0)
	if err != nil {
		t.Fatalf("RegisterConsumer failed: %v", err)
	}
	msg, ok := c2.Drain(slot)
	if !ok || string(msg) != "persisted" {
		t.Fatalf("Drain = (%q, %v), want persisted entry", msg, ok)
	}
}

func TestAttachSanityChecks(t *testing.T) {
	q := newTestQueue(t, defaultConfig())

	// Corrupt the index magic; attach must fail with the index-tagged
	// sanity error, not a control one.
	ih := indexHeaderAt(q.producer.indexBase)
	ih.magic = 0xBAD
	c := New()
	err := c.AttachConsumer(q.index, q.data, q.control)
	c.Close()
	if !errors.Is(err, ErrIndexSanity) {
		t.Fatalf("attach with bad index magic = %v, want ErrIndexSanity", err)
	}
	ih.magic = MagicIndex

	dh := dataHeaderAt(q.producer.dataBase)
	dh.version = 99
	c = New()
	err = c.AttachConsumer(q.index, q.data, q.control)
	c.Close()
	if !errors.Is(err, ErrDataSanity) {
		t.Fatalf("attach with bad data version = %v, want ErrDataSanity", err)
	}
	dh.version = FormatVersion

	ch := controlHeaderAt(q.producer.controlBase)
	ch.align = 16
	c = New()
	err = c.AttachConsumer(q.index, q.data, q.control)
	c.Close()
	if !errors.Is(err, ErrControlSanity) {
		t.Fatalf("attach with bad control align = %v, want ErrControlSanity", err)
	}
	ch.align = uint32(Align)

	// Sanity restored: attach succeeds again.
	c = q.newConsumer()
	if _, err := c.RegisterConsumer("ok", 0); err != nil {
		t.Fatalf("RegisterConsumer after restore: %v", err)
	}
}

func TestDoubleCloseIsNoop(t *testing.T) {
	q := newTestQueue(t, defaultConfig())
	c := q.newConsumer()

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Operations on a closed handle fail cleanly.
	if _, err := c.RegisterConsumer("x", 0); !errors.Is(err, ErrBadRole) {
		t.Fatalf("RegisterConsumer on closed handle = %v, want ErrBadRole", err)
	}
	if _, ok := c.Drain(0); ok {
		t.Fatal("Drain on closed handle returned a message")
	}
}
