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

// Package mmq implements a single-producer / multi-consumer message queue
// over shared memory-mapped files for processes on the same host.
//
// Three mapped files carry all state: an index file holding a header and a
// dense append-only array of fixed entries, a data file holding an append-
// only payload arena, and a control file holding the consumer registry.
// One process publishes variable-length byte messages; any number of
// consumer processes attach, register under a stable name, and drain at
// their own pace. Messages are never copied into per-consumer buffers:
// Drain hands out a view into the shared arena, valid until the consumer's
// next call that can move its mapping.
//
// Two host-named semaphores coordinate the processes: a counting notify
// semaphore posted once per publish, and a binary registry lock serializing
// consumer-slot mutations. Visibility of published entries is established
// by a release store on the index header's nextSeq field, acquire-read by
// consumers; the drain path itself is lock-free.
//
// The queue is a live IPC channel, not a persistent log: files survive
// process restarts and the producer reopens them trusting their content,
// but durability across host crashes is not a goal.
package mmq
