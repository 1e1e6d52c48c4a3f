//go:build !unix

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

package mmio

import "errors"

// ErrUnsupported is returned on platforms without mmap support.
var ErrUnsupported = errors.New("mmio: not supported on this platform")

func (m *File) OpenRW(path string) error                 { return ErrUnsupported }
func (m *File) OpenRO(path string) error                 { return ErrUnsupported }
func (m *File) CreateRW(path string, size int64) error   { return ErrUnsupported }
func (m *File) CreateRO(path string, size int64) error   { return ErrUnsupported }
func (m *File) ExtendSize(newSize int64) error           { return ErrUnsupported }
func (m *File) Remap() error                             { return ErrUnsupported }
func (m *File) Sync() error                              { return ErrUnsupported }
func (m *File) SyncRange(off, n int64) error             { return ErrUnsupported }
func (m *File) Close() error                             { return nil }
