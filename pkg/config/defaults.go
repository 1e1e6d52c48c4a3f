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

package config

import "strings"

const (
	// DefaultIndexInitialBytes holds roughly 43k entries before the first
	// index grow.
	DefaultIndexInitialBytes = int64(1 << 20)

	// DefaultDataInitialBytes is the initial payload arena size.
	DefaultDataInitialBytes = int64(16 << 20)

	// DefaultMaxConsumers is the default slot table capacity.
	DefaultMaxConsumers = uint32(16)
)

// ApplyDefaults fills unset fields with defaults. Zero values are replaced;
// explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.IndexInitialBytes == 0 {
		cfg.IndexInitialBytes = DefaultIndexInitialBytes
	}
	if cfg.DataInitialBytes == 0 {
		cfg.DataInitialBytes = DefaultDataInitialBytes
	}
	if cfg.MaxConsumers == 0 {
		cfg.MaxConsumers = DefaultMaxConsumers
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
