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

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Config{Dir: "/tmp/q"}
	ApplyDefaults(&cfg)

	assert.Equal(t, DefaultIndexInitialBytes, cfg.IndexInitialBytes)
	assert.Equal(t, DefaultDataInitialBytes, cfg.DataInitialBytes)
	assert.Equal(t, DefaultMaxConsumers, cfg.MaxConsumers)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	require.NoError(t, Validate(&cfg))
}

func TestDefaultsPreserveExplicitValues(t *testing.T) {
	cfg := Config{
		Dir:               "/tmp/q",
		IndexInitialBytes: 8192,
		MaxConsumers:      2,
		Logging:           LoggingConfig{Level: "debug"},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, int64(8192), cfg.IndexInitialBytes)
	assert.Equal(t, uint32(2), cfg.MaxConsumers)
	// Level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"missing dir", func(c *Config) { c.Dir = "" }},
		{"tiny index", func(c *Config) { c.IndexInitialBytes = 100 }},
		{"tiny data", func(c *Config) { c.DataInitialBytes = 100 }},
		{"too many consumers", func(c *Config) { c.MaxConsumers = 100000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "LOUD" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Dir: "/tmp/q"}
			ApplyDefaults(&cfg)
			tc.mut(&cfg)
			assert.Error(t, Validate(&cfg))
		})
	}
}

func TestPaths(t *testing.T) {
	cfg := Config{Dir: "/dev/shm/events"}
	assert.Equal(t, "/dev/shm/events/index.mm", cfg.IndexPath())
	assert.Equal(t, "/dev/shm/events/data.mm", cfg.DataPath())
	assert.Equal(t, "/dev/shm/events/control.mm", cfg.ControlPath())
}

func TestSemNamesAreNamespacedPerDir(t *testing.T) {
	a := Config{Dir: "/dev/shm/queue-a"}
	b := Config{Dir: "/dev/shm/queue-b"}

	aNotify, aReg := a.SemNames()
	bNotify, bReg := b.SemNames()

	assert.NotEqual(t, aNotify, bNotify)
	assert.NotEqual(t, aReg, bReg)
	assert.NotEqual(t, aNotify, aReg)

	// Derivation is stable.
	aNotify2, aReg2 := a.SemNames()
	assert.Equal(t, aNotify, aNotify2)
	assert.Equal(t, aReg, aReg2)

	// Explicit names win.
	c := Config{Dir: "/x", NotifySemName: "/custom-new", RegistrySemName: "/custom-reg"}
	n, r := c.SemNames()
	assert.Equal(t, "/custom-new", n)
	assert.Equal(t, "/custom-reg", r)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mmq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dir: /dev/shm/filequeue
max_consumers: 8
logging:
  level: warn
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "/dev/shm/filequeue", cfg.Dir)
	assert.Equal(t, uint32(8), cfg.MaxConsumers)
	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// Unset fields got defaults.
	assert.Equal(t, DefaultDataInitialBytes, cfg.DataInitialBytes)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
