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

// Package config loads and validates the queue configuration used by the
// mmq command line tools.
package config

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jurgen-kluft/cmmio/pkg/mmq"
)

// Config captures everything the CLI needs to bind to a queue.
//
// Configuration sources, in order of precedence:
//  1. CLI flags
//  2. Environment variables (MMQ_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values
type Config struct {
	// Dir is the directory holding the queue's three files
	// (index.mm, data.mm, control.mm).
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// IndexInitialBytes is the size of the index file on first creation.
	IndexInitialBytes int64 `mapstructure:"index_initial_bytes" validate:"gte=4096" yaml:"index_initial_bytes"`

	// DataInitialBytes is the size of the data file on first creation.
	DataInitialBytes int64 `mapstructure:"data_initial_bytes" validate:"gte=4096" yaml:"data_initial_bytes"`

	// MaxConsumers is the fixed capacity of the consumer slot table.
	MaxConsumers uint32 `mapstructure:"max_consumers" validate:"gte=1,lte=4096" yaml:"max_consumers"`

	// NotifySemName and RegistrySemName override the derived semaphore
	// names. Leave empty to namespace them by the queue directory so two
	// queues never share primitives.
	NotifySemName   string `mapstructure:"notify_sem" yaml:"notify_sem"`
	RegistrySemName string `mapstructure:"registry_sem" yaml:"registry_sem"`

	// Logging controls CLI log output.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// MetricsAddr, when non-empty, serves Prometheus metrics on the given
	// listen address.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`
}

// IndexPath, DataPath and ControlPath locate the three queue files inside Dir.

func (c *Config) IndexPath() string {
	return filepath.Join(c.Dir, "index.mm")
}

func (c *Config) DataPath() string {
	return filepath.Join(c.Dir, "data.mm")
}

func (c *Config) ControlPath() string {
	return filepath.Join(c.Dir, "control.mm")
}

// SemNames returns the notify and registry-lock semaphore names, deriving
// namespaced defaults from the queue directory when not configured. The
// derived names hash the absolute directory path so that two queues with
// colliding basenames never share host-global primitives.
func (c *Config) SemNames() (notify, registry string) {
	notify = c.NotifySemName
	registry = c.RegistrySemName
	if notify != "" && registry != "" {
		return notify, registry
	}
	abs, err := filepath.Abs(c.Dir)
	if err != nil {
		abs = c.Dir
	}
	h := fnv.New32a()
	h.Write([]byte(abs))
	tag := fmt.Sprintf("%08x", h.Sum32())
	if notify == "" {
		notify = "/mmq-" + tag + "-new"
	}
	if registry == "" {
		registry = "/mmq-" + tag + "-reg"
	}
	return notify, registry
}

// Core returns the options the queue core recognizes.
func (c *Config) Core() mmq.Config {
	return mmq.Config{
		IndexInitialBytes: c.IndexInitialBytes,
		DataInitialBytes:  c.DataInitialBytes,
		MaxConsumers:      c.MaxConsumers,
	}
}

// Load reads configuration from the optional file path, the MMQ_*
// environment, and defaults. Callers apply any flag overrides and then run
// Validate on the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MMQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only reaches Unmarshal for keys viper already knows, so
	// bind every field's MMQ_* variable explicitly.
	for _, key := range []string{
		"dir", "index_initial_bytes", "data_initial_bytes", "max_consumers",
		"notify_sem", "registry_sem", "logging.level", "logging.format", "metrics_addr",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Validate checks the configuration against its constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
