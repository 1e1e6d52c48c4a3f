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

package main

import (
	"github.com/spf13/cobra"

	"github.com/jurgen-kluft/cmmio/internal/logger"
	"github.com/jurgen-kluft/cmmio/pkg/config"
)

var (
	flagConfig   string
	flagDir      string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mmq",
	Short: "Shared-memory message queue",
	Long: `mmq drives a single-producer / multi-consumer message queue built on
shared memory-mapped files.

One producer process publishes variable-length messages; any number of
consumer processes register under stable names and drain at their own
pace. All commands operate on a queue directory holding the index, data
and control files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "queue directory")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.AddCommand(produceCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unlinkCmd)
}

// loadConfig merges the config file, environment and persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDir != "" {
		cfg.Dir = flagDir
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
