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
	"bufio"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jurgen-kluft/cmmio/internal/logger"
	"github.com/jurgen-kluft/cmmio/pkg/metrics"
	"github.com/jurgen-kluft/cmmio/pkg/mmq"
)

var (
	produceCount int
	produceSize  int
	produceSync  bool
)

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Run the queue producer",
	Long: `Initialize the queue in the producer role and publish messages.

By default each line read from stdin becomes one message. With --count,
the command instead publishes that many random payloads of --size bytes,
which is useful for smoke tests and benchmarks.

Examples:
  # Publish stdin lines
  journalctl -f | mmq produce --dir /dev/shm/events

  # Publish 10000 random 256-byte messages
  mmq produce --dir /dev/shm/events --count 10000 --size 256`,
	RunE: runProduce,
}

func init() {
	produceCmd.Flags().IntVar(&produceCount, "count", 0, "publish N generated messages instead of reading stdin")
	produceCmd.Flags().IntVar(&produceSize, "size", 256, "generated message size in bytes (with --count)")
	produceCmd.Flags().BoolVar(&produceSync, "sync", false, "msync index and data files before exit")
}

func runProduce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	h := mmq.New()
	defer h.Close()

	notifySem, registrySem := cfg.SemNames()
	if err := h.InitProducer(cfg.Core(), cfg.IndexPath(), cfg.DataPath(), cfg.ControlPath(), notifySem, registrySem); err != nil {
		logger.Error("producer init failed", "dir", cfg.Dir, "error", err)
		os.Exit(1)
	}
	logger.Info("producer ready",
		"dir", cfg.Dir,
		"notify_sem", notifySem,
		"registry_sem", registrySem,
		"max_consumers", cfg.MaxConsumers)

	publish := func(msg []byte) {
		if err := h.Publish(msg); err != nil {
			logger.Error("publish failed", "len", len(msg), "error", err)
			os.Exit(1)
		}
		metrics.PublishedTotal.Inc()
		metrics.PublishedBytesTotal.Add(float64(len(msg)))
	}

	if produceCount > 0 {
		buf := make([]byte, produceSize)
		for i := 0; i < produceCount; i++ {
			rand.Read(buf)
			publish(buf)
		}
		logger.Info("published", "count", produceCount, "size", produceSize)
	} else {
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
		n := 0
		for sc.Scan() {
			publish(sc.Bytes())
			n++
		}
		if err := sc.Err(); err != nil {
			logger.Error("stdin read failed", "error", err)
			os.Exit(1)
		}
		logger.Info("published", "count", n)
	}

	if st, err := h.Stat(); err == nil {
		metrics.IndexEntries.Set(float64(st.NextSeq))
		metrics.DataFileBytes.Set(float64(st.DataFileSize))
	}
	if produceSync {
		if err := h.Sync(); err != nil {
			logger.Warn("sync failed", "error", err)
		}
	}
	return nil
}
