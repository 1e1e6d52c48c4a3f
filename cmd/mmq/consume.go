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
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jurgen-kluft/cmmio/internal/logger"
	"github.com/jurgen-kluft/cmmio/pkg/metrics"
	"github.com/jurgen-kluft/cmmio/pkg/mmq"
)

var (
	consumeName string
	consumeFrom uint64
	consumeMax  uint64
	consumeIdle time.Duration
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run a queue consumer",
	Long: `Attach to the queue, register under a stable name and drain messages
to stdout, one per line.

Re-running with the same --name resumes from the previous cursor; the
--from sequence only applies to a fresh registration. Without --name a
random identity is generated, which always registers fresh.

The command exits 0 after --max messages (end of stream), or runs until
interrupted when --max is 0.`,
	RunE: runConsume,
}

func init() {
	consumeCmd.Flags().StringVar(&consumeName, "name", "", "stable consumer name (default: random)")
	consumeCmd.Flags().Uint64Var(&consumeFrom, "from", 0, "start sequence for a fresh registration")
	consumeCmd.Flags().Uint64Var(&consumeMax, "max", 0, "exit after draining N messages (0 = run forever)")
	consumeCmd.Flags().DurationVar(&consumeIdle, "idle-timeout", 0, "exit 0 after this long with no messages (0 = wait forever)")
}

func runConsume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	name := consumeName
	if name == "" {
		name = "c-" + uuid.NewString()[:8]
	}

	h := mmq.New()
	defer h.Close()

	if err := h.AttachConsumer(cfg.IndexPath(), cfg.DataPath(), cfg.ControlPath()); err != nil {
		logger.Error("attach failed", "dir", cfg.Dir, "error", err)
		os.Exit(1)
	}
	slot, err := h.RegisterConsumer(name, consumeFrom)
	if err != nil {
		logger.Error("register failed", "name", name, "error", err)
		os.Exit(1)
	}
	logger.Info("consumer registered", "name", name, "slot", slot, "from", consumeFrom)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	drained := metrics.DrainedTotal.WithLabelValues(name)
	var count uint64
	for consumeMax == 0 || count < consumeMax {
		msg, ok := h.Drain(slot)
		if !ok {
			out.Flush()
			if consumeIdle > 0 {
				err = h.WaitForNewTimeout(consumeIdle)
				if errors.Is(err, mmq.ErrTimedOut) {
					logger.Info("idle timeout, end of stream", "drained", count)
					return nil
				}
			} else {
				err = h.WaitForNew()
			}
			if err != nil && !errors.Is(err, mmq.ErrTimedOut) {
				logger.Error("wait failed", "error", err)
				os.Exit(1)
			}
			continue
		}
		out.Write(msg)
		out.WriteByte('\n')
		drained.Inc()
		count++
	}

	logger.Info("done", "drained", count)
	return nil
}
