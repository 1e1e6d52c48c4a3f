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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jurgen-kluft/cmmio/internal/logger"
	"github.com/jurgen-kluft/cmmio/internal/sema"
)

var unlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Remove a queue's files and named semaphores",
	Long: `Operator tool that removes the queue's three files and unlinks both
host-global semaphores. Closing a handle never unlinks the semaphores
(so survivors can reconnect); this command is the explicit teardown, and
also the recovery path when a died lock holder leaked the registry lock.

Processes still attached keep their mappings until they close.`,
	RunE: runUnlink,
}

func runUnlink(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	notifySem, registrySem := cfg.SemNames()
	for _, name := range []string{notifySem, registrySem} {
		if err := sema.Unlink(name); err != nil {
			logger.Warn("semaphore unlink failed", "name", name, "error", err)
		}
	}

	for _, path := range []string{cfg.IndexPath(), cfg.DataPath(), cfg.ControlPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	logger.Info("queue removed", "dir", cfg.Dir)
	return nil
}
