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
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jurgen-kluft/cmmio/pkg/mmq"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue state and consumer slots",
	Long: `Attach to the queue without registering a consumer and print the
header counters and the consumer slot table.

Examples:
  mmq status --dir /dev/shm/events`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h := mmq.New()
	defer h.Close()

	if err := h.AttachConsumer(cfg.IndexPath(), cfg.DataPath(), cfg.ControlPath()); err != nil {
		return fmt.Errorf("attach %s: %w", cfg.Dir, err)
	}
	st, err := h.Stat()
	if err != nil {
		return err
	}

	fmt.Printf("queue:        %s\n", cfg.Dir)
	fmt.Printf("next_seq:     %d\n", st.NextSeq)
	fmt.Printf("write_pos:    %d\n", st.WritePos)
	fmt.Printf("arena_bytes:  %d\n", st.DataFileSize)
	fmt.Printf("notify_seq:   %d\n", st.NotifySeq)
	fmt.Printf("notify_sem:   %s\n", st.NotifySem)
	fmt.Printf("registry_sem: %s\n", st.RegistrySem)
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Slot", "Active", "Name", "Last Seq", "Backlog", "Last Update"})
	for _, s := range st.Slots {
		if !s.Active {
			table.Append([]string{strconv.Itoa(s.Index), "-", "", "", "", ""})
			continue
		}
		backlog := uint64(0)
		if st.NextSeq > s.LastSeq {
			backlog = st.NextSeq - s.LastSeq
		}
		update := "-"
		if !s.LastUpdate.IsZero() && s.LastUpdate.Unix() > 0 {
			update = s.LastUpdate.Format(time.RFC3339)
		}
		table.Append([]string{
			strconv.Itoa(s.Index),
			"yes",
			s.Name,
			strconv.FormatUint(s.LastSeq, 10),
			strconv.FormatUint(backlog, 10),
			update,
		})
	}
	table.Render()
	return nil
}
