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

// Package metrics exposes Prometheus instrumentation for the mmq tools.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PublishedTotal counts messages committed by the producer.
	PublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mmq_published_total",
		Help: "Messages published to the queue.",
	})

	// PublishedBytesTotal counts payload bytes committed by the producer.
	PublishedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mmq_published_bytes_total",
		Help: "Payload bytes published to the queue.",
	})

	// DrainedTotal counts messages drained, labeled by consumer name.
	DrainedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmq_drained_total",
		Help: "Messages drained from the queue.",
	}, []string{"consumer"})

	// DataFileBytes tracks the payload capacity of the data file (its
	// mapped size minus the header).
	DataFileBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mmq_data_file_bytes",
		Help: "Current payload capacity of the data file.",
	})

	// IndexEntries tracks the number of committed index entries.
	IndexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mmq_index_entries",
		Help: "Committed entries in the index file.",
	})
)

// Serve exposes /metrics on addr. It blocks; run it from its own goroutine.
func Serve(addr string) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, r)
}
