// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry is the ambient observability layer shared by recall,
// decay, and extraction: Prometheus metrics plus OpenTelemetry spans for
// the core's three background-cost operations. A nil *Metrics (the
// zero-config case) makes every method a no-op, the same nil-receiver
// pattern the rest of the core's metrics collector uses.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/agentdock/agentdock-core")

// Metrics collects Prometheus series for recall latency, decay sweeps,
// and extraction sampling outcomes.
type Metrics struct {
	registry *prometheus.Registry

	recallLatency   *prometheus.HistogramVec
	recallResults   *prometheus.HistogramVec
	recallCacheHits *prometheus.CounterVec

	decaySweeps    *prometheus.CounterVec
	decayProcessed *prometheus.CounterVec
	decayRemoved   *prometheus.CounterVec
	decayDuration  *prometheus.HistogramVec

	extractionBatches  *prometheus.CounterVec
	extractionSampled  *prometheus.CounterVec
	extractionMemories *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
}

// NewMetrics builds a Metrics with its own Prometheus registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.recallLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "recall", Name: "latency_seconds",
		Help:    "RecallService.Recall wall-clock duration",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. 8s
	}, []string{"agent_id"})

	m.recallResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "recall", Name: "result_count",
		Help:    "Number of results returned per recall",
		Buckets: prometheus.LinearBuckets(0, 2, 10),
	}, []string{"agent_id"})

	m.recallCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "recall", Name: "cache_hits_total",
		Help: "Recall queries served from the per-query cache",
	}, []string{"agent_id"})

	m.decaySweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "decay", Name: "sweeps_total",
		Help: "Number of applyDecay sweeps run",
	}, []string{"agent_id"})

	m.decayProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "decay", Name: "processed_total",
		Help: "Memory rows visited by applyDecay",
	}, []string{"agent_id"})

	m.decayRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "decay", Name: "removed_total",
		Help: "Memory rows deleted by applyDecay",
	}, []string{"agent_id"})

	m.decayDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "decay", Name: "duration_seconds",
		Help:    "applyDecay sweep duration",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"agent_id"})

	m.extractionBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "extraction", Name: "batches_total",
		Help: "Batches that fired, whether or not they survived sampling",
	}, []string{"agent_id"})

	m.extractionSampled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "extraction", Name: "sampled_total",
		Help: "Batches that survived the extractionRate sampling decision",
	}, []string{"agent_id"})

	m.extractionMemories = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "extraction", Name: "memories_total",
		Help: "Memory records produced by the extractor chain",
	}, []string{"agent_id", "extractor"})

	m.extractionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "extraction", Name: "batch_duration_seconds",
		Help:    "Batch-firing duration, filter through store",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"agent_id"})

	m.registry.MustRegister(
		m.recallLatency, m.recallResults, m.recallCacheHits,
		m.decaySweeps, m.decayProcessed, m.decayRemoved, m.decayDuration,
		m.extractionBatches, m.extractionSampled, m.extractionMemories, m.extractionDuration,
	)
	return m
}

// RecordRecall records one RecallService.Recall call.
func (m *Metrics) RecordRecall(agentID string, duration time.Duration, resultCount int, cacheHit bool) {
	if m == nil {
		return
	}
	m.recallLatency.WithLabelValues(agentID).Observe(duration.Seconds())
	m.recallResults.WithLabelValues(agentID).Observe(float64(resultCount))
	if cacheHit {
		m.recallCacheHits.WithLabelValues(agentID).Inc()
	}
}

// RecordDecaySweep records one applyDecay sweep.
func (m *Metrics) RecordDecaySweep(agentID string, duration time.Duration, processed, removed int) {
	if m == nil {
		return
	}
	m.decaySweeps.WithLabelValues(agentID).Inc()
	m.decayProcessed.WithLabelValues(agentID).Add(float64(processed))
	m.decayRemoved.WithLabelValues(agentID).Add(float64(removed))
	m.decayDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordExtractionBatch records one ExtractionOrchestrator batch firing.
func (m *Metrics) RecordExtractionBatch(agentID, extractor string, duration time.Duration, sampled bool, memoriesProduced int) {
	if m == nil {
		return
	}
	m.extractionBatches.WithLabelValues(agentID).Inc()
	m.extractionDuration.WithLabelValues(agentID).Observe(duration.Seconds())
	if sampled {
		m.extractionSampled.WithLabelValues(agentID).Inc()
	}
	if memoriesProduced > 0 {
		m.extractionMemories.WithLabelValues(agentID, extractor).Add(float64(memoriesProduced))
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartSpan opens an OpenTelemetry span for one of the core's named
// operations (e.g. "recall.Recall", "memory.ApplyDecay",
// "extraction.fire"). Callers must end the returned span.
func StartSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, operation)
}
