// Copyright 2025 The Opslog Authors.
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

// Package telemetry provides opt-in, low-overhead Prometheus instrumentation
// for the engine. Every public function is a safe no-op until Enable has
// been called, so the engine's hot dispatch path can call them
// unconditionally without a feature-flag check at every call site.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls whether telemetry is active and, optionally, starts a
// standalone /metrics endpoint.
type Config struct {
	Enabled     bool
	MetricsAddr string // e.g. ":9090". Empty: caller registers promhttp itself.
}

var modEnabled atomic.Bool

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opslog_ops_total",
		Help: "Total ops dispatched, by outcome (done, accepted, echo, replay, reorder, or an error kind).",
	}, []string{"outcome"})

	patchShapeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opslog_patch_shape_total",
		Help: "Patches built, by base shape (empty, bookmark, vector, no_patches).",
	}, []string{"shape"})

	backrefsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opslog_backrefs_written_total",
		Help: "Total backreference records written for late-arriving ops.",
	})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opslog_queue_depth",
		Help: "Current number of ops waiting in a shard's queue.",
	}, []string{"shard"})

	logScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "opslog_log_scan_duration_seconds",
		Help:    "Duration of one log-tail scan iteration within a Request.",
		Buckets: prometheus.DefBuckets,
	})

	commitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "opslog_commit_duration_seconds",
		Help:    "Duration of one Backend.Batch commit.",
		Buckets: prometheus.DefBuckets,
	})

	commitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opslog_commit_errors_total",
		Help: "Total Backend.Batch failures.",
	})

	logSizeThresholdTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opslog_log_size_threshold_crossed_total",
		Help: "Total times a Request observed an object's scanned log-tail length cross MaxLogSize. Advisory only: the engine does not compact.",
	})
)

func init() {
	prometheus.MustRegister(opsTotal, patchShapeTotal, backrefsWritten, queueDepth, logScanDuration, commitDuration, commitErrorsTotal, logSizeThresholdTotal)
}

// Enable activates metric recording and, if MetricsAddr is set, starts a
// dedicated HTTP server serving /metrics. Safe to call multiple times.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether telemetry is currently active.
func Enabled() bool { return modEnabled.Load() }

// ObserveOp records one dispatched op's outcome label (e.g. "done",
// "echo", "replay", "reorder", or an engine.Kind's String()).
func ObserveOp(outcome string) {
	if !modEnabled.Load() {
		return
	}
	opsTotal.WithLabelValues(outcome).Inc()
}

// ObservePatchShape records the base shape a subscription patch was built
// from.
func ObservePatchShape(shape string) {
	if !modEnabled.Load() {
		return
	}
	patchShapeTotal.WithLabelValues(shape).Inc()
}

// ObserveLogSizeThresholdCrossed records that a scanned log tail was found
// longer than the configured MaxLogSize. The engine itself never compacts
// (spec.md §9 open question): this is purely a signal for the Host/operator
// to act on.
func ObserveLogSizeThresholdCrossed() {
	if !modEnabled.Load() {
		return
	}
	logSizeThresholdTotal.Inc()
}

// ObserveBackrefWrite increments the backreference-write counter.
func ObserveBackrefWrite() {
	if !modEnabled.Load() {
		return
	}
	backrefsWritten.Inc()
}

// SetQueueDepth reports a shard's current queue length.
func SetQueueDepth(shard string, depth int) {
	if !modEnabled.Load() {
		return
	}
	queueDepth.WithLabelValues(shard).Set(float64(depth))
}

// ObserveLogScan records how long one tail-read iteration took.
func ObserveLogScan(d time.Duration) {
	if !modEnabled.Load() {
		return
	}
	logScanDuration.Observe(d.Seconds())
}

// ObserveCommit records how long one Backend.Batch call took, and whether
// it failed.
func ObserveCommit(d time.Duration, err error) {
	if !modEnabled.Load() {
		return
	}
	commitDuration.Observe(d.Seconds())
	if err != nil {
		commitErrorsTotal.Inc()
	}
}

func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
