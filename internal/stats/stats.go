// Package stats publishes pipeline counters as Prometheus metrics: records
// processed/errored per shard, retry attempts per shard, and files renamed
// on completion.
//
// Grounded on go.mod's declared-but-unexercised prometheus/client_golang
// dependency, adapted as the replacement for the teacher's build-tag-gated,
// StatsD-only stats/common_statsd.go (see DESIGN.md).
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/appsinstalled/memcload/cmn/nlog"
)

// Registry wraps a private prometheus.Registerer so multiple Config/test
// runs never collide on the default global registry.
type Registry struct {
	reg           *prometheus.Registry
	processed     *prometheus.CounterVec
	errors        *prometheus.CounterVec
	retries       *prometheus.CounterVec
	filesRenamed  prometheus.Counter
}

// New builds an unregistered-with-default-registry metrics set.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memcload_records_processed_total",
			Help: "Records successfully written, by device shard.",
		}, []string{"shard"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memcload_records_errors_total",
			Help: "Records that could not be written, by device shard.",
		}, []string{"shard"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memcload_retry_attempts_total",
			Help: "Batch-write retry attempts, by device shard.",
		}, []string{"shard"}),
		filesRenamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memcload_files_renamed_total",
			Help: "Input files marked done via dot-rename.",
		}),
	}
	reg.MustRegister(r.processed, r.errors, r.retries, r.filesRenamed)
	return r
}

// Observe records one batch write's outcome for a shard.
func (r *Registry) Observe(shard string, processed, errs int) {
	if processed > 0 {
		r.processed.WithLabelValues(shard).Add(float64(processed))
	}
	if errs > 0 {
		r.errors.WithLabelValues(shard).Add(float64(errs))
	}
}

// ObserveRetry counts one retry round for a shard.
func (r *Registry) ObserveRetry(shard string) {
	r.retries.WithLabelValues(shard).Inc()
}

// ObserveRename counts one completed file.
func (r *Registry) ObserveRename() {
	r.filesRenamed.Inc()
}

// Serve starts a /metrics HTTP listener in the background and returns
// immediately; failures are logged, not fatal, since metrics export is an
// optional side channel (spec.md's Non-goals exclude observability UIs,
// not ambient instrumentation - see SPEC_FULL.md).
func (r *Registry) Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			nlog.Warningf("metrics listener on %s stopped: %v", addr, err)
		}
	}()
}
