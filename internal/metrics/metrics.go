// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics instruments the replica pipeline with Prometheus
// collectors: counters, gauges and histograms registered under a single
// Registry-of-named-metrics, built on github.com/prometheus/client_golang.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is every Prometheus collector the replica pipeline updates.
// Constructed once per replica and registered against a
// prometheus.Registerer supplied by the embedding process; this package
// never starts its own /metrics HTTP server.
type Metrics struct {
	RoleTransitions   *prometheus.CounterVec
	Term              prometheus.Gauge
	CommitIndex       prometheus.Gauge
	LastApplied       prometheus.Gauge
	WALAppendLatency  prometheus.Histogram
	WALFlushLatency   prometheus.Histogram
	DivergenceFaults  prometheus.Counter
	ReplicationLag    *prometheus.GaugeVec
	SnapshotsTaken    prometheus.Counter
	SnapshotBytesFreed prometheus.Counter
}

// register adds c to reg. If an identical collector is already
// registered (tests construct several replicas against one registerer),
// the existing collector is returned instead, so every Metrics instance
// updates the collector the registry actually scrapes.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// New constructs and registers a Metrics set against reg, reusing any
// collector reg already holds under the same name.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoleTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsmraft",
			Name:      "role_transitions_total",
			Help:      "Count of consensus role transitions, labeled by the role entered.",
		}, []string{"role"}),
		Term: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsmraft",
			Name:      "current_term",
			Help:      "The replica's current consensus term.",
		}),
		CommitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsmraft",
			Name:      "commit_index",
			Help:      "Highest log index known committed.",
		}),
		LastApplied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsmraft",
			Name:      "last_applied",
			Help:      "Highest log index applied to the verified state machine.",
		}),
		WALAppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsmraft",
			Name:      "wal_append_latency_seconds",
			Help:      "Latency of appending a record to the write-ahead log.",
			Buckets:   prometheus.DefBuckets,
		}),
		WALFlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsmraft",
			Name:      "wal_flush_latency_seconds",
			Help:      "Latency of the fsync durability barrier.",
			Buckets:   prometheus.DefBuckets,
		}),
		DivergenceFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsmraft",
			Name:      "divergence_faults_total",
			Help:      "Count of shadow/live digest mismatches that halted this replica.",
		}),
		ReplicationLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vsmraft",
			Name:      "replication_lag",
			Help:      "log.length - match_index for each peer, leader only.",
		}, []string{"peer"}),
		SnapshotsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsmraft",
			Name:      "snapshots_taken_total",
			Help:      "Count of snapshots successfully published.",
		}),
		SnapshotBytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsmraft",
			Name:      "snapshot_bytes_freed_total",
			Help:      "Bytes reclaimed by snapshot and WAL segment garbage collection.",
		}),
	}

	m.RoleTransitions = register(reg, m.RoleTransitions)
	m.Term = register(reg, m.Term)
	m.CommitIndex = register(reg, m.CommitIndex)
	m.LastApplied = register(reg, m.LastApplied)
	m.WALAppendLatency = register(reg, m.WALAppendLatency)
	m.WALFlushLatency = register(reg, m.WALFlushLatency)
	m.DivergenceFaults = register(reg, m.DivergenceFaults)
	m.ReplicationLag = register(reg, m.ReplicationLag)
	m.SnapshotsTaken = register(reg, m.SnapshotsTaken)
	m.SnapshotBytesFreed = register(reg, m.SnapshotBytesFreed)

	return m
}

// NoOp returns a Metrics registered against a private registry, for
// callers (mainly tests) that need a valid *Metrics but don't care about
// its values.
func NoOp() *Metrics {
	return New(prometheus.NewRegistry())
}
