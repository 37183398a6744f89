// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the Prometheus instrumentation surface the
// engine and retention purge loop report to, mirroring
// the teacher's own /metrics endpoint built on prometheus/client_golang.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements internal/engine.Metrics and
// internal/retention.Metrics.
type Metrics struct {
	samplesProcessed   prometheus.Counter
	violationsTotal     *prometheus.CounterVec
	processingDuration prometheus.Histogram
	purgeRuns          prometheus.Counter
	purgeSamplesDeleted prometheus.Counter
}

// New registers every metric against reg and returns the handle every
// component instruments through.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		samplesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "openspc_samples_processed_total",
			Help: "Total number of subgroups processed by the engine.",
		}),
		violationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openspc_violations_total",
			Help: "Total number of Nelson rule violations fired, by rule and severity.",
		}, []string{"rule_id", "severity"}),
		processingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "openspc_processing_duration_seconds",
			Help:    "ProcessSample wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}),
		purgeRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "openspc_retention_purge_runs_total",
			Help: "Total number of retention purge engine runs.",
		}),
		purgeSamplesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "openspc_retention_samples_deleted_total",
			Help: "Total number of sample rows removed by the retention purge engine.",
		}),
	}
}

func (m *Metrics) IncSamplesProcessed() {
	m.samplesProcessed.Inc()
}

func (m *Metrics) IncViolation(ruleID int, severity string) {
	m.violationsTotal.WithLabelValues(strconv.Itoa(ruleID), severity).Inc()
}

func (m *Metrics) ObserveProcessingDuration(seconds float64) {
	m.processingDuration.Observe(seconds)
}

func (m *Metrics) IncPurgeRun() {
	m.purgeRuns.Inc()
}

func (m *Metrics) AddSamplesDeleted(n int64) {
	m.purgeSamplesDeleted.Add(float64(n))
}

