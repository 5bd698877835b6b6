// Package metrics defines the Prometheus metrics exported by cite-engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	StageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cite_engine",
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage runs",
		},
		[]string{"stage", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cite_engine",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	StageAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cite_engine",
			Name:      "stage_attempts_total",
			Help:      "Total attempts made by pipeline stages, including retries",
		},
		[]string{"stage"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cite_engine",
			Name:      "llm_requests_total",
			Help:      "Total number of text-generation requests",
		},
		[]string{"provider", "task", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cite_engine",
			Name:      "llm_request_duration_seconds",
			Help:      "Text-generation request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "task"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cite_engine",
			Name:      "search_requests_total",
			Help:      "Total number of bibliographic search requests",
		},
		[]string{"provider", "status"},
	)

	EvidenceRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cite_engine",
			Name:      "evidence_records_total",
			Help:      "Total evidence records built",
		},
	)

	EvidenceDuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cite_engine",
			Name:      "evidence_duplicates_total",
			Help:      "Total duplicate source URLs discarded by the evidence stage",
		},
	)
)

var registerOnce sync.Once

// Register registers all metrics with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			StageRunsTotal,
			StageDuration,
			StageAttemptsTotal,
			LLMRequestsTotal,
			LLMRequestDuration,
			SearchRequestsTotal,
			EvidenceRecordsTotal,
			EvidenceDuplicatesTotal,
		)
	})
}

// WriteTextfile writes the default registry in the text exposition format
// to path, for the node-exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
