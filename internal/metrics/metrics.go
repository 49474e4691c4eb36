// Package metrics exposes prometheus counters for merges, analyses and exports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ud7-tracker/backend/internal/models"
)

var (
	filesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud7_files_merged_total",
			Help: "HMI CSV files seen by merges, by outcome",
		},
		[]string{"outcome"}, // merged, skipped
	)

	recordsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ud7_records_merged_total",
			Help: "Log records written to session stores",
		},
	)

	analysisRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud7_analysis_runs_total",
			Help: "Episode analyses by result",
		},
		[]string{"result"}, // ok, no_episodes, parse_failure, input_empty, error
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ud7_analysis_duration_seconds",
			Help:    "Time spent segmenting and projecting one window",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	episodesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ud7_episodes_total",
			Help: "Tracking episodes extracted",
		},
	)

	diagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud7_diagnostics_total",
			Help: "Abnormal episode terminations by kind",
		},
		[]string{"kind"},
	)

	exports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud7_exports_total",
			Help: "Rendered exports by format",
		},
		[]string{"format"}, // xlsx, png, json, msgpack
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ud7_sessions_active",
			Help: "Sessions currently held in memory",
		},
	)
)

// Analysis result labels.
const (
	ResultOK           = "ok"
	ResultNoEpisodes   = "no_episodes"
	ResultParseFailure = "parse_failure"
	ResultInputEmpty   = "input_empty"
	ResultError        = "error"
)

// ObserveMerge records the outcome of one merge.
func ObserveMerge(merged, skipped, records int) {
	filesMerged.WithLabelValues("merged").Add(float64(merged))
	filesMerged.WithLabelValues("skipped").Add(float64(skipped))
	recordsMerged.Add(float64(records))
}

// ObserveAnalysis records one analysis run and its findings.
func ObserveAnalysis(result string, elapsed time.Duration, episodes int, diags []models.Diagnostic) {
	analysisRuns.WithLabelValues(result).Inc()
	analysisDuration.Observe(elapsed.Seconds())
	episodesFound.Add(float64(episodes))
	for _, d := range diags {
		diagnostics.WithLabelValues(string(d.Kind)).Inc()
	}
}

// ObserveExport counts one rendered export.
func ObserveExport(format string) {
	exports.WithLabelValues(format).Inc()
}

// SetActiveSessions reports the number of live sessions.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
