// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	harvestPostingsTotal       *prometheus.CounterVec
	harvestBlobUploadsTotal    *prometheus.CounterVec
	harvestRetryAttemptsTotal  *prometheus.CounterVec
	harvestRunsTotal           *prometheus.CounterVec
	harvestRunDurationSeconds  prometheus.Histogram
	harvestSnapshotRows        prometheus.Gauge
	harvestIndexRowsAppended   prometheus.Counter
	harvestLastSuccessUnixTime prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestPostingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_postings_total",
				Help: "Discovered postings partitioned by disposition (scraped, failed, skipped, invalid).",
			},
			[]string{"disposition"},
		)

		harvestBlobUploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_blob_uploads_total",
				Help: "Blob uploads partitioned by artifact kind and result.",
			},
			[]string{"kind", "result"},
		)

		harvestRetryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_retry_attempts_total",
				Help: "Attempts of retried operations partitioned by operation and result.",
			},
			[]string{"operation", "result"},
		)

		harvestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_runs_total",
				Help: "Completed runs partitioned by result.",
			},
			[]string{"result"},
		)

		harvestRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_run_duration_seconds",
				Help:    "Wall time per run.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		)

		harvestSnapshotRows = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_snapshot_rows",
				Help: "Rows read from the index store at the start of the last run.",
			},
		)

		harvestIndexRowsAppended = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_index_rows_appended_total",
				Help: "Identifier rows appended to the index store.",
			},
		)

		harvestLastSuccessUnixTime = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run.",
			},
		)
	})
}

// ObservePosting increments the posting counter for a disposition.
func ObservePosting(disposition string) {
	Init()
	harvestPostingsTotal.WithLabelValues(disposition).Inc()
}

// ObserveBlobUpload records one upload result ("ok" or "error").
func ObserveBlobUpload(kind, result string) {
	Init()
	harvestBlobUploadsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveRetryAttempt records one attempt of a retried operation.
func ObserveRetryAttempt(operation, result string) {
	Init()
	harvestRetryAttemptsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveSnapshot records the size of the loaded index snapshot.
func ObserveSnapshot(rows int) {
	Init()
	harvestSnapshotRows.Set(float64(rows))
}

// ObserveIndexAppend records rows appended to the index store.
func ObserveIndexAppend(rows int) {
	Init()
	if rows > 0 {
		harvestIndexRowsAppended.Add(float64(rows))
	}
}

// ObserveRun records a finished run.
func ObserveRun(result string, duration time.Duration, finished time.Time) {
	Init()
	harvestRunsTotal.WithLabelValues(result).Inc()
	harvestRunDurationSeconds.Observe(duration.Seconds())
	if result == "succeeded" {
		harvestLastSuccessUnixTime.Set(float64(finished.Unix()))
	}
}

// Push sends the default registry to a Prometheus Pushgateway under job.
func Push(ctx context.Context, gatewayURL, job string) error {
	Init()
	if gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = "harvester"
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
