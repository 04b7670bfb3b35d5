package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "runhours_"

	resultSucceeded = "succeeded"
	resultSkipped   = "skipped"
	resultFailed    = "failed"

	modeUpsert = "upsert"
	modeForce  = "force"
)

var (
	registerOnce sync.Once

	assetRunsTotal   *prometheus.CounterVec
	assetRunLatency  *prometheus.HistogramVec
	daysWrittenTotal *prometheus.CounterVec
	daysSkippedTotal prometheus.Counter

	eventsProcessedTotal prometheus.Counter
	anomaliesTotal       *prometheus.CounterVec
	autoTerminatedTotal  prometheus.Counter
	fetchErrorsTotal     *prometheus.CounterVec

	assetDirectoryTotal *prometheus.CounterVec

	batchLastRun      *prometheus.GaugeVec
	batchDuration     prometheus.Gauge
	recordsPublishErr prometheus.Counter
)

// Init registers run-hour metrics and DB-backed gauges.
func Init(db *sql.DB, table string, logger *log.Logger) {
	registerOnce.Do(func() {
		assetRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "asset_runs_total",
				Help: "Total per-asset runs by result",
			},
			[]string{"result"},
		)
		assetRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "asset_run_latency_seconds",
				Help:    "Per-asset run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		daysWrittenTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "days_written_total",
				Help: "Total daily records written by mode",
			},
			[]string{"mode"},
		)
		daysSkippedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "days_skipped_total",
				Help: "Total days skipped because a record already existed",
			},
		)

		eventsProcessedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_processed_total",
				Help: "Total state events folded",
			},
		)
		anomaliesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomalies_total",
				Help: "Total dropped state events by kind",
			},
			[]string{"kind"},
		)
		autoTerminatedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "auto_terminated_total",
				Help: "Total hanging ON intervals closed at the cap",
			},
		)
		fetchErrorsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_errors_total",
				Help: "Total event store errors by operation",
			},
			[]string{"op"},
		)

		assetDirectoryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "asset_directory_total",
				Help: "Total asset directory lookups by source",
			},
			[]string{"source"},
		)

		batchLastRun = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "batch_last_run_timestamp_seconds",
				Help: "Unix time of the last finished batch by outcome",
			},
			[]string{"result"},
		)
		batchDuration = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "batch_duration_seconds",
				Help: "Duration of the last batch in seconds",
			},
		)
		recordsPublishErr = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_errors_total",
				Help: "Total failed record publications",
			},
		)

		prometheus.MustRegister(
			assetRunsTotal,
			assetRunLatency,
			daysWrittenTotal,
			daysSkippedTotal,
			eventsProcessedTotal,
			anomaliesTotal,
			autoTerminatedTotal,
			fetchErrorsTotal,
			assetDirectoryTotal,
			batchLastRun,
			batchDuration,
			recordsPublishErr,
		)

		if db != nil {
			registerDBMetrics(db, table, logger)
		}
	})
}

// ObserveAssetRun records one asset's result and duration.
func ObserveAssetRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSucceeded
	}
	if assetRunsTotal != nil {
		assetRunsTotal.WithLabelValues(result).Inc()
	}
	if assetRunLatency != nil {
		assetRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddDaysWritten increments written days for a mode.
func AddDaysWritten(mode string, count int) {
	if count <= 0 {
		return
	}
	if mode == "" {
		mode = modeUpsert
	}
	if daysWrittenTotal != nil {
		daysWrittenTotal.WithLabelValues(mode).Add(float64(count))
	}
}

// AddDaysSkipped increments skipped days.
func AddDaysSkipped(count int) {
	if count <= 0 || daysSkippedTotal == nil {
		return
	}
	daysSkippedTotal.Add(float64(count))
}

// AddEventsProcessed increments folded events.
func AddEventsProcessed(count int) {
	if count <= 0 || eventsProcessedTotal == nil {
		return
	}
	eventsProcessedTotal.Add(float64(count))
}

// IncAnomaly increments the anomaly counter.
func IncAnomaly(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if anomaliesTotal != nil {
		anomaliesTotal.WithLabelValues(kind).Inc()
	}
}

// IncAutoTerminated increments auto-terminated intervals.
func IncAutoTerminated() {
	if autoTerminatedTotal != nil {
		autoTerminatedTotal.Inc()
	}
}

// IncFetchError increments event store errors for op (fetch or probe).
func IncFetchError(op string) {
	if op == "" {
		op = "unknown"
	}
	if fetchErrorsTotal != nil {
		fetchErrorsTotal.WithLabelValues(op).Inc()
	}
}

// IncAssetDirectory counts where the asset list came from (api or fallback).
func IncAssetDirectory(source string) {
	if source == "" {
		source = "unknown"
	}
	if assetDirectoryTotal != nil {
		assetDirectoryTotal.WithLabelValues(source).Inc()
	}
}

// IncPublishError increments failed publications.
func IncPublishError() {
	if recordsPublishErr != nil {
		recordsPublishErr.Inc()
	}
}

// ObserveBatch records a finished batch.
func ObserveBatch(result string, finishedAt time.Time, duration time.Duration) {
	if result == "" {
		result = resultSucceeded
	}
	if batchLastRun != nil {
		batchLastRun.WithLabelValues(result).Set(float64(finishedAt.Unix()))
	}
	if batchDuration != nil {
		batchDuration.Set(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSucceeded = resultSucceeded
	ResultSkipped   = resultSkipped
	ResultFailed    = resultFailed

	ModeUpsert = modeUpsert
	ModeForce  = modeForce
)
