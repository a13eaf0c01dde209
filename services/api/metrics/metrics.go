// Package metrics exposes the Prometheus collectors of the dashboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "waterwatch"

var (
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_pages_total",
		Help:      "Record pages requested from the water data source, by outcome.",
	}, []string{"outcome"})

	RecordsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_ingested_total",
		Help:      "Records merged into the session.",
	})

	RecordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_rejected_total",
		Help:      "Records skipped because they could not be decoded.",
	})

	ColorFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "water_color_fallbacks_total",
		Help:      "Water color fields that fell back to the default color.",
	})

	AlignmentMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alignment_misses_total",
		Help:      "Devices without a record within tolerance for a requested frame.",
	})

	WeatherRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "weather_requests_total",
		Help:      "Requests made to the weather provider, by kind and outcome.",
	}, []string{"kind", "outcome"})

	SourceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "source_fetch_seconds",
		Help:      "Latency of record page fetches.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Outcome maps an error to a label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
