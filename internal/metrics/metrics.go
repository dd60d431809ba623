package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeslotd_passes_total",
		Help: "Total number of refresh passes, by result.",
	}, []string{"result"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "freeslotd_pass_duration_seconds",
		Help:    "Histogram of full refresh pass durations.",
		Buckets: prometheus.DefBuckets,
	})

	feedErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeslotd_feed_errors_total",
		Help: "Total number of per-feed failures, by kind.",
	}, []string{"kind"})

	freeSlotDates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "freeslotd_free_slot_dates",
		Help: "Number of dates with at least one common free slot.",
	})
)

// PassCompleted records the outcome and duration of one refresh pass.
func PassCompleted(result string, d time.Duration) {
	passesTotal.WithLabelValues(result).Inc()
	passDuration.Observe(d.Seconds())
}

// FeedError counts a per-feed failure. kind is "network", "format" or
// "other".
func FeedError(kind string) {
	feedErrorsTotal.WithLabelValues(kind).Inc()
}

// SetFreeSlotDates publishes how many dates the latest map covers.
func SetFreeSlotDates(n int) {
	freeSlotDates.Set(float64(n))
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
