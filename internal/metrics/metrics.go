package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_merges_total",
			Help: "Update events accepted into the snapshot store",
		},
		[]string{"source"},
	)

	decodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_decode_errors_total",
			Help: "Malformed stream messages dropped",
		},
		[]string{"source"},
	)

	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Stream reconnection attempts",
		},
		[]string{"source"},
	)

	bootstrapFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_bootstrap_failures_total",
			Help: "Failed bootstrap fetch attempts",
		},
		[]string{"source"},
	)

	connectionUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_connection_up",
			Help: "1 when the source stream is live, 0 otherwise",
		},
		[]string{"source"},
	)
)

// RecordMerge counts one accepted merge for a source.
func RecordMerge(source string) {
	mergesTotal.WithLabelValues(source).Inc()
}

// RecordDecodeError counts one dropped malformed message.
func RecordDecodeError(source string) {
	decodeErrorsTotal.WithLabelValues(source).Inc()
}

// RecordReconnect counts one reconnection attempt.
func RecordReconnect(source string) {
	reconnectsTotal.WithLabelValues(source).Inc()
}

// RecordBootstrapFailure counts one failed bootstrap attempt.
func RecordBootstrapFailure(source string) {
	bootstrapFailuresTotal.WithLabelValues(source).Inc()
}

// SetConnected flags whether a source stream is live.
func SetConnected(source string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	connectionUp.WithLabelValues(source).Set(v)
}
