package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SegmentsFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nicofetch",
			Name:      "segments_fetched_total",
			Help:      "Count of media segments fetched and decrypted.",
		},
	)

	BytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nicofetch",
			Name:      "bytes_written_total",
			Help:      "Total media bytes written to disk.",
		},
	)

	HeartbeatsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nicofetch",
			Name:      "heartbeats_sent_total",
			Help:      "Keep-alive requests sent to the delivery session service.",
		},
	)

	ActiveDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nicofetch",
			Name:      "active_downloads",
			Help:      "Number of downloads currently in flight.",
		},
	)

	DownloadsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nicofetch",
			Name:      "downloads_finished_total",
			Help:      "Downloads finished, by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers the nicofetch metrics into the default registry.
func Register() {
	prometheus.MustRegister(SegmentsFetched, BytesWritten, HeartbeatsSent, ActiveDownloads, DownloadsFinished)
}
