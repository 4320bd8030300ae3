package pretrained

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamago",
			Subsystem: "pretrained",
			Name:      "downloads_total",
			Help:      "Artifact lookups by result (hit, fetched, error)",
		},
		[]string{"result"},
	)

	downloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamago",
			Subsystem: "pretrained",
			Name:      "download_bytes_total",
			Help:      "Bytes written to the artifact cache",
		},
	)
)

func init() {
	prometheus.MustRegister(downloadsTotal, downloadBytes)
}
