package services

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "raster_import"

var (
	uploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "upload_bytes_total",
		Help:      "Bytes written through the binary channel.",
	})
	uploadSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "upload_sessions",
		Help:      "Open upload sessions.",
	})
	importRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "runs_total",
		Help:      "Finished import runs by result.",
	}, []string{"result"})
	pushDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "push_dropped_total",
		Help:      "Push messages for users without an open control channel.",
	})
)

func init() {
	prometheus.MustRegister(uploadBytes, uploadSessions, importRuns, pushDropped)
}
