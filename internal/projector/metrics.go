package projector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projector_frames_sent_total",
		Help: "frames shifted out to the display, by kind (time, frame, raw)",
	}, []string{"kind"})

	transportFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "projector_transport_faults_total",
		Help: "transfers or startup replays aborted by a line error",
	})

	transferSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "projector_transfer_seconds",
		Help:    "wall time of one transfer, including line delays",
		Buckets: prometheus.ExponentialBuckets(10e-6, 2, 12),
	})
)
