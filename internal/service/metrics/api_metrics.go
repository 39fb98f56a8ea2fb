package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trainctl",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter",
		},
		[]string{"route"},
	)

	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trainctl",
			Subsystem: "api",
			Name:      "stream_clients",
			Help:      "Open decision stream connections",
		},
	)

	StreamDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trainctl",
			Subsystem: "api",
			Name:      "stream_dropped_total",
			Help:      "Decision events dropped for slow stream subscribers",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(RateLimited, StreamClients, StreamDropped)
	})
}
