package httpx

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/trafficsim/internal/service/telemetry"
)

var histogramBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = registerCollector(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trafficsim",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}))

		r.requestLatency = registerCollector(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trafficsim",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}))

		r.rateLimitHits = registerCollector(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trafficsim",
			Subsystem: "http",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"}))

		// The gauge reads whichever hub registered first; one daemon runs one hub.
		if r.hub != nil {
			hub := r.hub
			registerCollector(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "trafficsim",
				Subsystem: "stream",
				Name:      "subscribers",
				Help:      "Clients subscribed to the snapshot stream",
			}, func() float64 {
				return float64(hub.Subscribers(telemetry.SnapshotTopic))
			}))
		}
		r.metricsInitialized = true
	})
}

func registerCollector[T prometheus.Collector](collector T) T {
	if err := prometheus.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}
