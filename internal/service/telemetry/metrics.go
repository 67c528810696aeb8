package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/trafficsim/internal/domain"
)

var generateBuckets = []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01}

// Metrics exports the latest snapshot KPIs as Prometheus series.
type Metrics struct {
	snapshots       *prometheus.CounterVec
	generateSeconds prometheus.Histogram
	totalVehicles   prometheus.Gauge
	avgWaitSeconds  prometheus.Gauge
	highCongestion  prometheus.Gauge
	detections      *prometheus.GaugeVec
	signals         *prometheus.GaugeVec
	sequence        prometheus.Gauge
}

// NewMetrics registers the telemetry collectors with reg, reusing collectors
// that are already registered. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "snapshots_total",
			Help:      "Number of generated snapshots by trigger",
		}, []string{"trigger"}),
		generateSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "generate_duration_seconds",
			Help:      "Time spent generating a snapshot",
			Buckets:   generateBuckets,
		}),
		totalVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "vehicles",
			Help:      "Vehicles counted across all intersections in the latest snapshot",
		}),
		avgWaitSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "average_wait_seconds",
			Help:      "Mean intersection wait time in the latest snapshot",
		}),
		highCongestion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "high_congestion_intersections",
			Help:      "Intersections at high congestion in the latest snapshot",
		}),
		detections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "detections",
			Help:      "Vehicle detections in the latest snapshot by type",
		}, []string{"type"}),
		signals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "signals",
			Help:      "Traffic lights in the latest snapshot by status",
		}, []string{"status"}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Subsystem: "telemetry",
			Name:      "snapshot_sequence",
			Help:      "Sequence number of the latest snapshot",
		}),
	}
	m.snapshots = register(reg, m.snapshots)
	m.generateSeconds = register(reg, m.generateSeconds)
	m.totalVehicles = register(reg, m.totalVehicles)
	m.avgWaitSeconds = register(reg, m.avgWaitSeconds)
	m.highCongestion = register(reg, m.highCongestion)
	m.detections = register(reg, m.detections)
	m.signals = register(reg, m.signals)
	m.sequence = register(reg, m.sequence)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}

func (m *Metrics) observe(s domain.Snapshot, trigger string, took time.Duration) {
	if m == nil {
		return
	}
	summary := Summarize(s)
	m.snapshots.With(prometheus.Labels{"trigger": trigger}).Inc()
	m.generateSeconds.Observe(took.Seconds())
	m.totalVehicles.Set(float64(summary.TotalVehicles))
	m.avgWaitSeconds.Set(float64(summary.AverageWaitTime))
	m.highCongestion.Set(float64(summary.HighCongestionCount))
	m.sequence.Set(float64(s.Sequence))
	for _, breakdown := range summary.Detections {
		m.detections.With(prometheus.Labels{"type": breakdown.Type.String()}).Set(float64(breakdown.Count))
	}
	for status, count := range summary.SignalCounts {
		m.signals.With(prometheus.Labels{"status": status}).Set(float64(count))
	}
}
