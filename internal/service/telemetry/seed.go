package telemetry

import (
	"time"

	"github.com/splax/trafficsim/internal/domain"
)

// SeedTrafficLights returns the fixed light set used before any snapshot exists.
func SeedTrafficLights(now time.Time) []domain.TrafficLight {
	return []domain.TrafficLight{
		{ID: "tl-001", Location: "Connaught Place, Delhi", Lat: 28.6315, Lng: 77.2167, Status: domain.SignalGreen, Countdown: 45, Phase: "North-South", LastUpdated: now},
		{ID: "tl-002", Location: "Bandra West, Mumbai", Lat: 19.0596, Lng: 72.8295, Status: domain.SignalRed, Countdown: 30, Phase: "East-West", LastUpdated: now},
		{ID: "tl-003", Location: "MG Road, Bangalore", Lat: 12.9716, Lng: 77.5946, Status: domain.SignalYellow, Countdown: 5, Phase: "North-South", LastUpdated: now},
		{ID: "tl-004", Location: "Park Street, Kolkata", Lat: 22.5726, Lng: 88.3639, Status: domain.SignalGreen, Countdown: 60, Phase: "East-West", LastUpdated: now},
	}
}

// SeedMetrics returns the fixed intersection metrics used before any snapshot exists.
func SeedMetrics(now time.Time) []domain.IntersectionMetrics {
	return []domain.IntersectionMetrics{
		{Intersection: "Connaught Place", VehicleCount: 156, AvgWaitTime: 45, CongestionLevel: domain.CongestionMedium, Throughput: 320, Timestamp: now},
		{Intersection: "Bandra West", VehicleCount: 234, AvgWaitTime: 67, CongestionLevel: domain.CongestionHigh, Throughput: 280, Timestamp: now},
		{Intersection: "MG Road", VehicleCount: 89, AvgWaitTime: 23, CongestionLevel: domain.CongestionLow, Throughput: 450, Timestamp: now},
	}
}

// SeedSnapshot wraps the seed lights and metrics in a snapshot with no detections.
func SeedSnapshot(now time.Time) domain.Snapshot {
	return domain.Snapshot{
		Timestamp:     now,
		TrafficLights: SeedTrafficLights(now),
		Metrics:       SeedMetrics(now),
	}
}
