package telemetry

import (
	"math"
	"time"

	"github.com/splax/trafficsim/internal/domain"
)

// CategoryBreakdown is the detection share of one vehicle type.
type CategoryBreakdown struct {
	Type       domain.VehicleType `json:"type"`
	Count      int                `json:"count"`
	Percentage float64            `json:"percentage"`
}

// Summary carries the dashboard KPIs derived from a snapshot.
type Summary struct {
	SnapshotID          string              `json:"snapshot_id"`
	Sequence            uint64              `json:"sequence"`
	Timestamp           time.Time           `json:"timestamp"`
	Intersections       int                 `json:"intersections"`
	TotalVehicles       int                 `json:"total_vehicles"`
	AverageWaitTime     int                 `json:"average_wait_time"`
	HighCongestionCount int                 `json:"high_congestion_count"`
	TotalDetections     int                 `json:"total_detections"`
	Detections          []CategoryBreakdown `json:"detections"`
	SignalCounts        map[string]int      `json:"signal_counts"`
}

// TotalVehicles sums the vehicle count across all intersections.
func TotalVehicles(s domain.Snapshot) int {
	total := 0
	for _, m := range s.Metrics {
		total += m.VehicleCount
	}
	return total
}

// AverageWaitTime is the mean wait time across intersections rounded to the
// nearest second. It is 0 when the snapshot has no metrics.
func AverageWaitTime(s domain.Snapshot) int {
	if len(s.Metrics) == 0 {
		return 0
	}
	sum := 0
	for _, m := range s.Metrics {
		sum += m.AvgWaitTime
	}
	return int(math.Round(float64(sum) / float64(len(s.Metrics))))
}

// HighCongestionCount counts intersections at high congestion.
func HighCongestionCount(s domain.Snapshot) int {
	count := 0
	for _, m := range s.Metrics {
		if m.CongestionLevel == domain.CongestionHigh {
			count++
		}
	}
	return count
}

// DetectionCountByCategory counts detections of the given vehicle type.
func DetectionCountByCategory(s domain.Snapshot, category domain.VehicleType) int {
	count := 0
	for _, d := range s.VehicleDetections {
		if d.Type == category {
			count++
		}
	}
	return count
}

// DetectionPercentageByCategory is the share of detections of the given type,
// in percent. It is 0 when the snapshot has no detections.
func DetectionPercentageByCategory(s domain.Snapshot, category domain.VehicleType) float64 {
	total := len(s.VehicleDetections)
	if total == 0 {
		return 0
	}
	return float64(DetectionCountByCategory(s, category)) / float64(total) * 100
}

// Summarize computes every dashboard KPI for s.
func Summarize(s domain.Snapshot) Summary {
	summary := Summary{
		SnapshotID:          s.ID,
		Sequence:            s.Sequence,
		Timestamp:           s.Timestamp,
		Intersections:       len(s.Metrics),
		TotalVehicles:       TotalVehicles(s),
		AverageWaitTime:     AverageWaitTime(s),
		HighCongestionCount: HighCongestionCount(s),
		TotalDetections:     len(s.VehicleDetections),
		SignalCounts:        make(map[string]int, 3),
	}
	for _, t := range domain.VehicleTypes() {
		summary.Detections = append(summary.Detections, CategoryBreakdown{
			Type:       t,
			Count:      DetectionCountByCategory(s, t),
			Percentage: DetectionPercentageByCategory(s, t),
		})
	}
	for _, status := range []domain.SignalStatus{domain.SignalRed, domain.SignalYellow, domain.SignalGreen} {
		summary.SignalCounts[status.String()] = 0
	}
	for _, light := range s.TrafficLights {
		summary.SignalCounts[light.Status.String()]++
	}
	return summary
}
