package domain

import "time"

// TrafficLight captures the simulated state of a single signal head.
type TrafficLight struct {
	ID          string       `json:"id"`
	Location    string       `json:"location"`
	Lat         float64      `json:"lat"`
	Lng         float64      `json:"lng"`
	Status      SignalStatus `json:"status"`
	Countdown   int          `json:"countdown"`
	Phase       string       `json:"phase"`
	LastUpdated time.Time    `json:"last_updated"`
}

// BoundingBox is a pixel-space rectangle within a camera frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// VehicleDetection is one synthetic detector hit.
type VehicleDetection struct {
	ID         string      `json:"id"`
	Type       VehicleType `json:"type"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Timestamp  time.Time   `json:"timestamp"`
	CameraID   string      `json:"camera_id"`
}

// IntersectionMetrics holds the rolling KPIs for one intersection.
type IntersectionMetrics struct {
	Intersection    string          `json:"intersection"`
	VehicleCount    int             `json:"vehicle_count"`
	AvgWaitTime     int             `json:"avg_wait_time"`
	CongestionLevel CongestionLevel `json:"congestion_level"`
	Throughput      int             `json:"throughput"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Snapshot bundles everything produced by one refresh tick. A snapshot is not
// modified after it has been handed out; use Clone to derive a mutable copy.
type Snapshot struct {
	ID                string                `json:"id"`
	Sequence          uint64                `json:"sequence"`
	Timestamp         time.Time             `json:"timestamp"`
	VehicleDetections []VehicleDetection    `json:"vehicle_detections"`
	TrafficLights     []TrafficLight        `json:"traffic_lights"`
	Metrics           []IntersectionMetrics `json:"metrics"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.VehicleDetections = append([]VehicleDetection(nil), s.VehicleDetections...)
	out.TrafficLights = append([]TrafficLight(nil), s.TrafficLights...)
	out.Metrics = append([]IntersectionMetrics(nil), s.Metrics...)
	return out
}
