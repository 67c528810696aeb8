package domain

import "time"

// CameraFeed describes a roadside camera the detector reads from.
type CameraFeed struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Status    string    `json:"status"`
	StreamURL string    `json:"stream_url"`
	CheckedAt time.Time `json:"checked_at"`
}

// DecisionImpact is the projected effect of an AIDecision.
type DecisionImpact struct {
	WaitTimeReduction  float64 `json:"wait_time_reduction"`
	ThroughputIncrease float64 `json:"throughput_increase"`
}

// AIDecision is a canned signal-timing recommendation shown on the dashboard.
type AIDecision struct {
	ID           string         `json:"id"`
	Intersection string         `json:"intersection"`
	Action       string         `json:"action"`
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning"`
	Timestamp    time.Time      `json:"timestamp"`
	Impact       DecisionImpact `json:"impact"`
}

// ScenarioParameters are the knobs of a SimulationScenario.
type ScenarioParameters struct {
	VehicleDensity    float64 `json:"vehicle_density"`
	PeakHours         bool    `json:"peak_hours"`
	Weather           string  `json:"weather"`
	EmergencyVehicles bool    `json:"emergency_vehicles"`
}

// ScenarioResults are the canned outcomes of a SimulationScenario.
type ScenarioResults struct {
	CommuteTimeReduction float64 `json:"commute_time_reduction"`
	FuelSavings          float64 `json:"fuel_savings"`
	EmissionReduction    float64 `json:"emission_reduction"`
}

// SimulationScenario is a preset what-if run.
type SimulationScenario struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  ScenarioParameters `json:"parameters"`
	Results     ScenarioResults    `json:"results"`
}

// SystemHealth reports the status of one simulated subsystem.
type SystemHealth struct {
	Component string             `json:"component"`
	Status    string             `json:"status"`
	Uptime    float64            `json:"uptime"`
	LastCheck time.Time          `json:"last_check"`
	Metrics   map[string]float64 `json:"metrics"`
}
