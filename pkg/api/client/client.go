package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:4100"

// Client provides typed access to the trafficd HTTP feed for interactive tools.
type Client struct {
	baseURL      string
	controlToken string
	httpClient   *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithControlToken sets the token sent with refresh and live control calls.
func WithControlToken(token string) Option {
	return func(c *Client) {
		c.controlToken = strings.TrimSpace(token)
	}
}

// New constructs a Client pointing at the provided base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.controlToken != "" {
		req.Header.Set("X-Control-Token", c.controlToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// TrafficLight mirrors the light payload of a snapshot.
type TrafficLight struct {
	ID          string    `json:"id"`
	Location    string    `json:"location"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Status      string    `json:"status"`
	Countdown   int       `json:"countdown"`
	Phase       string    `json:"phase"`
	LastUpdated time.Time `json:"last_updated"`
}

// Detection mirrors a vehicle detection payload.
type Detection struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	BBox       struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"bbox"`
	Timestamp time.Time `json:"timestamp"`
	CameraID  string    `json:"camera_id"`
}

// IntersectionMetrics mirrors the per-intersection KPI payload.
type IntersectionMetrics struct {
	Intersection    string    `json:"intersection"`
	VehicleCount    int       `json:"vehicle_count"`
	AvgWaitTime     int       `json:"avg_wait_time"`
	CongestionLevel string    `json:"congestion_level"`
	Throughput      int       `json:"throughput"`
	Timestamp       time.Time `json:"timestamp"`
}

// Snapshot is one refresh of simulated telemetry.
type Snapshot struct {
	ID                string                `json:"id"`
	Sequence          uint64                `json:"sequence"`
	Timestamp         time.Time             `json:"timestamp"`
	VehicleDetections []Detection           `json:"vehicle_detections"`
	TrafficLights     []TrafficLight        `json:"traffic_lights"`
	Metrics           []IntersectionMetrics `json:"metrics"`
}

// CategoryBreakdown is the detection share of one vehicle type.
type CategoryBreakdown struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Summary carries the dashboard KPIs for the current snapshot.
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

// LiveStatus reports whether timer refreshes are running.
type LiveStatus struct {
	Live        bool      `json:"live"`
	IntervalMS  int64     `json:"interval_ms"`
	Sequence    uint64    `json:"sequence"`
	LastUpdated time.Time `json:"last_updated"`
}

// Snapshot fetches the current snapshot.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, "/snapshot", nil, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Summary fetches the KPIs for the current snapshot.
func (c *Client) Summary(ctx context.Context) (Summary, error) {
	var summary Summary
	if err := c.do(ctx, http.MethodGet, "/summary", nil, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Refresh asks the daemon to generate a snapshot immediately.
func (c *Client) Refresh(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodPost, "/refresh", nil, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Live reports the live-mode status.
func (c *Client) Live(ctx context.Context) (LiveStatus, error) {
	var status LiveStatus
	if err := c.do(ctx, http.MethodGet, "/live", nil, &status); err != nil {
		return LiveStatus{}, err
	}
	return status, nil
}

// Pause stops timer refreshes.
func (c *Client) Pause(ctx context.Context) (LiveStatus, error) {
	var status LiveStatus
	if err := c.do(ctx, http.MethodPost, "/live/pause", nil, &status); err != nil {
		return LiveStatus{}, err
	}
	return status, nil
}

// Resume restarts timer refreshes.
func (c *Client) Resume(ctx context.Context) (LiveStatus, error) {
	var status LiveStatus
	if err := c.do(ctx, http.MethodPost, "/live/resume", nil, &status); err != nil {
		return LiveStatus{}, err
	}
	return status, nil
}
