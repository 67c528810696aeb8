package config

import "time"

// DashboardConfig holds runtime configuration for the telemetry daemon.
type DashboardConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	RefreshInterval    time.Duration
	LiveOnStart        bool
	RandomSeed         int64
	PhaseReset         bool
	PhaseRedSeconds    int
	PhaseGreenSeconds  int
	PhaseYellowSeconds int
	SSEHeartbeat       time.Duration
	ControlToken       string
	RefreshRateLimit   int
	RateLimitWindow    time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	ExportURL          string
	ExportToken        string
	ExportQueueSize    int
}

// LoadDashboardConfig constructs a DashboardConfig from environment variables.
func LoadDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("TRAFFICD_ADDR", ":4100"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		RefreshInterval:    GetSeconds("REFRESH_INTERVAL_SECONDS", 3),
		LiveOnStart:        GetBool("LIVE_ON_START", true),
		RandomSeed:         GetInt64("RANDOM_SEED", 0),
		PhaseReset:         GetBool("PHASE_RESET", false),
		PhaseRedSeconds:    GetInt("PHASE_RED_SECONDS", 30),
		PhaseGreenSeconds:  GetInt("PHASE_GREEN_SECONDS", 45),
		PhaseYellowSeconds: GetInt("PHASE_YELLOW_SECONDS", 5),
		SSEHeartbeat:       GetSeconds("SSE_HEARTBEAT_SECONDS", 15),
		ControlToken:       GetString("CONTROL_TOKEN", ""),
		RefreshRateLimit:   GetInt("REFRESH_RATE_LIMIT", 20),
		RateLimitWindow:    GetSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		ExportURL:          GetString("EXPORT_WEBHOOK_URL", ""),
		ExportToken:        GetString("EXPORT_WEBHOOK_TOKEN", ""),
		ExportQueueSize:    GetInt("EXPORT_QUEUE_SIZE", 16),
	}
}
