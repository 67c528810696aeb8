package httpx

import (
	"bufio"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/trafficsim/internal/domain"
	"github.com/splax/trafficsim/internal/service/catalog"
	"github.com/splax/trafficsim/internal/service/telemetry"
	"github.com/splax/trafficsim/internal/ws"
	"github.com/splax/trafficsim/pkg/config"
)

// Router wires HTTP endpoints to the live feed and catalog.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	feed          *telemetry.LiveFeed
	hub           *ws.Hub
	catalog       *catalog.Service
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	controlToken  string
	refreshLimit  int
	refreshWindow time.Duration
	heartbeat     time.Duration
	now           func() time.Time

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateLimitRead      = 600
	rateLimitStream    = 30
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	defaultHeartbeat   = 15 * time.Second
	staleIntervals     = 3
	sseEventName       = "snapshot"
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, feed *telemetry.LiveFeed, hub *ws.Hub, catalogSvc *catalog.Service, limiter RateLimiter, cfg config.DashboardConfig) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if catalogSvc == nil {
		catalogSvc = catalog.New()
	}
	r := &Router{
		mux:     http.NewServeMux(),
		logger:  logger,
		feed:    feed,
		hub:     hub,
		catalog: catalogSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:       limiter,
		controlToken:  strings.TrimSpace(cfg.ControlToken),
		refreshLimit:  cfg.RefreshRateLimit,
		refreshWindow: cfg.RateLimitWindow,
		heartbeat:     cfg.SSEHeartbeat,
		now:           time.Now,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.refreshWindow <= 0 {
		r.refreshWindow = rateWindowDefault
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	read := routeLimit{limit: rateLimitRead, window: rateWindowDefault, key: rateLimitKeyIP}
	stream := routeLimit{limit: rateLimitStream, window: rateWindowRealtime, key: rateLimitKeyIP}
	control := routeLimit{limit: r.refreshLimit, window: r.refreshWindow, key: rateLimitKeyControl}

	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.HandleFunc("/snapshot", r.audit("snapshot", r.limited("snapshot", read, r.handleSnapshot)))
	r.mux.HandleFunc("/summary", r.audit("summary", r.limited("summary", read, r.handleSummary)))
	r.mux.HandleFunc("/detections", r.audit("detections", r.limited("detections", read, r.handleDetections)))
	r.mux.HandleFunc("/refresh", r.audit("refresh", r.limited("refresh", control, r.handleRefresh)))
	r.mux.HandleFunc("/live", r.audit("live", r.handleLive))
	r.mux.HandleFunc("/live/", r.audit("live_control", r.limited("live_control", control, r.handleLiveControl)))
	r.mux.HandleFunc("/stream/sse", r.audit("stream_sse", r.limited("stream_sse", stream, r.handleSnapshotSSE)))
	r.mux.HandleFunc("/ws/snapshots", r.audit("ws_snapshots", r.limited("ws_snapshots", stream, r.handleSnapshotWS)))
	r.mux.HandleFunc("/catalog/", r.audit("catalog", r.limited("catalog", read, r.handleCatalog)))
}

func (r *Router) handleSnapshot(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, r.feed.Current())
}

func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, telemetry.Summarize(*r.feed.Current()))
}

func (r *Router) handleDetections(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	snapshot := *r.feed.Current()
	raw := strings.ToLower(strings.TrimSpace(req.URL.Query().Get("type")))
	if raw == "" {
		writeJSON(w, http.StatusOK, snapshot.VehicleDetections)
		return
	}
	category, err := domain.ParseVehicleType(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snapshot.ID,
		"type":        category,
		"count":       telemetry.DetectionCountByCategory(snapshot, category),
		"percentage":  telemetry.DetectionPercentageByCategory(snapshot, category),
		"total":       len(snapshot.VehicleDetections),
	})
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.verifyControlToken(w, req) {
		return
	}
	writeJSON(w, http.StatusOK, r.feed.Refresh())
}

func (r *Router) handleLive(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, r.liveStatus())
}

func (r *Router) handleLiveControl(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.verifyControlToken(w, req) {
		return
	}
	switch strings.Trim(strings.TrimPrefix(req.URL.Path, "/live/"), "/") {
	case "pause":
		r.feed.Pause()
	case "resume":
		r.feed.Resume()
	default:
		r.notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, r.liveStatus())
}

func (r *Router) liveStatus() map[string]any {
	current := r.feed.Current()
	return map[string]any{
		"live":         r.feed.Live(),
		"interval_ms":  r.feed.Interval().Milliseconds(),
		"sequence":     current.Sequence,
		"last_updated": current.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (r *Router) handleSnapshotSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	client := ws.NewSSEClient(w, flusher, sseEventName, r.logger)
	r.hub.Register(telemetry.SnapshotTopic, client)
	defer func() {
		// queued frames must not reach w once the handler returns
		client.Close()
		r.hub.Unregister(telemetry.SnapshotTopic, client)
	}()
	if err := r.sendCurrent(client); err != nil {
		return
	}

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if client.Closed() {
				return
			}
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleSnapshotWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(telemetry.SnapshotTopic, client)
	if err := r.sendCurrent(client); err != nil {
		r.hub.Unregister(telemetry.SnapshotTopic, client)
		client.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			}
		}
	}()
	go func() {
		defer func() {
			close(done)
			r.hub.Unregister(telemetry.SnapshotTopic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// sendCurrent writes the current snapshot to a registered stream client.
func (r *Router) sendCurrent(client ws.Subscriber) error {
	payload, err := json.Marshal(r.feed.Current())
	if err != nil {
		r.logger.Warn("failed to marshal snapshot", "error", err)
		return err
	}
	return client.Send(payload)
}

func (r *Router) handleCatalog(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(req.URL.Path, "/catalog/"), "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "cameras":
		writeJSON(w, http.StatusOK, r.catalog.Cameras())
	case len(parts) == 2 && parts[0] == "cameras":
		cam, err := r.catalog.Camera(parts[1])
		if err != nil {
			r.writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cam)
	case len(parts) == 1 && parts[0] == "decisions":
		writeJSON(w, http.StatusOK, r.catalog.Decisions())
	case len(parts) == 1 && parts[0] == "scenarios":
		writeJSON(w, http.StatusOK, r.catalog.Scenarios())
	case len(parts) == 2 && parts[0] == "scenarios":
		sc, err := r.catalog.Scenario(parts[1])
		if err != nil {
			r.writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sc)
	case len(parts) == 1 && parts[0] == "health":
		writeJSON(w, http.StatusOK, r.catalog.Health())
	default:
		r.notFound(w)
	}
}

func (r *Router) writeCatalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		r.notFound(w)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status := "ok"
	current := r.feed.Current()
	age := r.now().Sub(current.Timestamp)
	components := map[string]any{
		"live_feed": map[string]any{
			"status":   "up",
			"live":     r.feed.Live(),
			"sequence": current.Sequence,
			"age_ms":   age.Milliseconds(),
		},
	}
	if r.feed.Live() && age > staleIntervals*r.feed.Interval() {
		status = "degraded"
		components["live_feed"] = map[string]any{
			"status":   "stale",
			"live":     true,
			"sequence": current.Sequence,
			"age_ms":   age.Milliseconds(),
		}
	}
	if r.hub != nil {
		components["stream"] = map[string]any{
			"subscribers": r.hub.Subscribers(telemetry.SnapshotTopic),
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  r.now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

// verifyControlToken guards feed control endpoints when a token is configured.
func (r *Router) verifyControlToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.controlToken
	if expected == "" {
		return true
	}
	token := controlToken(req)
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("control token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid control token")
		return false
	}
	return true
}

// controlToken reads the token from the X-Control-Token header or the
// control_token query parameter.
func controlToken(req *http.Request) string {
	if token := strings.TrimSpace(req.Header.Get("X-Control-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(req.URL.Query().Get("control_token"))
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
