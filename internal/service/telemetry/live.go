package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/splax/trafficsim/internal/domain"
	"github.com/splax/trafficsim/internal/ws"
)

const (
	defaultRefreshInterval = 3 * time.Second

	// SnapshotTopic is the hub topic every new snapshot is broadcast on.
	SnapshotTopic = "snapshots"

	TriggerInitial = "initial"
	TriggerTick    = "tick"
	TriggerManual  = "manual"
)

// LiveFeed owns the current snapshot and replaces it on a timer while live,
// or on demand through Refresh.
type LiveFeed struct {
	generator *Generator
	hub       *ws.Hub
	metrics   *Metrics
	interval  time.Duration
	logger    *slog.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	current *domain.Snapshot

	live    atomic.Bool
	running atomic.Bool
	control chan struct{}
}

// NewLiveFeed constructs a LiveFeed and generates the initial snapshot from the
// seed set. The feed starts live when live is true.
func NewLiveFeed(generator *Generator, hub *ws.Hub, metrics *Metrics, logger *slog.Logger, interval time.Duration, live bool) *LiveFeed {
	if generator == nil {
		generator = NewGenerator(nil)
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &LiveFeed{
		generator: generator,
		hub:       hub,
		metrics:   metrics,
		interval:  interval,
		logger:    logger.With("component", "live_feed"),
		control:   make(chan struct{}, 1),
	}
	f.live.Store(live)
	f.advance(TriggerInitial)
	return f
}

// Run drives timer refreshes. It blocks until the context is cancelled.
func (f *LiveFeed) Run(ctx context.Context) {
	if !f.running.CompareAndSwap(false, true) {
		f.logger.Warn("live feed already running")
		return
	}
	defer f.running.Store(false)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	if !f.live.Load() {
		ticker.Stop()
	}
	f.logger.Info("live feed started", "interval", f.interval, "live", f.live.Load())

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("live feed stopped", "sequence", f.Current().Sequence)
			return
		case <-f.control:
			if f.live.Load() {
				ticker.Reset(f.interval)
			} else {
				ticker.Stop()
			}
		case <-ticker.C:
			if !f.live.Load() {
				continue
			}
			f.advance(TriggerTick)
		}
	}
}

// Refresh generates a snapshot immediately and returns it.
func (f *LiveFeed) Refresh() *domain.Snapshot {
	return f.advance(TriggerManual)
}

// Pause stops timer refreshes. A refresh already in progress completes.
func (f *LiveFeed) Pause() {
	if f.live.CompareAndSwap(true, false) {
		f.logger.Info("live updates paused")
		f.signal()
	}
}

// Resume restarts timer refreshes, with the first tick one interval from now.
func (f *LiveFeed) Resume() {
	if f.live.CompareAndSwap(false, true) {
		f.logger.Info("live updates resumed")
		f.signal()
	}
}

// Live reports whether timer refreshes are enabled.
func (f *LiveFeed) Live() bool {
	return f.live.Load()
}

// Interval returns the timer refresh period.
func (f *LiveFeed) Interval() time.Duration {
	return f.interval
}

// Current returns the latest snapshot. Callers must not modify it.
func (f *LiveFeed) Current() *domain.Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *LiveFeed) signal() {
	select {
	case f.control <- struct{}{}:
	default:
	}
}

func (f *LiveFeed) advance(trigger string) *domain.Snapshot {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	start := time.Now()
	next := f.generator.Generate(f.Current())
	took := time.Since(start)

	f.mu.Lock()
	f.current = &next
	f.mu.Unlock()

	f.metrics.observe(next, trigger, took)
	f.broadcast(&next)
	f.logger.Debug("snapshot generated", "trigger", trigger, "sequence", next.Sequence, "detections", len(next.VehicleDetections))
	return &next
}

func (f *LiveFeed) broadcast(s *domain.Snapshot) {
	if f.hub == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		f.logger.Warn("failed to marshal snapshot", "error", err)
		return
	}
	f.hub.Broadcast(SnapshotTopic, payload)
}
