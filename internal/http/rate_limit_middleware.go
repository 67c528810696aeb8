package httpx

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	rateLimiterSweepInterval = 5 * time.Minute
	// tokenKeyLength is the number of hex digits of the token digest kept in keys.
	tokenKeyLength = 16
)

// RateLimiter counts keyed requests inside fixed windows. The memory and
// redis implementations share the same decision semantics.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// remaining reports how many requests the window still admits.
func (d rateDecision) remaining(limit int) int {
	if left := limit - d.count; left > 0 {
		return left
	}
	return 0
}

// routeLimit is the budget applied to one route.
type routeLimit struct {
	limit  int
	window time.Duration
	key    func(*http.Request) string
}

func (l routeLimit) enabled() bool {
	return l.limit > 0
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

type memoryRateLimiter struct {
	mu       sync.Mutex
	counters map[string]windowCounter
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryRateLimiter returns a process-local limiter used when no redis
// address is configured.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		counters: make(map[string]windowCounter),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.sweep(rateLimiterSweepInterval)
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	counter := rl.counters[key]
	if now.After(counter.windowEnd) {
		counter = windowCounter{windowEnd: now.Add(window)}
	}
	if counter.count >= limit {
		return rateDecision{count: counter.count, windowEnd: counter.windowEnd}
	}
	counter.count++
	rl.counters[key] = counter
	return rateDecision{allowed: true, count: counter.count, windowEnd: counter.windowEnd}
}

func (rl *memoryRateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.dropExpired(rl.now())
		case <-rl.stop:
			return
		}
	}
}

func (rl *memoryRateLimiter) dropExpired(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, counter := range rl.counters {
		if now.After(counter.windowEnd) {
			delete(rl.counters, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// limited wraps next with the route's budget. Rejected requests get 429 with
// Retry-After set to the seconds left in the window.
func (r *Router) limited(route string, budget routeLimit, next http.HandlerFunc) http.HandlerFunc {
	if !budget.enabled() || r.limiter == nil {
		return next
	}
	keyFn := budget.key
	if keyFn == nil {
		keyFn = rateLimitKeyIP
	}
	return func(w http.ResponseWriter, req *http.Request) {
		key := route + ":" + keyFn(req)
		decision := r.limiter.Allow(key, budget.limit, budget.window)
		writeRateHeaders(w, budget.limit, decision, time.Now())
		if !decision.allowed {
			r.recordRateLimitHit(route, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

func writeRateHeaders(w http.ResponseWriter, limit int, decision rateDecision, now time.Time) {
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.remaining(limit)))
	if decision.windowEnd.IsZero() {
		return
	}
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	if !decision.allowed {
		wait := int(math.Ceil(decision.windowEnd.Sub(now).Seconds()))
		if wait < 1 {
			wait = 1
		}
		headers.Set("Retry-After", strconv.Itoa(wait))
	}
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// rateLimitKeyControl gives each control token its own budget so operators
// behind one proxy do not share a window. The raw token never reaches the
// limiter store or metric labels.
func rateLimitKeyControl(req *http.Request) string {
	token := controlToken(req)
	if token == "" {
		return rateLimitKeyIP(req)
	}
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:])[:tokenKeyLength]
}

// rateMetricKey reduces a "route:kind:value" key to its kind for metric labels.
func rateMetricKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) == 3 && parts[1] != "" {
		return parts[1]
	}
	return "unknown"
}
