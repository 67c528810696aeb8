package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiterFixedWindow(t *testing.T) {
	now := time.Date(2025, time.April, 8, 7, 0, 0, 0, time.UTC)
	rl := &memoryRateLimiter{
		counters: make(map[string]windowCounter),
		now:      func() time.Time { return now },
		stop:     make(chan struct{}),
	}
	defer rl.Close()

	for i := 1; i <= 3; i++ {
		decision := rl.Allow("refresh:ip:10.0.0.1", 3, time.Minute)
		require.True(t, decision.allowed, "request %d", i)
		require.Equal(t, i, decision.count)
	}
	rejected := rl.Allow("refresh:ip:10.0.0.1", 3, time.Minute)
	assert.False(t, rejected.allowed)
	assert.Zero(t, rejected.remaining(3))
	assert.True(t, rl.Allow("refresh:ip:10.0.0.2", 3, time.Minute).allowed, "separate key has its own budget")

	now = now.Add(time.Minute + time.Second)
	decision := rl.Allow("refresh:ip:10.0.0.1", 3, time.Minute)
	require.True(t, decision.allowed)
	assert.Equal(t, 1, decision.count)

	rl.dropExpired(now.Add(2 * time.Minute))
	assert.Empty(t, rl.counters)
}

func TestMemoryRateLimiterDisabledLimit(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()
	for i := 0; i < 10; i++ {
		require.True(t, rl.Allow("k", 0, time.Minute).allowed)
	}
}

func TestRateLimitKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "ip:192.0.2.7", rateLimitKeyIP(req))
	assert.Equal(t, "ip", rateMetricKey("refresh:ip:192.0.2.7"))
	assert.Equal(t, "unknown", rateMetricKey("garbage"))
}

func TestRateLimitKeyControlUsesTokenDigest(t *testing.T) {
	anonymous := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	anonymous.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "ip:192.0.2.7", rateLimitKeyControl(anonymous))

	alice := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	alice.RemoteAddr = "192.0.2.7:5555"
	alice.Header.Set("X-Control-Token", "alice-secret")
	bob := httptest.NewRequest(http.MethodPost, "/refresh?control_token=bob-secret", nil)
	bob.RemoteAddr = "192.0.2.7:5556"

	aliceKey := rateLimitKeyControl(alice)
	bobKey := rateLimitKeyControl(bob)
	assert.True(t, strings.HasPrefix(aliceKey, "token:"))
	assert.Len(t, aliceKey, len("token:")+tokenKeyLength)
	assert.NotContains(t, aliceKey, "alice-secret")
	assert.NotEqual(t, aliceKey, bobKey)
	assert.Equal(t, "token", rateMetricKey("refresh:"+aliceKey))
}

func TestLimitedSetsRetryAfterOnRejection(t *testing.T) {
	r := &Router{limiter: NewMemoryRateLimiter()}
	defer r.limiter.Close()
	handler := r.limited("refresh", routeLimit{limit: 1, window: time.Minute}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	first := httptest.NewRecorder()
	handler(first, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, first.Header().Get("Retry-After"))

	second := httptest.NewRecorder()
	handler(second, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.NotEmpty(t, second.Header().Get("X-RateLimit-Reset"))
}

func TestLimitedPassesThroughWhenDisabled(t *testing.T) {
	r := &Router{limiter: NewMemoryRateLimiter()}
	defer r.limiter.Close()
	calls := 0
	handler := r.limited("snapshot", routeLimit{}, func(http.ResponseWriter, *http.Request) { calls++ })
	for i := 0; i < 5; i++ {
		handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	}
	assert.Equal(t, 5, calls)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	req.RemoteAddr = "10.1.1.1:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.1.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestRedisRateLimiterUnreachable(t *testing.T) {
	_, err := NewRedisRateLimiter("127.0.0.1:1", "", 0, nil)
	assert.Error(t, err)
}
