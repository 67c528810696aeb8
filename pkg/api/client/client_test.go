package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New("localhost:4100/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4100", cli.baseURL)

	cli, err = New("")
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, cli.baseURL)
}

func TestSummaryDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/summary", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-Control-Token"), "read requests must not carry the control token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sequence":9,"total_vehicles":479,"average_wait_time":45,"detections":[{"type":"car","count":3,"percentage":60}],"signal_counts":{"red":1,"yellow":1,"green":2}}`))
	}))
	defer srv.Close()

	cli, err := New(srv.URL, WithControlToken("tok"))
	require.NoError(t, err)
	summary, err := cli.Summary(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 9, summary.Sequence)
	assert.Equal(t, 479, summary.TotalVehicles)
	assert.Equal(t, 45, summary.AverageWaitTime)
	require.Len(t, summary.Detections, 1)
	assert.Equal(t, "car", summary.Detections[0].Type)
	assert.Equal(t, 2, summary.SignalCounts["green"])
}

func TestControlCallsSendToken(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.Header.Get("X-Control-Token"))
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/refresh":
			w.Write([]byte(`{"id":"snap-2","sequence":2,"traffic_lights":[{"id":"tl-001","status":"green","countdown":44}]}`))
		default:
			w.Write([]byte(`{"live":false,"interval_ms":3000,"sequence":2}`))
		}
	}))
	defer srv.Close()

	cli, err := New(srv.URL, WithControlToken(" tok "))
	require.NoError(t, err)
	snap, err := cli.Refresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Sequence)
	require.Len(t, snap.TrafficLights, 1)
	assert.Equal(t, "green", snap.TrafficLights[0].Status)

	status, err := cli.Pause(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Live)
	assert.EqualValues(t, 3000, status.IntervalMS)

	_, err = cli.Resume(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/refresh", "/live/pause", "/live/resume"}, paths)
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	require.NoError(t, err)
	_, err = cli.Refresh(context.Background())
	var apiErr APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "rate limit exceeded", apiErr.Message)
}
