package export

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/trafficsim/internal/ws"
)

func TestPostSendsTokenAndPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Export-Token"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"sequence":1}`, string(body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	fw, err := NewForwarder(srv.URL, " secret ", nil, nil, 0)
	require.NoError(t, err)
	require.NoError(t, fw.Post(context.Background(), []byte(`{"sequence":1}`)))
}

func TestPostMapsStatusToErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", int(status.Load()))
	}))
	defer srv.Close()

	fw, err := NewForwarder(srv.URL, "", &http.Client{Timeout: time.Second}, nil, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, fw.Post(context.Background(), []byte("{}")), ErrUnauthorized)

	status.Store(http.StatusUnprocessableEntity)
	assert.ErrorIs(t, fw.Post(context.Background(), []byte("{}")), ErrRejected)

	status.Store(http.StatusBadGateway)
	err = fw.Post(context.Background(), []byte("{}"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestNewForwarderValidatesURL(t *testing.T) {
	_, err := NewForwarder("", "", nil, nil, 0)
	assert.Error(t, err)
	_, err = NewForwarder("ftp://example.com", "", nil, nil, 0)
	assert.Error(t, err)
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	fw, err := NewForwarder("http://127.0.0.1:1", "", nil, nil, 1)
	require.NoError(t, err)
	require.NoError(t, fw.Send([]byte("a")))
	require.NoError(t, fw.Send([]byte("b")), "full queue must not fail the hub")
	assert.EqualValues(t, 1, fw.Dropped())

	fw.Close()
	assert.ErrorIs(t, fw.Send([]byte("c")), ErrClosed)
}

func TestRunForwardsHubBroadcasts(t *testing.T) {
	received := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	fw, err := NewForwarder(srv.URL, "", nil, nil, 4)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fw.Run(ctx)

	hub := ws.NewHub()
	defer hub.Close()
	hub.Register("snapshots", fw)
	hub.Broadcast("snapshots", []byte(`{"sequence":2}`))

	select {
	case body := <-received:
		assert.Equal(t, `{"sequence":2}`, body)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "expected broadcast to be forwarded")
	}
	require.Eventually(t, func() bool { return fw.Sent() == 1 }, time.Second, 5*time.Millisecond)
}
