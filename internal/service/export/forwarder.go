package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultQueueSize = 16
	maxErrorBodySize = 4096
)

// ErrUnauthorized indicates the sink rejected the export token.
var ErrUnauthorized = errors.New("export unauthorized")

// ErrRejected indicates the sink refused the payload.
var ErrRejected = errors.New("export payload rejected")

// ErrClosed is returned by Send once the forwarder has been closed.
var ErrClosed = errors.New("export forwarder closed")

// Forwarder pushes every snapshot it receives to an HTTP sink. It is
// registered on the stream hub like any other subscriber; Send only queues so
// a slow sink never stalls the hub. When the queue is full the payload is
// dropped.
type Forwarder struct {
	url     string
	token   string
	client  *http.Client
	logger  *slog.Logger
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewForwarder creates a forwarder posting to url.
func NewForwarder(url, token string, client *http.Client, logger *slog.Logger, queueSize int) (*Forwarder, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errors.New("export url required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return nil, fmt.Errorf("export url must be http or https: %q", trimmed)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Forwarder{
		url:    trimmed,
		token:  strings.TrimSpace(token),
		client: client,
		logger: logger.With("component", "export"),
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}, nil
}

// Send queues payload for delivery.
func (f *Forwarder) Send(payload []byte) error {
	select {
	case <-f.done:
		return ErrClosed
	default:
	}
	select {
	case f.queue <- payload:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.logger.Warn("export queue full, dropping snapshot", "dropped", n)
		}
	}
	return nil
}

// Close stops accepting payloads. Run returns once it notices.
func (f *Forwarder) Close() {
	f.once.Do(func() {
		close(f.done)
	})
}

// Run delivers queued payloads until ctx is cancelled or the forwarder is closed.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case payload := <-f.queue:
			if err := f.Post(ctx, payload); err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.Warn("snapshot export failed", "error", err)
				continue
			}
			f.sent.Add(1)
		}
	}
}

// Post delivers a single payload synchronously.
func (f *Forwarder) Post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("X-Export-Token", f.token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("send export request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sent reports how many payloads were delivered.
func (f *Forwarder) Sent() uint64 { return f.sent.Load() }

// Dropped reports how many payloads were discarded because the queue was full.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

func errorForStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case resp.StatusCode < http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrRejected, summary)
	default:
		return fmt.Errorf("export sink failed: %s", summary)
	}
}
