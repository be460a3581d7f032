// Package observer mirrors stored items to an external provenance service.
// Delivery is best-effort: payloads are queued without blocking, sent once by
// a single background worker, and dropped on any failure.
package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/provenance-feed/app/database"
	"github.com/lysyi3m/provenance-feed/app/metrics"
)

const (
	DefaultTimeout   = 750 * time.Millisecond
	DefaultQueueSize = 200

	maxSnippetBytes = 4096
)

type Observer interface {
	Observe(item database.Item)
}

type Config struct {
	Enabled    bool
	URL        string
	APIKey     string
	Timeout    time.Duration
	QueueSize  int
	HTTPClient *http.Client
}

type Payload struct {
	ContentID         string `json:"content_id"`
	CanonicalURL      string `json:"canonical_url"`
	Title             string `json:"title"`
	PublishedAt       string `json:"published_at"`
	SourceKey         string `json:"source_key"`
	SourceDisplayName string `json:"source_display_name"`
}

type DeliveryError struct {
	StatusCode int
	Snippet    string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("observe delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("observe delivery failed: unexpected status %d: %s", e.StatusCode, e.Snippet)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Sidecar is the Observer backed by the provenance service. A disabled
// Sidecar owns no queue and no goroutine.
type Sidecar struct {
	enabled    bool
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client

	queue chan Payload
	done  chan struct{}

	// ctx bounds in-flight requests; it is cancelled when a shutdown
	// deadline expires and the rest of the queue is discarded.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

var _ Observer = (*Sidecar)(nil)

func New(cfg Config) (*Sidecar, error) {
	if !cfg.Enabled {
		return &Sidecar{}, nil
	}

	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("observe URL must be non-empty when observation is enabled")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		slog.Warn("Observation enabled without an API key, requests will likely be rejected", "url", url)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Sidecar{
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		url:        url,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    timeout,
		httpClient: httpClient,
		queue:      make(chan Payload, queueSize),
		done:       make(chan struct{}),
	}

	go s.worker()

	return s, nil
}

func (s *Sidecar) Enabled() bool {
	return s.enabled
}

// Observe queues a payload for item. It never blocks: when the queue is full
// the payload is dropped and logged.
func (s *Sidecar) Observe(item database.Item) {
	if !s.enabled {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- BuildPayload(item):
		metrics.ObservationsQueued.Inc()
	default:
		metrics.ObservationsDropped.Inc()
		slog.Warn("Observer queue is full, dropping observation", "content_id", item.ContentID)
	}
}

// Close stops accepting payloads and waits for the worker to drain the queue.
func (s *Sidecar) Close() {
	s.Shutdown(context.Background())
}

// Shutdown stops accepting payloads and drains the queue until ctx is done.
// Past that point the in-flight request is aborted, whatever is still
// queued is discarded, and ctx.Err() is returned once the worker exits.
func (s *Sidecar) Shutdown(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
	}

	s.cancel()
	<-s.done

	slog.Warn("Observer shutdown deadline reached, pending observations discarded")
	return ctx.Err()
}

func (s *Sidecar) worker() {
	defer close(s.done)
	defer s.cancel()

	for payload := range s.queue {
		if s.ctx.Err() != nil {
			metrics.ObservationsDropped.Inc()
			continue
		}
		s.deliver(payload)
	}
}

func (s *Sidecar) deliver(payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObservationsFailed.Inc()
			slog.Error("Observe delivery panicked", "content_id", payload.ContentID, "panic", r)
		}
	}()

	if err := s.post(payload); err != nil {
		metrics.ObservationsFailed.Inc()
		slog.Warn("Observe failed, not retrying", "content_id", payload.ContentID, "error", err)
		return
	}

	metrics.ObservationsDelivered.Inc()
	slog.Debug("Observation delivered", "content_id", payload.ContentID)
}

func (s *Sidecar) post(payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippetBytes))
		return &DeliveryError{StatusCode: resp.StatusCode, Snippet: string(bytes.ToValidUTF8(snippet, []byte("�")))}
	}

	// Drain a little so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return nil
}
