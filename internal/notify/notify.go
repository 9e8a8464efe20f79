package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eniz1806/SyncPad/internal/config"
)

// Event names published to notification backends.
const (
	EventSessionOpened   = "collab:Session:Opened"
	EventSessionClosed   = "collab:Session:Closed"
	EventUserJoined      = "collab:User:Joined"
	EventUserLeft        = "collab:User:Left"
	EventDocumentUpdated = "collab:Document:Updated"
	EventDocumentSynced  = "collab:Document:Synced"
)

// Event is the JSON document delivered for every collaboration event.
type Event struct {
	EventVersion string         `json:"event_version"`
	EventSource  string         `json:"event_source"`
	EventTime    string         `json:"event_time"`
	EventName    string         `json:"event_name"`
	DocumentID   string         `json:"document_id"`
	UserID       string         `json:"user_id,omitempty"`
	SiteID       string         `json:"site_id,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
}

// Backend is the interface for notification delivery backends. The
// document id rides alongside the payload so backends that partition or
// index by document can use it without reparsing the event.
type Backend interface {
	Name() string
	Publish(ctx context.Context, documentID string, payload []byte) error
	Close() error
}

type deliveryJob struct {
	endpoint   string
	payload    []byte
	retryCount int
	maxRetries int
}

// Dispatcher fans collaboration events out to registered backends and
// configured webhook endpoints, with async webhook delivery and retry.
type Dispatcher struct {
	endpoints  []config.WebhookEndpoint
	siteID     string
	client     *http.Client
	workerCh   chan deliveryJob
	wg         sync.WaitGroup
	maxWorkers int
	maxRetries int
	backoff    []time.Duration
	backends   []Backend
	mu         sync.Mutex
}

func NewDispatcher(cfg config.NotificationsConfig, siteID string) *Dispatcher {
	var endpoints []config.WebhookEndpoint
	if cfg.Webhook.Enabled {
		endpoints = cfg.Webhook.Endpoints
	}
	return &Dispatcher{
		endpoints:  endpoints,
		siteID:     siteID,
		client:     &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		workerCh:   make(chan deliveryJob, cfg.QueueSize),
		maxWorkers: cfg.MaxWorkers,
		maxRetries: cfg.MaxRetries,
		backoff:    []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-d.workerCh:
					if !ok {
						return
					}
					d.deliverWebhook(job)
				}
			}
		}()
	}
}

// AddBackend registers a notification backend.
func (d *Dispatcher) AddBackend(b Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backends = append(d.backends, b)
	slog.Info("notification backend registered", "backend", b.Name())
}

func (d *Dispatcher) Stop() {
	close(d.workerCh)
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.backends {
		b.Close()
	}
}

// Dispatch publishes a collaboration event to every backend and fires
// matching webhooks.
func (d *Dispatcher) Dispatch(eventName, documentID, userID string, detail map[string]any) {
	event := Event{
		EventVersion: "1.0",
		EventSource:  "syncpad",
		EventTime:    time.Now().UTC().Format(time.RFC3339),
		EventName:    eventName,
		DocumentID:   documentID,
		UserID:       userID,
		SiteID:       d.siteID,
		Detail:       detail,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("notify error marshaling event", "error", err)
		return
	}

	// Publish to all registered backends
	d.mu.Lock()
	backends := make([]Backend, len(d.backends))
	copy(backends, d.backends)
	d.mu.Unlock()
	for _, b := range backends {
		if err := b.Publish(context.Background(), documentID, payload); err != nil {
			slog.Error("notify backend publish error", "backend", b.Name(), "error", err)
		}
	}

	for _, wh := range d.endpoints {
		if !matchEvent(wh.Events, eventName) {
			continue
		}
		if !matchDocument(wh.DocumentPrefix, documentID) {
			continue
		}

		job := deliveryJob{
			endpoint:   wh.URL,
			payload:    payload,
			retryCount: 0,
			maxRetries: d.maxRetries,
		}

		// Queue full means the event is dropped, not blocked on.
		select {
		case d.workerCh <- job:
		default:
			slog.Warn("notify queue full, dropping event", "event", eventName, "document_id", documentID)
		}
	}
}

func (d *Dispatcher) deliverWebhook(job deliveryJob) {
	resp, err := d.client.Post(job.endpoint, "application/json", bytes.NewReader(job.payload))
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode < 300 {
			return // success
		}
		err = &httpError{statusCode: resp.StatusCode}
	}

	// Retry
	if job.retryCount < job.maxRetries-1 {
		backoffIdx := job.retryCount
		if backoffIdx >= len(d.backoff) {
			backoffIdx = len(d.backoff) - 1
		}
		time.Sleep(d.backoff[backoffIdx])

		job.retryCount++
		select {
		case d.workerCh <- job:
		default:
			slog.Warn("notify queue full on retry, dropping webhook", "endpoint", job.endpoint)
		}
	} else {
		slog.Error("notify webhook failed after retries", "retries", job.maxRetries, "endpoint", job.endpoint, "error", err)
	}
}

type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return "webhook returned non-success status"
}

// matchEvent checks if the actual event name matches any of the
// configured patterns. An empty pattern list matches everything.
func matchEvent(patterns []string, actual string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == actual {
			return true
		}
		// Wildcard matching: "collab:User:*" matches "collab:User:Joined"
		if strings.HasSuffix(p, ":*") {
			prefix := p[:len(p)-1] // "collab:User:"
			if strings.HasPrefix(actual, prefix) {
				return true
			}
		}
		// Global wildcard
		if p == "*" {
			return true
		}
	}
	return false
}

// matchDocument checks the endpoint's document id prefix filter.
func matchDocument(prefix, documentID string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(documentID, prefix)
}
