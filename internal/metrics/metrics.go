package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/eniz1806/SyncPad/internal/protocol"
	"github.com/eniz1806/SyncPad/internal/session"
)

// Collector tracks collaboration traffic and exposes Prometheus-compatible /metrics.
type Collector struct {
	registry *session.Registry

	// Inbound message counters by kind
	messagesTotal     [kindCount]atomic.Int64
	messageErrors     atomic.Int64
	connectionsOpened atomic.Int64
	connectionsClosed atomic.Int64
	requestsTotal     atomic.Int64
	latencyNanos      atomic.Int64
	latencyCount      atomic.Int64
	startTime         time.Time
}

// Message kind indices for counter array
const (
	kOperation = iota
	kCursor
	kSelection
	kAnnotation
	kActionItem
	kUser
	kPing
	kOther
	kindCount
)

func kindIndex(t protocol.MessageType) int {
	switch t {
	case protocol.TypeOperation:
		return kOperation
	case protocol.TypeCursorMove:
		return kCursor
	case protocol.TypeSelectionChange:
		return kSelection
	case protocol.TypeAnnotationAdd, protocol.TypeAnnotationUpdate, protocol.TypeAnnotationRemove:
		return kAnnotation
	case protocol.TypeActionItemAdd, protocol.TypeActionItemUpdate, protocol.TypeActionItemRemove:
		return kActionItem
	case protocol.TypeUserJoin, protocol.TypeUserLeave, protocol.TypeUserUpdate:
		return kUser
	case protocol.TypePing:
		return kPing
	default:
		return kOther
	}
}

func kindLabel(idx int) string {
	switch idx {
	case kOperation:
		return "operation"
	case kCursor:
		return "cursor"
	case kSelection:
		return "selection"
	case kAnnotation:
		return "annotation"
	case kActionItem:
		return "action_item"
	case kUser:
		return "user"
	case kPing:
		return "ping"
	default:
		return "other"
	}
}

func NewCollector(registry *session.Registry) *Collector {
	return &Collector{
		registry:  registry,
		startTime: time.Now(),
	}
}

// StartTime returns when the collector was created (server start time).
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// RecordMessage increments the inbound counter for the message kind.
func (c *Collector) RecordMessage(t protocol.MessageType) {
	c.messagesTotal[kindIndex(t)].Add(1)
}

// RecordError increments the malformed-message counter.
func (c *Collector) RecordError() {
	c.messageErrors.Add(1)
}

// RecordConnect increments the opened-connections counter.
func (c *Collector) RecordConnect() {
	c.connectionsOpened.Add(1)
}

// RecordDisconnect increments the closed-connections counter.
func (c *Collector) RecordDisconnect() {
	c.connectionsClosed.Add(1)
}

// RecordRequest increments the HTTP request counter.
func (c *Collector) RecordRequest(string) {
	c.requestsTotal.Add(1)
}

// RecordLatency adds an HTTP request duration sample.
func (c *Collector) RecordLatency(d time.Duration) {
	c.latencyNanos.Add(int64(d))
	c.latencyCount.Add(1)
}

// MessagesByKind returns inbound message counts keyed by kind label.
func (c *Collector) MessagesByKind() map[string]int64 {
	out := make(map[string]int64, kindCount)
	for i := 0; i < kindCount; i++ {
		out[kindLabel(i)] = c.messagesTotal[i].Load()
	}
	return out
}

// TotalMessages returns the inbound message count across all kinds.
func (c *Collector) TotalMessages() int64 {
	var total int64
	for i := 0; i < kindCount; i++ {
		total += c.messagesTotal[i].Load()
	}
	return total
}

// TotalErrors returns the malformed-message count.
func (c *Collector) TotalErrors() int64 {
	return c.messageErrors.Load()
}

// ActiveConnections returns opened minus closed connections.
func (c *Collector) ActiveConnections() int64 {
	return c.connectionsOpened.Load() - c.connectionsClosed.Load()
}

// TotalRequests returns the HTTP request count.
func (c *Collector) TotalRequests() int64 {
	return c.requestsTotal.Load()
}

// ServeHTTP handles GET /metrics in Prometheus exposition format.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	var totalMessages int64
	for i := 0; i < kindCount; i++ {
		v := c.messagesTotal[i].Load()
		totalMessages += v
		fmt.Fprintf(w, "syncpad_messages_total{kind=%q} %d\n", kindLabel(i), v)
	}
	fmt.Fprintf(w, "syncpad_messages_total_sum %d\n", totalMessages)
	fmt.Fprintf(w, "syncpad_message_errors_total %d\n", c.messageErrors.Load())

	opened := c.connectionsOpened.Load()
	closed := c.connectionsClosed.Load()
	fmt.Fprintf(w, "syncpad_connections_opened_total %d\n", opened)
	fmt.Fprintf(w, "syncpad_connections_closed_total %d\n", closed)
	fmt.Fprintf(w, "syncpad_connections_active %d\n", opened-closed)

	fmt.Fprintf(w, "syncpad_http_requests_total %d\n", c.requestsTotal.Load())
	fmt.Fprintf(w, "syncpad_http_request_duration_seconds_sum %.6f\n", time.Duration(c.latencyNanos.Load()).Seconds())
	fmt.Fprintf(w, "syncpad_http_request_duration_seconds_count %d\n", c.latencyCount.Load())

	// Uptime
	fmt.Fprintf(w, "syncpad_uptime_seconds %.0f\n", time.Since(c.startTime).Seconds())

	// Per-document live session metrics.
	if c.registry != nil {
		sessions := c.registry.List()
		fmt.Fprintf(w, "syncpad_sessions_active %d\n", len(sessions))

		var totalUsers int
		for _, s := range sessions {
			users := s.UserCount()
			totalUsers += users
			fmt.Fprintf(w, "syncpad_session_users{document=%q} %d\n", s.DocumentID(), users)
		}
		fmt.Fprintf(w, "syncpad_users_active %d\n", totalUsers)
	}

	// Go runtime metrics
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(w, "syncpad_go_goroutines %d\n", runtime.NumGoroutine())
	fmt.Fprintf(w, "syncpad_go_memory_alloc_bytes %d\n", mem.Alloc)
	fmt.Fprintf(w, "syncpad_go_memory_sys_bytes %d\n", mem.Sys)
	fmt.Fprintf(w, "syncpad_go_gc_total %d\n", mem.NumGC)
}
