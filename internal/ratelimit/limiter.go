package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

type bucket struct {
	tokens   float64
	lastTime time.Time
	rate     float64
	burst    int
}

func (b *bucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	b.lastTime = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limiter throttles inbound collaboration messages per connection and
// per user. The user dimension catches one user spreading load across
// several connections.
type Limiter struct {
	mu sync.Mutex

	connBuckets map[string]*bucket
	userBuckets map[string]*bucket

	rate  float64
	burst int

	rejected atomic.Int64
	stopCh   chan struct{}
}

func NewLimiter(messagesPerSec float64, burst int) *Limiter {
	l := &Limiter{
		connBuckets: make(map[string]*bucket),
		userBuckets: make(map[string]*bucket),
		rate:        messagesPerSec,
		burst:       burst,
		stopCh:      make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) Allow(connID, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	cb, ok := l.connBuckets[connID]
	if !ok {
		cb = &bucket{tokens: float64(l.burst), lastTime: now, rate: l.rate, burst: l.burst}
		l.connBuckets[connID] = cb
	}
	if !cb.allow(now) {
		l.rejected.Add(1)
		return false
	}

	if userID != "" {
		ub, ok := l.userBuckets[userID]
		if !ok {
			ub = &bucket{tokens: float64(l.burst), lastTime: now, rate: l.rate, burst: l.burst}
			l.userBuckets[userID] = ub
		}
		if !ub.allow(now) {
			l.rejected.Add(1)
			return false
		}
	}

	return true
}

// Forget drops the bucket for a closed connection.
func (l *Limiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.connBuckets, connID)
}

func (l *Limiter) Status() map[string]interface{} {
	l.mu.Lock()
	connCount := len(l.connBuckets)
	userCount := len(l.userBuckets)
	l.mu.Unlock()

	return map[string]interface{}{
		"active_conn_limiters": connCount,
		"active_user_limiters": userCount,
		"total_rejected":       l.rejected.Load(),
		"messages_per_sec":     l.rate,
		"burst":                l.burst,
	}
}

func (l *Limiter) Stop() {
	close(l.stopCh)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for id, b := range l.connBuckets {
				if now.Sub(b.lastTime) > 5*time.Minute {
					delete(l.connBuckets, id)
				}
			}
			for id, b := range l.userBuckets {
				if now.Sub(b.lastTime) > 5*time.Minute {
					delete(l.userBuckets, id)
				}
			}
			l.mu.Unlock()
		}
	}
}
