package ratelimit

import (
	"io"
	"sync"
	"time"
)

// BandwidthLimiter throttles read/write throughput per client so bulk
// document dumps cannot starve live editing traffic.
type BandwidthLimiter struct {
	mu                 sync.Mutex
	clients            map[string]*bwBucket
	defaultBytesPerSec int64
}

type bwBucket struct {
	bytesPerSec int64
	tokens      float64
	lastTime    time.Time
}

// NewBandwidthLimiter creates a bandwidth limiter with a default
// bytes/sec limit per client.
func NewBandwidthLimiter(defaultBytesPerSec int64) *BandwidthLimiter {
	return &BandwidthLimiter{
		clients:            make(map[string]*bwBucket),
		defaultBytesPerSec: defaultBytesPerSec,
	}
}

// SetClientLimit sets a per-client bandwidth limit in bytes/sec. 0 means use default.
func (bl *BandwidthLimiter) SetClientLimit(client string, bytesPerSec int64) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bytesPerSec <= 0 {
		delete(bl.clients, client)
		return
	}
	bl.clients[client] = &bwBucket{
		bytesPerSec: bytesPerSec,
		tokens:      float64(bytesPerSec),
		lastTime:    time.Now(),
	}
}

func (bl *BandwidthLimiter) getBucket(client string) *bwBucket {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	b, ok := bl.clients[client]
	if !ok {
		b = &bwBucket{
			bytesPerSec: bl.defaultBytesPerSec,
			tokens:      float64(bl.defaultBytesPerSec),
			lastTime:    time.Now(),
		}
		bl.clients[client] = b
	}
	return b
}

// ThrottledReader wraps an io.Reader with bandwidth throttling.
func (bl *BandwidthLimiter) ThrottledReader(client string, r io.Reader) io.Reader {
	if bl.defaultBytesPerSec <= 0 {
		return r
	}
	return &throttledReader{
		reader: r,
		bw:     bl,
		client: client,
	}
}

// ThrottledWriter wraps an io.Writer with bandwidth throttling.
func (bl *BandwidthLimiter) ThrottledWriter(client string, w io.Writer) io.Writer {
	if bl.defaultBytesPerSec <= 0 {
		return w
	}
	return &throttledWriter{
		writer: w,
		bw:     bl,
		client: client,
	}
}

func (bl *BandwidthLimiter) waitForTokens(client string, n int) {
	b := bl.getBucket(client)
	for {
		bl.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(b.lastTime).Seconds()
		b.tokens += elapsed * float64(b.bytesPerSec)
		if b.tokens > float64(b.bytesPerSec) {
			b.tokens = float64(b.bytesPerSec)
		}
		b.lastTime = now

		if b.tokens >= float64(n) {
			b.tokens -= float64(n)
			bl.mu.Unlock()
			return
		}
		bl.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
}

type throttledReader struct {
	reader io.Reader
	bw     *BandwidthLimiter
	client string
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	n, err := tr.reader.Read(p)
	if n > 0 {
		tr.bw.waitForTokens(tr.client, n)
	}
	return n, err
}

type throttledWriter struct {
	writer io.Writer
	bw     *BandwidthLimiter
	client string
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	tw.bw.waitForTokens(tw.client, len(p))
	return tw.writer.Write(p)
}
