package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eniz1806/SyncPad/internal/config"
	"github.com/eniz1806/SyncPad/internal/session"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

// errNoState marks a document that exists in the change log but has
// neither a live session nor a stored snapshot to push from.
var errNoState = errors.New("no local state for document")

// Worker pushes converged document state to peer sites in the
// background. Each pending (document, peer) pair becomes one HTTP push;
// failures are retried with backoff until maxRetries, then dropped.
type Worker struct {
	registry   *session.Registry
	store      snapshot.Store
	log        *ChangeLog
	peers      map[string]config.SyncPeer
	siteID     string
	secret     string
	interval   time.Duration
	maxRetries int
	batchSize  int
	client     *http.Client

	mu       sync.Mutex
	statuses map[string]*PeerStatus
}

// PeerStatus is a point-in-time view of sync progress toward one peer.
type PeerStatus struct {
	Peer         string `json:"peer"`
	URL          string `json:"url"`
	LastSyncTime int64  `json:"last_sync_time"`
	LastError    string `json:"last_error,omitempty"`
	TotalSynced  int64  `json:"total_synced"`
	TotalFailed  int64  `json:"total_failed"`
}

func NewWorker(registry *session.Registry, store snapshot.Store, log *ChangeLog, cfg config.SyncConfig) *Worker {
	peers := make(map[string]config.SyncPeer)
	statuses := make(map[string]*PeerStatus)
	for _, p := range cfg.Peers {
		peers[p.Name] = p
		statuses[p.Name] = &PeerStatus{Peer: p.Name, URL: p.URL}
	}
	interval := time.Duration(cfg.ScanIntervalSecs) * time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return &Worker{
		registry:   registry,
		store:      store,
		log:        log,
		peers:      peers,
		siteID:     cfg.SiteID,
		secret:     cfg.Secret,
		interval:   interval,
		maxRetries: cfg.MaxRetries,
		batchSize:  cfg.BatchSize,
		client:     &http.Client{Timeout: 60 * time.Second},
		statuses:   statuses,
	}
}

// Run processes the push queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.processQueue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processQueue(ctx)
		}
	}
}

func (w *Worker) processQueue(ctx context.Context) {
	events := w.log.Dequeue(w.batchSize, time.Now().Unix())
	for _, event := range events {
		if ctx.Err() != nil {
			w.log.Requeue(event)
			return
		}

		peer, ok := w.peers[event.Peer]
		if !ok {
			slog.Warn("sync dropping event for unknown peer", "peer", event.Peer, "document_id", event.DocumentID)
			continue
		}

		if err := w.push(ctx, peer, event.DocumentID); err != nil {
			slog.Error("sync push failed", "peer", peer.Name, "document_id", event.DocumentID, "error", err)
			event.RetryCount++
			if event.RetryCount >= w.maxRetries {
				slog.Warn("sync giving up on push after max retries", "peer", peer.Name, "document_id", event.DocumentID, "retries", event.RetryCount)
				w.updateStatus(peer.Name, err)
				continue
			}
			event.NextRetry = time.Now().Add(backoffDelay(event.RetryCount)).Unix()
			w.log.Requeue(event)
			continue
		}
		w.updateStatus(peer.Name, nil)
	}
}

// push sends the document's full state to one peer. A document with no
// local state left to push is treated as done.
func (w *Worker) push(ctx context.Context, peer config.SyncPeer, documentID string) error {
	state, err := w.documentState(documentID)
	if errors.Is(err, errNoState) {
		slog.Debug("sync document gone locally, skipping", "document_id", documentID)
		return nil
	}
	if err != nil {
		return err
	}

	body, err := json.Marshal(PushRequest{
		SiteID:     w.siteID,
		DocumentID: documentID,
		State:      state,
	})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	url := strings.TrimRight(peer.URL, "/") + "/internal/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	SignRequest(req, w.siteID, w.secret, body)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned %d", resp.StatusCode)
	}
	return nil
}

// documentState reads the freshest local state: the live session when
// one exists, otherwise the stored snapshot.
func (w *Worker) documentState(documentID string) (json.RawMessage, error) {
	if sess, ok := w.registry.Get(documentID); ok {
		return sess.DocumentState()
	}
	if w.store != nil {
		state, err := w.store.Load(documentID)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, snapshot.ErrNotFound) {
			return nil, err
		}
	}
	return nil, errNoState
}

func (w *Worker) updateStatus(peerName string, pushErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	status, ok := w.statuses[peerName]
	if !ok {
		return
	}
	if pushErr != nil {
		status.TotalFailed++
		status.LastError = pushErr.Error()
		return
	}
	status.TotalSynced++
	status.LastSyncTime = time.Now().Unix()
	status.LastError = ""
}

// QueueDepth returns the number of pushes waiting in the change log.
func (w *Worker) QueueDepth() int {
	return w.log.Depth()
}

// Statuses reports sync progress for every configured peer.
func (w *Worker) Statuses() []PeerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]PeerStatus, 0, len(w.statuses))
	for _, s := range w.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Peer < out[j].Peer
	})
	return out
}

// backoffDelay returns the wait before the next retry attempt.
func backoffDelay(retryCount int) time.Duration {
	delays := []time.Duration{
		5 * time.Second,
		15 * time.Second,
		45 * time.Second,
		135 * time.Second,
		405 * time.Second,
	}
	if retryCount <= 0 {
		return delays[0]
	}
	if retryCount > len(delays) {
		return 10 * time.Minute
	}
	return delays[retryCount-1]
}
