// Package api serves the admin REST API at /api/v1/: service stats,
// live session inspection, document access and operational status.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/eniz1806/SyncPad/internal/backup"
	"github.com/eniz1806/SyncPad/internal/config"
	"github.com/eniz1806/SyncPad/internal/metrics"
	"github.com/eniz1806/SyncPad/internal/ratelimit"
	"github.com/eniz1806/SyncPad/internal/replication"
	"github.com/eniz1806/SyncPad/internal/search"
	"github.com/eniz1806/SyncPad/internal/session"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

// Handler serves the admin REST API.
type Handler struct {
	registry  *session.Registry
	store     snapshot.Store
	collector *metrics.Collector
	cfg       *config.Config

	syncWorker  *replication.Worker
	limiter     *ratelimit.Limiter
	bandwidth   *ratelimit.BandwidthLimiter
	searchIndex *search.Index
	backupSched *backup.Scheduler
}

func NewHandler(registry *session.Registry, store snapshot.Store, collector *metrics.Collector, cfg *config.Config) *Handler {
	return &Handler{
		registry:  registry,
		store:     store,
		collector: collector,
		cfg:       cfg,
	}
}

// SetSyncWorker exposes site sync status through the API.
func (h *Handler) SetSyncWorker(w *replication.Worker) {
	h.syncWorker = w
}

// SetRateLimiter exposes rate limiter status through the API.
func (h *Handler) SetRateLimiter(l *ratelimit.Limiter) {
	h.limiter = l
}

// SetBandwidthLimiter throttles bulk state downloads.
func (h *Handler) SetBandwidthLimiter(bl *ratelimit.BandwidthLimiter) {
	h.bandwidth = bl
}

// SetSearchIndex exposes full-text search through the API.
func (h *Handler) SetSearchIndex(idx *search.Index) {
	h.searchIndex = idx
}

// SetBackupScheduler exposes backup status and triggering through the
// API.
func (h *Handler) SetBackupScheduler(b *backup.Scheduler) {
	h.backupSched = b
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	path = strings.TrimSuffix(path, "/")

	switch {
	case path == "/stats" && r.Method == http.MethodGet:
		h.handleStats(w, r)

	case path == "/sessions" && r.Method == http.MethodGet:
		h.handleListSessions(w, r)

	case path == "/sync/status" && r.Method == http.MethodGet:
		h.handleSyncStatus(w, r)

	case path == "/ratelimit" && r.Method == http.MethodGet:
		h.handleRateLimit(w, r)

	case path == "/search" && r.Method == http.MethodGet:
		h.handleSearch(w, r)

	case path == "/backup/status" && r.Method == http.MethodGet:
		h.handleBackupStatus(w, r)

	case path == "/backup/run" && r.Method == http.MethodPost:
		h.handleBackupRun(w, r)

	case strings.HasPrefix(path, "/documents/"):
		rest := strings.TrimPrefix(path, "/documents/")
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		if id == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		if len(parts) == 1 {
			// /documents/{id}
			if r.Method == http.MethodGet {
				h.handleGetDocument(w, r, id)
			} else {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}
			return
		}
		// /documents/{id}/snapshot, /documents/{id}/state or
		// /documents/{id}/diff
		switch parts[1] {
		case "snapshot":
			if r.Method == http.MethodPost {
				h.handleSnapshotDocument(w, r, id)
			} else {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}
		case "state":
			if r.Method == http.MethodGet {
				h.handleDocumentState(w, r, id)
			} else {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}
		case "diff":
			if r.Method == http.MethodGet {
				h.handleDocumentDiff(w, r, id)
			} else {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}
		default:
			writeError(w, http.StatusNotFound, "not found")
		}

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// authorize enforces the static admin token when one is configured. An
// empty token leaves the API open for deployments that bind it to a
// private interface.
func (h *Handler) authorize(r *http.Request) bool {
	token := h.cfg.Server.AdminToken
	if token == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	want := "Bearer " + token
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
