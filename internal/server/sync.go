package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/eniz1806/SyncPad/internal/auditlog"
	"github.com/eniz1806/SyncPad/internal/notify"
	"github.com/eniz1806/SyncPad/internal/replication"
)

// maxPushBytes bounds an inbound sync push body.
const maxPushBytes = 64 << 20

// handleSyncPush accepts a signed full-state push from a peer site and
// merges it into the local replica.
func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}

	peerSite, err := replication.VerifyRequest(r, s.cfg.Sync.Secret, body)
	if err != nil {
		slog.Warn("sync push rejected", "remote", r.RemoteAddr, "error", err)
		s.auditEvent(auditlog.Entry{
			Event:    "sync_push_rejected",
			ClientIP: clientIP(r),
			Detail:   map[string]any{"reason": err.Error()},
		})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature verification failed"})
		return
	}

	var push replication.PushRequest
	if err := json.Unmarshal(body, &push); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode push: " + err.Error()})
		return
	}
	if push.DocumentID == "" || len(push.State) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "push needs document_id and state"})
		return
	}

	if err := replication.ApplyState(s.registry, s.store, push.DocumentID, push.State); err != nil {
		slog.Error("sync push apply failed",
			"document_id", push.DocumentID, "peer_site", peerSite, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	slog.Debug("sync push applied", "document_id", push.DocumentID, "peer_site", peerSite)
	if sess, ok := s.registry.Get(push.DocumentID); ok {
		s.search.Update(sess.DocumentView())
	} else {
		s.reindexStored(push.DocumentID)
	}
	s.auditEvent(auditlog.Entry{
		Event:      "sync_push_applied",
		DocumentID: push.DocumentID,
		ClientIP:   clientIP(r),
		Detail:     map[string]any{"peer_site": peerSite},
	})
	s.notifyDisp.Dispatch(notify.EventDocumentSynced, push.DocumentID, "",
		map[string]any{"peer_site": peerSite})

	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
