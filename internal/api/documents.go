package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/eniz1806/SyncPad/internal/document"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

type documentResponse struct {
	DocumentID  string         `json:"documentId"`
	Title       string         `json:"title"`
	Text        string         `json:"text"`
	TextLength  int            `json:"textLength"`
	Live        bool           `json:"live"`
	Metadata    map[string]any `json:"metadata"`
	Annotations map[string]any `json:"annotations"`
	ActionItems map[string]any `json:"actionItems"`
	Presence    map[string]any `json:"presence,omitempty"`
}

// handleGetDocument renders a document, preferring the live session over
// the stored snapshot.
func (h *Handler) handleGetDocument(w http.ResponseWriter, _ *http.Request, id string) {
	if sess, ok := h.registry.Get(id); ok {
		writeDocumentView(w, sess.DocumentView(), true)
		return
	}

	if h.store == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	state, err := h.store.Load(id)
	if errors.Is(err, snapshot.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc, err := document.FromState(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored document unreadable: "+err.Error())
		return
	}
	writeDocumentView(w, doc.View(), false)
}

func writeDocumentView(w http.ResponseWriter, view document.View, live bool) {
	title, _ := view.Metadata["title"].(string)
	resp := documentResponse{
		DocumentID:  view.DocumentID,
		Title:       title,
		Text:        view.Text,
		TextLength:  len(view.Text),
		Live:        live,
		Metadata:    view.Metadata,
		Annotations: view.Annotations,
		ActionItems: view.ActionItems,
	}
	if live {
		resp.Presence = view.Presence
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSnapshotDocument forces an immediate save of a live session.
func (h *Handler) handleSnapshotDocument(w http.ResponseWriter, _ *http.Request, id string) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	sess, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no live session for document")
		return
	}
	state, err := sess.DocumentState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.store.Save(id, state); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// handleDocumentState dumps the full replicated state of a document,
// bandwidth-throttled per client when a limit is configured. The result
// feeds backup tooling and seeds fresh sites.
func (h *Handler) handleDocumentState(w http.ResponseWriter, r *http.Request, id string) {
	var state []byte
	if sess, ok := h.registry.Get(id); ok {
		var err error
		state, err = sess.DocumentState()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else if h.store != nil {
		var err error
		state, err = h.store.Load(id)
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	var out io.Writer = w
	if h.bandwidth != nil {
		out = h.bandwidth.ThrottledWriter(clientKey(r), out)
	}
	out.Write(state)
}
