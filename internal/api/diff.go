package api

import (
	"errors"
	"net/http"

	"github.com/eniz1806/SyncPad/internal/diff"
	"github.com/eniz1806/SyncPad/internal/document"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

type diffLine struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Num  int    `json:"num,omitempty"`
}

type diffResponse struct {
	DocumentID   string               `json:"documentId"`
	Changed      bool                 `json:"changed"`
	LengthStored int                  `json:"lengthStored"`
	LengthLive   int                  `json:"lengthLive"`
	Lines        []diffLine           `json:"lines"`
	Metadata     map[string][2]string `json:"metadata,omitempty"`
}

// handleDocumentDiff compares a live session against its stored
// snapshot, showing what would be lost if the process died now. A
// document that was never snapshotted diffs against an empty baseline.
func (h *Handler) handleDocumentDiff(w http.ResponseWriter, _ *http.Request, id string) {
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
	live, err := document.FromState(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stored := document.New(id, "")
	if h.store != nil {
		storedState, err := h.store.Load(id)
		switch {
		case err == nil:
			stored, err = document.FromState(storedState)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "stored document unreadable: "+err.Error())
				return
			}
		case !errors.Is(err, snapshot.ErrNotFound):
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	result, err := diff.Documents(stored, live)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := diffResponse{
		DocumentID:   result.DocumentID,
		Changed:      result.Changed,
		LengthStored: result.LengthA,
		LengthLive:   result.LengthB,
		Lines:        make([]diffLine, 0, len(result.Lines)),
		Metadata:     result.MetaDiff,
	}
	for _, line := range result.Lines {
		resp.Lines = append(resp.Lines, diffLine{Type: line.Type, Text: line.Text, Num: line.Num})
	}
	writeJSON(w, http.StatusOK, resp)
}
