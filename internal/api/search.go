package api

import (
	"net/http"
	"strconv"
	"strings"
)

type searchHit struct {
	DocumentID   string `json:"documentId"`
	Title        string `json:"title"`
	TextLength   int    `json:"textLength"`
	LastModified string `json:"lastModified,omitempty"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Count   int         `json:"count"`
	Results []searchHit `json:"results"`
}

// handleSearch queries the full-text index. Terms are matched as
// substrings, all of them must hit; a title: prefix restricts a term to
// document titles.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if h.searchIndex == nil {
		writeError(w, http.StatusServiceUnavailable, "search is disabled")
		return
	}
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	hits := h.searchIndex.Search(query, limit)
	results := make([]searchHit, 0, len(hits))
	for _, hit := range hits {
		results = append(results, searchHit{
			DocumentID:   hit.DocumentID,
			Title:        hit.Title,
			TextLength:   hit.TextLength,
			LastModified: hit.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Count:   len(results),
		Results: results,
	})
}
