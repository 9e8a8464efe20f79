package api

import (
	"net/http"
	"time"
)

type syncPeerResponse struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	LastSync    string `json:"lastSync,omitempty"`
	TotalSynced int64  `json:"totalSynced"`
	TotalFailed int64  `json:"totalFailed"`
	LastError   string `json:"lastError,omitempty"`
}

type syncStatusResponse struct {
	Enabled    bool               `json:"enabled"`
	SiteID     string             `json:"siteId,omitempty"`
	QueueDepth int                `json:"queueDepth"`
	Peers      []syncPeerResponse `json:"peers"`
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	if h.syncWorker == nil {
		writeJSON(w, http.StatusOK, syncStatusResponse{Enabled: false, Peers: []syncPeerResponse{}})
		return
	}

	statuses := h.syncWorker.Statuses()
	peers := make([]syncPeerResponse, 0, len(statuses))
	for _, s := range statuses {
		lastSync := ""
		if s.LastSyncTime > 0 {
			lastSync = time.Unix(s.LastSyncTime, 0).UTC().Format(time.RFC3339)
		}
		peers = append(peers, syncPeerResponse{
			Name:        s.Peer,
			URL:         s.URL,
			LastSync:    lastSync,
			TotalSynced: s.TotalSynced,
			TotalFailed: s.TotalFailed,
			LastError:   s.LastError,
		})
	}

	writeJSON(w, http.StatusOK, syncStatusResponse{
		Enabled:    true,
		SiteID:     h.cfg.Sync.SiteID,
		QueueDepth: h.syncWorker.QueueDepth(),
		Peers:      peers,
	})
}
