package api

import (
	"net/http"
	"runtime"
	"sort"
	"time"
)

type messageKindStat struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

type statsResponse struct {
	ActiveSessions    int               `json:"activeSessions"`
	ActiveUsers       int               `json:"activeUsers"`
	ActiveConnections int64             `json:"activeConnections"`
	StoredDocuments   int               `json:"storedDocuments"`
	TotalMessages     int64             `json:"totalMessages"`
	TotalErrors       int64             `json:"totalErrors"`
	TotalRequests     int64             `json:"totalRequests"`
	MessagesByKind    []messageKindStat `json:"messagesByKind"`
	UptimeSeconds     float64           `json:"uptimeSeconds"`
	Goroutines        int               `json:"goroutines"`
	MemoryMB          float64           `json:"memoryMB"`
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	sessions := h.registry.List()
	var users int
	for _, s := range sessions {
		users += s.UserCount()
	}

	stored := 0
	if h.store != nil {
		records, err := h.store.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list stored documents")
			return
		}
		stored = len(records)
	}

	byKind := h.collector.MessagesByKind()
	kindStats := make([]messageKindStat, 0, len(byKind))
	for kind, count := range byKind {
		kindStats = append(kindStats, messageKindStat{Kind: kind, Count: count})
	}
	sort.Slice(kindStats, func(i, j int) bool { return kindStats[i].Kind < kindStats[j].Kind })

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, statsResponse{
		ActiveSessions:    len(sessions),
		ActiveUsers:       users,
		ActiveConnections: h.collector.ActiveConnections(),
		StoredDocuments:   stored,
		TotalMessages:     h.collector.TotalMessages(),
		TotalErrors:       h.collector.TotalErrors(),
		TotalRequests:     h.collector.TotalRequests(),
		MessagesByKind:    kindStats,
		UptimeSeconds:     time.Since(h.collector.StartTime()).Seconds(),
		Goroutines:        runtime.NumGoroutine(),
		MemoryMB:          float64(mem.Alloc) / 1024 / 1024,
	})
}
