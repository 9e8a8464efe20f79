package api

import (
	"net/http"
	"time"
)

type backupRun struct {
	ID        string `json:"id"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime,omitempty"`
	Status    string `json:"status"`
	Documents int    `json:"documents"`
	Bytes     int64  `json:"bytes"`
	Dir       string `json:"dir"`
	Error     string `json:"error,omitempty"`
}

type backupStatusResponse struct {
	Enabled bool        `json:"enabled"`
	Running bool        `json:"running"`
	Records []backupRun `json:"records"`
}

func (h *Handler) handleBackupStatus(w http.ResponseWriter, _ *http.Request) {
	resp := backupStatusResponse{Records: []backupRun{}}
	if h.backupSched == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Enabled = true
	resp.Running = h.backupSched.IsRunning()
	for _, rec := range h.backupSched.Records(20) {
		run := backupRun{
			ID:        rec.ID,
			StartTime: rec.StartTime.Format(time.RFC3339),
			Status:    rec.Status,
			Documents: rec.Documents,
			Bytes:     rec.Bytes,
			Dir:       rec.Dir,
			Error:     rec.Error,
		}
		if !rec.EndTime.IsZero() {
			run.EndTime = rec.EndTime.Format(time.RFC3339)
		}
		resp.Records = append(resp.Records, run)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBackupRun starts a backup outside the schedule. The run happens
// in the background; progress shows up under /backup/status.
func (h *Handler) handleBackupRun(w http.ResponseWriter, _ *http.Request) {
	if h.backupSched == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are disabled")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": h.backupSched.Trigger()})
}
