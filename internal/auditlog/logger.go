package auditlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Entry is one audited collaboration event, written as a JSON line.
type Entry struct {
	Time       time.Time      `json:"time"`
	Event      string         `json:"event"`
	DocumentID string         `json:"document_id"`
	UserID     string         `json:"user_id,omitempty"`
	ClientIP   string         `json:"client_ip,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

type Logger struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Logger{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (l *Logger) Log(entry Entry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enc.Encode(entry)
}

func (l *Logger) Close() error {
	return l.file.Close()
}
