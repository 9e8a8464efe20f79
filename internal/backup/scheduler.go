// Package backup exports the snapshot store to timestamped directories
// on a daily schedule, so a corrupted store or a bad deploy can be
// recovered from plain files on disk.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eniz1806/SyncPad/internal/config"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

// maxRecords caps the in-memory run history.
const maxRecords = 50

// Record describes one backup run.
type Record struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"` // running, completed, failed
	Documents int       `json:"documents"`
	Bytes     int64     `json:"bytes"`
	Dir       string    `json:"dir"`
	Error     string    `json:"error,omitempty"`
}

// Scheduler copies every stored document into a new backup set once a
// day, then prunes sets beyond the retention count.
type Scheduler struct {
	store       snapshot.Store
	cfg         config.BackupConfig
	lastRunHour int
	running     atomic.Bool

	mu      sync.Mutex
	records []Record
}

func NewScheduler(store snapshot.Store, cfg config.BackupConfig) *Scheduler {
	return &Scheduler{
		store:       store,
		cfg:         cfg,
		lastRunHour: -1,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.shouldRun() {
				s.runBackup()
			}
		}
	}
}

// shouldRun checks if the backup should run based on cron schedule.
// Simplified cron: only supports "M H * * *" format.
func (s *Scheduler) shouldRun() bool {
	if s.running.Load() {
		return false
	}

	now := time.Now()
	parts := strings.Fields(s.cfg.ScheduleCron)
	if len(parts) < 2 {
		return false
	}

	minute, _ := strconv.Atoi(parts[0])
	hour, _ := strconv.Atoi(parts[1])

	if now.Hour() == hour && now.Minute() == minute && s.lastRunHour != now.Hour() {
		s.lastRunHour = now.Hour()
		return true
	}
	return false
}

func (s *Scheduler) runBackup() {
	s.running.Store(true)
	defer s.running.Store(false)

	record := Record{
		ID:        fmt.Sprintf("backup-%d", time.Now().UnixNano()),
		StartTime: time.Now(),
		Status:    "running",
		Dir:       filepath.Join(s.cfg.Dir, time.Now().Format("20060102-150405")),
	}
	s.putRecord(record)

	err := s.export(record.Dir, &record)
	record.EndTime = time.Now()
	if err != nil {
		record.Status = "failed"
		record.Error = err.Error()
		slog.Error("backup failed", "dir", record.Dir, "error", err)
	} else {
		record.Status = "completed"
		slog.Info("backup completed",
			"dir", record.Dir, "documents", record.Documents, "bytes", record.Bytes)
		if err := s.prune(); err != nil {
			slog.Warn("backup prune failed", "error", err)
		}
	}
	s.putRecord(record)
}

func (s *Scheduler) export(dir string, record *Record) error {
	target, err := NewLocalTarget(dir)
	if err != nil {
		return err
	}
	defer target.Close()
	return s.exportTo(target, record)
}

func (s *Scheduler) exportTo(target Target, record *Record) error {
	records, err := s.store.List()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for _, rec := range records {
		state, err := s.store.Load(rec.DocumentID)
		if err != nil {
			slog.Warn("backup skipping unreadable snapshot",
				"document_id", rec.DocumentID, "error", err)
			continue
		}
		if err := target.Write(rec.DocumentID, state); err != nil {
			return fmt.Errorf("write %s: %w", rec.DocumentID, err)
		}
		record.Documents++
		record.Bytes += int64(len(state))
	}
	return nil
}

// prune removes backup sets beyond the retention count. Set directories
// sort lexically because they are named by timestamp, so the oldest
// come first.
func (s *Scheduler) prune() error {
	if s.cfg.Keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return err
	}
	var sets []string
	for _, e := range entries {
		if e.IsDir() {
			sets = append(sets, e.Name())
		}
	}
	if len(sets) <= s.cfg.Keep {
		return nil
	}
	sort.Strings(sets)
	for _, name := range sets[:len(sets)-s.cfg.Keep] {
		if err := os.RemoveAll(filepath.Join(s.cfg.Dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) putRecord(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = record
			return
		}
	}
	s.records = append(s.records, record)
	if len(s.records) > maxRecords {
		s.records = s.records[len(s.records)-maxRecords:]
	}
}

// Trigger starts an immediate backup.
func (s *Scheduler) Trigger() string {
	if s.running.Load() {
		return "backup already running"
	}
	go s.runBackup()
	return "backup started"
}

// IsRunning reports whether a backup is in progress.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Records returns backup history, newest first.
func (s *Scheduler) Records(limit int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
