package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/eniz1806/SyncPad/internal/session"
)

// Scheduler flushes live sessions to the store on an interval, so a
// crash loses at most one interval of edits. A session it has already
// persisted is skipped until its revision advances.
type Scheduler struct {
	registry *session.Registry
	store    Store
	interval time.Duration
	saved    map[string]uint64
}

func NewScheduler(registry *session.Registry, store Store, intervalSecs int) *Scheduler {
	return &Scheduler{
		registry: registry,
		store:    store,
		interval: time.Duration(intervalSecs) * time.Second,
		saved:    make(map[string]uint64),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush so a clean shutdown loses nothing.
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *Scheduler) flush() {
	var saved int
	live := make(map[string]bool)
	for _, sess := range s.registry.List() {
		id := sess.DocumentID()
		live[id] = true

		// Revision is read before the state so the recorded value never
		// outruns what was written. An edit landing in between costs one
		// redundant save on the next pass.
		rev := sess.Revision()
		if prev, ok := s.saved[id]; ok && prev == rev {
			continue
		}
		state, err := sess.DocumentState()
		if err != nil {
			slog.Error("snapshot error serializing document",
				"document_id", id, "error", err)
			continue
		}
		if err := s.store.Save(id, state); err != nil {
			slog.Error("snapshot error saving document",
				"document_id", id, "error", err)
			continue
		}
		s.saved[id] = rev
		saved++
	}
	// Sessions that were reaped restart their revisions from zero, so a
	// stale entry would mask the first save of a reopened document.
	for id := range s.saved {
		if !live[id] {
			delete(s.saved, id)
		}
	}
	if saved > 0 {
		slog.Debug("snapshot flushed documents", "count", saved)
	}
}
