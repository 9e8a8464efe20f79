package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/eniz1806/SyncPad/internal/session"
)

// Saver persists a document's replicated state before its session is
// torn down. The snapshot store implements it.
type Saver interface {
	Save(documentID string, state []byte) error
}

// Worker periodically sweeps the session registry, closing sessions
// nobody uses anymore and flushing their final document state.
type Worker struct {
	registry *session.Registry
	saver    Saver
	interval time.Duration
	maxIdle  time.Duration
	onClose  func(documentID string)
}

func NewWorker(registry *session.Registry, saver Saver, intervalSecs, maxIdleSecs int) *Worker {
	return &Worker{
		registry: registry,
		saver:    saver,
		interval: time.Duration(intervalSecs) * time.Second,
		maxIdle:  time.Duration(maxIdleSecs) * time.Second,
	}
}

// SetCloseHook registers a callback invoked after a session has been
// reaped and its final state flushed.
func (w *Worker) SetCloseHook(fn func(documentID string)) {
	w.onClose = fn
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Worker) sweep() {
	now := time.Now().UTC()
	var reaped int

	for _, s := range w.registry.List() {
		if !w.shouldReap(s, now) {
			continue
		}
		// Re-check under the registry lock so a join that just revived
		// the session wins over the sweep.
		removed := w.registry.RemoveIf(s.DocumentID(), func(cur *session.Session) bool {
			return cur == s && w.shouldReap(cur, time.Now().UTC())
		})
		if !removed {
			continue
		}

		// Out of the registry now, so no new joins can land here. Close
		// the stragglers first so the saved state is final.
		s.CloseAll()
		if w.saver != nil {
			state, err := s.DocumentState()
			if err != nil {
				slog.Error("reaper error serializing document",
					"document_id", s.DocumentID(), "error", err)
			} else if err := w.saver.Save(s.DocumentID(), state); err != nil {
				slog.Error("reaper error saving document",
					"document_id", s.DocumentID(), "error", err)
			}
		}
		if w.onClose != nil {
			w.onClose(s.DocumentID())
		}
		reaped++
	}

	if reaped > 0 {
		slog.Info("reaper closed stale sessions", "count", reaped)
	}
}

// shouldReap reports whether the session has no users left or has been
// idle past the threshold. A zero threshold disables idle reaping.
func (w *Worker) shouldReap(s *session.Session, now time.Time) bool {
	if s.IsEmpty() {
		return true
	}
	return w.maxIdle > 0 && now.Sub(s.LastActivity()) > w.maxIdle
}
