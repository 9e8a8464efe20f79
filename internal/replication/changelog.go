package replication

import (
	"sort"
	"sync"
)

// Event is a pending state push of one document to one peer site.
type Event struct {
	ID         uint64 `json:"id"`
	DocumentID string `json:"document_id"`
	Peer       string `json:"peer"`
	RetryCount int    `json:"retry_count"`
	NextRetry  int64  `json:"next_retry"`
}

// ChangeLog tracks which documents have local changes that still need to
// be pushed to which peers. Pushes carry the whole converged document
// state, so one pending event per (document, peer) pair is enough: a
// push queued before an edit still delivers the edit.
type ChangeLog struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[string]Event
}

func NewChangeLog() *ChangeLog {
	return &ChangeLog{
		pending: make(map[string]Event),
	}
}

func pairKey(documentID, peer string) string {
	return documentID + "\x00" + peer
}

// Mark queues a push of the document to every named peer. Pairs that
// already have a pending push are left untouched.
func (cl *ChangeLog) Mark(documentID string, peers []string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for _, peer := range peers {
		key := pairKey(documentID, peer)
		if _, ok := cl.pending[key]; ok {
			continue
		}
		cl.nextID++
		cl.pending[key] = Event{
			ID:         cl.nextID,
			DocumentID: documentID,
			Peer:       peer,
		}
	}
}

// Dequeue removes and returns up to limit events whose retry time has
// passed at now (unix seconds), oldest first.
func (cl *ChangeLog) Dequeue(limit int, now int64) []Event {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	ready := make([]Event, 0, len(cl.pending))
	for _, e := range cl.pending {
		if e.NextRetry <= now {
			ready = append(ready, e)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].ID < ready[j].ID
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	for _, e := range ready {
		delete(cl.pending, pairKey(e.DocumentID, e.Peer))
	}
	return ready
}

// Requeue puts a failed push back unless a fresh event for the same pair
// arrived while this one was in flight. The fresh event supersedes the
// failed one because it will carry a newer state.
func (cl *ChangeLog) Requeue(e Event) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	key := pairKey(e.DocumentID, e.Peer)
	if _, ok := cl.pending[key]; ok {
		return
	}
	cl.pending[key] = e
}

// Depth reports how many pushes are pending across all pairs.
func (cl *ChangeLog) Depth() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.pending)
}
