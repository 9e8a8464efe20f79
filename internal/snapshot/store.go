// Package snapshot persists document state between sessions. Snapshots
// carry the full replicated state, tombstones included, so a reloaded
// document can still merge cleanly with any peer.
package snapshot

import (
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned when no snapshot exists for a document.
	ErrNotFound = errors.New("snapshot not found")
	// ErrCorrupt is returned when a stored snapshot fails its checksum.
	ErrCorrupt = errors.New("snapshot corrupt")
)

// Record describes one stored snapshot.
type Record struct {
	DocumentID string    `json:"document_id"`
	SavedAt    time.Time `json:"saved_at"`
	Checksum   uint64    `json:"checksum"`
	Size       int       `json:"size"`
}

// Store is the snapshot persistence contract. BoltStore is the durable
// implementation; MemStore backs tests and persistence-disabled runs.
type Store interface {
	Save(documentID string, state []byte) error
	Load(documentID string) ([]byte, error)
	Delete(documentID string) error
	List() ([]Record, error)
	Close() error
}

// Scrub re-reads every stored snapshot, verifying checksums, and returns
// the ids of the ones that failed.
func Scrub(store Store) ([]string, error) {
	records, err := store.List()
	if err != nil {
		return nil, err
	}
	var bad []string
	for _, rec := range records {
		if _, err := store.Load(rec.DocumentID); err != nil {
			slog.Error("scrub found bad snapshot",
				"document_id", rec.DocumentID, "error", err)
			bad = append(bad, rec.DocumentID)
		}
	}
	return bad, nil
}
