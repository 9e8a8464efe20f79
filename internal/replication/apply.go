package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eniz1806/SyncPad/internal/document"
	"github.com/eniz1806/SyncPad/internal/session"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

// PushRequest is the body of a site-sync push.
type PushRequest struct {
	SiteID     string          `json:"site_id"`
	DocumentID string          `json:"document_id"`
	State      json.RawMessage `json:"state"`
}

// ApplyState merges a pushed document state into the local replica. A
// live session absorbs the state and broadcasts the refreshed document
// to its users; without one, the merge happens against the stored
// snapshot. Applying the same push twice is a no-op.
func ApplyState(registry *session.Registry, store snapshot.Store, documentID string, state []byte) error {
	remote, err := document.FromState(state)
	if err != nil {
		return fmt.Errorf("decode pushed state: %w", err)
	}
	if remote.ID() != documentID {
		return fmt.Errorf("pushed state is for document %q, not %q", remote.ID(), documentID)
	}

	if sess, ok := registry.Get(documentID); ok {
		return sess.MergeRemote(state)
	}

	if store == nil {
		slog.Warn("sync push for inactive document with persistence disabled, dropping", "document_id", documentID)
		return nil
	}

	stored, err := store.Load(documentID)
	if errors.Is(err, snapshot.ErrNotFound) {
		return store.Save(documentID, state)
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	local, err := document.FromState(stored)
	if err != nil {
		return fmt.Errorf("decode stored state: %w", err)
	}
	if err := local.Merge(remote); err != nil {
		return err
	}
	merged, err := local.MarshalState()
	if err != nil {
		return err
	}
	return store.Save(documentID, merged)
}
