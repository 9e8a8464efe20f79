// Package document holds the collaborative aggregate: one replicated
// sequence for the text plus replicated maps for metadata, annotations,
// action items and presence. A document merges child-wise, so the
// aggregate inherits the convergence guarantees of its parts.
package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eniz1806/SyncPad/internal/crdt"
)

// Metadata keys every document carries.
const (
	MetaTitle        = "title"
	MetaCreatedAt    = "created_at"
	MetaLastModified = "last_modified"
)

// DefaultTitle is assigned to documents created without one.
const DefaultTitle = "Untitled Document"

// Document is one collaboratively edited document as seen by a single
// replica. Not safe for concurrent use; the owning session serializes
// access.
type Document struct {
	id        string
	replicaID string

	content     *crdt.RGA
	metadata    *crdt.ORMap
	annotations *crdt.ORMap
	actionItems *crdt.ORMap
	presence    *crdt.ORMap
}

// New creates an empty document owned by replicaID, stamped with creation
// metadata.
func New(id, replicaID string) *Document {
	d := newBare(id, replicaID)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	d.setRegister(d.metadata, MetaTitle, DefaultTitle)
	d.setRegister(d.metadata, MetaCreatedAt, now)
	d.setRegister(d.metadata, MetaLastModified, now)
	return d
}

// newBare creates a document without seeded metadata, for the load path:
// merging stored state into a seeded document would let the fresh
// creation stamps outrank the stored ones.
func newBare(id, replicaID string) *Document {
	return &Document{
		id:          id,
		replicaID:   replicaID,
		content:     crdt.NewRGA(replicaID),
		metadata:    crdt.NewORMap(replicaID),
		annotations: crdt.NewORMap(replicaID),
		actionItems: crdt.NewORMap(replicaID),
		presence:    crdt.NewORMap(replicaID),
	}
}

// Load rebuilds a document from serialized state, re-homed onto the given
// replica: the stored state is merged into an empty local copy, so new
// local edits mint ids under replicaID while all stored history is kept.
func Load(data []byte, replicaID string) (*Document, error) {
	restored, err := FromState(data)
	if err != nil {
		return nil, err
	}
	d := newBare(restored.id, replicaID)
	if err := d.Merge(restored); err != nil {
		return nil, fmt.Errorf("adopt stored state: %w", err)
	}
	return d, nil
}

// ID returns the document id.
func (d *Document) ID() string { return d.id }

// ReplicaID returns the replica that owns this copy.
func (d *Document) ReplicaID() string { return d.replicaID }

// InsertText inserts text at a visible position in the content and
// returns the new node's id, the stable reference for a later delete.
func (d *Document) InsertText(position int, text string) (string, error) {
	nodeID, err := d.content.Insert(position, text)
	if err != nil {
		return "", err
	}
	d.touch()
	return nodeID, nil
}

// DeleteText tombstones the content node with the given id.
func (d *Document) DeleteText(nodeID string) bool {
	if !d.content.Delete(nodeID) {
		return false
	}
	d.touch()
	return true
}

// TextContent returns the visible text.
func (d *Document) TextContent() string {
	return d.content.Text()
}

// ContentLength returns the number of visible content nodes.
func (d *Document) ContentLength() int {
	return d.content.VisibleLength()
}

// SetTitle updates the document title.
func (d *Document) SetTitle(title string) {
	d.setRegister(d.metadata, MetaTitle, title)
	d.touch()
}

// Title returns the current title.
func (d *Document) Title() string {
	if v, ok := d.registerValue(d.metadata, MetaTitle); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return DefaultTitle
}

// LastModified returns the last-modified stamp, zero if unparseable.
func (d *Document) LastModified() time.Time {
	v, ok := d.registerValue(d.metadata, MetaLastModified)
	if !ok {
		return time.Time{}
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// PutAnnotation stores annotation fields under the given id.
func (d *Document) PutAnnotation(id string, fields map[string]any) {
	d.setRegister(d.annotations, id, fields)
	d.touch()
}

// RemoveAnnotation tombstones the annotation.
func (d *Document) RemoveAnnotation(id string) {
	d.annotations.Remove(id)
	d.touch()
}

// Annotations returns all visible annotations keyed by id.
func (d *Document) Annotations() map[string]any {
	return d.mapValues(d.annotations)
}

// PutActionItem stores action-item fields under the given id.
func (d *Document) PutActionItem(id string, fields map[string]any) {
	d.setRegister(d.actionItems, id, fields)
	d.touch()
}

// RemoveActionItem tombstones the action item.
func (d *Document) RemoveActionItem(id string) {
	d.actionItems.Remove(id)
	d.touch()
}

// ActionItems returns all visible action items keyed by id.
func (d *Document) ActionItems() map[string]any {
	return d.mapValues(d.actionItems)
}

// UpdatePresence stores a user's presence fields (cursor, selection,
// color). Presence does not touch last_modified: it is ephemeral state,
// not content.
func (d *Document) UpdatePresence(userID string, fields map[string]any) {
	d.setRegister(d.presence, userID, fields)
}

// RemovePresence drops a user's presence entry.
func (d *Document) RemovePresence(userID string) {
	d.presence.Remove(userID)
}

// Presence returns all visible presence entries keyed by user id.
func (d *Document) Presence() map[string]any {
	return d.mapValues(d.presence)
}

// Merge folds another replica's document in child by child. Both copies
// must describe the same document id.
func (d *Document) Merge(other *Document) error {
	if other.id != d.id {
		return fmt.Errorf("cannot merge document %q into %q", other.id, d.id)
	}
	if err := d.content.Merge(other.content); err != nil {
		return fmt.Errorf("merge content: %w", err)
	}
	if err := d.metadata.Merge(other.metadata); err != nil {
		return fmt.Errorf("merge metadata: %w", err)
	}
	if err := d.annotations.Merge(other.annotations); err != nil {
		return fmt.Errorf("merge annotations: %w", err)
	}
	if err := d.actionItems.Merge(other.actionItems); err != nil {
		return fmt.Errorf("merge action items: %w", err)
	}
	if err := d.presence.Merge(other.presence); err != nil {
		return fmt.Errorf("merge presence: %w", err)
	}
	return nil
}

// View is the client-facing snapshot carried by DOCUMENT_STATE messages.
type View struct {
	DocumentID  string         `json:"document_id"`
	Text        string         `json:"text"`
	Metadata    map[string]any `json:"metadata"`
	Annotations map[string]any `json:"annotations"`
	ActionItems map[string]any `json:"action_items"`
	Presence    map[string]any `json:"presence"`
}

// View renders the document for clients: visible text plus the plain
// values of every map.
func (d *Document) View() View {
	return View{
		DocumentID:  d.id,
		Text:        d.TextContent(),
		Metadata:    d.mapValues(d.metadata),
		Annotations: d.Annotations(),
		ActionItems: d.ActionItems(),
		Presence:    d.Presence(),
	}
}

type state struct {
	DocumentID  string          `json:"document_id"`
	ReplicaID   string          `json:"replica_id"`
	Content     json.RawMessage `json:"content"`
	Metadata    json.RawMessage `json:"metadata"`
	Annotations json.RawMessage `json:"annotations"`
	ActionItems json.RawMessage `json:"action_items"`
	Presence    json.RawMessage `json:"presence"`
}

// MarshalState serializes the full replicated state, tombstones included.
func (d *Document) MarshalState() ([]byte, error) {
	st := state{DocumentID: d.id, ReplicaID: d.replicaID}
	var err error
	if st.Content, err = d.content.MarshalState(); err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	if st.Metadata, err = d.metadata.MarshalState(); err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if st.Annotations, err = d.annotations.MarshalState(); err != nil {
		return nil, fmt.Errorf("marshal annotations: %w", err)
	}
	if st.ActionItems, err = d.actionItems.MarshalState(); err != nil {
		return nil, fmt.Errorf("marshal action items: %w", err)
	}
	if st.Presence, err = d.presence.MarshalState(); err != nil {
		return nil, fmt.Errorf("marshal presence: %w", err)
	}
	return json.Marshal(st)
}

// FromState reconstructs a document from serialized state, keeping the
// replica id recorded in the state. Use Load to re-home the state onto a
// different replica.
func FromState(data []byte) (*Document, error) {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode document state: %w", err)
	}
	if st.DocumentID == "" {
		return nil, fmt.Errorf("document state missing document_id")
	}

	d := &Document{id: st.DocumentID, replicaID: st.ReplicaID}
	var err error
	if d.content, err = rgaChild(st.Content, "content"); err != nil {
		return nil, err
	}
	if d.metadata, err = ormapChild(st.Metadata, "metadata"); err != nil {
		return nil, err
	}
	if d.annotations, err = ormapChild(st.Annotations, "annotations"); err != nil {
		return nil, err
	}
	if d.actionItems, err = ormapChild(st.ActionItems, "action_items"); err != nil {
		return nil, err
	}
	if d.presence, err = ormapChild(st.Presence, "presence"); err != nil {
		return nil, err
	}
	return d, nil
}

func rgaChild(data []byte, name string) (*crdt.RGA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("document state missing %s", name)
	}
	c, err := crdt.FromState(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	r, ok := c.(*crdt.RGA)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %s", name, c.Type())
	}
	return r, nil
}

func ormapChild(data []byte, name string) (*crdt.ORMap, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("document state missing %s", name)
	}
	c, err := crdt.FromState(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	m, ok := c.(*crdt.ORMap)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %s", name, c.Type())
	}
	return m, nil
}

// touch bumps the last-modified stamp.
func (d *Document) touch() {
	d.setRegister(d.metadata, MetaLastModified, time.Now().UTC().Format(time.RFC3339Nano))
}

// setRegister writes value into the register at key, creating it when the
// key is absent or tombstoned so the write re-adds the key.
func (d *Document) setRegister(m *crdt.ORMap, key string, value any) {
	if v, ok := m.Get(key); ok {
		if reg, ok := v.(*crdt.LWWRegister); ok {
			reg.Set(value)
			return
		}
	}
	reg := crdt.NewLWWRegister(d.replicaID)
	reg.Set(value)
	m.Put(key, reg)
}

// registerValue reads the plain value of the register at key.
func (d *Document) registerValue(m *crdt.ORMap, key string) (any, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	reg, ok := v.(*crdt.LWWRegister)
	if !ok {
		return nil, false
	}
	return reg.Value()
}

// mapValues flattens an ORMap of registers to key -> plain value.
func (d *Document) mapValues(m *crdt.ORMap) map[string]any {
	out := make(map[string]any)
	for _, key := range m.Keys() {
		if v, ok := d.registerValue(m, key); ok {
			out[key] = v
		}
	}
	return out
}
