package document

import (
	"strings"
	"testing"
	"time"
)

func TestNew_SeedsMetadata(t *testing.T) {
	d := New("doc-1", "r1")
	if d.ID() != "doc-1" {
		t.Errorf("ID: got %q, want doc-1", d.ID())
	}
	if d.Title() != DefaultTitle {
		t.Errorf("Title: got %q, want %q", d.Title(), DefaultTitle)
	}
	if d.LastModified().IsZero() {
		t.Error("LastModified should be stamped on creation")
	}
	meta := d.View().Metadata
	if _, ok := meta[MetaCreatedAt]; !ok {
		t.Error("metadata missing created_at")
	}
}

func TestDocument_InsertAndDeleteText(t *testing.T) {
	d := New("doc-1", "r1")
	idH, err := d.InsertText(0, "H")
	if err != nil {
		t.Fatalf("InsertText: %v", err)
	}
	if _, err := d.InsertText(1, "i"); err != nil {
		t.Fatalf("InsertText: %v", err)
	}
	if got := d.TextContent(); got != "Hi" {
		t.Errorf("TextContent: got %q, want Hi", got)
	}

	if !d.DeleteText(idH) {
		t.Fatal("DeleteText: node not found")
	}
	if got := d.TextContent(); got != "i" {
		t.Errorf("TextContent after delete: got %q, want i", got)
	}
	if d.ContentLength() != 1 {
		t.Errorf("ContentLength: got %d, want 1", d.ContentLength())
	}
}

func TestDocument_InsertRejectsNegativePosition(t *testing.T) {
	d := New("doc-1", "r1")
	if _, err := d.InsertText(-2, "x"); err == nil {
		t.Error("expected error for negative position")
	}
}

func TestDocument_DeleteUnknownLeavesLastModified(t *testing.T) {
	d := New("doc-1", "r1")
	d.InsertText(0, "x")
	before := d.LastModified()

	if d.DeleteText("r9:unknown") {
		t.Error("delete of unknown node reported success")
	}
	if !d.LastModified().Equal(before) {
		t.Error("failed delete touched last_modified")
	}
}

func TestDocument_Annotations(t *testing.T) {
	d := New("doc-1", "r1")
	d.PutAnnotation("a1", map[string]any{"text": "check this", "author": "alice"})

	anns := d.Annotations()
	if len(anns) != 1 {
		t.Fatalf("annotations: got %d, want 1", len(anns))
	}
	fields, ok := anns["a1"].(map[string]any)
	if !ok {
		t.Fatalf("annotation value type: %T", anns["a1"])
	}
	if fields["author"] != "alice" {
		t.Errorf("author: got %v, want alice", fields["author"])
	}

	d.RemoveAnnotation("a1")
	if len(d.Annotations()) != 0 {
		t.Error("annotation still present after remove")
	}
}

func TestDocument_ActionItems(t *testing.T) {
	d := New("doc-1", "r1")
	d.PutActionItem("t1", map[string]any{"text": "ship it", "done": false})
	d.PutActionItem("t1", map[string]any{"text": "ship it", "done": true})

	items := d.ActionItems()
	fields := items["t1"].(map[string]any)
	if fields["done"] != true {
		t.Errorf("update lost: done = %v", fields["done"])
	}
}

func TestDocument_PresenceDoesNotTouchLastModified(t *testing.T) {
	d := New("doc-1", "r1")
	before := d.LastModified()

	d.UpdatePresence("u1", map[string]any{"cursor": float64(3)})
	if !d.LastModified().Equal(before) {
		t.Error("presence update touched last_modified")
	}
	if len(d.Presence()) != 1 {
		t.Errorf("presence entries: got %d, want 1", len(d.Presence()))
	}

	d.RemovePresence("u1")
	if len(d.Presence()) != 0 {
		t.Error("presence entry still present after remove")
	}
}

func TestDocument_MergeConverges(t *testing.T) {
	a := New("doc-1", "r1")
	b := New("doc-1", "r2")

	a.InsertText(0, "A")
	b.InsertText(0, "B")
	a.PutAnnotation("from-a", map[string]any{"author": "alice"})
	b.PutActionItem("from-b", map[string]any{"author": "bob"})

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if a.TextContent() != b.TextContent() {
		t.Errorf("text diverged: %q vs %q", a.TextContent(), b.TextContent())
	}
	if len(a.TextContent()) != 2 {
		t.Errorf("text: got %q, want both characters", a.TextContent())
	}
	if _, ok := a.ActionItems()["from-b"]; !ok {
		t.Error("a missing b's action item")
	}
	if _, ok := b.Annotations()["from-a"]; !ok {
		t.Error("b missing a's annotation")
	}
}

func TestDocument_MergeRejectsDifferentID(t *testing.T) {
	a := New("doc-1", "r1")
	b := New("doc-2", "r2")
	if err := a.Merge(b); err == nil {
		t.Error("expected error merging different document ids")
	}
}

func TestDocument_DeleteByPeerNodeID(t *testing.T) {
	a := New("doc-1", "r1")
	id, _ := a.InsertText(0, "X")

	b := New("doc-1", "r2")
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// The node id handed out by a is valid on b after merge.
	if !b.DeleteText(id) {
		t.Fatal("peer could not delete by node id")
	}
	if b.TextContent() != "" {
		t.Errorf("text: got %q, want empty", b.TextContent())
	}
}

func TestDocument_StateRoundTrip(t *testing.T) {
	d := New("doc-1", "r1")
	d.SetTitle("meeting notes")
	id, _ := d.InsertText(0, "H")
	d.InsertText(1, "i")
	d.DeleteText(id)
	d.PutAnnotation("a1", map[string]any{"author": "alice"})

	data, err := d.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	restored, err := FromState(data)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}

	if restored.ID() != "doc-1" {
		t.Errorf("ID: got %q", restored.ID())
	}
	if restored.ReplicaID() != "r1" {
		t.Errorf("ReplicaID: got %q", restored.ReplicaID())
	}
	if restored.Title() != "meeting notes" {
		t.Errorf("Title: got %q", restored.Title())
	}
	if restored.TextContent() != "i" {
		t.Errorf("TextContent: got %q, want i", restored.TextContent())
	}
	if _, ok := restored.Annotations()["a1"]; !ok {
		t.Error("annotation lost in round trip")
	}
}

func TestDocument_LoadRehomesReplica(t *testing.T) {
	d := New("doc-1", "r1")
	d.SetTitle("handover")
	d.InsertText(0, "x")
	created := d.View().Metadata[MetaCreatedAt]

	data, err := d.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}

	loaded, err := Load(data, "r2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ReplicaID() != "r2" {
		t.Errorf("ReplicaID: got %q, want r2", loaded.ReplicaID())
	}
	if loaded.Title() != "handover" {
		t.Errorf("Title: got %q, want handover", loaded.Title())
	}
	if loaded.TextContent() != "x" {
		t.Errorf("TextContent: got %q, want x", loaded.TextContent())
	}
	// The stored creation stamp must win over any fresh seeding.
	if got := loaded.View().Metadata[MetaCreatedAt]; got != created {
		t.Errorf("created_at: got %v, want %v", got, created)
	}

	// New edits mint ids under the adopting replica.
	id, err := loaded.InsertText(0, "y")
	if err != nil {
		t.Fatalf("InsertText: %v", err)
	}
	if !strings.HasPrefix(id, "r2:") {
		t.Errorf("new node id %q should carry the adopting replica", id)
	}
}

func TestDocument_LoadGarbage(t *testing.T) {
	if _, err := Load([]byte("{broken"), "r1"); err == nil {
		t.Error("expected error for malformed state")
	}
	if _, err := Load([]byte(`{"replica_id":"r1"}`), "r1"); err == nil {
		t.Error("expected error for state without document_id")
	}
}

func TestDocument_TitleUpdatesLastModified(t *testing.T) {
	d := New("doc-1", "r1")
	before := d.LastModified()
	time.Sleep(time.Millisecond)
	d.SetTitle("renamed")
	if !d.LastModified().After(before) {
		t.Error("SetTitle did not advance last_modified")
	}
}
