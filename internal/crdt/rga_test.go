package crdt

import (
	"reflect"
	"strings"
	"testing"
)

func TestRGA_InsertOrder(t *testing.T) {
	r := NewRGA("r1")
	if _, err := r.Insert(0, "A"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := r.Insert(1, "B"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	want := []string{"A", "B"}
	if got := r.Content(); !reflect.DeepEqual(got, want) {
		t.Errorf("Content: got %v, want %v", got, want)
	}
}

func TestRGA_InsertBetween(t *testing.T) {
	r := NewRGA("r1")
	r.Insert(0, "A")
	r.Insert(1, "C")
	r.Insert(1, "B")

	want := []string{"A", "B", "C"}
	if got := r.Content(); !reflect.DeepEqual(got, want) {
		t.Errorf("Content: got %v, want %v", got, want)
	}
}

func TestRGA_InsertPastEndAppends(t *testing.T) {
	r := NewRGA("r1")
	r.Insert(0, "A")
	if _, err := r.Insert(99, "Z"); err != nil {
		t.Fatalf("Insert past end: %v", err)
	}
	if got := r.Text(); got != "AZ" {
		t.Errorf("Text: got %q, want AZ", got)
	}
}

func TestRGA_InsertNegativePosition(t *testing.T) {
	r := NewRGA("r1")
	if _, err := r.Insert(-1, "A"); err == nil {
		t.Error("expected error for negative position")
	}
	if r.VisibleLength() != 0 {
		t.Errorf("failed insert mutated sequence: %d nodes", r.VisibleLength())
	}
}

func TestRGA_DeleteByNodeID(t *testing.T) {
	r := NewRGA("r1")
	idA, err := r.Insert(0, "A")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	r.Insert(1, "B")

	if !r.Delete(idA) {
		t.Fatal("Delete: node not found")
	}
	want := []string{"B"}
	if got := r.Content(); !reflect.DeepEqual(got, want) {
		t.Errorf("Content after delete: got %v, want %v", got, want)
	}
	if r.VisibleLength() != 1 {
		t.Errorf("VisibleLength: got %d, want 1", r.VisibleLength())
	}
}

func TestRGA_DeleteUnknownIsNoop(t *testing.T) {
	r := NewRGA("r1")
	r.Insert(0, "A")
	if r.Delete("r9:does-not-exist") {
		t.Error("Delete of unknown id reported success")
	}
	if got := r.Text(); got != "A" {
		t.Errorf("Text: got %q, want A", got)
	}
}

func TestRGA_InsertCountsOnlyVisible(t *testing.T) {
	r := NewRGA("r1")
	idA, _ := r.Insert(0, "A")
	r.Insert(1, "B")
	r.Delete(idA)

	// Position 0 now means "before B", even though A's tombstone is first.
	r.Insert(0, "X")
	want := []string{"X", "B"}
	if got := r.Content(); !reflect.DeepEqual(got, want) {
		t.Errorf("Content: got %v, want %v", got, want)
	}
}

func TestRGA_ConcurrentDeleteWins(t *testing.T) {
	a := NewRGA("r1")
	id, _ := a.Insert(0, "X")

	b := NewRGA("r2")
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// Both replicas delete the same node independently.
	a.Delete(id)
	b.Delete(id)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if a.VisibleLength() != 0 || b.VisibleLength() != 0 {
		t.Error("tombstoned node still visible after merge")
	}
}

func TestRGA_DeleteOnOneSideWins(t *testing.T) {
	a := NewRGA("r1")
	id, _ := a.Insert(0, "X")

	b := NewRGA("r2")
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	b.Delete(id)
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if a.VisibleLength() != 0 {
		t.Error("delete by the other replica did not stick")
	}
}

func TestRGA_MergeConvergesBothDirections(t *testing.T) {
	a := NewRGA("r1")
	b := NewRGA("r2")
	a.Insert(0, "left")
	b.Insert(0, "right")

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if !reflect.DeepEqual(a.Content(), b.Content()) {
		t.Errorf("replicas diverged: %v vs %v", a.Content(), b.Content())
	}
	if a.VisibleLength() != 2 {
		t.Errorf("VisibleLength: got %d, want 2", a.VisibleLength())
	}
}

func TestRGA_MergeIdempotent(t *testing.T) {
	a := NewRGA("r1")
	b := NewRGA("r2")
	a.Insert(0, "A")
	b.Insert(0, "B")

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	first := a.Content()
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !reflect.DeepEqual(a.Content(), first) {
		t.Errorf("repeated merge changed content: %v vs %v", a.Content(), first)
	}
}

func TestRGA_NodeIDCarriesReplica(t *testing.T) {
	r := NewRGA("site-a")
	id, _ := r.Insert(0, "A")
	if !strings.HasPrefix(id, "site-a:") {
		t.Errorf("node id %q should be prefixed with the replica id", id)
	}
}

func TestRGA_StateRoundTrip(t *testing.T) {
	r := NewRGA("r1")
	idA, _ := r.Insert(0, "A")
	r.Insert(1, "B")
	r.Delete(idA)

	data, err := r.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	restored, err := FromState(data)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	q, ok := restored.(*RGA)
	if !ok {
		t.Fatalf("restored type: got %T, want *RGA", restored)
	}
	if got := q.Text(); got != "B" {
		t.Errorf("restored text: got %q, want B", got)
	}
	// The tombstone must survive the round trip.
	if len(q.nodes) != 2 {
		t.Errorf("restored nodes: got %d, want 2", len(q.nodes))
	}
	if !q.Delete(idA) {
		// already invisible, but the node must still be indexed
		t.Error("tombstoned node lost from index")
	}
}
