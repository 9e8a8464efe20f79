package crdt

import (
	"testing"
)

func TestGCounter_AddAndValue(t *testing.T) {
	g := NewGCounter("r1")
	if g.Value() != 0 {
		t.Errorf("fresh counter: got %d, want 0", g.Value())
	}
	g.Add(3)
	g.Add(2)
	if g.Value() != 5 {
		t.Errorf("after adds: got %d, want 5", g.Value())
	}
	if g.Clock().Get("r1") != 2 {
		t.Errorf("clock: got %d, want 2", g.Clock().Get("r1"))
	}
}

func TestGCounter_MergeTakesPointwiseMax(t *testing.T) {
	a := NewGCounter("r1")
	b := NewGCounter("r2")
	a.Add(5)
	b.Add(3)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if a.Value() != 8 || b.Value() != 8 {
		t.Errorf("converged values: got %d and %d, want 8", a.Value(), b.Value())
	}

	// Re-merging must not change anything.
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if a.Value() != 8 {
		t.Errorf("idempotent merge: got %d, want 8", a.Value())
	}
}

func TestGCounter_MergeSelf(t *testing.T) {
	g := NewGCounter("r1")
	g.Add(4)
	if err := g.Merge(g); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if g.Value() != 4 {
		t.Errorf("self merge: got %d, want 4", g.Value())
	}
}

func TestGCounter_MergeVariantMismatch(t *testing.T) {
	g := NewGCounter("r1")
	s := NewORSet("r1")
	if err := g.Merge(s); err == nil {
		t.Error("expected error merging g_counter with or_set")
	}
	if g.Value() != 0 {
		t.Errorf("failed merge mutated counter: %d", g.Value())
	}
}

func TestPNCounter_IncrementDecrement(t *testing.T) {
	p := NewPNCounter("r1")
	p.Increment(10)
	p.Decrement(4)
	if p.Value() != 6 {
		t.Errorf("value: got %d, want 6", p.Value())
	}
	p.Decrement(9)
	if p.Value() != -3 {
		t.Errorf("negative value: got %d, want -3", p.Value())
	}
}

func TestPNCounter_MergeConverges(t *testing.T) {
	a := NewPNCounter("r1")
	b := NewPNCounter("r2")
	a.Increment(7)
	a.Decrement(2)
	b.Increment(1)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if a.Value() != 6 || b.Value() != 6 {
		t.Errorf("converged values: got %d and %d, want 6", a.Value(), b.Value())
	}
}

func TestPNCounter_StateRoundTrip(t *testing.T) {
	p := NewPNCounter("r1")
	p.Increment(5)
	p.Decrement(2)

	data, err := p.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	restored, err := FromState(data)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	q, ok := restored.(*PNCounter)
	if !ok {
		t.Fatalf("restored type: got %T, want *PNCounter", restored)
	}
	if q.Value() != 3 {
		t.Errorf("restored value: got %d, want 3", q.Value())
	}
	if q.ReplicaID() != "r1" {
		t.Errorf("restored replica: got %q, want r1", q.ReplicaID())
	}
}
