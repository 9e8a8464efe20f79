package crdt

import (
	"encoding/json"
	"fmt"
)

// GCounter is a grow-only counter: a map of per-replica counts whose value
// is the sum of all entries. Merge takes the pointwise max, so the value
// never decreases.
type GCounter struct {
	replicaID string
	counts    map[string]uint64
	clock     VectorClock
}

// NewGCounter creates an empty grow-only counter owned by replicaID.
func NewGCounter(replicaID string) *GCounter {
	return &GCounter{
		replicaID: replicaID,
		counts:    make(map[string]uint64),
		clock:     NewVectorClock(),
	}
}

func (g *GCounter) Type() Type           { return TypeGCounter }
func (g *GCounter) ReplicaID() string    { return g.replicaID }
func (g *GCounter) Clock() VectorClock   { return g.clock }

// Add increments the local replica's count by n.
func (g *GCounter) Add(n uint64) {
	g.counts[g.replicaID] += n
	g.clock.Increment(g.replicaID)
}

// Value returns the sum of all replica counts.
func (g *GCounter) Value() uint64 {
	var total uint64
	for _, v := range g.counts {
		total += v
	}
	return total
}

// Merge folds another GCounter in by taking the max of each replica entry.
func (g *GCounter) Merge(other CRDT) error {
	o, ok := other.(*GCounter)
	if !ok {
		return mergeError(g, other)
	}
	for k, v := range o.counts {
		if v > g.counts[k] {
			g.counts[k] = v
		}
	}
	g.clock.Update(o.clock)
	return nil
}

type gcounterState struct {
	Type      Type              `json:"type"`
	ReplicaID string            `json:"replica_id"`
	Counts    map[string]uint64 `json:"counts"`
	Clock     VectorClock       `json:"vector_clock"`
}

func (g *GCounter) MarshalState() ([]byte, error) {
	return json.Marshal(gcounterState{
		Type:      TypeGCounter,
		ReplicaID: g.replicaID,
		Counts:    g.counts,
		Clock:     g.clock,
	})
}

func gcounterFromState(data []byte) (*GCounter, error) {
	var st gcounterState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode g_counter: %w", err)
	}
	g := NewGCounter(st.ReplicaID)
	if st.Counts != nil {
		g.counts = st.Counts
	}
	if st.Clock != nil {
		g.clock = st.Clock
	}
	return g, nil
}

// PNCounter supports increments and decrements as a pair of grow-only
// counters. The value is the increment sum minus the decrement sum.
type PNCounter struct {
	replicaID string
	inc       *GCounter
	dec       *GCounter
	clock     VectorClock
}

// NewPNCounter creates a zero-valued counter owned by replicaID.
func NewPNCounter(replicaID string) *PNCounter {
	return &PNCounter{
		replicaID: replicaID,
		inc:       NewGCounter(replicaID),
		dec:       NewGCounter(replicaID),
		clock:     NewVectorClock(),
	}
}

func (p *PNCounter) Type() Type         { return TypePNCounter }
func (p *PNCounter) ReplicaID() string  { return p.replicaID }
func (p *PNCounter) Clock() VectorClock { return p.clock }

// Increment raises the value by n.
func (p *PNCounter) Increment(n uint64) {
	p.inc.Add(n)
	p.clock.Increment(p.replicaID)
}

// Decrement lowers the value by n.
func (p *PNCounter) Decrement(n uint64) {
	p.dec.Add(n)
	p.clock.Increment(p.replicaID)
}

// Value returns increments minus decrements; it can be negative.
func (p *PNCounter) Value() int64 {
	return int64(p.inc.Value()) - int64(p.dec.Value())
}

// Merge folds another PNCounter in by merging both halves.
func (p *PNCounter) Merge(other CRDT) error {
	o, ok := other.(*PNCounter)
	if !ok {
		return mergeError(p, other)
	}
	if err := p.inc.Merge(o.inc); err != nil {
		return err
	}
	if err := p.dec.Merge(o.dec); err != nil {
		return err
	}
	p.clock.Update(o.clock)
	return nil
}

type pncounterState struct {
	Type      Type              `json:"type"`
	ReplicaID string            `json:"replica_id"`
	Inc       map[string]uint64 `json:"increments"`
	Dec       map[string]uint64 `json:"decrements"`
	Clock     VectorClock       `json:"vector_clock"`
}

func (p *PNCounter) MarshalState() ([]byte, error) {
	return json.Marshal(pncounterState{
		Type:      TypePNCounter,
		ReplicaID: p.replicaID,
		Inc:       p.inc.counts,
		Dec:       p.dec.counts,
		Clock:     p.clock,
	})
}

func pncounterFromState(data []byte) (*PNCounter, error) {
	var st pncounterState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode pn_counter: %w", err)
	}
	p := NewPNCounter(st.ReplicaID)
	if st.Inc != nil {
		p.inc.counts = st.Inc
	}
	if st.Dec != nil {
		p.dec.counts = st.Dec
	}
	if st.Clock != nil {
		p.clock = st.Clock
	}
	return p, nil
}
