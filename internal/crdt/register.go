package crdt

import (
	"encoding/json"
	"fmt"
	"time"
)

// LWWRegister holds a single value with last-writer-wins semantics. The
// stored triple (value, timestamp, writer) converges deterministically:
// the later timestamp wins, ties go to the larger writer ID.
type LWWRegister struct {
	replicaID string
	value     any
	timestamp time.Time
	writer    string // replica that produced the winning write
	clock     VectorClock
}

// NewLWWRegister creates an unset register owned by replicaID.
func NewLWWRegister(replicaID string) *LWWRegister {
	return &LWWRegister{
		replicaID: replicaID,
		clock:     NewVectorClock(),
	}
}

func (r *LWWRegister) Type() Type         { return TypeLWWRegister }
func (r *LWWRegister) ReplicaID() string  { return r.replicaID }
func (r *LWWRegister) Clock() VectorClock { return r.clock }

// Set writes a value stamped with the current time and this replica's ID.
func (r *LWWRegister) Set(value any) {
	r.SetAt(value, time.Now().UTC())
}

// SetAt writes a value with an explicit timestamp. Local writes are
// unconditional; only Merge arbitrates between replicas.
func (r *LWWRegister) SetAt(value any, ts time.Time) {
	r.value = value
	r.timestamp = ts
	r.writer = r.replicaID
	r.clock.Increment(r.replicaID)
}

// Value returns the current value and whether the register has been set.
func (r *LWWRegister) Value() (any, bool) {
	return r.value, !r.timestamp.IsZero()
}

// Timestamp returns the winning write's timestamp (zero if unset).
func (r *LWWRegister) Timestamp() time.Time {
	return r.timestamp
}

// wins reports whether a write at ts by writer beats the current triple.
func (r *LWWRegister) wins(ts time.Time, writer string) bool {
	if r.timestamp.IsZero() {
		return true
	}
	if ts.After(r.timestamp) {
		return true
	}
	if ts.Equal(r.timestamp) && writer > r.writer {
		return true
	}
	return false
}

// Merge keeps whichever side's triple wins the (timestamp, writer) order.
func (r *LWWRegister) Merge(other CRDT) error {
	o, ok := other.(*LWWRegister)
	if !ok {
		return mergeError(r, other)
	}
	if !o.timestamp.IsZero() && r.wins(o.timestamp, o.writer) {
		r.value = o.value
		r.timestamp = o.timestamp
		r.writer = o.writer
	}
	r.clock.Update(o.clock)
	return nil
}

type registerState struct {
	Type      Type        `json:"type"`
	ReplicaID string      `json:"replica_id"`
	Value     any         `json:"value"`
	Timestamp string      `json:"timestamp,omitempty"`
	Writer    string      `json:"writer,omitempty"`
	Clock     VectorClock `json:"vector_clock"`
}

func (r *LWWRegister) MarshalState() ([]byte, error) {
	st := registerState{
		Type:      TypeLWWRegister,
		ReplicaID: r.replicaID,
		Value:     r.value,
		Writer:    r.writer,
		Clock:     r.clock,
	}
	if !r.timestamp.IsZero() {
		st.Timestamp = r.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(st)
}

func registerFromState(data []byte) (*LWWRegister, error) {
	var st registerState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode lww_register: %w", err)
	}
	r := NewLWWRegister(st.ReplicaID)
	r.value = st.Value
	r.writer = st.Writer
	if st.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, st.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("decode lww_register timestamp: %w", err)
		}
		r.timestamp = ts
	}
	if st.Clock != nil {
		r.clock = st.Clock
	}
	return r, nil
}
