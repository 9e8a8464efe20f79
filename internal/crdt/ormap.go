package crdt

import (
	"encoding/json"
	"fmt"
)

// ORMap is a map whose key set is an ORSet and whose values are nested
// CRDTs. Keys follow observed-remove semantics; values merge recursively.
// Removed keys keep their value entry so a concurrent re-add restores the
// merged history instead of a blank value.
type ORMap struct {
	replicaID string
	keys      *ORSet
	values    map[string]CRDT
	clock     VectorClock
}

// NewORMap creates an empty map owned by replicaID.
func NewORMap(replicaID string) *ORMap {
	return &ORMap{
		replicaID: replicaID,
		keys:      NewORSet(replicaID),
		values:    make(map[string]CRDT),
		clock:     NewVectorClock(),
	}
}

func (m *ORMap) Type() Type         { return TypeORMap }
func (m *ORMap) ReplicaID() string  { return m.replicaID }
func (m *ORMap) Clock() VectorClock { return m.clock }

// Put binds a value to the key, replacing any current value and minting a
// fresh key tag.
func (m *ORMap) Put(key string, value CRDT) {
	m.keys.Add(key)
	m.values[key] = value
	m.clock.Increment(m.replicaID)
}

// Get returns the value for a present key.
func (m *ORMap) Get(key string) (CRDT, bool) {
	if !m.keys.Contains(key) {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Remove tombstones the key. The value entry is retained for future merges.
func (m *ORMap) Remove(key string) {
	m.keys.Remove(key)
	m.clock.Increment(m.replicaID)
}

// Contains reports whether the key is present.
func (m *ORMap) Contains(key string) bool {
	return m.keys.Contains(key)
}

// Keys returns the sorted list of present keys.
func (m *ORMap) Keys() []string {
	return m.keys.Elements()
}

// Len returns the number of present keys.
func (m *ORMap) Len() int {
	return len(m.keys.Elements())
}

// Merge folds another ORMap in: the key sets union, values present on both
// sides merge recursively, one-sided values are copied. The whole merge is
// validated up front so a variant mismatch anywhere leaves the receiver
// untouched.
func (m *ORMap) Merge(other CRDT) error {
	o, ok := other.(*ORMap)
	if !ok {
		return mergeError(m, other)
	}
	if err := mergeCompatible(m, o); err != nil {
		return err
	}

	if err := m.keys.Merge(o.keys); err != nil {
		return err
	}
	for key, theirs := range o.values {
		mine, exists := m.values[key]
		if !exists {
			cp, err := Clone(theirs)
			if err != nil {
				return fmt.Errorf("copy key %q: %w", key, err)
			}
			m.values[key] = cp
			continue
		}
		if mine == theirs {
			continue
		}
		if err := mine.Merge(theirs); err != nil {
			return fmt.Errorf("merge key %q: %w", key, err)
		}
	}
	m.clock.Update(o.clock)
	return nil
}

// mergeCompatible checks recursively that every key held by both maps
// carries the same variant on both sides.
func mergeCompatible(a, b *ORMap) error {
	for key, bv := range b.values {
		av, exists := a.values[key]
		if !exists {
			continue
		}
		if av.Type() != bv.Type() {
			return fmt.Errorf("key %q: %w", key, mergeError(av, bv))
		}
		am, aok := av.(*ORMap)
		bm, bok := bv.(*ORMap)
		if aok && bok {
			if err := mergeCompatible(am, bm); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
	}
	return nil
}

type ormapState struct {
	Type      Type                       `json:"type"`
	ReplicaID string                     `json:"replica_id"`
	Keys      json.RawMessage            `json:"keys"`
	Values    map[string]json.RawMessage `json:"values"`
	Clock     VectorClock                `json:"vector_clock"`
}

func (m *ORMap) MarshalState() ([]byte, error) {
	keys, err := m.keys.MarshalState()
	if err != nil {
		return nil, err
	}
	values := make(map[string]json.RawMessage, len(m.values))
	for key, v := range m.values {
		data, err := v.MarshalState()
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", key, err)
		}
		values[key] = data
	}
	return json.Marshal(ormapState{
		Type:      TypeORMap,
		ReplicaID: m.replicaID,
		Keys:      keys,
		Values:    values,
		Clock:     m.clock,
	})
}

func ormapFromState(data []byte) (*ORMap, error) {
	var st ormapState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode or_map: %w", err)
	}
	m := NewORMap(st.ReplicaID)
	if len(st.Keys) > 0 {
		keys, err := orsetFromState(st.Keys)
		if err != nil {
			return nil, fmt.Errorf("decode or_map keys: %w", err)
		}
		m.keys = keys
	}
	for key, raw := range st.Values {
		v, err := FromState(raw)
		if err != nil {
			return nil, fmt.Errorf("decode or_map key %q: %w", key, err)
		}
		m.values[key] = v
	}
	if st.Clock != nil {
		m.clock = st.Clock
	}
	return m, nil
}
