// Package crdt implements the convergent replicated data types the
// collaboration engine is built from: counters, an observed-remove set,
// a last-writer-wins register, a recursive map, and a tombstoned sequence
// for ordered text. Every variant merges commutatively, associatively and
// idempotently, so replicas converge regardless of delivery order or
// duplication. None of the types are safe for concurrent use; callers
// serialize access.
package crdt

import (
	"encoding/json"
	"fmt"
)

// Type identifies a CRDT variant in serialized state.
type Type string

const (
	TypeGCounter    Type = "g_counter"
	TypePNCounter   Type = "pn_counter"
	TypeORSet       Type = "or_set"
	TypeLWWRegister Type = "lww_register"
	TypeORMap       Type = "or_map"
	TypeRGA         Type = "rga"
)

// CRDT is the capability shared by all variants. The variant set is closed:
// FromState only reconstructs the types declared above.
type CRDT interface {
	Type() Type
	ReplicaID() string
	Clock() VectorClock

	// Merge folds another replica's state of the same variant into this
	// one. Merging mismatched variants returns an error and leaves the
	// receiver untouched.
	Merge(other CRDT) error

	// MarshalState serializes the full state, tagged with the variant
	// type so FromState can reconstruct it.
	MarshalState() ([]byte, error)
}

// FromState reconstructs any CRDT variant from its serialized state by
// probing the type tag first, then dispatching to the variant decoder.
func FromState(data []byte) (CRDT, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode crdt state: %w", err)
	}

	switch probe.Type {
	case TypeGCounter:
		return gcounterFromState(data)
	case TypePNCounter:
		return pncounterFromState(data)
	case TypeORSet:
		return orsetFromState(data)
	case TypeLWWRegister:
		return registerFromState(data)
	case TypeORMap:
		return ormapFromState(data)
	case TypeRGA:
		return rgaFromState(data)
	default:
		return nil, fmt.Errorf("unknown crdt type %q", probe.Type)
	}
}

// Clone deep-copies a CRDT through a state round trip.
func Clone(c CRDT) (CRDT, error) {
	data, err := c.MarshalState()
	if err != nil {
		return nil, err
	}
	return FromState(data)
}

// mergeError reports an attempt to merge two different variants.
func mergeError(into, from CRDT) error {
	return fmt.Errorf("cannot merge %s with %s", into.Type(), from.Type())
}
