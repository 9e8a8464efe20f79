package crdt

import (
	"sort"
)

// VectorClock tracks causal ordering across replicas.
// Each entry maps a replica ID to a logical counter.
type VectorClock map[string]uint64

// NewVectorClock creates an empty vector clock.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Increment advances the counter for the given replica.
func (vc VectorClock) Increment(replicaID string) {
	vc[replicaID]++
}

// Get returns the counter for a replica (0 if absent).
func (vc VectorClock) Get(replicaID string) uint64 {
	return vc[replicaID]
}

// Update folds another clock into this one by taking the max of each entry.
func (vc VectorClock) Update(other VectorClock) {
	for k, v := range other {
		if v > vc[k] {
			vc[k] = v
		}
	}
}

// Ordering represents the causal relationship between two vector clocks.
type Ordering int

const (
	Equal          Ordering = iota
	HappenedBefore          // vc < other
	HappenedAfter           // vc > other
	Concurrent              // neither dominates
)

// Compare determines the causal ordering between two vector clocks.
// The comparison runs over the union of replica IDs seen by either side.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	allKeys := make(map[string]struct{})
	for k := range vc {
		allKeys[k] = struct{}{}
	}
	for k := range other {
		allKeys[k] = struct{}{}
	}

	hasLess := false
	hasGreater := false

	for k := range allKeys {
		a := vc[k]
		b := other[k]
		if a < b {
			hasLess = true
		}
		if a > b {
			hasGreater = true
		}
		if hasLess && hasGreater {
			return Concurrent
		}
	}

	if hasLess && !hasGreater {
		return HappenedBefore
	}
	if hasGreater && !hasLess {
		return HappenedAfter
	}
	return Equal
}

// Clone returns a deep copy of the vector clock.
func (vc VectorClock) Clone() VectorClock {
	c := make(VectorClock, len(vc))
	for k, v := range vc {
		c[k] = v
	}
	return c
}

// Replicas returns the sorted list of replica IDs in the clock.
func (vc VectorClock) Replicas() []string {
	ids := make([]string, 0, len(vc))
	for k := range vc {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}
