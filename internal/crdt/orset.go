package crdt

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ORSet is an observed-remove set. Every add mints a unique tag for the
// element; remove tombstones all tags it currently observes. An element is
// present while it has at least one tag that is not tombstoned, so an add
// after a remove makes the element visible again (add wins per tag).
type ORSet struct {
	replicaID string
	adds      map[string]map[string]struct{} // element -> add tags
	removed   map[string]struct{}            // tombstoned tags, global
	clock     VectorClock
}

// NewORSet creates an empty observed-remove set owned by replicaID.
func NewORSet(replicaID string) *ORSet {
	return &ORSet{
		replicaID: replicaID,
		adds:      make(map[string]map[string]struct{}),
		removed:   make(map[string]struct{}),
		clock:     NewVectorClock(),
	}
}

func (s *ORSet) Type() Type         { return TypeORSet }
func (s *ORSet) ReplicaID() string  { return s.replicaID }
func (s *ORSet) Clock() VectorClock { return s.clock }

// Add inserts the element with a fresh tag and returns the tag.
func (s *ORSet) Add(element string) string {
	tag := uuid.NewString()
	tags := s.adds[element]
	if tags == nil {
		tags = make(map[string]struct{})
		s.adds[element] = tags
	}
	tags[tag] = struct{}{}
	s.clock.Increment(s.replicaID)
	return tag
}

// Remove tombstones every tag currently observed for the element. Tags
// minted by adds this replica has not yet seen are unaffected, which is
// what makes concurrent re-adds win.
func (s *ORSet) Remove(element string) {
	for tag := range s.adds[element] {
		s.removed[tag] = struct{}{}
	}
	s.clock.Increment(s.replicaID)
}

// Contains reports whether the element has at least one live tag.
func (s *ORSet) Contains(element string) bool {
	for tag := range s.adds[element] {
		if _, dead := s.removed[tag]; !dead {
			return true
		}
	}
	return false
}

// Elements returns the sorted list of present elements.
func (s *ORSet) Elements() []string {
	out := make([]string, 0, len(s.adds))
	for element := range s.adds {
		if s.Contains(element) {
			out = append(out, element)
		}
	}
	sort.Strings(out)
	return out
}

// Tags returns the sorted live tags of an element.
func (s *ORSet) Tags(element string) []string {
	var out []string
	for tag := range s.adds[element] {
		if _, dead := s.removed[tag]; !dead {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// Merge folds another ORSet in by unioning both the add-tag map and the
// tombstone set.
func (s *ORSet) Merge(other CRDT) error {
	o, ok := other.(*ORSet)
	if !ok {
		return mergeError(s, other)
	}
	for element, tags := range o.adds {
		mine := s.adds[element]
		if mine == nil {
			mine = make(map[string]struct{}, len(tags))
			s.adds[element] = mine
		}
		for tag := range tags {
			mine[tag] = struct{}{}
		}
	}
	for tag := range o.removed {
		s.removed[tag] = struct{}{}
	}
	s.clock.Update(o.clock)
	return nil
}

type orsetState struct {
	Type      Type                `json:"type"`
	ReplicaID string              `json:"replica_id"`
	Adds      map[string][]string `json:"adds"`
	Removed   []string            `json:"removed"`
	Clock     VectorClock         `json:"vector_clock"`
}

func (s *ORSet) MarshalState() ([]byte, error) {
	adds := make(map[string][]string, len(s.adds))
	for element, tags := range s.adds {
		list := make([]string, 0, len(tags))
		for tag := range tags {
			list = append(list, tag)
		}
		sort.Strings(list)
		adds[element] = list
	}
	removed := make([]string, 0, len(s.removed))
	for tag := range s.removed {
		removed = append(removed, tag)
	}
	sort.Strings(removed)

	return json.Marshal(orsetState{
		Type:      TypeORSet,
		ReplicaID: s.replicaID,
		Adds:      adds,
		Removed:   removed,
		Clock:     s.clock,
	})
}

func orsetFromState(data []byte) (*ORSet, error) {
	var st orsetState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode or_set: %w", err)
	}
	s := NewORSet(st.ReplicaID)
	for element, tags := range st.Adds {
		set := make(map[string]struct{}, len(tags))
		for _, tag := range tags {
			set[tag] = struct{}{}
		}
		s.adds[element] = set
	}
	for _, tag := range st.Removed {
		s.removed[tag] = struct{}{}
	}
	if st.Clock != nil {
		s.clock = st.Clock
	}
	return s, nil
}
