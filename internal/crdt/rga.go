package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RGANode is one element of the sequence. Nodes are append-only and never
// physically deleted: removal only clears Visible, and the tombstone stays
// so every replica agrees on the structure.
type RGANode struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReplicaID string    `json:"replica_id"`
	Visible   bool      `json:"visible"`
}

// RGA is a replicated growable array holding the ordered document content.
// Positions in the public API count visible nodes only; the node ID
// returned by Insert is the single stable reference to an element, since
// positions shift as neighbors come and go.
type RGA struct {
	replicaID string
	nodes     []*RGANode
	index     map[string]*RGANode
	clock     VectorClock
}

// NewRGA creates an empty sequence owned by replicaID.
func NewRGA(replicaID string) *RGA {
	return &RGA{
		replicaID: replicaID,
		index:     make(map[string]*RGANode),
		clock:     NewVectorClock(),
	}
}

func (r *RGA) Type() Type         { return TypeRGA }
func (r *RGA) ReplicaID() string  { return r.replicaID }
func (r *RGA) Clock() VectorClock { return r.clock }

// Insert places content at the given visible position and returns the new
// node's ID. A position past the end appends; a negative position is an
// error.
func (r *RGA) Insert(position int, content string) (string, error) {
	if position < 0 {
		return "", fmt.Errorf("insert position %d out of range", position)
	}

	idx := len(r.nodes)
	seen := 0
	for i, n := range r.nodes {
		if !n.Visible {
			continue
		}
		if seen == position {
			idx = i
			break
		}
		seen++
	}

	node := &RGANode{
		ID:        r.replicaID + ":" + uuid.NewString(),
		Content:   content,
		Timestamp: time.Now().UTC(),
		ReplicaID: r.replicaID,
		Visible:   true,
	}
	r.nodes = append(r.nodes, nil)
	copy(r.nodes[idx+1:], r.nodes[idx:])
	r.nodes[idx] = node
	r.index[node.ID] = node
	r.clock.Increment(r.replicaID)
	return node.ID, nil
}

// Delete tombstones the node with the given ID. Unknown IDs are a no-op
// and report false.
func (r *RGA) Delete(nodeID string) bool {
	node, ok := r.index[nodeID]
	if !ok {
		return false
	}
	node.Visible = false
	r.clock.Increment(r.replicaID)
	return true
}

// Content returns the visible elements in order.
func (r *RGA) Content() []string {
	out := make([]string, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.Visible {
			out = append(out, n.Content)
		}
	}
	return out
}

// Text returns the visible elements joined into one string.
func (r *RGA) Text() string {
	var b strings.Builder
	for _, n := range r.nodes {
		if n.Visible {
			b.WriteString(n.Content)
		}
	}
	return b.String()
}

// VisibleLength returns the number of visible nodes.
func (r *RGA) VisibleLength() int {
	count := 0
	for _, n := range r.nodes {
		if n.Visible {
			count++
		}
	}
	return count
}

// Merge unions nodes by ID. For IDs known to both sides visibility is
// ANDed, so a delete by either replica sticks. The merged set is then
// re-sorted by (timestamp, replica, id) into one deterministic order that
// every replica arrives at regardless of merge direction.
func (r *RGA) Merge(other CRDT) error {
	o, ok := other.(*RGA)
	if !ok {
		return mergeError(r, other)
	}

	merged := make(map[string]*RGANode, len(r.nodes)+len(o.nodes))
	for _, n := range r.nodes {
		merged[n.ID] = n
	}
	for _, n := range o.nodes {
		if mine, exists := merged[n.ID]; exists {
			if !n.Visible {
				mine.Visible = false
			}
			continue
		}
		cp := *n
		merged[n.ID] = &cp
	}

	nodes := make([]*RGANode, 0, len(merged))
	for _, n := range merged {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.ReplicaID != b.ReplicaID {
			return a.ReplicaID < b.ReplicaID
		}
		return a.ID < b.ID
	})

	index := make(map[string]*RGANode, len(nodes))
	for _, n := range nodes {
		index[n.ID] = n
	}
	r.nodes = nodes
	r.index = index
	r.clock.Update(o.clock)
	return nil
}

type rgaState struct {
	Type      Type        `json:"type"`
	ReplicaID string      `json:"replica_id"`
	Nodes     []RGANode   `json:"nodes"`
	Clock     VectorClock `json:"vector_clock"`
}

func (r *RGA) MarshalState() ([]byte, error) {
	nodes := make([]RGANode, len(r.nodes))
	for i, n := range r.nodes {
		nodes[i] = *n
	}
	return json.Marshal(rgaState{
		Type:      TypeRGA,
		ReplicaID: r.replicaID,
		Nodes:     nodes,
		Clock:     r.clock,
	})
}

func rgaFromState(data []byte) (*RGA, error) {
	var st rgaState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode rga: %w", err)
	}
	r := NewRGA(st.ReplicaID)
	r.nodes = make([]*RGANode, len(st.Nodes))
	for i := range st.Nodes {
		node := st.Nodes[i]
		r.nodes[i] = &node
		r.index[node.ID] = &node
	}
	if st.Clock != nil {
		r.clock = st.Clock
	}
	return r, nil
}
