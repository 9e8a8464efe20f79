package protocol

import (
	"encoding/json"
	"fmt"
)

// Operation kinds carried by OPERATION messages.
const (
	OpInsert = "insert"
	OpDelete = "delete"
)

// JoinPayload is the body of USER_JOIN, the mandatory first message on
// every connection.
type JoinPayload struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	DocumentID string `json:"document_id"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

// Validate checks the required join fields.
func (p *JoinPayload) Validate() error {
	switch {
	case p.UserID == "":
		return fmt.Errorf("user_join missing user_id")
	case p.UserName == "":
		return fmt.Errorf("user_join missing user_name")
	case p.DocumentID == "":
		return fmt.Errorf("user_join missing document_id")
	}
	return nil
}

// Operation is the body of OPERATION messages. Inserts carry a position
// and text; deletes carry the target node id handed out when the content
// was inserted. The server fills TargetRef on outbound insert operations
// so every participant can reference the new node later.
type Operation struct {
	OperationID string `json:"operation_id"`
	Kind        string `json:"type"`
	Position    int    `json:"position,omitempty"`
	Text        string `json:"text,omitempty"`
	TargetRef   string `json:"target_ref,omitempty"`
}

// AckPayload is the body of OPERATION_ACK, returned to the sender. For
// inserts it carries the minted node id.
type AckPayload struct {
	OperationID string `json:"operation_id"`
	TargetRef   string `json:"target_ref,omitempty"`
}

// RejectPayload is the body of OPERATION_REJECT, sent only to the sender
// of a failed operation.
type RejectPayload struct {
	OperationID string `json:"operation_id,omitempty"`
	Error       string `json:"error"`
}

// ErrorPayload is the body of ERROR messages.
type ErrorPayload struct {
	Error string `json:"error"`
}

// CursorPayload is the body of CURSOR_MOVE.
type CursorPayload struct {
	Position int `json:"position"`
}

// SelectionPayload is the body of SELECTION_CHANGE.
type SelectionPayload struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// UserPayload describes a participant in USER_JOIN/USER_LEAVE/USER_UPDATE
// broadcasts.
type UserPayload struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Color     string `json:"color,omitempty"`
}

// ItemPayload is the shared shape of annotation and action-item bodies:
// an id plus free-form fields that are stamped by the server and stored
// verbatim.
type ItemPayload struct {
	ID     string
	Fields map[string]any
}

// ParseItemPayload splits an annotation or action-item body into its id
// and remaining fields.
func ParseItemPayload(data []byte) (*ItemPayload, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode item payload: %w", err)
	}
	id, _ := m["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("item payload missing id")
	}
	delete(m, "id")
	return &ItemPayload{ID: id, Fields: m}, nil
}

// Encode rebuilds the wire body with the id folded back in.
func (p *ItemPayload) Encode() (json.RawMessage, error) {
	m := make(map[string]any, len(p.Fields)+1)
	for k, v := range p.Fields {
		m[k] = v
	}
	m["id"] = p.ID
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode item payload: %w", err)
	}
	return raw, nil
}
