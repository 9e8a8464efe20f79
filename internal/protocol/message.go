// Package protocol defines the wire envelope and payload shapes exchanged
// between clients and the collaboration server. Messages are JSON text
// frames; the envelope carries a type tag and routing fields, the payload
// stays opaque until the handler decodes it.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType tags the envelope. The set is closed; handlers drop types
// they do not understand.
type MessageType string

const (
	TypeOperation        MessageType = "OPERATION"
	TypeOperationAck     MessageType = "OPERATION_ACK"
	TypeOperationReject  MessageType = "OPERATION_REJECT"
	TypeCursorMove       MessageType = "CURSOR_MOVE"
	TypeSelectionChange  MessageType = "SELECTION_CHANGE"
	TypeUserJoin         MessageType = "USER_JOIN"
	TypeUserLeave        MessageType = "USER_LEAVE"
	TypeUserUpdate       MessageType = "USER_UPDATE"
	TypePresenceUpdate   MessageType = "PRESENCE_UPDATE"
	TypeDocumentState    MessageType = "DOCUMENT_STATE"
	TypeDocumentUpdate   MessageType = "DOCUMENT_UPDATE"
	TypeAnnotationAdd    MessageType = "ANNOTATION_ADD"
	TypeAnnotationUpdate MessageType = "ANNOTATION_UPDATE"
	TypeAnnotationRemove MessageType = "ANNOTATION_REMOVE"
	TypeActionItemAdd    MessageType = "ACTION_ITEM_ADD"
	TypeActionItemUpdate MessageType = "ACTION_ITEM_UPDATE"
	TypeActionItemRemove MessageType = "ACTION_ITEM_REMOVE"
	TypePing             MessageType = "PING"
	TypePong             MessageType = "PONG"
	TypeError            MessageType = "ERROR"
)

var knownTypes = map[MessageType]struct{}{
	TypeOperation: {}, TypeOperationAck: {}, TypeOperationReject: {},
	TypeCursorMove: {}, TypeSelectionChange: {},
	TypeUserJoin: {}, TypeUserLeave: {}, TypeUserUpdate: {},
	TypePresenceUpdate: {}, TypeDocumentState: {}, TypeDocumentUpdate: {},
	TypeAnnotationAdd: {}, TypeAnnotationUpdate: {}, TypeAnnotationRemove: {},
	TypeActionItemAdd: {}, TypeActionItemUpdate: {}, TypeActionItemRemove: {},
	TypePing: {}, TypePong: {}, TypeError: {},
}

// Known reports whether the type is part of the protocol.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Message is the wire envelope, one per frame.
type Message struct {
	Type       MessageType     `json:"message_type"`
	Data       json.RawMessage `json:"data,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	MessageID  string          `json:"message_id"`
}

// New builds an envelope with a fresh message id and timestamp. The data
// payload is marshaled in place; routing fields are set by the caller.
func New(t MessageType, data any) (*Message, error) {
	m := &Message{
		Type:      t,
		Timestamp: time.Now().UTC(),
		MessageID: uuid.NewString(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		m.Data = raw
	}
	return m, nil
}

// Encode serializes the envelope to one JSON frame.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a frame into an envelope. A frame that is not JSON or has
// no message type is malformed; unknown-but-present types pass through so
// handlers can decide to drop them.
func Decode(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("decode message: missing message_type")
	}
	return &m, nil
}

// DecodeData unmarshals the payload into the given value.
func (m *Message) DecodeData(into any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
