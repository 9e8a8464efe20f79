package protocol

import (
	"testing"
)

func TestNew_FillsEnvelope(t *testing.T) {
	m, err := New(TypePing, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Type != TypePing {
		t.Errorf("type: got %s", m.Type)
	}
	if m.MessageID == "" {
		t.Error("message id not set")
	}
	if m.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestEncodeDecode(t *testing.T) {
	m, err := New(TypeOperation, Operation{
		OperationID: "op-1",
		Kind:        OpInsert,
		Position:    4,
		Text:        "hi",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.UserID = "u1"
	m.DocumentID = "doc-1"

	raw, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeOperation || decoded.UserID != "u1" || decoded.DocumentID != "doc-1" {
		t.Errorf("envelope fields lost: %+v", decoded)
	}

	var op Operation
	if err := decoded.DecodeData(&op); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if op.Kind != OpInsert || op.Position != 4 || op.Text != "hi" {
		t.Errorf("operation fields lost: %+v", op)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("expected error for unparseable frame")
	}
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing message_type")
	}
}

func TestDecode_UnknownTypePassesThrough(t *testing.T) {
	m, err := Decode([]byte(`{"message_type":"FUTURE_THING","message_id":"x"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Type.Known() {
		t.Error("FUTURE_THING should not be a known type")
	}
}

func TestMessageType_Known(t *testing.T) {
	for _, mt := range []MessageType{
		TypeOperation, TypeOperationAck, TypeOperationReject,
		TypeCursorMove, TypeSelectionChange,
		TypeUserJoin, TypeUserLeave, TypeUserUpdate,
		TypePresenceUpdate, TypeDocumentState, TypeDocumentUpdate,
		TypeAnnotationAdd, TypeAnnotationUpdate, TypeAnnotationRemove,
		TypeActionItemAdd, TypeActionItemUpdate, TypeActionItemRemove,
		TypePing, TypePong, TypeError,
	} {
		if !mt.Known() {
			t.Errorf("%s should be known", mt)
		}
	}
	if MessageType("BOGUS").Known() {
		t.Error("BOGUS should not be known")
	}
}

func TestJoinPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload JoinPayload
		wantErr bool
	}{
		{"valid", JoinPayload{UserID: "u1", UserName: "Alice", DocumentID: "d1"}, false},
		{"with avatar", JoinPayload{UserID: "u1", UserName: "Alice", DocumentID: "d1", AvatarURL: "https://x/a.png"}, false},
		{"missing user_id", JoinPayload{UserName: "Alice", DocumentID: "d1"}, true},
		{"missing user_name", JoinPayload{UserID: "u1", DocumentID: "d1"}, true},
		{"missing document_id", JoinPayload{UserID: "u1", UserName: "Alice"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate: err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseItemPayload(t *testing.T) {
	p, err := ParseItemPayload([]byte(`{"id":"a1","text":"note","start":3}`))
	if err != nil {
		t.Fatalf("ParseItemPayload: %v", err)
	}
	if p.ID != "a1" {
		t.Errorf("id: got %q", p.ID)
	}
	if p.Fields["text"] != "note" {
		t.Errorf("fields: got %v", p.Fields)
	}
	if _, ok := p.Fields["id"]; ok {
		t.Error("id should be split out of fields")
	}

	if _, err := ParseItemPayload([]byte(`{"text":"no id"}`)); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestItemPayload_EncodeRoundTrip(t *testing.T) {
	p := &ItemPayload{ID: "a1", Fields: map[string]any{"text": "note", "author": "alice"}}
	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := ParseItemPayload(raw)
	if err != nil {
		t.Fatalf("ParseItemPayload: %v", err)
	}
	if back.ID != "a1" || back.Fields["author"] != "alice" {
		t.Errorf("round trip lost fields: %+v", back)
	}
}
