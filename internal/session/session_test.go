package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/eniz1806/SyncPad/internal/document"
	"github.com/eniz1806/SyncPad/internal/protocol"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection gone")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages(t *testing.T) []*protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Message, 0, len(c.frames))
	for _, f := range c.frames {
		m, err := protocol.Decode(f)
		if err != nil {
			t.Fatalf("decode frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return New(document.New("doc-1", "server"))
}

func joinUser(t *testing.T, s *Session, id, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{id: "conn-" + id}
	if err := s.Join(conn, User{ID: id, Name: name}); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return conn
}

func mustMsg(t *testing.T, typ protocol.MessageType, payload any) *protocol.Message {
	t.Helper()
	m, err := protocol.New(typ, payload)
	if err != nil {
		t.Fatalf("build %s: %v", typ, err)
	}
	return m
}

func typesOf(msgs []*protocol.Message) []protocol.MessageType {
	out := make([]protocol.MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func findType(msgs []*protocol.Message, typ protocol.MessageType) *protocol.Message {
	for _, m := range msgs {
		if m.Type == typ {
			return m
		}
	}
	return nil
}

func TestSession_JoinWelcomeSequence(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")

	msgs := c1.messages(t)
	if len(msgs) != 2 || msgs[0].Type != protocol.TypeDocumentState || msgs[1].Type != protocol.TypePresenceUpdate {
		t.Fatalf("joiner got %v, want [DOCUMENT_STATE PRESENCE_UPDATE]", typesOf(msgs))
	}
	var view document.View
	if err := msgs[0].DecodeData(&view); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if view.DocumentID != "doc-1" {
		t.Fatalf("state for document %q", view.DocumentID)
	}

	c1.reset()
	c2 := joinUser(t, s, "u2", "Grace")

	got := c1.messages(t)
	if len(got) != 1 || got[0].Type != protocol.TypeUserJoin {
		t.Fatalf("existing user got %v, want [USER_JOIN]", typesOf(got))
	}
	var joined protocol.UserPayload
	if err := got[0].DecodeData(&joined); err != nil {
		t.Fatalf("decode join: %v", err)
	}
	if joined.UserID != "u2" || joined.Color == "" {
		t.Fatalf("join payload = %+v", joined)
	}

	msgs = c2.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("second joiner got %v", typesOf(msgs))
	}
	var presence map[string]any
	if err := msgs[1].DecodeData(&presence); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if _, ok := presence["u1"]; !ok {
		t.Fatalf("presence snapshot missing first user: %v", presence)
	}
}

func TestSession_PaletteWrapsAfterTwelve(t *testing.T) {
	s := newTestSession(t)
	colors := make(map[string]string)
	for i := 0; i < 13; i++ {
		id := string(rune('a' + i))
		joinUser(t, s, id, "User "+id)
	}
	for _, u := range s.Users() {
		colors[u.ID] = u.Color
	}

	seen := make(map[string]bool)
	for i := 0; i < 12; i++ {
		c := colors[string(rune('a'+i))]
		if seen[c] {
			t.Fatalf("color %s assigned twice within the first twelve users", c)
		}
		seen[c] = true
	}
	if colors["m"] != colors["a"] {
		t.Fatalf("13th user color %s, want first color %s again", colors["m"], colors["a"])
	}
}

func TestSession_InsertBroadcastsAndAcks(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")
	c1.reset()
	c2.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-1", Kind: protocol.OpInsert, Position: 0, Text: "hello",
	}))

	bcast := findType(c2.messages(t), protocol.TypeOperation)
	if bcast == nil {
		t.Fatalf("peer got %v, want an OPERATION", typesOf(c2.messages(t)))
	}
	var op protocol.Operation
	if err := bcast.DecodeData(&op); err != nil {
		t.Fatalf("decode operation: %v", err)
	}
	if op.Text != "hello" || op.TargetRef == "" {
		t.Fatalf("broadcast operation = %+v, want text and target_ref", op)
	}
	if bcast.UserID != "u1" {
		t.Fatalf("broadcast attributed to %q", bcast.UserID)
	}

	ackMsg := findType(c1.messages(t), protocol.TypeOperationAck)
	if ackMsg == nil {
		t.Fatalf("sender got %v, want an OPERATION_ACK", typesOf(c1.messages(t)))
	}
	var ack protocol.AckPayload
	if err := ackMsg.DecodeData(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.OperationID != "op-1" || ack.TargetRef != op.TargetRef {
		t.Fatalf("ack = %+v, want op-1 with target %q", ack, op.TargetRef)
	}
	if findType(c1.messages(t), protocol.TypeOperation) != nil {
		t.Fatal("sender received its own operation back")
	}

	if got := s.DocumentView().Text; got != "hello" {
		t.Fatalf("document text = %q", got)
	}
}

func TestSession_DeleteByTargetRef(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")

	s.HandleMessage("u1", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-1", Kind: protocol.OpInsert, Position: 0, Text: "hello",
	}))
	var ack protocol.AckPayload
	if err := findType(c1.messages(t), protocol.TypeOperationAck).DecodeData(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	c1.reset()
	c2.reset()

	s.HandleMessage("u2", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-2", Kind: protocol.OpDelete, TargetRef: ack.TargetRef,
	}))

	if got := s.DocumentView().Text; got != "" {
		t.Fatalf("document text = %q after delete", got)
	}
	bcast := findType(c1.messages(t), protocol.TypeOperation)
	if bcast == nil {
		t.Fatalf("peer got %v, want the delete", typesOf(c1.messages(t)))
	}
	var op protocol.Operation
	if err := bcast.DecodeData(&op); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if op.Kind != protocol.OpDelete || op.TargetRef != ack.TargetRef {
		t.Fatalf("delete broadcast = %+v", op)
	}
	if findType(c2.messages(t), protocol.TypeOperationAck) == nil {
		t.Fatal("deleter got no ack")
	}
}

func TestSession_RejectGoesToSenderOnly(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")
	c1.reset()
	c2.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-bad", Kind: protocol.OpInsert, Position: -1, Text: "x",
	}))

	rej := findType(c1.messages(t), protocol.TypeOperationReject)
	if rej == nil {
		t.Fatalf("sender got %v, want an OPERATION_REJECT", typesOf(c1.messages(t)))
	}
	var p protocol.RejectPayload
	if err := rej.DecodeData(&p); err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if p.OperationID != "op-bad" || p.Error == "" {
		t.Fatalf("reject payload = %+v", p)
	}
	if len(c2.messages(t)) != 0 {
		t.Fatalf("peer got %v, want nothing", typesOf(c2.messages(t)))
	}
	if got := s.DocumentView().Text; got != "" {
		t.Fatalf("rejected operation mutated document to %q", got)
	}
}

func TestSession_DeleteUnknownNodeRejected(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c1.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-1", Kind: protocol.OpDelete, TargetRef: "server:no-such-node",
	}))

	if findType(c1.messages(t), protocol.TypeOperationReject) == nil {
		t.Fatalf("sender got %v, want an OPERATION_REJECT", typesOf(c1.messages(t)))
	}
}

func TestSession_CursorMoveBroadcastsAndMirrorsPresence(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")
	c1.reset()
	c2.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypeCursorMove, protocol.CursorPayload{Position: 7}))

	bcast := findType(c2.messages(t), protocol.TypeCursorMove)
	if bcast == nil {
		t.Fatalf("peer got %v, want CURSOR_MOVE", typesOf(c2.messages(t)))
	}
	if bcast.UserID != "u1" {
		t.Fatalf("cursor move attributed to %q", bcast.UserID)
	}
	if len(c1.messages(t)) != 0 {
		t.Fatal("sender received its own cursor move back")
	}

	fields, ok := s.DocumentView().Presence["u1"].(map[string]any)
	if !ok {
		t.Fatalf("presence entry missing: %v", s.DocumentView().Presence)
	}
	if fields["cursor"] != 7 {
		t.Fatalf("presence cursor = %v, want 7", fields["cursor"])
	}
	if fields["color"] == "" || fields["user_name"] != "Ada" {
		t.Fatalf("presence fields = %v", fields)
	}
}

func TestSession_SelectionChangeMirrorsPresence(t *testing.T) {
	s := newTestSession(t)
	joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")
	c2.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypeSelectionChange, protocol.SelectionPayload{Start: 2, End: 9}))

	if findType(c2.messages(t), protocol.TypeSelectionChange) == nil {
		t.Fatalf("peer got %v, want SELECTION_CHANGE", typesOf(c2.messages(t)))
	}
	fields := s.DocumentView().Presence["u1"].(map[string]any)
	sel, ok := fields["selection"].(map[string]any)
	if !ok || sel["start"] != 2 || sel["end"] != 9 {
		t.Fatalf("presence selection = %v", fields["selection"])
	}
}

func TestSession_AnnotationAddBroadcastsToEveryone(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")
	c1.reset()
	c2.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypeAnnotationAdd, map[string]any{
		"id": "a1", "text": "needs a citation", "kind": "comment",
	}))

	for name, conn := range map[string]*fakeConn{"sender": c1, "peer": c2} {
		m := findType(conn.messages(t), protocol.TypeAnnotationAdd)
		if m == nil {
			t.Fatalf("%s got %v, want ANNOTATION_ADD", name, typesOf(conn.messages(t)))
		}
		var body map[string]any
		if err := m.DecodeData(&body); err != nil {
			t.Fatalf("decode annotation: %v", err)
		}
		if body["id"] != "a1" || body["author"] != "u1" {
			t.Fatalf("%s annotation = %v", name, body)
		}
		if body["created_at"] == nil || body["updated_at"] == nil {
			t.Fatalf("%s annotation missing stamps: %v", name, body)
		}
	}

	stored, ok := s.DocumentView().Annotations["a1"].(map[string]any)
	if !ok || stored["author"] != "u1" || stored["text"] != "needs a citation" {
		t.Fatalf("stored annotation = %v", s.DocumentView().Annotations)
	}
}

func TestSession_AnnotationUpdateOverlaysStoredFields(t *testing.T) {
	s := newTestSession(t)
	joinUser(t, s, "u1", "Ada")

	s.HandleMessage("u1", mustMsg(t, protocol.TypeAnnotationAdd, map[string]any{
		"id": "a1", "text": "first", "kind": "comment",
	}))
	s.HandleMessage("u1", mustMsg(t, protocol.TypeAnnotationUpdate, map[string]any{
		"id": "a1", "text": "second",
	}))

	stored := s.DocumentView().Annotations["a1"].(map[string]any)
	if stored["text"] != "second" {
		t.Fatalf("text = %v, want second", stored["text"])
	}
	if stored["kind"] != "comment" || stored["author"] != "u1" {
		t.Fatalf("update lost fields: %v", stored)
	}
}

func TestSession_ActionItemLifecycle(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")

	s.HandleMessage("u1", mustMsg(t, protocol.TypeActionItemAdd, map[string]any{
		"id": "t1", "title": "ship the release", "done": false,
	}))
	s.HandleMessage("u1", mustMsg(t, protocol.TypeActionItemUpdate, map[string]any{
		"id": "t1", "done": true,
	}))

	stored := s.DocumentView().ActionItems["t1"].(map[string]any)
	if stored["done"] != true || stored["title"] != "ship the release" {
		t.Fatalf("action item = %v", stored)
	}

	c1.reset()
	s.HandleMessage("u1", mustMsg(t, protocol.TypeActionItemRemove, map[string]any{"id": "t1"}))
	if _, ok := s.DocumentView().ActionItems["t1"]; ok {
		t.Fatal("action item still visible after remove")
	}
	if findType(c1.messages(t), protocol.TypeActionItemRemove) == nil {
		t.Fatalf("sender got %v, want the remove echoed", typesOf(c1.messages(t)))
	}
}

func TestSession_PingPong(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")
	c1.reset()
	c2.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypePing, nil))

	if findType(c1.messages(t), protocol.TypePong) == nil {
		t.Fatalf("sender got %v, want PONG", typesOf(c1.messages(t)))
	}
	if len(c2.messages(t)) != 0 {
		t.Fatalf("peer got %v, want nothing", typesOf(c2.messages(t)))
	}
}

func TestSession_SendFailureDropsOnlyDeadConnection(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")
	c3 := joinUser(t, s, "u3", "Edsger")
	c2.fail = true
	c1.reset()
	c3.reset()

	s.HandleMessage("u1", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-1", Kind: protocol.OpInsert, Position: 0, Text: "x",
	}))

	if n := s.UserCount(); n != 2 {
		t.Fatalf("user count = %d, want 2 after dead peer removed", n)
	}
	if !c2.closed {
		t.Fatal("dead connection not closed")
	}
	msgs := c3.messages(t)
	if findType(msgs, protocol.TypeOperation) == nil {
		t.Fatalf("healthy peer got %v, want the operation", typesOf(msgs))
	}
	leave := findType(msgs, protocol.TypeUserLeave)
	if leave == nil {
		t.Fatalf("healthy peer got %v, want USER_LEAVE for the dead one", typesOf(msgs))
	}
	var p protocol.UserPayload
	if err := leave.DecodeData(&p); err != nil {
		t.Fatalf("decode leave: %v", err)
	}
	if p.UserID != "u2" {
		t.Fatalf("leave for %q, want u2", p.UserID)
	}
	if findType(c1.messages(t), protocol.TypeOperationAck) == nil {
		t.Fatal("sender lost its ack")
	}
}

func TestSession_LeaveBroadcastsAndClearsPresence(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	joinUser(t, s, "u2", "Grace")
	c1.reset()

	if !s.Leave("u2") {
		t.Fatal("Leave returned false for connected user")
	}
	if s.Leave("u2") {
		t.Fatal("Leave returned true twice")
	}

	leave := findType(c1.messages(t), protocol.TypeUserLeave)
	if leave == nil {
		t.Fatalf("remaining user got %v, want USER_LEAVE", typesOf(c1.messages(t)))
	}
	if _, ok := s.DocumentView().Presence["u2"]; ok {
		t.Fatal("presence entry survived the leave")
	}
}

func TestSession_UserLeaveMessage(t *testing.T) {
	s := newTestSession(t)
	joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")

	s.HandleMessage("u2", mustMsg(t, protocol.TypeUserLeave, nil))

	if n := s.UserCount(); n != 1 {
		t.Fatalf("user count = %d after leave message", n)
	}
	if !c2.closed {
		t.Fatal("leaving user's connection left open")
	}
}

func TestSession_RejoinReplacesConnection(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")

	c1b := &fakeConn{id: "conn-u1b"}
	if err := s.Join(c1b, User{ID: "u1", Name: "Ada"}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !c1.closed {
		t.Fatal("stale connection not closed on rejoin")
	}
	if n := s.UserCount(); n != 1 {
		t.Fatalf("user count = %d after rejoin", n)
	}
	if len(c1b.messages(t)) == 0 {
		t.Fatal("rejoined connection got no welcome sequence")
	}
}

func TestSession_MergeRemoteBroadcastsUpdate(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c1.reset()

	peer := document.New("doc-1", "peer")
	if _, err := peer.InsertText(0, "remote text"); err != nil {
		t.Fatalf("peer insert: %v", err)
	}
	state, err := peer.MarshalState()
	if err != nil {
		t.Fatalf("peer state: %v", err)
	}

	if err := s.MergeRemote(state); err != nil {
		t.Fatalf("MergeRemote: %v", err)
	}
	if got := s.DocumentView().Text; got != "remote text" {
		t.Fatalf("merged text = %q", got)
	}

	update := findType(c1.messages(t), protocol.TypeDocumentUpdate)
	if update == nil {
		t.Fatalf("participant got %v, want DOCUMENT_UPDATE", typesOf(c1.messages(t)))
	}
	var view document.View
	if err := update.DecodeData(&view); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if view.Text != "remote text" {
		t.Fatalf("update text = %q", view.Text)
	}
}

func TestSession_MergeRemoteGarbage(t *testing.T) {
	s := newTestSession(t)
	if err := s.MergeRemote([]byte("{broken")); err == nil {
		t.Fatal("MergeRemote accepted garbage")
	}
}

func TestSession_CloseAll(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c2 := joinUser(t, s, "u2", "Grace")

	s.CloseAll()

	if !c1.closed || !c2.closed {
		t.Fatal("connections left open after CloseAll")
	}
	if n := s.UserCount(); n != 0 {
		t.Fatalf("user count = %d after CloseAll", n)
	}
	if err := s.Join(&fakeConn{id: "late"}, User{ID: "u3", Name: "Late"}); err != ErrClosed {
		t.Fatalf("Join after close = %v, want ErrClosed", err)
	}
}

func TestSession_MessageFromStrangerDropped(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c1.reset()

	s.HandleMessage("ghost", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-1", Kind: protocol.OpInsert, Position: 0, Text: "boo",
	}))

	if got := s.DocumentView().Text; got != "" {
		t.Fatalf("stranger mutated document to %q", got)
	}
	if len(c1.messages(t)) != 0 {
		t.Fatalf("participant got %v from a stranger", typesOf(c1.messages(t)))
	}
}

func TestSession_UnknownTypeDropped(t *testing.T) {
	s := newTestSession(t)
	c1 := joinUser(t, s, "u1", "Ada")
	c1.reset()

	msg := mustMsg(t, protocol.MessageType("GOSSIP"), map[string]string{"x": "y"})
	s.HandleMessage("u1", msg)

	if len(c1.messages(t)) != 0 {
		t.Fatalf("unknown type produced %v", typesOf(c1.messages(t)))
	}
}

func TestSession_RevisionCountsDurableEdits(t *testing.T) {
	s := newTestSession(t)
	joinUser(t, s, "u1", "Ada")
	if got := s.Revision(); got != 0 {
		t.Fatalf("revision after join = %d, want 0", got)
	}

	s.HandleMessage("u1", mustMsg(t, protocol.TypeCursorMove, protocol.CursorPayload{Position: 3}))
	if got := s.Revision(); got != 0 {
		t.Fatalf("revision after cursor move = %d, want 0", got)
	}

	s.HandleMessage("u1", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-1",
		Kind:        protocol.OpInsert,
		Position:    0,
		Text:        "hi",
	}))
	if got := s.Revision(); got != 1 {
		t.Fatalf("revision after insert = %d, want 1", got)
	}

	s.HandleMessage("u1", mustMsg(t, protocol.TypeAnnotationAdd, map[string]any{
		"id": "a1", "body": "check this",
	}))
	if got := s.Revision(); got != 2 {
		t.Fatalf("revision after annotation = %d, want 2", got)
	}

	// A rejected operation leaves the document alone.
	s.HandleMessage("u1", mustMsg(t, protocol.TypeOperation, protocol.Operation{
		OperationID: "op-2",
		Kind:        protocol.OpDelete,
	}))
	if got := s.Revision(); got != 2 {
		t.Fatalf("revision after rejected delete = %d, want still 2", got)
	}
}

func TestRegistry_GetOrCreateReusesSession(t *testing.T) {
	r := NewRegistry()
	calls := 0
	create := func() (*Session, error) {
		calls++
		return New(document.New("doc-1", "server")), nil
	}

	a, err := r.GetOrCreate("doc-1", create)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := r.GetOrCreate("doc-1", create)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a != b || calls != 1 {
		t.Fatalf("sessions not shared (calls=%d)", calls)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d", r.Len())
	}
}

func TestRegistry_GetOrCreateError(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetOrCreate("doc-1", func() (*Session, error) {
		return nil, errors.New("load failed")
	})
	if err == nil {
		t.Fatal("GetOrCreate swallowed the create error")
	}
	if r.Len() != 0 {
		t.Fatalf("failed create left %d sessions behind", r.Len())
	}
}

func TestRegistry_RemoveIf(t *testing.T) {
	r := NewRegistry()
	s, _ := r.GetOrCreate("doc-1", func() (*Session, error) {
		return New(document.New("doc-1", "server")), nil
	})
	joinUser(t, s, "u1", "Ada")

	if r.RemoveIf("doc-1", func(s *Session) bool { return s.IsEmpty() }) {
		t.Fatal("RemoveIf dropped a session with users")
	}
	s.Leave("u1")
	if !r.RemoveIf("doc-1", func(s *Session) bool { return s.IsEmpty() }) {
		t.Fatal("RemoveIf kept an empty session")
	}
	if _, ok := r.Get("doc-1"); ok {
		t.Fatal("session still registered after RemoveIf")
	}
}

func TestRegistry_DocumentIDs(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"zebra", "alpha", "mango"} {
		id := id
		r.GetOrCreate(id, func() (*Session, error) {
			return New(document.New(id, "server")), nil
		})
	}
	got := r.DocumentIDs()
	want := []string{"alpha", "mango", "zebra"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DocumentIDs = %v, want %v", got, want)
		}
	}
}
