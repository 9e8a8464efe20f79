// Package session manages live collaboration sessions: the set of users
// connected to one document, routing of their messages into the document
// replica and fan-out of the results.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eniz1806/SyncPad/internal/document"
	"github.com/eniz1806/SyncPad/internal/protocol"
)

// ErrClosed is returned when a session has been shut down.
var ErrClosed = errors.New("session closed")

// Conn is the minimal connection contract the session needs. The
// transport package provides the websocket implementation.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// User is one participant in a session.
type User struct {
	ID        string    `json:"user_id"`
	Name      string    `json:"user_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Color     string    `json:"color"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Selection is a user's highlighted range.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Session serializes all access to one document replica and its
// participants behind a single mutex. Every message for the document
// flows through HandleMessage.
type Session struct {
	mu sync.Mutex

	documentID string
	doc        *document.Document

	users      map[string]*User
	conns      map[string]Conn
	cursors    map[string]int
	selections map[string]Selection

	rev          uint64
	colorIndex   int
	createdAt    time.Time
	lastActivity time.Time
	closed       bool
}

// New wraps a document in a fresh session with no participants.
func New(doc *document.Document) *Session {
	now := time.Now().UTC()
	return &Session{
		documentID:   doc.ID(),
		doc:          doc,
		users:        make(map[string]*User),
		conns:        make(map[string]Conn),
		cursors:      make(map[string]int),
		selections:   make(map[string]Selection),
		createdAt:    now,
		lastActivity: now,
	}
}

// Join registers a connection for the user, assigns the next palette
// color and runs the welcome sequence: full document state to the
// joiner, a join broadcast to everyone else, then the presence map to
// the joiner.
func (s *Session) Join(conn Conn, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if old, ok := s.conns[user.ID]; ok {
		// Same user reconnecting: the stale connection goes quietly.
		old.Close()
		delete(s.conns, user.ID)
	}

	user.Color = colorForIndex(s.colorIndex)
	s.colorIndex++
	user.JoinedAt = time.Now().UTC()
	s.users[user.ID] = &user
	s.conns[user.ID] = conn
	s.doc.UpdatePresence(user.ID, s.presenceFields(user.ID))
	s.touch()

	state, err := protocol.New(protocol.TypeDocumentState, s.doc.View())
	if err != nil {
		return fmt.Errorf("build document state: %w", err)
	}
	state.DocumentID = s.documentID
	s.sendTo(user.ID, state)
	if _, ok := s.conns[user.ID]; !ok {
		// The very first send failed and deregistered the connection;
		// nobody was told about the join, so nothing to announce.
		return fmt.Errorf("connection lost during join")
	}

	joined, err := protocol.New(protocol.TypeUserJoin, protocol.UserPayload{
		UserID:    user.ID,
		UserName:  user.Name,
		AvatarURL: user.AvatarURL,
		Color:     user.Color,
	})
	if err != nil {
		return fmt.Errorf("build join broadcast: %w", err)
	}
	joined.UserID = user.ID
	joined.DocumentID = s.documentID
	s.fanOut(joined, user.ID)

	presence, err := protocol.New(protocol.TypePresenceUpdate, s.doc.Presence())
	if err != nil {
		return fmt.Errorf("build presence update: %w", err)
	}
	presence.DocumentID = s.documentID
	s.sendTo(user.ID, presence)

	slog.Info("session user joined",
		"document_id", s.documentID, "user_id", user.ID, "users", len(s.users))
	return nil
}

// Leave removes the user, tells the remaining participants and closes
// the connection. Reports whether the user was present.
func (s *Session) Leave(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return false
	}
	s.leave(userID, true)
	s.touch()
	return true
}

// HandleMessage applies one decoded frame from a connected user. Unknown
// or malformed messages are logged and dropped; they never tear the
// session down.
func (s *Session) HandleMessage(userID string, msg *protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.conns[userID]; !ok {
		slog.Warn("session dropping message from unknown user",
			"document_id", s.documentID, "user_id", userID, "type", msg.Type)
		return
	}
	s.touch()

	switch msg.Type {
	case protocol.TypeOperation:
		s.handleOperation(userID, msg)
	case protocol.TypeCursorMove:
		s.handleCursor(userID, msg)
	case protocol.TypeSelectionChange:
		s.handleSelection(userID, msg)
	case protocol.TypeAnnotationAdd, protocol.TypeAnnotationUpdate:
		s.handleItemPut(userID, msg, itemAnnotation)
	case protocol.TypeAnnotationRemove:
		s.handleItemRemove(userID, msg, itemAnnotation)
	case protocol.TypeActionItemAdd, protocol.TypeActionItemUpdate:
		s.handleItemPut(userID, msg, itemActionItem)
	case protocol.TypeActionItemRemove:
		s.handleItemRemove(userID, msg, itemActionItem)
	case protocol.TypeUserUpdate:
		s.handleUserUpdate(userID, msg)
	case protocol.TypeUserLeave:
		s.leave(userID, true)
	case protocol.TypePing:
		pong, err := protocol.New(protocol.TypePong, nil)
		if err == nil {
			pong.DocumentID = s.documentID
			s.sendTo(userID, pong)
		}
	default:
		slog.Debug("session dropping message",
			"document_id", s.documentID, "user_id", userID, "type", msg.Type)
	}
}

// handleOperation applies a text operation and, on success, broadcasts
// it to everyone else and acks the sender. Failures go back to the
// sender alone.
func (s *Session) handleOperation(userID string, msg *protocol.Message) {
	var op protocol.Operation
	if err := msg.DecodeData(&op); err != nil {
		s.reject(userID, "", err.Error())
		return
	}

	switch op.Kind {
	case protocol.OpInsert:
		nodeID, err := s.doc.InsertText(op.Position, op.Text)
		if err != nil {
			s.reject(userID, op.OperationID, err.Error())
			return
		}
		// Outbound inserts carry the minted node id so every replica
		// can address this content later.
		op.TargetRef = nodeID
	case protocol.OpDelete:
		if op.TargetRef == "" {
			s.reject(userID, op.OperationID, "delete needs a target_ref")
			return
		}
		if !s.doc.DeleteText(op.TargetRef) {
			s.reject(userID, op.OperationID, fmt.Sprintf("unknown content node %q", op.TargetRef))
			return
		}
	default:
		s.reject(userID, op.OperationID, fmt.Sprintf("unsupported operation type %q", op.Kind))
		return
	}
	s.rev++

	out, err := protocol.New(protocol.TypeOperation, op)
	if err != nil {
		slog.Error("session building operation broadcast", "error", err)
		return
	}
	out.UserID = userID
	out.DocumentID = s.documentID
	s.fanOut(out, userID)

	ack, err := protocol.New(protocol.TypeOperationAck, protocol.AckPayload{
		OperationID: op.OperationID,
		TargetRef:   op.TargetRef,
	})
	if err != nil {
		slog.Error("session building operation ack", "error", err)
		return
	}
	ack.DocumentID = s.documentID
	s.sendTo(userID, ack)
}

func (s *Session) handleCursor(userID string, msg *protocol.Message) {
	var p protocol.CursorPayload
	if err := msg.DecodeData(&p); err != nil {
		slog.Warn("session dropping cursor move", "user_id", userID, "error", err)
		return
	}
	s.cursors[userID] = p.Position
	s.doc.UpdatePresence(userID, s.presenceFields(userID))
	s.relay(userID, protocol.TypeCursorMove, p)
}

func (s *Session) handleSelection(userID string, msg *protocol.Message) {
	var p protocol.SelectionPayload
	if err := msg.DecodeData(&p); err != nil {
		slog.Warn("session dropping selection change", "user_id", userID, "error", err)
		return
	}
	s.selections[userID] = Selection{Start: p.Start, End: p.End}
	s.doc.UpdatePresence(userID, s.presenceFields(userID))
	s.relay(userID, protocol.TypeSelectionChange, p)
}

func (s *Session) handleUserUpdate(userID string, msg *protocol.Message) {
	var p protocol.UserPayload
	if err := msg.DecodeData(&p); err != nil {
		slog.Warn("session dropping user update", "user_id", userID, "error", err)
		return
	}
	u := s.users[userID]
	if p.UserName != "" {
		u.Name = p.UserName
	}
	if p.AvatarURL != "" {
		u.AvatarURL = p.AvatarURL
	}
	s.doc.UpdatePresence(userID, s.presenceFields(userID))
	s.relay(userID, protocol.TypeUserUpdate, protocol.UserPayload{
		UserID:    userID,
		UserName:  u.Name,
		AvatarURL: u.AvatarURL,
		Color:     u.Color,
	})
}

type itemKind int

const (
	itemAnnotation itemKind = iota
	itemActionItem
)

// handleItemPut stores an annotation or action item and broadcasts it to
// every participant, the sender included, so all sides render the
// server-stamped fields.
func (s *Session) handleItemPut(userID string, msg *protocol.Message, kind itemKind) {
	p, err := protocol.ParseItemPayload(msg.Data)
	if err != nil {
		slog.Warn("session dropping item message",
			"user_id", userID, "type", msg.Type, "error", err)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	adding := msg.Type == protocol.TypeAnnotationAdd || msg.Type == protocol.TypeActionItemAdd
	if adding {
		p.Fields["author"] = userID
		p.Fields["created_at"] = now
	} else {
		// Updates overlay the stored fields so partial payloads keep
		// everything they did not resend, the author stamp included.
		if existing, ok := s.itemFields(kind, p.ID); ok {
			merged := make(map[string]any, len(existing)+len(p.Fields))
			for k, v := range existing {
				merged[k] = v
			}
			for k, v := range p.Fields {
				merged[k] = v
			}
			p.Fields = merged
		}
	}
	p.Fields["updated_at"] = now

	switch kind {
	case itemAnnotation:
		s.doc.PutAnnotation(p.ID, p.Fields)
	case itemActionItem:
		s.doc.PutActionItem(p.ID, p.Fields)
	}
	s.rev++

	body, err := p.Encode()
	if err != nil {
		slog.Error("session encoding item broadcast", "error", err)
		return
	}
	out, err := protocol.New(msg.Type, nil)
	if err != nil {
		slog.Error("session building item broadcast", "error", err)
		return
	}
	out.Data = body
	out.UserID = userID
	out.DocumentID = s.documentID
	s.fanOut(out, "")
}

func (s *Session) handleItemRemove(userID string, msg *protocol.Message, kind itemKind) {
	p, err := protocol.ParseItemPayload(msg.Data)
	if err != nil {
		slog.Warn("session dropping item remove",
			"user_id", userID, "type", msg.Type, "error", err)
		return
	}
	switch kind {
	case itemAnnotation:
		s.doc.RemoveAnnotation(p.ID)
	case itemActionItem:
		s.doc.RemoveActionItem(p.ID)
	}
	s.rev++
	s.relayAll(userID, msg.Type, map[string]string{"id": p.ID})
}

func (s *Session) itemFields(kind itemKind, id string) (map[string]any, bool) {
	var items map[string]any
	switch kind {
	case itemAnnotation:
		items = s.doc.Annotations()
	case itemActionItem:
		items = s.doc.ActionItems()
	}
	fields, ok := items[id].(map[string]any)
	return fields, ok
}

// MergeRemote folds a peer replica's serialized document state into the
// live document and pushes the refreshed view to every participant.
func (s *Session) MergeRemote(state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	remote, err := document.FromState(state)
	if err != nil {
		return err
	}
	if err := s.doc.Merge(remote); err != nil {
		return err
	}
	s.rev++
	s.touch()

	out, err := protocol.New(protocol.TypeDocumentUpdate, s.doc.View())
	if err != nil {
		return fmt.Errorf("build document update: %w", err)
	}
	out.DocumentID = s.documentID
	s.fanOut(out, "")
	return nil
}

// CloseAll force-disconnects every participant and marks the session
// closed. Later joins and messages are refused.
func (s *Session) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for userID, conn := range s.conns {
		conn.Close()
		s.doc.RemovePresence(userID)
	}
	s.conns = make(map[string]Conn)
	s.users = make(map[string]*User)
	s.cursors = make(map[string]int)
	s.selections = make(map[string]Selection)
	slog.Info("session closed", "document_id", s.documentID)
}

// DocumentID returns the id of the session's document.
func (s *Session) DocumentID() string { return s.documentID }

// UserCount returns the number of connected users.
func (s *Session) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// IsEmpty reports whether nobody is connected.
func (s *Session) IsEmpty() bool {
	return s.UserCount() == 0
}

// LastActivity returns when the session last saw a message or
// membership change.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// Users returns the participants ordered by join time.
func (s *Session) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Revision counts durable edits: text operations, annotation and action
// item changes, and remote merges. Presence churn does not advance it.
// Persistence can skip sessions whose revision has not moved.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// DocumentView renders the current document for read-only consumers.
func (s *Session) DocumentView() document.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.View()
}

// DocumentState serializes the full replicated document state.
func (s *Session) DocumentState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.MarshalState()
}

// relay rebuilds a payload-carrying message under the sender's id and
// broadcasts it to everyone else.
func (s *Session) relay(userID string, t protocol.MessageType, payload any) {
	out, err := protocol.New(t, payload)
	if err != nil {
		slog.Error("session building broadcast", "type", t, "error", err)
		return
	}
	out.UserID = userID
	out.DocumentID = s.documentID
	s.fanOut(out, userID)
}

// relayAll is relay without excluding the sender.
func (s *Session) relayAll(userID string, t protocol.MessageType, payload any) {
	out, err := protocol.New(t, payload)
	if err != nil {
		slog.Error("session building broadcast", "type", t, "error", err)
		return
	}
	out.UserID = userID
	out.DocumentID = s.documentID
	s.fanOut(out, "")
}

// reject tells the sender, and only the sender, that an operation was
// refused.
func (s *Session) reject(userID, operationID, reason string) {
	out, err := protocol.New(protocol.TypeOperationReject, protocol.RejectPayload{
		OperationID: operationID,
		Error:       reason,
	})
	if err != nil {
		slog.Error("session building reject", "error", err)
		return
	}
	out.DocumentID = s.documentID
	s.sendTo(userID, out)
	slog.Warn("session rejected operation",
		"document_id", s.documentID, "user_id", userID, "reason", reason)
}

// fanOut sends the message to every connection except exclude. Failed
// connections are collected during the walk and deregistered afterwards
// so the loop never mutates the map it ranges over. Caller holds mu.
func (s *Session) fanOut(msg *protocol.Message, exclude string) {
	data, err := msg.Encode()
	if err != nil {
		slog.Error("session encoding broadcast", "type", msg.Type, "error", err)
		return
	}
	var failed []string
	for userID, conn := range s.conns {
		if userID == exclude {
			continue
		}
		if err := conn.Send(data); err != nil {
			slog.Warn("session send failed",
				"document_id", s.documentID, "user_id", userID, "error", err)
			failed = append(failed, userID)
		}
	}
	for _, userID := range failed {
		s.leave(userID, true)
	}
}

// sendTo delivers one message to one user. A failed send deregisters the
// connection like any other dead peer. Caller holds mu.
func (s *Session) sendTo(userID string, msg *protocol.Message) {
	conn, ok := s.conns[userID]
	if !ok {
		return
	}
	data, err := msg.Encode()
	if err != nil {
		slog.Error("session encoding message", "type", msg.Type, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Warn("session send failed",
			"document_id", s.documentID, "user_id", userID, "error", err)
		s.leave(userID, true)
	}
}

// leave removes a user and optionally broadcasts the departure. Caller
// holds mu.
func (s *Session) leave(userID string, notify bool) {
	u, ok := s.users[userID]
	if !ok {
		return
	}
	if conn, ok := s.conns[userID]; ok {
		conn.Close()
	}
	delete(s.users, userID)
	delete(s.conns, userID)
	delete(s.cursors, userID)
	delete(s.selections, userID)
	s.doc.RemovePresence(userID)

	slog.Info("session user left",
		"document_id", s.documentID, "user_id", userID, "users", len(s.users))
	if notify {
		left, err := protocol.New(protocol.TypeUserLeave, protocol.UserPayload{
			UserID:   userID,
			UserName: u.Name,
		})
		if err != nil {
			slog.Error("session building leave broadcast", "error", err)
			return
		}
		left.UserID = userID
		left.DocumentID = s.documentID
		s.fanOut(left, userID)
	}
}

// presenceFields assembles the presence entry mirrored into the document
// for one user. Caller holds mu.
func (s *Session) presenceFields(userID string) map[string]any {
	fields := make(map[string]any)
	if u, ok := s.users[userID]; ok {
		fields["user_name"] = u.Name
		fields["color"] = u.Color
	}
	if pos, ok := s.cursors[userID]; ok {
		fields["cursor"] = pos
	}
	if sel, ok := s.selections[userID]; ok {
		fields["selection"] = map[string]any{"start": sel.Start, "end": sel.End}
	}
	return fields
}

// touch bumps the activity stamp. Caller holds mu.
func (s *Session) touch() {
	s.lastActivity = time.Now().UTC()
}
