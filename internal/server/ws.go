package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/eniz1806/SyncPad/internal/auditlog"
	"github.com/eniz1806/SyncPad/internal/document"
	"github.com/eniz1806/SyncPad/internal/identity"
	"github.com/eniz1806/SyncPad/internal/notify"
	"github.com/eniz1806/SyncPad/internal/protocol"
	"github.com/eniz1806/SyncPad/internal/session"
	"github.com/eniz1806/SyncPad/internal/snapshot"
	"github.com/eniz1806/SyncPad/internal/transport"
)

// documentNotifyInterval throttles DocumentUpdated events per document.
// Integrations want a change signal, not one event per keystroke.
const documentNotifyInterval = 10 * time.Second

// handleWS upgrades the connection and runs its whole lifetime: the
// USER_JOIN handshake, the per-message loop, and the leave on exit.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ch := transport.NewWSChannel(conn)
	s.collector.RecordConnect()
	defer s.collector.RecordDisconnect()
	defer ch.Close()
	if s.limiter != nil {
		defer s.limiter.Forget(ch.ID())
	}

	ip := clientIP(r)
	join, err := awaitJoin(ch)
	if err != nil {
		// Handshake failures never touch any session state.
		s.collector.RecordError()
		slog.Warn("websocket handshake rejected", "remote", r.RemoteAddr, "error", err)
		sendError(ch, err.Error())
		return
	}

	ident, err := s.provider.Authenticate(identity.JoinRequest{
		UserID:     join.UserID,
		UserName:   join.UserName,
		AvatarURL:  join.AvatarURL,
		DocumentID: join.DocumentID,
		ClientIP:   ip,
	})
	if err != nil {
		if errors.Is(err, identity.ErrDenied) {
			slog.Warn("join denied",
				"document_id", join.DocumentID, "user_id", join.UserID, "error", err)
			s.auditEvent(auditlog.Entry{
				Event:      "join_denied",
				DocumentID: join.DocumentID,
				UserID:     join.UserID,
				ClientIP:   ip,
				Detail:     map[string]any{"reason": err.Error()},
			})
		} else {
			slog.Error("identity provider error",
				"document_id", join.DocumentID, "user_id", join.UserID, "error", err)
		}
		sendError(ch, err.Error())
		return
	}

	user := session.User{ID: ident.UserID, Name: ident.UserName, AvatarURL: ident.AvatarURL}
	var sess *session.Session
	var created bool
	for attempt := 0; ; attempt++ {
		sess, created, err = s.openSession(join.DocumentID)
		if err != nil {
			slog.Error("opening session", "document_id", join.DocumentID, "error", err)
			sendError(ch, "could not open document")
			return
		}
		err = sess.Join(ch, user)
		if err == nil {
			break
		}
		if errors.Is(err, session.ErrClosed) && attempt < 2 {
			// The reaper closed the session between lookup and join; the
			// next round creates a fresh one.
			continue
		}
		slog.Warn("join failed",
			"document_id", join.DocumentID, "user_id", user.ID, "error", err)
		sendError(ch, "could not join document")
		return
	}

	s.auditEvent(auditlog.Entry{
		Event:      "user_join",
		DocumentID: join.DocumentID,
		UserID:     user.ID,
		ClientIP:   ip,
	})
	if created {
		s.notifyDisp.Dispatch(notify.EventSessionOpened, join.DocumentID, user.ID, nil)
	}
	s.notifyDisp.Dispatch(notify.EventUserJoined, join.DocumentID, user.ID,
		map[string]any{"user_name": user.Name})

	for {
		raw, err := ch.Receive()
		if err != nil {
			break
		}
		if s.limiter != nil && !s.limiter.Allow(ch.ID(), user.ID) {
			sendError(ch, "rate limit exceeded")
			continue
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			s.collector.RecordError()
			sendError(ch, err.Error())
			continue
		}
		s.collector.RecordMessage(msg.Type)
		sess.HandleMessage(user.ID, msg)
		if changesContent(msg.Type) {
			s.noteDocumentChange(join.DocumentID, user.ID)
		}
	}

	if sess.Leave(user.ID) {
		s.auditEvent(auditlog.Entry{
			Event:      "user_leave",
			DocumentID: join.DocumentID,
			UserID:     user.ID,
			ClientIP:   ip,
		})
		s.notifyDisp.Dispatch(notify.EventUserLeft, join.DocumentID, user.ID, nil)
	}
}

// awaitJoin reads the handshake frame. The first message on every
// connection must be a valid USER_JOIN; anything else ends the
// connection before any session state is touched.
func awaitJoin(ch *transport.WSChannel) (*protocol.JoinPayload, error) {
	raw, err := ch.Receive()
	if err != nil {
		return nil, fmt.Errorf("read join frame: %w", err)
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	if msg.Type != protocol.TypeUserJoin {
		return nil, fmt.Errorf("expected %s as first message, got %s", protocol.TypeUserJoin, msg.Type)
	}
	var join protocol.JoinPayload
	if err := msg.DecodeData(&join); err != nil {
		return nil, err
	}
	if err := join.Validate(); err != nil {
		return nil, err
	}
	return &join, nil
}

// openSession returns the live session for the document, creating one
// seeded from the snapshot store when none exists.
func (s *Server) openSession(documentID string) (*session.Session, bool, error) {
	created := false
	sess, err := s.registry.GetOrCreate(documentID, func() (*session.Session, error) {
		doc, err := s.loadDocument(documentID)
		if err != nil {
			return nil, err
		}
		created = true
		return session.New(doc), nil
	})
	return sess, created, err
}

// loadDocument seeds a replica from the snapshot store when a saved copy
// exists, otherwise starts the document empty.
func (s *Server) loadDocument(documentID string) (*document.Document, error) {
	if s.store != nil {
		state, err := s.store.Load(documentID)
		switch {
		case err == nil:
			doc, err := document.Load(state, s.replicaID)
			if err != nil {
				return nil, fmt.Errorf("load document %q: %w", documentID, err)
			}
			return doc, nil
		case !errors.Is(err, snapshot.ErrNotFound):
			return nil, fmt.Errorf("load document %q: %w", documentID, err)
		}
	}
	return document.New(documentID, s.replicaID), nil
}

// changesContent reports whether the message durably changes document
// content. Presence churn (cursors, selections, profile edits) stays
// local; pushing full state per cursor move would swamp the sync queue.
func changesContent(t protocol.MessageType) bool {
	switch t {
	case protocol.TypeOperation,
		protocol.TypeAnnotationAdd, protocol.TypeAnnotationUpdate, protocol.TypeAnnotationRemove,
		protocol.TypeActionItemAdd, protocol.TypeActionItemUpdate, protocol.TypeActionItemRemove:
		return true
	}
	return false
}

// noteDocumentChange marks the document dirty for site sync, emits a
// throttled DocumentUpdated event and refreshes the search index on the
// same throttle. A rejected edit marks too; the extra push carries
// unchanged state and merges to a no-op on the peer.
func (s *Server) noteDocumentChange(documentID, userID string) {
	if s.changeLog != nil {
		s.changeLog.Mark(documentID, s.peerNames)
	}

	s.notifyMu.Lock()
	now := time.Now()
	throttled := now.Sub(s.lastNotify[documentID]) < documentNotifyInterval
	if !throttled {
		s.lastNotify[documentID] = now
	}
	s.notifyMu.Unlock()
	if throttled {
		return
	}
	s.notifyDisp.Dispatch(notify.EventDocumentUpdated, documentID, userID, nil)
	if sess, ok := s.registry.Get(documentID); ok {
		s.search.Update(sess.DocumentView())
	}
}

// forgetDocument clears per-document throttle state after a session is
// reaped.
func (s *Server) forgetDocument(documentID string) {
	s.notifyMu.Lock()
	delete(s.lastNotify, documentID)
	s.notifyMu.Unlock()
}

// reindexStored refreshes the search index from the stored copy of a
// document. Edits inside the notify throttle window miss the live
// refresh, so the final flush is re-read after a session ends. A
// document with no stored copy left drops out of the index.
func (s *Server) reindexStored(documentID string) {
	if s.store == nil {
		return
	}
	state, err := s.store.Load(documentID)
	if errors.Is(err, snapshot.ErrNotFound) {
		s.search.Remove(documentID)
		return
	}
	if err != nil {
		return
	}
	doc, err := document.FromState(state)
	if err != nil {
		return
	}
	s.search.Update(doc.View())
}

func (s *Server) auditEvent(entry auditlog.Entry) {
	if s.audit != nil {
		s.audit.Log(entry)
	}
}

// sendError queues an ERROR frame. The channel drains queued frames
// before closing, so this works right before a Close.
func sendError(ch *transport.WSChannel, msg string) {
	m, err := protocol.New(protocol.TypeError, protocol.ErrorPayload{Error: msg})
	if err != nil {
		return
	}
	data, err := m.Encode()
	if err != nil {
		return
	}
	ch.Send(data)
}

// originChecker builds the upgrade origin policy. An empty list keeps
// the gorilla default, which only admits same-origin requests. A "*"
// entry opens the endpoint to every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
