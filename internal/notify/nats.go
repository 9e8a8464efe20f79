package notify

import (
	"context"

	"github.com/nats-io/nats.go"
)

// NATSBackend publishes collaboration events to a NATS subject. The
// document id travels in a message header so subscribers can filter
// without decoding the payload.
type NATSBackend struct {
	conn    *nats.Conn
	subject string
}

func NewNATSBackend(url, subject string) (*NATSBackend, error) {
	conn, err := nats.Connect(url, nats.Name("syncpad-notify"))
	if err != nil {
		return nil, err
	}
	return &NATSBackend{conn: conn, subject: subject}, nil
}

func (n *NATSBackend) Name() string {
	return "nats"
}

func (n *NATSBackend) Publish(_ context.Context, documentID string, payload []byte) error {
	msg := nats.NewMsg(n.subject)
	msg.Header.Set("Syncpad-Document", documentID)
	msg.Data = payload
	return n.conn.PublishMsg(msg)
}

// Close drains the connection so queued events flush before shutdown.
func (n *NATSBackend) Close() error {
	return n.conn.Drain()
}
