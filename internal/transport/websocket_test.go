package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newTestChannel upgrades a loopback connection and returns both ends:
// the server-side channel and the raw client connection.
func newTestChannel(t *testing.T) (*WSChannel, *websocket.Conn) {
	t.Helper()

	channels := make(chan *WSChannel, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		channels <- NewWSChannel(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case ch := <-channels:
		t.Cleanup(func() { ch.Close() })
		return ch, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never produced a channel")
		return nil, nil
	}
}

func TestWSChannel_SendReachesClient(t *testing.T) {
	ch, client := newTestChannel(t)

	if err := ch.Send([]byte(`{"message_type":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if got := string(data); got != `{"message_type":"ping"}` {
		t.Fatalf("client got %q", got)
	}
}

func TestWSChannel_ReceiveFromClient(t *testing.T) {
	ch, client := newTestChannel(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	data, err := ch.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Receive = %q, want hello", data)
	}
}

func TestWSChannel_CloseSendsCloseFrame(t *testing.T) {
	ch, client := newTestChannel(t)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	if err == nil {
		t.Fatal("client read succeeded after close")
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("close error = %v, want normal closure", err)
	}
}

func TestWSChannel_SendAfterCloseFails(t *testing.T) {
	ch, _ := newTestChannel(t)

	ch.Close()
	if err := ch.Send([]byte("late")); err != ErrClosed {
		t.Fatalf("Send after close = %v, want ErrClosed", err)
	}
}

func TestWSChannel_CloseFlushesQueuedFrames(t *testing.T) {
	ch, client := newTestChannel(t)

	if err := ch.Send([]byte("last words")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ch.Close()

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(data) != "last words" {
		t.Fatalf("client got %q before close", data)
	}
}

func TestWSChannel_UniqueIDs(t *testing.T) {
	a, _ := newTestChannel(t)
	b, _ := newTestChannel(t)

	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("ids not unique: %q vs %q", a.ID(), b.ID())
	}
}
