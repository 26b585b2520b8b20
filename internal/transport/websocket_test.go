// ABOUTME: Tests for the gorilla-based websocket transport
// ABOUTME: Covers connect lifecycle, direct send, room broadcast, and disconnect

package transport

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	transport *WSTransport
	server    *httptest.Server

	connected    chan string
	disconnected chan string
	messages     chan string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	f := &wsFixture{
		transport:    NewWSTransport(nil),
		connected:    make(chan string, 8),
		disconnected: make(chan string, 8),
		messages:     make(chan string, 8),
	}
	f.transport.SetHandlers(Handlers{
		OnConnect:    func(id string) { f.connected <- id },
		OnDisconnect: func(id string) { f.disconnected <- id },
		OnMessage:    func(id string, payload []byte) { f.messages <- string(payload) },
	})
	f.server = httptest.NewServer(f.transport)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func TestWSTransport_ConnectAndSend(t *testing.T) {
	f := newWSFixture(t)
	client := f.dial(t)

	connID := waitFor(t, f.connected, "connect")

	require.NoError(t, f.transport.Send(connID, "oh_event", map[string]any{"hello": "world"}))

	_, msg, err := client.ReadMessage()
	require.NoError(t, err)

	var fr struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &fr))
	assert.Equal(t, "oh_event", fr.Event)
	assert.Equal(t, "world", fr.Data["hello"])
}

func TestWSTransport_InboundMessage(t *testing.T) {
	f := newWSFixture(t)
	client := f.dial(t)

	waitFor(t, f.connected, "connect")

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"action":"run"}`)))
	got := waitFor(t, f.messages, "inbound message")
	assert.JSONEq(t, `{"action":"run"}`, got)
}

func TestWSTransport_RoomBroadcast(t *testing.T) {
	f := newWSFixture(t)
	client1 := f.dial(t)
	id1 := waitFor(t, f.connected, "first connect")
	client2 := f.dial(t)
	id2 := waitFor(t, f.connected, "second connect")

	f.transport.JoinRoom(id1, "room:c1")
	f.transport.JoinRoom(id2, "room:c1")

	require.NoError(t, f.transport.Broadcast("room:c1", "oh_event", map[string]any{"n": 1}))

	for _, client := range []*websocket.Conn{client1, client2} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(msg), `"oh_event"`)
	}
}

func TestWSTransport_SendToUnknownConnection(t *testing.T) {
	f := newWSFixture(t)
	err := f.transport.Send("no-such-conn", "oh_event", nil)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestWSTransport_PeerCloseFiresDisconnect(t *testing.T) {
	f := newWSFixture(t)
	client := f.dial(t)
	connID := waitFor(t, f.connected, "connect")

	client.Close()

	gone := waitFor(t, f.disconnected, "disconnect")
	assert.Equal(t, connID, gone)
}

func TestWSTransport_ServerDisconnect(t *testing.T) {
	f := newWSFixture(t)
	f.dial(t)
	connID := waitFor(t, f.connected, "connect")

	require.NoError(t, f.transport.Disconnect(connID))
	gone := waitFor(t, f.disconnected, "disconnect")
	assert.Equal(t, connID, gone)

	// Connection is gone from the transport
	assert.ErrorIs(t, f.transport.Send(connID, "oh_event", nil), ErrConnectionNotFound)
}
