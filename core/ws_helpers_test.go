package core

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type hubFixture struct {
	t      *testing.T
	hub    *Hub
	server *httptest.Server
}

func setUpHubFixture(t *testing.T, opts ...HubOption) *hubFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(append([]HubOption{WithLogger(logger)}, opts...)...)
	hub.Start()

	f := &hubFixture{
		t:      t,
		hub:    hub,
		server: httptest.NewServer(hub),
	}
	t.Cleanup(f.tearDown)
	return f
}

func (f *hubFixture) tearDown() {
	f.hub.Close()
	f.server.Close()
}

func (f *hubFixture) wsURL(room, role string) string {
	u, err := url.Parse(strings.Replace(f.server.URL, "http://", "ws://", 1))
	require.NoError(f.t, err)
	query := u.Query()
	if room != "" {
		query.Set(RoomQueryParam, room)
	}
	if role != "" {
		query.Set(RoleQueryParam, role)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// join dials the hub and waits until the registry reports members connections in room.
func (f *hubFixture) join(room, role string, members int) *testClient {
	c := dialTestClient(f.t, f.wsURL(room, role), nil)
	f.waitForMembers(room, members)
	return c
}

func (f *hubFixture) waitForMembers(room string, n int) {
	require.Eventually(f.t, func() bool {
		return len(f.hub.Registry().Members(room)) == n
	}, baseTimeout, baseTimeout/50, "timeout waiting for %d members in %q", n, room)
}

type testClient struct {
	conn   *websocket.Conn
	events chan *Event
	// closed receives the error that ended the read loop
	closed chan error
}

func dialTestClient(t *testing.T, rawURL string, header http.Header) *testClient {
	conn, res, err := websocket.DefaultDialer.Dial(rawURL, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, res.StatusCode)

	c := &testClient{
		conn:   conn,
		events: make(chan *Event, 64),
		closed: make(chan error, 1),
	}
	go c.readLoop()
	t.Cleanup(func() { c.conn.Close() })
	return c
}

func (c *testClient) readLoop() {
	defer close(c.events)
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			c.closed <- err
			return
		}
		var e Event
		if err := json.Unmarshal(b, &e); err != nil {
			continue
		}
		c.events <- &e
	}
}

func (c *testClient) send(t *testing.T, eventType string, payload interface{}) {
	e, err := NewEvent(eventType, payload)
	require.NoError(t, err)
	b, err := json.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, b))
}

func (c *testClient) sendRaw(t *testing.T, format int, b []byte) {
	require.NoError(t, c.conn.WriteMessage(format, b))
}

// expect returns the next event and fails unless it has the given type.
func (c *testClient) expect(t *testing.T, eventType string) *Event {
	t.Helper()
	select {
	case e, ok := <-c.events:
		require.True(t, ok, "connection closed while waiting for %s", eventType)
		require.Equal(t, eventType, e.Type)
		return e
	case <-time.After(baseTimeout):
		require.Failf(t, "timeout", "waiting for %s", eventType)
		return nil
	}
}

// expectNothing fails if an event arrives within d.
func (c *testClient) expectNothing(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e, ok := <-c.events:
		if ok {
			require.Failf(t, "unexpected event", "%s", e)
		}
	case <-time.After(d):
	}
}

func (c *testClient) leave() {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// waitClosed waits for the server to end the connection and returns the close code,
// or -1 when the connection ended without a close frame.
func (c *testClient) waitClosed(t *testing.T) int {
	t.Helper()
	select {
	case err := <-c.closed:
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return closeErr.Code
		}
		return -1
	case <-time.After(baseTimeout):
		require.Fail(t, "timeout waiting for the connection to close")
		return 0
	}
}
