package core

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTimeout = time.Second

func TestMessagesStayInsideRoom(t *testing.T) {
	f := setUpHubFixture(t)

	a := f.join("alpha", "participant", 1)
	b := f.join("alpha", "counterpart", 2)
	c := f.join("beta", "participant", 1)

	a.send(t, SendMessageEvent, ChatMessage{ID: "1", Text: "hi", Room: "alpha", SenderRole: RoleParticipant})

	for _, client := range []*testClient{a, b} {
		e := client.expect(t, MessageEvent)
		var msg ChatMessage
		require.NoError(t, e.Decode(&msg))
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, "1", msg.ID)
	}
	c.expectNothing(t, 100*time.Millisecond)
}

func TestPayloadRelayedVerbatim(t *testing.T) {
	f := setUpHubFixture(t)

	a := f.join("alpha", "", 1)
	b := f.join("alpha", "", 2)

	payload := map[string]interface{}{"id": "x", "text": "a", "extra": []int{1, 2}}
	a.send(t, SendMessageEvent, payload)

	e := b.expect(t, MessageEvent)
	assert.JSONEq(t, `{"id":"x","text":"a","extra":[1,2]}`, string(e.Payload))
}

func TestClientMessageReachesWholeRoom(t *testing.T) {
	f := setUpHubFixture(t)

	a := f.join("alpha", "participant", 1)
	b := f.join("alpha", "counterpart", 2)
	other := f.join("beta", "counterpart", 1)

	a.send(t, ClientMessageEvent, "typing…")
	for _, c := range []*testClient{a, b} {
		e := c.expect(t, ClientMessageEvent)
		var draft string
		require.NoError(t, e.Decode(&draft))
		assert.Equal(t, "typing…", draft)
	}
	other.expectNothing(t, 100*time.Millisecond)
}

func TestRoomIdentifierIsVerbatim(t *testing.T) {
	f := setUpHubFixture(t)

	padded := f.join(" alpha", "participant", 1)
	plain := f.join("alpha", "participant", 1)
	f.waitForMembers(" alpha", 1)
	assert.Equal(t, 2, f.hub.Registry().Len())

	padded.send(t, SendMessageEvent, map[string]string{"id": "1", "text": "hi"})
	padded.expect(t, MessageEvent)
	plain.expectNothing(t, 100*time.Millisecond)
}

func TestControlEventsReachEveryone(t *testing.T) {
	f := setUpHubFixture(t)

	a := f.join("alpha", "participant", 1)
	b := f.join("alpha", "counterpart", 2)

	tcs := []struct {
		event   string
		payload interface{}
	}{
		{event: ToggleDecodingEvent, payload: true},
		{event: ToggleDistortionEvent, payload: false},
		{event: ToggleSlowTypingEvent, payload: true},
		{event: AdjustVolumeEvent, payload: 0.25},
		{event: UpdateFontStyleEvent, payload: DefaultFontStyle()},
	}
	for _, tc := range tcs {
		b.send(t, tc.event, tc.payload)
		a.expect(t, tc.event)
		b.expect(t, tc.event)
	}
}

func TestEventsKeepPerSenderOrder(t *testing.T) {
	f := setUpHubFixture(t)

	a := f.join("alpha", "", 1)
	b := f.join("alpha", "", 2)

	for i := 0; i < 20; i++ {
		a.send(t, AdjustVolumeEvent, float64(i)/20)
	}
	for i := 0; i < 20; i++ {
		e := b.expect(t, AdjustVolumeEvent)
		var v float64
		require.NoError(t, e.Decode(&v))
		assert.Equal(t, float64(i)/20, v)
	}
}

func TestMissingRoomIsRejected(t *testing.T) {
	f := setUpHubFixture(t)

	_, res, err := websocket.DefaultDialer.Dial(f.wsURL("", "participant"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, 0, f.hub.Registry().Len())
}

func TestHandshakeFromHeaders(t *testing.T) {
	f := setUpHubFixture(t)

	header := http.Header{}
	header.Set(RoomHeader, "gamma")
	header.Set(RoleHeader, "counterpart")
	dialTestClient(t, f.wsURL("", ""), header)
	f.waitForMembers("gamma", 1)

	info, ok := f.hub.Registry().Lookup("gamma")
	require.True(t, ok)
	assert.Equal(t, 1, info.Counterparts)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	f := setUpHubFixture(t)

	var left atomic.Int32
	f.hub.OnDisconnect(func(c *Conn) {
		left.Add(1)
	})

	a := f.join("alpha", "", 1)
	b := f.join("alpha", "", 2)

	a.leave()
	f.waitForMembers("alpha", 1)

	b.send(t, SendMessageEvent, ChatMessage{ID: "2", Text: "still here", Room: "alpha"})
	b.expect(t, MessageEvent)

	b.leave()
	require.Eventually(t, func() bool {
		return f.hub.Registry().Len() == 0
	}, baseTimeout, baseTimeout/50)
	assert.EqualValues(t, 2, left.Load())
}

func TestMalformedFramesAreDropped(t *testing.T) {
	f := setUpHubFixture(t)

	a := f.join("alpha", "", 1)

	a.sendRaw(t, websocket.TextMessage, []byte("not json"))
	a.sendRaw(t, websocket.TextMessage, []byte(`{"payload":1}`))
	a.sendRaw(t, websocket.BinaryMessage, []byte{0x01, 0x02})
	a.send(t, "noSuchEvent", 1)
	a.send(t, ToggleDecodingEvent, true)

	e := a.expect(t, ToggleDecodingEvent)
	assert.JSONEq(t, "true", string(e.Payload))
	assert.Len(t, f.hub.Registry().Members("alpha"), 1)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	f := setUpHubFixture(t, WithCloseTimeout(baseTimeout))

	a := f.join("alpha", "", 1)
	b := f.join("beta", "", 1)

	f.hub.Close()

	assert.Equal(t, websocket.CloseNormalClosure, a.waitClosed(t))
	assert.Equal(t, websocket.CloseNormalClosure, b.waitClosed(t))
	assert.Equal(t, StateClosed, f.hub.State())
	assert.Equal(t, 0, f.hub.Registry().Len())
}

func TestFullQueueDropsEvents(t *testing.T) {
	f := setUpHubFixture(t)

	a := f.join("alpha", "", 1)
	members := f.hub.Registry().Members("alpha")
	require.Len(t, members, 1)
	conn := members[0]

	// a queue with no room left must not block the broadcaster
	full := &Conn{id: conn.id + 1000, room: "alpha", writeStream: make(chan *Event), logger: conn.logger}
	done := make(chan struct{})
	go func() {
		f.hub.sendOrDrop(full, &Event{Type: MessageEvent})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(baseTimeout):
		require.Fail(t, "sendOrDrop blocked on a full queue")
	}

	a.send(t, ToggleSlowTypingEvent, true)
	a.expect(t, ToggleSlowTypingEvent)
}

func TestHandshakeRejectedWhenHubNotRunning(t *testing.T) {
	hub := NewHub(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCloseTimeout(baseTimeout))
	server := httptest.NewServer(hub)
	defer server.Close()
	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "?room=alpha"

	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	hub.Start()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()
	hub.Close()

	_, res, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, 0, hub.Registry().Len())
}
