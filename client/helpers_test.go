package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/putto11262002/compartment/core"
	"github.com/putto11262002/compartment/effects"
	"github.com/stretchr/testify/require"
)

var (
	baseTimeout   = 2 * time.Second
	discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type relayFixture struct {
	t      *testing.T
	hub    *core.Hub
	server *httptest.Server
	url    string
}

func setUpRelay(t *testing.T) *relayFixture {
	hub := core.NewHub(core.WithLogger(discardLogger), core.WithCloseTimeout(baseTimeout))
	hub.Start()
	server := httptest.NewServer(hub)
	f := &relayFixture{
		t:      t,
		hub:    hub,
		server: server,
		url:    strings.Replace(server.URL, "http://", "ws://", 1) + "/ws",
	}
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return f
}

func (f *relayFixture) session(opts ...SessionOption) *Session {
	return NewSession(f.url, append([]SessionOption{WithLogger(discardLogger)}, opts...)...)
}

// join connects a room with a recording view and waits until the relay counts
// members connections in room.
func (f *relayFixture) join(room string, role core.Role, members int) (*Room, *recordingView) {
	view := newRecordingView()
	r := NewRoom(f.session(), view, WithEngineOptions(
		effects.WithTypingTick(time.Millisecond),
		effects.WithDecodeTick(time.Millisecond),
	))
	ctx, cancel := context.WithTimeout(context.Background(), baseTimeout)
	defer cancel()
	require.NoError(f.t, r.Connect(ctx, room, role))
	f.t.Cleanup(func() { r.Close() })

	require.Eventually(f.t, func() bool {
		return len(f.hub.Registry().Members(room)) == members
	}, baseTimeout, time.Millisecond, "timeout waiting for %d members in %q", members, room)
	return r, view
}

type recordingView struct {
	mu       sync.Mutex
	messages []core.ChatMessage
	updates  map[string][]string
	drafts   []string
	controls []core.ControlState
	states   []SessionState
}

func newRecordingView() *recordingView {
	return &recordingView{updates: make(map[string][]string)}
}

func (v *recordingView) MessageAppended(msg core.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, msg)
}

func (v *recordingView) ContentUpdate(id, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates[id] = append(v.updates[id], text)
}

func (v *recordingView) DraftUpdated(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drafts = append(v.drafts, text)
}

func (v *recordingView) ControlChanged(state core.ControlState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.controls = append(v.controls, state)
}

func (v *recordingView) StateChanged(state SessionState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = append(v.states, state)
}

func (v *recordingView) Messages() []core.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]core.ChatMessage(nil), v.messages...)
}

func (v *recordingView) Updates(id string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.updates[id]...)
}

func (v *recordingView) Drafts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.drafts...)
}

func (v *recordingView) Controls() []core.ControlState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]core.ControlState(nil), v.controls...)
}

// waitForControls waits until the view has seen n control state changes,
// local mutations and relayed events alike.
func (v *recordingView) waitForControls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(v.Controls()) >= n
	}, baseTimeout, time.Millisecond, "timeout waiting for %d control changes", n)
}

func (v *recordingView) States() []SessionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]SessionState(nil), v.states...)
}

// fakeTransport records emitted events and lets tests deliver inbound ones.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []*core.Event
	handlers map[string]Handler
	err      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]Handler)}
}

func (tr *fakeTransport) Send(event string, payload interface{}) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.err != nil {
		return tr.err
	}
	e, err := core.NewEvent(event, payload)
	if err != nil {
		return err
	}
	tr.sent = append(tr.sent, e)
	return nil
}

func (tr *fakeTransport) On(event string, h Handler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.handlers[event] = h
}

func (tr *fakeTransport) deliver(event, payload string) {
	tr.mu.Lock()
	h := tr.handlers[event]
	tr.mu.Unlock()
	h(&core.Event{Type: event, Payload: []byte(payload)})
}

func (tr *fakeTransport) Sent() []*core.Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]*core.Event(nil), tr.sent...)
}
