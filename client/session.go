// Package client is the room client: a websocket session to the relay, the
// mirror of the room's control state and the glue that hands inbound chat
// messages to the effects engine.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/putto11262002/compartment/core"
)

var (
	// ErrNotReady is returned by Send while the session has no live connection.
	// The event is discarded.
	ErrNotReady = errors.New("session not ready")
	// ErrAlreadyConnected is returned by Connect unless the session is disconnected.
	ErrAlreadyConnected = errors.New("session already connected")
	// ErrSendBufferFull is returned by Send when the outbound queue has no room left.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrClosed is returned by Connect when Close ran while the dial was in flight.
	ErrClosed = errors.New("session closed")
)

type SessionState int

const (
	Disconnected SessionState = iota
	Connecting
	Ready
)

func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

const (
	writeWait  = 10 * time.Second
	closeGrace = time.Second
)

// Handler receives inbound events. Handlers run on the session's read goroutine
// in arrival order.
type Handler func(e *core.Event)

// Session owns at most one connection to the relay for one room and role.
type Session struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	logger *slog.Logger

	reconnects     int
	reconnectDelay time.Duration
	sendBuffer     int
	maxMessageSize int64

	handlers      *core.SyncMap[string, Handler]
	onStateChange func(SessionState)

	mu      sync.Mutex
	state   SessionState
	conn    *websocket.Conn
	out     chan *core.Event
	room    string
	role    core.Role
	closing bool
	// done is closed when the session settles in Disconnected
	done chan struct{}
}

type SessionOption func(*Session)

func WithDialer(d *websocket.Dialer) SessionOption {
	return func(s *Session) {
		s.dialer = d
	}
}

func WithHeader(h http.Header) SessionOption {
	return func(s *Session) {
		s.header = h
	}
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithReconnect allows up to n sequential redial attempts after the connection
// drops unexpectedly. The default is 0.
func WithReconnect(n int) SessionOption {
	return func(s *Session) {
		s.reconnects = n
	}
}

func WithReconnectDelay(d time.Duration) SessionOption {
	return func(s *Session) {
		s.reconnectDelay = d
	}
}

// WithMaxMessageSize bounds the size of inbound frames. A larger frame ends the
// connection as if it had dropped.
func WithMaxMessageSize(n int64) SessionOption {
	return func(s *Session) {
		s.maxMessageSize = n
	}
}

func WithSendBuffer(n int) SessionOption {
	return func(s *Session) {
		s.sendBuffer = n
	}
}

// NewSession creates a disconnected session for the relay endpoint at rawURL,
// e.g. ws://localhost:8080/ws.
func NewSession(rawURL string, opts ...SessionOption) *Session {
	done := make(chan struct{})
	close(done)
	s := &Session{
		url:    rawURL,
		dialer: websocket.DefaultDialer,
		logger: slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})),
		reconnectDelay: 500 * time.Millisecond,
		sendBuffer:     256,
		maxMessageSize: 64 << 10,
		handlers:       core.NewSyncMap[string, Handler](),
		onStateChange:  func(SessionState) {},
		state:          Disconnected,
		done:           done,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// On registers the handler for an event name. A later registration for the
// same name replaces the earlier one.
func (s *Session) On(event string, h Handler) {
	s.handlers.Store(event, h)
}

// OnStateChange sets the callback invoked on every state transition. It must be
// set before Connect.
func (s *Session) OnStateChange(f func(SessionState)) {
	s.onStateChange = f
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) Role() core.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Done is closed once the session is disconnected for good, either after Close
// or after the connection dropped and every reconnect attempt failed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connect dials the relay and joins room under role. It returns once the
// session is ready or the dial failed.
func (s *Session) Connect(ctx context.Context, room string, role core.Role) error {
	if room == "" {
		return core.ErrMissingRoom
	}

	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.room = room
	s.role = role
	s.closing = false
	s.done = make(chan struct{})
	s.state = Connecting
	s.mu.Unlock()
	s.onStateChange(Connecting)

	conn, err := s.dial(ctx)
	if err != nil {
		s.settle()
		return fmt.Errorf("connect: %w", err)
	}
	if !s.start(conn) {
		return fmt.Errorf("connect: %w", ErrClosed)
	}
	return nil
}

func (s *Session) endpoint() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	query := u.Query()
	query.Set(core.RoomQueryParam, s.room)
	query.Set(core.RoleQueryParam, s.role.String())
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	endpoint, err := s.endpoint()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	conn, res, err := s.dialer.DialContext(ctx, endpoint, s.header)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// start installs conn as the live connection. It reports false when the
// session was closed while the dial was in flight.
func (s *Session) start(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		s.settle()
		return false
	}
	conn.SetReadLimit(s.maxMessageSize)
	out := make(chan *core.Event, s.sendBuffer)
	s.conn = conn
	s.out = out
	s.state = Ready
	room, role := s.room, s.role
	s.mu.Unlock()

	s.logger.Info("session ready", slog.String("room", room), slog.String("role", role.String()))
	s.onStateChange(Ready)

	go s.writeLoop(conn, out)
	go s.readLoop(conn)
	return true
}

// settle moves the session to Disconnected and releases Done.
func (s *Session) settle() {
	s.mu.Lock()
	s.state = Disconnected
	s.conn = nil
	s.out = nil
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	default:
		close(done)
	}
	s.onStateChange(Disconnected)
}

// Send emits an event. Outside Ready the event is discarded and ErrNotReady
// is returned.
func (s *Session) Send(event string, payload interface{}) error {
	e, err := core.NewEvent(event, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready || s.closing {
		return ErrNotReady
	}
	select {
	case s.out <- e:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame and waits until the session is disconnected. It
// never triggers a reconnect and must not be called from a Handler.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn) {
	var err error
	for {
		var format int
		var r io.Reader
		format, r, err = conn.NextReader()
		if err != nil {
			break
		}
		if format != websocket.TextMessage {
			s.logger.Warn(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var buf bytes.Buffer
		if _, err = buf.ReadFrom(r); err != nil {
			break
		}
		var e core.Event
		if decErr := core.DecodeEvent(&buf, &e); decErr != nil {
			s.logger.Warn(decErr.Error())
			continue
		}
		s.dispatch(&e)
	}
	conn.Close()
	s.lost(conn, err)
}

func (s *Session) dispatch(e *core.Event) {
	h, ok := s.handlers.Load(e.Type)
	if !ok {
		s.logger.Debug(fmt.Sprintf("no handler for %s", e.Type))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Sprintf("%s handler panic: %v", e.Type, r))
		}
	}()
	h(e)
}

func (s *Session) writeLoop(conn *websocket.Conn, out <-chan *core.Event) {
	for e := range out {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		w, err := conn.NextWriter(websocket.TextMessage)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("getting next writer: %v", err))
			conn.Close()
			return
		}
		if err := core.EncodeEvent(w, e); err != nil {
			s.logger.Error(err.Error())
		}
		if err := w.Close(); err != nil {
			s.logger.Warn(fmt.Sprintf("flushing frame: %v", err))
			conn.Close()
			return
		}
	}

	// out is only closed by Close or after the read loop gave up
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	// the read loop ends when the relay answers, or at the deadline
	conn.SetReadDeadline(time.Now().Add(closeGrace))
}

// lost runs once the read loop of conn has ended.
func (s *Session) lost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	closing := s.closing
	reconnects := s.reconnects
	if !closing && reconnects > 0 {
		s.conn = nil
		s.state = Connecting
	}
	s.mu.Unlock()

	if closing {
		s.logger.Info("session closed")
		s.settle()
		return
	}
	s.logger.Warn(fmt.Sprintf("connection lost: %v", err))
	if reconnects == 0 {
		s.settle()
		return
	}
	s.onStateChange(Connecting)
	go s.redial(reconnects)
}

func (s *Session) redial(attempts int) {
	for i := 1; i <= attempts; i++ {
		time.Sleep(s.reconnectDelay)

		s.mu.Lock()
		closing := s.closing
		s.mu.Unlock()
		if closing {
			s.settle()
			return
		}

		conn, err := s.dial(context.Background())
		if err != nil {
			s.logger.Warn(fmt.Sprintf("reconnect attempt %d/%d: %v", i, attempts, err))
			continue
		}
		s.start(conn)
		return
	}
	s.settle()
}
