package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type HubState int

const (
	StateClosed HubState = iota
	StateRunning
	StateClosing
)

const (
	RoomQueryParam = "room"
	RoleQueryParam = "role"
	RoomHeader     = "X-Room"
	RoleHeader     = "X-Role"
)

// Hub relays events between the connections of a room. Joins, leaves and event
// dispatch are serialised on a single goroutine, so handlers observe a stable
// member set while they broadcast.
type Hub struct {
	registry *RoomRegistry
	router   *EventRouter

	connectChan    chan *Conn
	disconnectChan chan *Conn
	// in carries events read by the connections to the hub goroutine
	in chan *Event
	// exit is closed to make the hub goroutine disconnect everyone and return
	exit    chan struct{}
	stopped chan struct{}

	logger  *slog.Logger
	baseCtx context.Context

	onConnect    func(*Conn)
	onDisconnect func(*Conn)

	upgrader       websocket.Upgrader
	nextID         atomic.Int64
	sendBuffer     int
	maxMessageSize int64
	closeTimeout   time.Duration

	// wg tracks the read and write loops of every connection
	wg    sync.WaitGroup
	state HubState
	mu    sync.RWMutex
}

var defaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// owners restrict origins with WithCheckOrigin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type HubOption func(*Hub)

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithBaseContext(ctx context.Context) HubOption {
	return func(h *Hub) {
		h.baseCtx = ctx
	}
}

func WithCheckOrigin(f func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = f
	}
}

// WithSendBuffer sets the size of each connection's outbound queue. Events for
// a connection whose queue is full are dropped.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		h.sendBuffer = n
	}
}

func WithMaxMessageSize(n int64) HubOption {
	return func(h *Hub) {
		h.maxMessageSize = n
	}
}

func WithCloseTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.closeTimeout = d
	}
}

func NewHub(opts ...HubOption) *Hub {
	hub := &Hub{
		registry:       NewRoomRegistry(),
		connectChan:    make(chan *Conn),
		disconnectChan: make(chan *Conn),
		in:             make(chan *Event),
		exit:           make(chan struct{}),
		stopped:        make(chan struct{}),
		logger: slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelDebug})),
		baseCtx:        context.TODO(),
		upgrader:       defaultUpgrader,
		sendBuffer:     64,
		maxMessageSize: 8192,
		closeTimeout:   10 * time.Second,
		onConnect:      func(*Conn) {},
		onDisconnect:   func(*Conn) {},
		state:          StateClosed,
	}

	for _, opt := range opts {
		opt(hub)
	}

	hub.router = NewEventRouter(hub.logger, hub)
	RegisterRelayHandlers(hub.router)

	return hub
}

// Router exposes the event router so extra handlers can be installed before Start.
func (hub *Hub) Router() *EventRouter {
	return hub.router
}

func (hub *Hub) Registry() *RoomRegistry {
	return hub.registry
}

func (hub *Hub) OnConnect(f func(*Conn)) {
	hub.onConnect = f
}

func (hub *Hub) OnDisconnect(f func(*Conn)) {
	hub.onDisconnect = f
}

func (hub *Hub) State() HubState {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return hub.state
}

func (hub *Hub) Start() {
	hub.mu.Lock()
	hub.state = StateRunning
	hub.mu.Unlock()
	go func() {
		defer func() {
			hub.mu.Lock()
			hub.state = StateClosed
			hub.mu.Unlock()
			close(hub.stopped)
			hub.logger.Info("hub stopped")
		}()
		hub.start()
	}()
	hub.logger.Info("hub started")
}

func (hub *Hub) start() {
	for {
		select {
		case <-hub.exit:
			for _, info := range hub.registry.Rooms() {
				for _, c := range hub.registry.Members(info.ID) {
					hub.disconnect(c)
				}
			}
			return
		case c := <-hub.connectChan:
			hub.connect(c)
		case c := <-hub.disconnectChan:
			hub.disconnect(c)
		case e := <-hub.in:
			hub.router.Dispatch(hub.baseCtx, e)
		}
	}
}

// Close disconnects every connection, stops the hub goroutine and waits for the
// connection loops to exit or for the close timeout to elapse.
func (hub *Hub) Close() {
	hub.mu.Lock()
	if hub.state != StateRunning {
		hub.mu.Unlock()
		return
	}
	hub.state = StateClosing
	hub.mu.Unlock()

	hub.logger.Info("closing connections...")
	close(hub.exit)
	<-hub.stopped

	timer := time.NewTimer(hub.closeTimeout)
	defer timer.Stop()
	done := make(chan struct{})
	go func() {
		hub.wg.Wait()
		close(done)
	}()

	select {
	case <-timer.C:
		hub.logger.Info("hub closed with timeout")
	case <-done:
		hub.logger.Info("hub closed gracefully")
	}
}

// ServeHTTP upgrades the request and joins the connection to the room named in
// the handshake. A missing room is answered with 400, a hub that is not
// running with 503.
func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := hub.Connect(w, r); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, ErrHubNotRunning) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
	}
}

// Connect is the error returning form of ServeHTTP. Errors are only returned
// before the upgrade, once the response has been hijacked they are logged.
func (hub *Hub) Connect(w http.ResponseWriter, r *http.Request) error {
	room, role := Handshake(r)
	if room == "" {
		return NewInsensitiveError("handshake", ErrMissingRoom)
	}
	if hub.State() != StateRunning {
		return NewInsensitiveError("handshake", ErrHubNotRunning)
	}

	ws, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		hub.logger.Warn(fmt.Sprintf("upgrade: %v", err))
		return nil
	}
	ws.SetReadLimit(hub.maxMessageSize)

	id := int(hub.nextID.Add(1))
	c := &Conn{
		conn:        ws,
		id:          id,
		room:        room,
		role:        role,
		writeStream: make(chan *Event, hub.sendBuffer),
		hub:         hub,
		ticker:      time.NewTicker(pingPeriod),
		logger: hub.logger.With(
			slog.String("room", room),
			slog.Int("conn", id),
			slog.String("role", role.String())),
	}

	select {
	case hub.connectChan <- c:
	case <-hub.exit:
		c.ticker.Stop()
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		ws.Close()
	}
	return nil
}

// Handshake reads the room and role of a connection request. Query parameters
// win over headers. The room identifier is used verbatim.
func Handshake(r *http.Request) (string, Role) {
	query := r.URL.Query()
	room := query.Get(RoomQueryParam)
	if room == "" {
		room = r.Header.Get(RoomHeader)
	}
	role := query.Get(RoleQueryParam)
	if role == "" {
		role = r.Header.Get(RoleHeader)
	}
	return room, ParseRole(role)
}

// Disconnect asks the hub to remove c. It is safe to call from any goroutine
// and after the hub has stopped.
func (hub *Hub) Disconnect(c *Conn) {
	select {
	case hub.disconnectChan <- c:
	case <-hub.exit:
	}
}

// pass hands an inbound event to the hub goroutine. It reports false once the
// hub is exiting.
func (hub *Hub) pass(e *Event) bool {
	select {
	case hub.in <- e:
		return true
	case <-hub.exit:
		return false
	}
}

// Broadcast delivers e to the members of room. It must only be called from the
// hub goroutine, which is where event handlers run.
func (hub *Hub) Broadcast(room string, e *Event, scope Scope, sender int) {
	for _, c := range hub.registry.Members(room) {
		if scope == ScopeOthers && c.id == sender {
			continue
		}
		hub.sendOrDrop(c, e)
	}
}

// sendOrDrop enqueues e on the connection's outbound queue. Delivery is best
// effort: a full queue means the event is lost for that recipient.
func (hub *Hub) sendOrDrop(c *Conn, e *Event) {
	select {
	case c.writeStream <- e:
	default:
		c.logger.Debug(fmt.Sprintf("send queue full, dropping %s", e.Type))
	}
}

func (hub *Hub) connect(c *Conn) {
	hub.registry.Join(c, c.room)
	hub.wg.Add(2)
	go func() {
		defer hub.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer hub.wg.Done()
		c.writeLoop()
	}()
	c.logger.Info("joined room")
	hub.onConnect(c)
}

func (hub *Hub) disconnect(c *Conn) {
	if _, ok := hub.registry.Leave(c); !ok {
		return
	}
	c.close()
	c.logger.Info("left room")
	hub.onDisconnect(c)
}
