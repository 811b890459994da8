package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Events sent by clients.
const (
	SendMessageEvent      = "sendMessage"
	ClientMessageEvent    = "clientMessage"
	ToggleDecodingEvent   = "toggleDecoding"
	ToggleDistortionEvent = "toggleDistortion"
	ToggleSlowTypingEvent = "toggleSlowTyping"
	AdjustVolumeEvent     = "adjustVolume"
	UpdateFontStyleEvent  = "updateFontStyle"
)

// MessageEvent is the name chat messages are relayed under.
const MessageEvent = "message"

type Scope int

const (
	// ScopeAll delivers to every member of the room, sender included.
	ScopeAll Scope = iota
	// ScopeOthers delivers to every member of the room except the sender.
	ScopeOthers
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeOthers:
		return "others"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Event is the unit that travels over the wire. The payload is kept raw,
// the relay never looks inside it.
type Event struct {
	// Dispatcher is the id of the connection the event was read from.
	Dispatcher int             `json:"-"`
	Room       string          `json:"-"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Dispatcher: %d, Room: %s, Type: %s, Payload.Size: %d}", e.Dispatcher, e.Room, e.Type, len(e.Payload))
}

// NewEvent marshals payload into a new event of type t.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload: %w", e.Type, ErrMalformedPayload)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %v: %w", e.Type, err, ErrMalformedPayload)
	}
	return nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %v: %w", err, ErrMalformedPayload)
	}
	if e.Type == "" {
		return fmt.Errorf("decode event: missing type: %w", ErrMalformedPayload)
	}
	return nil
}

// EventTransport delivers events to the members of a room.
type EventTransport interface {
	Broadcast(room string, e *Event, scope Scope, sender int)
}

type EventHandler func(context.Context, *Event) error

// EventRouter maps inbound event types to handlers.
type EventRouter struct {
	listeners map[string]EventHandler
	transport EventTransport
	logger    *slog.Logger
}

func NewEventRouter(logger *slog.Logger, transport EventTransport) *EventRouter {
	return &EventRouter{
		listeners: make(map[string]EventHandler),
		transport: transport,
		logger:    logger,
	}
}

func (em *EventRouter) On(eventName string, handler EventHandler) {
	em.listeners[eventName] = handler
}

// Dispatch runs the handler registered for e.Type. Unknown events and handler
// failures are logged, never propagated: one bad event must not take the hub down.
func (em *EventRouter) Dispatch(ctx context.Context, e *Event) {
	h, ok := em.listeners[e.Type]
	if !ok {
		em.logger.Warn(fmt.Sprintf("no handler for %s", e.Type), slog.String("room", e.Room))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			em.logger.Error(fmt.Sprintf("%s handler panic: %v", e.Type, r))
		}
	}()
	if err := h(ctx, e); err != nil {
		em.logger.Error(fmt.Sprintf("%s handler: %s", e.Type, err))
	}
}

// Relay returns a handler that rebroadcasts the inbound payload untouched under
// the event name out.
func (em *EventRouter) Relay(out string, scope Scope) EventHandler {
	return func(_ context.Context, e *Event) error {
		em.transport.Broadcast(e.Room, &Event{Type: out, Payload: e.Payload}, scope, e.Dispatcher)
		return nil
	}
}

// RegisterRelayHandlers installs the relay table of the chat room.
func RegisterRelayHandlers(em *EventRouter) {
	em.On(SendMessageEvent, em.Relay(MessageEvent, ScopeAll))
	em.On(ClientMessageEvent, em.Relay(ClientMessageEvent, ScopeAll))
	for _, name := range []string{
		ToggleDecodingEvent,
		ToggleDistortionEvent,
		ToggleSlowTypingEvent,
		AdjustVolumeEvent,
		UpdateFontStyleEvent,
	} {
		em.On(name, em.Relay(name, ScopeAll))
	}
}
