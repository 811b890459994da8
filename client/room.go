package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/putto11262002/compartment/core"
	"github.com/putto11262002/compartment/effects"
)

// View renders what the room produces. Methods are called from the session's
// read goroutine and from effect tasks, so implementations must be safe for
// concurrent use.
type View interface {
	effects.Sink
	// DraftUpdated receives the other party's live draft. Only counterparts see drafts.
	DraftUpdated(text string)
	ControlChanged(state core.ControlState)
	StateChanged(state SessionState)
}

type IntentKind int

const (
	IntentSend IntentKind = iota
	IntentDraft
	IntentToggle
	IntentVolume
	IntentStyle
	IntentResetStyle
)

type Toggle int

const (
	ToggleDecoding Toggle = iota
	ToggleDistortion
	ToggleSlowTyping
)

// Intent is a user action coming from the view.
type Intent struct {
	Kind IntentKind
	// Text is the message for IntentSend and the draft for IntentDraft.
	Text    string
	Toggle  Toggle
	Enabled bool
	Volume  float64
	Style   core.FontStyle
}

// Room ties a session to a control state mirror, an effects engine and a view.
type Room struct {
	session    *Session
	controller *Controller
	engine     *effects.Engine
	view       View
	logger     *slog.Logger
}

type RoomOption func(*roomOptions)

type roomOptions struct {
	logger        *slog.Logger
	engineOptions []effects.EngineOption
}

func WithRoomLogger(logger *slog.Logger) RoomOption {
	return func(o *roomOptions) {
		o.logger = logger
	}
}

func WithEngineOptions(opts ...effects.EngineOption) RoomOption {
	return func(o *roomOptions) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}

// NewRoom wires the room handlers onto session. The session must not be
// connected yet.
func NewRoom(session *Session, view View, opts ...RoomOption) *Room {
	o := &roomOptions{logger: session.logger}
	for _, opt := range opts {
		opt(o)
	}

	r := &Room{
		session: session,
		view:    view,
		logger:  o.logger,
		engine: effects.NewEngine(view,
			append([]effects.EngineOption{effects.WithLogger(o.logger)}, o.engineOptions...)...),
	}
	r.controller = NewController(session,
		WithControllerLogger(o.logger),
		WithOnChange(view.ControlChanged))

	session.OnStateChange(view.StateChanged)
	session.On(core.MessageEvent, r.onMessage)
	session.On(core.ClientMessageEvent, r.onDraft)
	return r
}

func (r *Room) Connect(ctx context.Context, room string, role core.Role) error {
	return r.session.Connect(ctx, room, role)
}

func (r *Room) Controller() *Controller {
	return r.controller
}

func (r *Room) Engine() *effects.Engine {
	return r.engine
}

func (r *Room) Session() *Session {
	return r.session
}

// SendText sends a chat message to the room. The distortion flag comes from
// the mirror and counterparts attach their font style. Blank text is ignored.
// A participant's sent message also clears the counterpart's draft preview.
func (r *Room) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	state := r.controller.State()
	msg := core.ChatMessage{
		ID:         uuid.NewString(),
		Text:       text,
		Room:       r.session.Room(),
		SenderRole: r.session.Role(),
		Distortion: state.DistortionEnabled,
	}
	if msg.SenderRole == core.RoleCounterpart {
		style := state.FontStyle
		msg.Style = &style
	}
	if err := r.session.Send(core.SendMessageEvent, msg); err != nil {
		return err
	}
	return r.Draft("")
}

// Draft shares the participant's unsent text with the counterpart. A
// counterpart's draft stays local.
func (r *Room) Draft(text string) error {
	if r.session.Role() != core.RoleParticipant {
		return nil
	}
	return r.session.Send(core.ClientMessageEvent, text)
}

func (r *Room) onMessage(e *core.Event) {
	var msg core.ChatMessage
	if err := e.Decode(&msg); err != nil {
		r.logger.Warn(err.Error())
		return
	}
	if err := validate.Struct(msg); err != nil {
		r.logger.Warn(fmt.Sprintf("%s: %v: %v", e.Type, err, core.ErrMalformedPayload))
		return
	}
	r.engine.Present(msg, r.controller.State())
}

func (r *Room) onDraft(e *core.Event) {
	if r.session.Role() != core.RoleCounterpart {
		return
	}
	var draft string
	if err := e.Decode(&draft); err != nil {
		r.logger.Warn(err.Error())
		return
	}
	r.view.DraftUpdated(draft)
}

// Run applies intents until ctx is done, intents is closed or the session is
// disconnected for good. Call it after Connect.
func (r *Room) Run(ctx context.Context, intents <-chan Intent) error {
	done := r.session.Done()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case intent, ok := <-intents:
			if !ok {
				return nil
			}
			if err := r.apply(intent); err != nil {
				if errors.Is(err, ErrNotReady) {
					r.logger.Debug(fmt.Sprintf("intent discarded: %v", err))
					continue
				}
				r.logger.Warn(fmt.Sprintf("intent: %v", err))
			}
		}
	}
}

func (r *Room) apply(intent Intent) error {
	switch intent.Kind {
	case IntentSend:
		return r.SendText(intent.Text)
	case IntentDraft:
		return r.Draft(intent.Text)
	case IntentToggle:
		switch intent.Toggle {
		case ToggleDecoding:
			return r.controller.SetDecoding(intent.Enabled)
		case ToggleDistortion:
			return r.controller.SetDistortion(intent.Enabled)
		case ToggleSlowTyping:
			return r.controller.SetSlowTyping(intent.Enabled)
		default:
			return fmt.Errorf("unknown toggle %d", intent.Toggle)
		}
	case IntentVolume:
		return r.controller.SetVolume(intent.Volume)
	case IntentStyle:
		return r.controller.SetFontStyle(intent.Style)
	case IntentResetStyle:
		return r.controller.ResetFontStyle()
	default:
		return fmt.Errorf("unknown intent %d", intent.Kind)
	}
}

// Close stops every running effect, then closes the session.
func (r *Room) Close() error {
	r.engine.Close()
	return r.session.Close()
}
