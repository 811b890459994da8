package client

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/putto11262002/compartment/core"
)

// Transport is the part of a Session the controller needs.
type Transport interface {
	Send(event string, payload interface{}) error
	On(event string, h Handler)
}

// Controller keeps the local mirror of the room's control state. Setters
// update the mirror and emit the change to the room; the events echoed back by
// the relay, and those sent by the other party, overwrite the mirror.
type Controller struct {
	transport Transport
	logger    *slog.Logger

	mu       sync.RWMutex
	state    core.ControlState
	onChange func(core.ControlState)
}

type ControllerOption func(*Controller)

func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithOnChange sets the callback invoked with a snapshot after every change to
// the mirror.
func WithOnChange(f func(core.ControlState)) ControllerOption {
	return func(c *Controller) {
		c.onChange = f
	}
}

// NewController starts from the default control state and registers the
// inbound control handlers on t.
func NewController(t Transport, opts ...ControllerOption) *Controller {
	c := &Controller{
		transport: t,
		logger: slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})),
		state:    core.DefaultControlState(),
		onChange: func(core.ControlState) {},
	}
	for _, opt := range opts {
		opt(c)
	}

	t.On(core.ToggleDecodingEvent, c.toggleHandler(func(s *core.ControlState, v bool) { s.DecodingEnabled = v }))
	t.On(core.ToggleDistortionEvent, c.toggleHandler(func(s *core.ControlState, v bool) { s.DistortionEnabled = v }))
	t.On(core.ToggleSlowTypingEvent, c.toggleHandler(func(s *core.ControlState, v bool) { s.SlowTypingEnabled = v }))
	t.On(core.AdjustVolumeEvent, c.volumeHandler)
	t.On(core.UpdateFontStyleEvent, c.fontStyleHandler)
	return c
}

// State returns a snapshot of the mirror.
func (c *Controller) State() core.ControlState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) SetDecoding(enabled bool) error {
	c.update(func(s *core.ControlState) { s.DecodingEnabled = enabled })
	return c.emit(core.ToggleDecodingEvent, enabled)
}

func (c *Controller) SetDistortion(enabled bool) error {
	c.update(func(s *core.ControlState) { s.DistortionEnabled = enabled })
	return c.emit(core.ToggleDistortionEvent, enabled)
}

func (c *Controller) SetSlowTyping(enabled bool) error {
	c.update(func(s *core.ControlState) { s.SlowTypingEnabled = enabled })
	return c.emit(core.ToggleSlowTypingEvent, enabled)
}

// SetVolume clamps v to [0, 1].
func (c *Controller) SetVolume(v float64) error {
	v = min(max(v, 0), 1)
	c.update(func(s *core.ControlState) { s.Volume = v })
	return c.emit(core.AdjustVolumeEvent, v)
}

func (c *Controller) SetFontFamily(family string) error {
	return c.setFontStyle(func(fs *core.FontStyle) { fs.FontFamily = family })
}

func (c *Controller) SetFontColor(color string) error {
	return c.setFontStyle(func(fs *core.FontStyle) { fs.Color = color })
}

func (c *Controller) SetFontSize(px int) error {
	if px <= 0 {
		return fmt.Errorf("font size %dpx: must be positive", px)
	}
	return c.setFontStyle(func(fs *core.FontStyle) { *fs = fs.WithPixels(px) })
}

func (c *Controller) SetFontStyle(style core.FontStyle) error {
	return c.setFontStyle(func(fs *core.FontStyle) { *fs = style })
}

// ResetFontStyle restores the default font and announces it to the room.
func (c *Controller) ResetFontStyle() error {
	return c.SetFontStyle(core.DefaultFontStyle())
}

func (c *Controller) setFontStyle(f func(*core.FontStyle)) error {
	style := c.State().FontStyle
	f(&style)
	if err := validate.Struct(style); err != nil {
		return fmt.Errorf("font style: %w", err)
	}
	c.update(func(s *core.ControlState) { s.FontStyle = style })
	return c.emit(core.UpdateFontStyleEvent, style)
}

func (c *Controller) update(f func(*core.ControlState)) {
	c.mu.Lock()
	f(&c.state)
	snapshot := c.state
	c.mu.Unlock()
	c.onChange(snapshot)
}

func (c *Controller) emit(event string, payload interface{}) error {
	if err := c.transport.Send(event, payload); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	return nil
}

func (c *Controller) toggleHandler(apply func(*core.ControlState, bool)) Handler {
	return func(e *core.Event) {
		var enabled bool
		if err := e.Decode(&enabled); err != nil {
			c.logger.Warn(err.Error())
			return
		}
		c.update(func(s *core.ControlState) { apply(s, enabled) })
	}
}

func (c *Controller) volumeHandler(e *core.Event) {
	var v float64
	if err := e.Decode(&v); err != nil {
		c.logger.Warn(err.Error())
		return
	}
	if err := validate.Var(v, "gte=0,lte=1"); err != nil {
		c.logger.Warn(fmt.Sprintf("%s: volume %v out of range: %v", e.Type, v, core.ErrMalformedPayload))
		return
	}
	c.update(func(s *core.ControlState) { s.Volume = v })
}

func (c *Controller) fontStyleHandler(e *core.Event) {
	var style core.FontStyle
	if err := e.Decode(&style); err != nil {
		c.logger.Warn(err.Error())
		return
	}
	if err := validate.Struct(style); err != nil {
		c.logger.Warn(fmt.Sprintf("%s: %v: %v", e.Type, err, core.ErrMalformedPayload))
		return
	}
	c.update(func(s *core.ControlState) { s.FontStyle = style })
}
