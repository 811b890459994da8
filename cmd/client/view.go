package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/putto11262002/compartment/client"
	"github.com/putto11262002/compartment/core"
)

// terminalView prints the room to a terminal. Effect updates rewrite the
// current line, so only the message being animated is ever redrawn.
type terminalView struct {
	mu       sync.Mutex
	out      io.Writer
	messages map[string]core.ChatMessage
	// active is the message whose content currently owns the last line.
	active string
}

var _ client.View = (*terminalView)(nil)

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out, messages: make(map[string]core.ChatMessage)}
}

func (v *terminalView) MessageAppended(msg core.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages[msg.ID] = msg
	if v.active != "" {
		fmt.Fprintln(v.out)
	}
	v.active = msg.ID
}

func (v *terminalView) ContentUpdate(id, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	msg, ok := v.messages[id]
	if !ok {
		return
	}
	if id != v.active {
		fmt.Fprintln(v.out)
		v.active = id
	}
	fmt.Fprintf(v.out, "\r\033[K%s %s", sender(msg), render(msg, text))
}

func (v *terminalView) DraftUpdated(text string) {
	v.notice(color.Gray.Sprintf("typing: %s", text))
}

func (v *terminalView) ControlChanged(state core.ControlState) {
	v.notice(color.Cyan.Sprintf("controls: decoding=%t distortion=%t slow=%t volume=%.2f font=%s/%s/%s",
		state.DecodingEnabled, state.DistortionEnabled, state.SlowTypingEnabled, state.Volume,
		state.FontStyle.FontFamily, state.FontStyle.Color, state.FontStyle.FontSize))
}

func (v *terminalView) StateChanged(state client.SessionState) {
	style := color.Yellow
	switch state {
	case client.Ready:
		style = color.Green
	case client.Disconnected:
		style = color.Red
	}
	v.notice(style.Sprintf("[%s]", state))
}

func (v *terminalView) notice(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active != "" {
		fmt.Fprintln(v.out)
		v.active = ""
	}
	fmt.Fprintln(v.out, line)
}

func sender(msg core.ChatMessage) string {
	if msg.SenderRole == core.RoleCounterpart {
		return color.New(color.FgMagenta, color.OpBold).Render("counterpart>")
	}
	return color.New(color.FgBlue, color.OpBold).Render("participant>")
}

func render(msg core.ChatMessage, text string) string {
	if msg.Distortion {
		text = color.OpUnderscore.Render(text)
	}
	if msg.Style != nil && strings.HasPrefix(msg.Style.Color, "#") {
		return color.HEX(msg.Style.Color).Sprint(text)
	}
	return text
}
