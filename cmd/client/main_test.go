package main

import (
	"bytes"
	"testing"

	"github.com/putto11262002/compartment/client"
	"github.com/putto11262002/compartment/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	state := core.DefaultControlState()

	tcs := []struct {
		line string
		want client.Intent
	}{
		{line: "hello there", want: client.Intent{Kind: client.IntentSend, Text: "hello there"}},
		{line: "/slow on", want: client.Intent{Kind: client.IntentToggle, Toggle: client.ToggleSlowTyping, Enabled: true}},
		{line: "/decode off", want: client.Intent{Kind: client.IntentToggle, Toggle: client.ToggleDecoding}},
		{line: "/distort 1", want: client.Intent{Kind: client.IntentToggle, Toggle: client.ToggleDistortion, Enabled: true}},
		{line: "/volume 0.25", want: client.Intent{Kind: client.IntentVolume, Volume: 0.25}},
		{line: "/font size 30px", want: client.Intent{Kind: client.IntentStyle, Style: state.FontStyle.WithPixels(30)}},
		{line: "/reset", want: client.Intent{Kind: client.IntentResetStyle}},
		{line: "/draft almost", want: client.Intent{Kind: client.IntentDraft, Text: "almost"}},
	}
	for _, tc := range tcs {
		t.Run(tc.line, func(t *testing.T) {
			got, err := parseIntent(tc.line, state)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	style, err := parseIntent("/font color #ff0000", state)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", style.Style.Color)
	assert.Equal(t, state.FontStyle.FontFamily, style.Style.FontFamily)
}

func TestParseIntentErrors(t *testing.T) {
	for _, line := range []string{"/slow maybe", "/volume loud", "/font size -3", "/font weight bold", "/font", "/dance"} {
		_, err := parseIntent(line, core.DefaultControlState())
		assert.Error(t, err, line)
	}
}

func TestTerminalViewRewritesActiveLine(t *testing.T) {
	var out bytes.Buffer
	view := newTerminalView(&out)

	view.MessageAppended(core.ChatMessage{ID: "1", Text: "ok", Room: "alpha"})
	view.ContentUpdate("1", "o")
	view.ContentUpdate("1", "ok")
	view.ContentUpdate("unknown", "ignored")

	assert.Contains(t, out.String(), "\r\033[K")
	assert.Contains(t, out.String(), "ok")
	assert.NotContains(t, out.String(), "ignored")
}
