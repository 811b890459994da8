package client

import (
	"encoding/json"
	"testing"

	"github.com/putto11262002/compartment/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerStartsWithDefaults(t *testing.T) {
	c := NewController(newFakeTransport(), WithControllerLogger(discardLogger))
	assert.Equal(t, core.DefaultControlState(), c.State())
}

func TestControllerSettersEmit(t *testing.T) {
	tr := newFakeTransport()
	c := NewController(tr, WithControllerLogger(discardLogger))

	require.NoError(t, c.SetDecoding(true))
	require.NoError(t, c.SetDistortion(true))
	require.NoError(t, c.SetSlowTyping(true))
	require.NoError(t, c.SetVolume(0.42))
	require.NoError(t, c.SetFontFamily("Courier"))
	require.NoError(t, c.SetFontColor("#ff0000"))
	require.NoError(t, c.SetFontSize(18))

	sent := tr.Sent()
	require.Len(t, sent, 7)
	tcs := []struct {
		event   string
		payload string
	}{
		{core.ToggleDecodingEvent, `true`},
		{core.ToggleDistortionEvent, `true`},
		{core.ToggleSlowTypingEvent, `true`},
		{core.AdjustVolumeEvent, `0.42`},
		{core.UpdateFontStyleEvent, `{"fontFamily":"Courier","color":"var(--primary-color)","fontSize":"42px"}`},
		{core.UpdateFontStyleEvent, `{"fontFamily":"Courier","color":"#ff0000","fontSize":"42px"}`},
		{core.UpdateFontStyleEvent, `{"fontFamily":"Courier","color":"#ff0000","fontSize":"18px"}`},
	}
	for i, tc := range tcs {
		assert.Equal(t, tc.event, sent[i].Type)
		assert.JSONEq(t, tc.payload, string(sent[i].Payload))
	}

	assert.Equal(t, core.ControlState{
		DecodingEnabled:   true,
		DistortionEnabled: true,
		SlowTypingEnabled: true,
		Volume:            0.42,
		FontStyle:         core.FontStyle{FontFamily: "Courier", Color: "#ff0000", FontSize: "18px"},
	}, c.State())
}

func TestControllerVolumeIsClamped(t *testing.T) {
	tr := newFakeTransport()
	c := NewController(tr, WithControllerLogger(discardLogger))

	require.NoError(t, c.SetVolume(1.7))
	assert.Equal(t, 1.0, c.State().Volume)
	require.NoError(t, c.SetVolume(-0.3))
	assert.Equal(t, 0.0, c.State().Volume)

	sent := tr.Sent()
	require.Len(t, sent, 2)
	assert.JSONEq(t, `1`, string(sent[0].Payload))
	assert.JSONEq(t, `0`, string(sent[1].Payload))
}

func TestControllerResetFontStyle(t *testing.T) {
	tr := newFakeTransport()
	c := NewController(tr, WithControllerLogger(discardLogger))

	require.NoError(t, c.SetFontStyle(core.FontStyle{FontFamily: "Mono", Color: "blue", FontSize: "12px"}))
	require.NoError(t, c.ResetFontStyle())
	assert.Equal(t, core.DefaultFontStyle(), c.State().FontStyle)

	sent := tr.Sent()
	require.Len(t, sent, 2)
	var style core.FontStyle
	require.NoError(t, json.Unmarshal(sent[1].Payload, &style))
	assert.Equal(t, core.DefaultFontStyle(), style)
}

func TestControllerRejectsInvalidStyle(t *testing.T) {
	tr := newFakeTransport()
	c := NewController(tr, WithControllerLogger(discardLogger))

	assert.Error(t, c.SetFontSize(0))
	assert.Error(t, c.SetFontFamily(""))
	assert.Error(t, c.SetFontStyle(core.FontStyle{FontFamily: "Mono", Color: "blue", FontSize: "large"}))
	assert.Empty(t, tr.Sent())
	assert.Equal(t, core.DefaultFontStyle(), c.State().FontStyle)
}

func TestControllerKeepsLocalChangeWhenNotReady(t *testing.T) {
	tr := newFakeTransport()
	tr.err = ErrNotReady
	c := NewController(tr, WithControllerLogger(discardLogger))

	assert.ErrorIs(t, c.SetSlowTyping(true), ErrNotReady)
	assert.True(t, c.State().SlowTypingEnabled)
}

func TestControllerAppliesInboundEvents(t *testing.T) {
	tr := newFakeTransport()
	var changes []core.ControlState
	c := NewController(tr,
		WithControllerLogger(discardLogger),
		WithOnChange(func(s core.ControlState) { changes = append(changes, s) }))

	tr.deliver(core.ToggleDecodingEvent, `true`)
	tr.deliver(core.ToggleDistortionEvent, `true`)
	tr.deliver(core.ToggleSlowTypingEvent, `true`)
	tr.deliver(core.AdjustVolumeEvent, `0.5`)
	tr.deliver(core.UpdateFontStyleEvent, `{"fontFamily":"Mono","color":"red","fontSize":"20px"}`)
	tr.deliver(core.ToggleDecodingEvent, `false`)

	assert.Equal(t, core.ControlState{
		DistortionEnabled: true,
		SlowTypingEnabled: true,
		Volume:            0.5,
		FontStyle:         core.FontStyle{FontFamily: "Mono", Color: "red", FontSize: "20px"},
	}, c.State())
	assert.Len(t, changes, 6)
	assert.Empty(t, tr.Sent(), "inbound events are never echoed")
}

func TestControllerDropsMalformedPayloads(t *testing.T) {
	tr := newFakeTransport()
	var changes int
	c := NewController(tr,
		WithControllerLogger(discardLogger),
		WithOnChange(func(core.ControlState) { changes++ }))

	tcs := []struct {
		event   string
		payload string
	}{
		{core.ToggleDecodingEvent, `"yes"`},
		{core.ToggleDistortionEvent, `1`},
		{core.ToggleSlowTypingEvent, ``},
		{core.AdjustVolumeEvent, `1.5`},
		{core.AdjustVolumeEvent, `-0.1`},
		{core.AdjustVolumeEvent, `"loud"`},
		{core.UpdateFontStyleEvent, `{}`},
		{core.UpdateFontStyleEvent, `{"fontFamily":"Mono","color":"red","fontSize":"big"}`},
		{core.UpdateFontStyleEvent, `[1,2]`},
	}
	for _, tc := range tcs {
		assert.NotPanics(t, func() { tr.deliver(tc.event, tc.payload) }, "%s %s", tc.event, tc.payload)
	}

	assert.Equal(t, core.DefaultControlState(), c.State())
	assert.Zero(t, changes)
}

func TestControllerLastWriteWins(t *testing.T) {
	tr := newFakeTransport()
	c := NewController(tr, WithControllerLogger(discardLogger))

	require.NoError(t, c.SetDecoding(true))
	// the other party's toggle arrives after ours
	tr.deliver(core.ToggleDecodingEvent, `false`)
	assert.False(t, c.State().DecodingEnabled)
}
