package core

import (
	"fmt"
	"strconv"
	"strings"
)

type Role string

const (
	// RoleParticipant is the default chat user.
	RoleParticipant Role = "participant"
	// RoleCounterpart is the role with the extra control surface (toggles, style).
	RoleCounterpart Role = "counterpart"
)

// ParseRole maps a handshake value to a role. Anything that is not
// "counterpart" is treated as a participant.
func ParseRole(s string) Role {
	if Role(strings.ToLower(strings.TrimSpace(s))) == RoleCounterpart {
		return RoleCounterpart
	}
	return RoleParticipant
}

func (r Role) String() string {
	return string(r)
}

const (
	DefaultFontFamily = "Estrangeiro"
	DefaultFontColor  = "var(--primary-color)"
	DefaultFontSize   = "42px"
)

type FontStyle struct {
	FontFamily string `json:"fontFamily" validate:"required"`
	Color      string `json:"color" validate:"required"`
	// FontSize is a CSS pixel size, e.g. "42px".
	FontSize string `json:"fontSize" validate:"required,endswith=px"`
}

func DefaultFontStyle() FontStyle {
	return FontStyle{
		FontFamily: DefaultFontFamily,
		Color:      DefaultFontColor,
		FontSize:   DefaultFontSize,
	}
}

// Pixels returns the numeric part of FontSize.
func (s FontStyle) Pixels() (int, error) {
	px, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s.FontSize), "px"))
	if err != nil {
		return 0, fmt.Errorf("font size %q: %w", s.FontSize, err)
	}
	return px, nil
}

// WithPixels returns a copy of the style with FontSize set to px pixels.
func (s FontStyle) WithPixels(px int) FontStyle {
	s.FontSize = fmt.Sprintf("%dpx", px)
	return s
}

// ChatMessage is created by the sending client and relayed verbatim.
// ID is the key the effects engine uses to update rendered content in place.
type ChatMessage struct {
	ID         string `json:"id" validate:"required"`
	Text       string `json:"text"`
	Room       string `json:"room" validate:"required"`
	SenderRole Role   `json:"senderRole" validate:"omitempty,oneof=participant counterpart"`
	Distortion bool   `json:"distortion"`
	// Style is only meaningful when SenderRole is RoleCounterpart.
	Style *FontStyle `json:"style,omitempty"`
}

// ControlState is the room-wide effect configuration. The server never stores it;
// each client keeps a mirror that is only updated by the events it receives.
type ControlState struct {
	DecodingEnabled   bool      `json:"decodingEnabled"`
	DistortionEnabled bool      `json:"distortionEnabled"`
	SlowTypingEnabled bool      `json:"slowTypingEnabled"`
	Volume            float64   `json:"volume" validate:"gte=0,lte=1"`
	FontStyle         FontStyle `json:"fontStyle"`
}

func DefaultControlState() ControlState {
	return ControlState{
		Volume:    1,
		FontStyle: DefaultFontStyle(),
	}
}
