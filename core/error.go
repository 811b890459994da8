package core

import "errors"

var (
	// ErrMissingRoom is returned when the handshake carries no room identifier.
	ErrMissingRoom = errors.New("missing room identifier")
	// ErrRoomNotFound is returned by lookups for rooms without members.
	ErrRoomNotFound = errors.New("room not found")
	// ErrMalformedPayload marks frames or payloads that could not be decoded.
	// They are logged and dropped.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrHubNotRunning is returned by handshakes made before Start or after Close.
	ErrHubNotRunning = errors.New("hub not running")
)

type Error struct {
	msg string
	// Sensitive is a flag to indicate if the error is sensitive or not.
	// If it is not, it can be returned to the client.
	Sensitive bool
	err       error
}

func NewInsensitiveError(msg string, err error) *Error {
	return &Error{msg: msg, err: err}
}

func NewSensitiveError(msg string, err error) *Error {
	return &Error{msg: msg, Sensitive: true, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}
