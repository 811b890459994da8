//go:generate go run go.uber.org/mock/mockgen -source=sink.go -destination=mocks/mock_sink.go -package=mocks
package effects

import "github.com/putto11262002/compartment/core"

// Sink is the render target supplied by the view. The engine never calls it
// concurrently.
type Sink interface {
	// MessageAppended is called once per inbound message, before any content update.
	MessageAppended(msg core.ChatMessage)
	// ContentUpdate replaces the rendered content of message id.
	ContentUpdate(id, text string)
}
