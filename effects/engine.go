package effects

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/putto11262002/compartment/core"
)

type Kind int

const (
	KindPlain Kind = iota
	KindDecode
	KindSlowTyping
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindDecode:
		return "decode"
	case KindSlowTyping:
		return "slow-typing"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Select picks the effect for a control state: slow typing wins over decoding,
// decoding wins over plain rendering.
func Select(state core.ControlState) Kind {
	switch {
	case state.SlowTypingEnabled:
		return KindSlowTyping
	case state.DecodingEnabled:
		return KindDecode
	default:
		return KindPlain
	}
}

// Effect is a step machine producing one frame per tick.
type Effect interface {
	Step() (text string, done bool)
}

type task struct {
	cancel context.CancelFunc
	kind   Kind
}

// Engine runs one cancellable task per in-flight message id and forwards the
// frames to the sink. Sink calls are serialised.
type Engine struct {
	sink   Sink
	tasks  *core.SyncMap[string, *task]
	logger *slog.Logger

	decodeOpts  DecodeOptions
	decodeTick  time.Duration
	typingTick  time.Duration
	senderRoles []core.Role
	newRand     func() *rand.Rand

	// mu serialises sink calls and guards closed
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type EngineOption func(*Engine)

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithDecodeOptions(opts DecodeOptions) EngineOption {
	return func(e *Engine) {
		e.decodeOpts = opts
	}
}

// WithDecodeTick sets the decode tick period.
func WithDecodeTick(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.decodeTick = d
	}
}

// WithTypingTick sets the typewriter tick period.
func WithTypingTick(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.typingTick = d
	}
}

// WithSenderRoles restricts effects to messages sent by the given roles.
// Messages from other roles are rendered plain. By default every message is eligible.
func WithSenderRoles(roles ...core.Role) EngineOption {
	return func(e *Engine) {
		e.senderRoles = roles
	}
}

// WithRand sets the constructor of the random source each decode task uses.
func WithRand(f func() *rand.Rand) EngineOption {
	return func(e *Engine) {
		e.newRand = f
	}
}

func NewEngine(sink Sink, opts ...EngineOption) *Engine {
	e := &Engine{
		sink:  sink,
		tasks: core.NewSyncMap[string, *task](),
		logger: slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})),
		decodeOpts: DefaultDecodeOptions(),
		decodeTick: 50 * time.Millisecond,
		typingTick: 50 * time.Millisecond,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// KindFor returns the effect msg gets under state.
func (e *Engine) KindFor(msg core.ChatMessage, state core.ControlState) Kind {
	if len(e.senderRoles) > 0 && !slices.Contains(e.senderRoles, msg.SenderRole) {
		return KindPlain
	}
	return Select(state)
}

// Present renders an inbound message. The sink first receives the message, then
// either its full text at once or the frames of the selected effect.
func (e *Engine) Present(msg core.ChatMessage, state core.ControlState) Kind {
	kind := e.KindFor(msg, state)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return kind
	}
	e.sink.MessageAppended(msg)
	if kind == KindPlain {
		e.sink.ContentUpdate(msg.ID, msg.Text)
	}
	e.mu.Unlock()

	switch kind {
	case KindDecode:
		e.start(msg.ID, kind, NewDecoder(msg.Text, e.decodeOpts, e.newRand()), e.decodeTick)
	case KindSlowTyping:
		e.start(msg.ID, kind, NewTypewriter(msg.Text), e.typingTick)
	}
	return kind
}

func (e *Engine) start(id string, kind Kind, eff Effect, period time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, kind: kind}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	// a repeated id restarts the effect
	if prev, loaded := e.tasks.Swap(id, t); loaded {
		prev.cancel()
	}
	e.logger.Debug("effect started", slog.String("id", id), slog.String("kind", kind.String()))

	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(ctx, id, t, eff, period)
	}()
}

func (e *Engine) run(ctx context.Context, id string, t *task, eff Effect, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			text, done := eff.Step()
			if !e.update(ctx, id, text) {
				return
			}
			if done {
				e.tasks.CompareAndDelete(id, func(v *task) bool { return v == t })
				e.logger.Debug("effect finished", slog.String("id", id), slog.String("kind", t.kind.String()))
				return
			}
		}
	}
}

// update emits a frame unless the task has been cancelled in the meantime.
func (e *Engine) update(ctx context.Context, id, text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx.Err() != nil || e.closed {
		return false
	}
	e.sink.ContentUpdate(id, text)
	return true
}

// Cancel stops the effect running for id. No frame for id is emitted once
// Cancel returns, unless one was already being delivered.
func (e *Engine) Cancel(id string) bool {
	t, ok := e.tasks.LoadAndDelete(id)
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Active returns the number of effects still running.
func (e *Engine) Active() int {
	return e.tasks.Len()
}

// Close cancels every running effect and waits for their goroutines. The sink
// receives nothing afterwards. Close must not be called from a Sink method.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	for _, t := range e.tasks.Drain() {
		t.cancel()
	}
	e.wg.Wait()
}
