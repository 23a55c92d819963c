package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/compose-network/radiolink/x/executor"
	"github.com/compose-network/radiolink/x/protocol"
)

// State is the lifecycle position of a request.
type State uint32

const (
	StateCreated State = iota
	StateSent
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSent:
		return "sent"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Envelope carries exactly one of Value or Err.
type Envelope struct {
	Value any
	Err   error
}

// Callback receives the single envelope for a request.
type Callback func(Envelope)

// Entry is one in-flight request. It is owned by the Registry until resolved.
type Entry struct {
	Serial   uint32
	Code     protocol.RequestCode
	Payload  []byte
	IssuedAt time.Time

	state    atomic.Uint32
	resolved atomic.Bool
	callback Callback
	exec     executor.Executor

	mu     sync.Mutex
	timer  Timer
	sentAt time.Time
}

func (e *Entry) State() State { return State(e.state.Load()) }

// SentAt returns when the frame was handed to the transport, zero if not yet.
func (e *Entry) SentAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sentAt
}

// Resolved reports whether the envelope has been handed to the executor.
func (e *Entry) Resolved() bool { return e.resolved.Load() }

// claim marks the entry final exactly once and stops its timer.
func (e *Entry) claim(final State) bool {
	if !e.resolved.CompareAndSwap(false, true) {
		return false
	}
	e.state.Store(uint32(final))

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	return true
}

// post hands env to the callback's executor.
func (e *Entry) post(env Envelope) {
	if cb := e.callback; cb != nil {
		e.exec.Post(func() { cb(env) })
	}
}

func (e *Entry) setTimer(t Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved.Load() {
		t.Stop()
		return
	}
	e.timer = t
}

// Completed records a finished request.
type Completed struct {
	Serial   uint32
	Code     protocol.RequestCode
	State    State
	Outcome  string
	Err      error
	IssuedAt time.Time
	DoneAt   time.Time
}

func (c Completed) Latency() time.Duration { return c.DoneAt.Sub(c.IssuedAt) }

// Outcome classifies an envelope for logs and metrics.
func Outcome(env Envelope) string {
	var remote *RemoteError
	switch {
	case env.Err == nil:
		return "ok"
	case errors.As(env.Err, &remote):
		return "remote_error"
	case errors.Is(env.Err, ErrRequestTimeout):
		return "timeout"
	case errors.Is(env.Err, ErrTransportUnavailable):
		return "transport_unavailable"
	case errors.Is(env.Err, context.Canceled), errors.Is(env.Err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
