package pending

import (
	"sort"
	"sync"
	"time"

	"github.com/compose-network/radiolink/x/executor"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/rs/zerolog"
)

// Registry allocates serials and holds one entry per in-flight request.
// Removal from the map happens under the lock, so exactly one of
// Resolve, Cancel, a timeout or Drain wins for a given serial.
type Registry struct {
	mu  sync.Mutex
	log zerolog.Logger

	exec         executor.Executor
	timerFactory TimerFactory
	now          func() time.Time
	onFinalize   func(Completed)

	last    uint32
	entries map[uint32]*Entry

	maxHistory int
	history    []Completed
}

// New creates a Registry using the provided config.
func New(cfg Config) *Registry {
	if cfg.Executor == nil {
		cfg.Executor = executor.Go{Log: cfg.Logger}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		log:          cfg.Logger,
		exec:         cfg.Executor,
		timerFactory: cfg.TimerFactory,
		now:          cfg.Now,
		onFinalize:   cfg.OnFinalize,
		entries:      make(map[uint32]*Entry),
		maxHistory:   cfg.MaxHistory,
	}
}

type createOptions struct {
	timeout time.Duration
	exec    executor.Executor
}

// CreateOption decorates a single request.
type CreateOption func(*createOptions)

// WithTimeout cancels the request with ErrRequestTimeout after d. Zero disables it.
func WithTimeout(d time.Duration) CreateOption {
	return func(o *createOptions) { o.timeout = d }
}

// WithExecutor delivers this request's envelope on ex.
func WithExecutor(ex executor.Executor) CreateOption {
	return func(o *createOptions) { o.exec = ex }
}

// Create allocates the next serial and stores a pending entry. cb may be nil.
func (r *Registry) Create(code protocol.RequestCode, payload []byte, cb Callback, opts ...CreateOption) (*Entry, error) {
	o := createOptions{exec: r.exec}
	for _, opt := range opts {
		opt(&o)
	}
	if o.exec == nil {
		o.exec = r.exec
	}

	r.mu.Lock()
	if r.last >= protocol.MaxSerial {
		r.mu.Unlock()
		return nil, ErrSerialsExhausted
	}
	r.last++
	e := &Entry{
		Serial:   r.last,
		Code:     code,
		Payload:  payload,
		IssuedAt: r.now(),
		callback: cb,
		exec:     o.exec,
	}
	r.entries[e.Serial] = e
	r.mu.Unlock()

	if o.timeout > 0 && r.timerFactory != nil {
		serial := e.Serial
		e.setTimer(r.timerFactory.AfterFunc(o.timeout, func() {
			if r.Cancel(serial, ErrRequestTimeout) {
				r.log.Warn().
					Uint32("serial", serial).
					Str("code", code.String()).
					Dur("timeout", o.timeout).
					Msg("Request timed out")
			}
		}))
	}
	return e, nil
}

// MarkSent moves an entry from Created to Sent.
func (r *Registry) MarkSent(serial uint32) bool {
	r.mu.Lock()
	e, ok := r.entries[serial]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if !e.state.CompareAndSwap(uint32(StateCreated), uint32(StateSent)) {
		return false
	}
	e.mu.Lock()
	e.sentAt = r.now()
	e.mu.Unlock()
	return true
}

// Lookup returns the pending entry without removing it.
func (r *Registry) Lookup(serial uint32) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[serial]
	return e, ok
}

// Resolve removes the entry and posts env to its callback. It returns false
// when the serial is no longer pending.
func (r *Registry) Resolve(serial uint32, env Envelope) bool {
	return r.finish(serial, env, StateCompleted)
}

// Cancel removes a single entry and posts an error envelope.
func (r *Registry) Cancel(serial uint32, err error) bool {
	return r.finish(serial, Envelope{Err: err}, StateCancelled)
}

// Drain cancels every pending entry with err, in serial order, and returns
// how many were cancelled.
func (r *Registry) Drain(err error) int {
	r.mu.Lock()
	drained := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		drained = append(drained, e)
	}
	r.entries = make(map[uint32]*Entry)
	r.mu.Unlock()

	sort.Slice(drained, func(i, j int) bool { return drained[i].Serial < drained[j].Serial })

	n := 0
	for _, e := range drained {
		if r.deliver(e, Envelope{Err: err}, StateCancelled) {
			n++
		}
	}
	if n > 0 {
		r.log.Info().Int("count", n).Err(err).Msg("Drained pending requests")
	}
	return n
}

func (r *Registry) finish(serial uint32, env Envelope, final State) bool {
	r.mu.Lock()
	e, ok := r.entries[serial]
	if ok {
		delete(r.entries, serial)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.deliver(e, env, final)
}

func (r *Registry) deliver(e *Entry, env Envelope, final State) bool {
	if !e.claim(final) {
		return false
	}

	done := Completed{
		Serial:   e.Serial,
		Code:     e.Code,
		State:    final,
		Outcome:  Outcome(env),
		Err:      env.Err,
		IssuedAt: e.IssuedAt,
		DoneAt:   r.now(),
	}

	r.mu.Lock()
	r.history = append(r.history, done)
	r.pruneHistoryLocked()
	r.mu.Unlock()

	if r.onFinalize != nil {
		r.onFinalize(done)
	}

	// History is recorded before the callback runs.
	e.post(env)
	return true
}

// pruneHistoryLocked trims history to maxHistory. Caller must hold r.mu.
func (r *Registry) pruneHistoryLocked() {
	if r.maxHistory <= 0 {
		r.history = r.history[:0]
		return
	}
	if len(r.history) > r.maxHistory {
		r.history = append(r.history[:0:0], r.history[len(r.history)-r.maxHistory:]...)
	}
}

// Len reports the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// LastSerial returns the most recently allocated serial, 0 if none.
func (r *Registry) LastSerial() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Info is a point-in-time view of a pending entry.
type Info struct {
	Serial uint32        `json:"serial"`
	Code   string        `json:"code"`
	State  string        `json:"state"`
	Age    time.Duration `json:"age"`
}

// Snapshot lists pending entries by serial.
func (r *Registry) Snapshot() []Info {
	now := r.now()
	r.mu.Lock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Info{
			Serial: e.Serial,
			Code:   e.Code.String(),
			State:  e.State().String(),
			Age:    now.Sub(e.IssuedAt),
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// History returns a copy of the recently completed requests, oldest first.
func (r *Registry) History() []Completed {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Completed, len(r.history))
	copy(out, r.history)
	return out
}
