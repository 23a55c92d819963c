package events

import (
	"sync"

	"github.com/compose-network/radiolink/x/executor"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/rs/zerolog"
)

// Callback receives a decoded unsolicited event.
type Callback func(code protocol.EventCode, value any)

// Token identifies a subscription for Unregister.
type Token uint64

// Subscription binds a callback to an event code and the executor it runs on.
type Subscription struct {
	Token    Token
	Code     protocol.EventCode
	callback Callback
	exec     executor.Executor
	watch    bool

	// While replaying, live values queue in backlog so they land after the
	// buffered ones. Guarded by Registry.mu.
	replaying bool
	backlog   []any
}

// Disposition is what happened to one unsolicited frame.
type Disposition string

const (
	Delivered    Disposition = "delivered"
	Buffered     Disposition = "buffered"
	Dropped      Disposition = "dropped"
	Unknown      Disposition = "unknown"
	DecodeFailed Disposition = "decode_failed"
)

// Config contains all dependencies for Registry.
type Config struct {
	Logger      zerolog.Logger
	Policy      Policy
	ReplayCodes []protocol.EventCode
	MaxPerCode  int

	// OnReplay is called after buffered values are replayed to a new subscriber.
	OnReplay func(code protocol.EventCode, n int)
}

// DefaultConfig buffers the latest value of the default replay codes.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		Logger:      logger.With().Str("component", "subscriptions").Logger(),
		Policy:      BufferLatest,
		ReplayCodes: protocol.DefaultReplayCodes(),
		MaxPerCode:  DefaultMaxPerCode,
	}
}

// Registry holds subscriptions per event code, in registration order, and
// the replay buffer. Both share one lock so a value is either buffered or
// seen by a subscriber, never lost between the two.
type Registry struct {
	mu      sync.Mutex
	log     zerolog.Logger
	last    Token
	subs    map[protocol.EventCode][]*Subscription
	byToken map[Token]*Subscription
	replay  map[protocol.EventCode]struct{}
	buffer  *Buffer

	// watchers see every value but neither drain nor suppress the buffer.
	watchers map[protocol.EventCode][]*Subscription

	onReplay func(code protocol.EventCode, n int)
}

func NewRegistry(cfg Config) *Registry {
	replay := make(map[protocol.EventCode]struct{}, len(cfg.ReplayCodes))
	for _, c := range cfg.ReplayCodes {
		replay[c] = struct{}{}
	}
	return &Registry{
		log:     cfg.Logger,
		subs:    make(map[protocol.EventCode][]*Subscription),
		byToken: make(map[Token]*Subscription),
		replay:  replay,
		buffer:  NewBuffer(cfg.Policy, cfg.MaxPerCode),

		watchers: make(map[protocol.EventCode][]*Subscription),
		onReplay: cfg.OnReplay,
	}
}

// Register adds a subscriber for code. If code is a replay code with buffered
// values, they are delivered to cb on the calling goroutine before Register
// returns, and the buffer is cleared. Later subscribers do not see them.
// Values dispatched during the replay reach cb after it, in arrival order.
func (r *Registry) Register(code protocol.EventCode, cb Callback, exec executor.Executor) Token {
	return r.add(code, cb, exec, false)
}

// Watch adds an observer for code. It receives a copy of any buffered values
// and every later value, but the buffer stays in place for the first
// Register, and values keep being buffered while only watchers exist.
func (r *Registry) Watch(code protocol.EventCode, cb Callback, exec executor.Executor) Token {
	return r.add(code, cb, exec, true)
}

func (r *Registry) add(code protocol.EventCode, cb Callback, exec executor.Executor, watch bool) Token {
	if exec == nil {
		exec = executor.Inline{Log: r.log}
	}

	r.mu.Lock()
	r.last++
	sub := &Subscription{Token: r.last, Code: code, callback: cb, exec: exec, watch: watch}
	if watch {
		r.watchers[code] = append(r.watchers[code], sub)
	} else {
		r.subs[code] = append(r.subs[code], sub)
	}
	r.byToken[sub.Token] = sub

	var replayed []any
	if _, ok := r.replay[code]; ok {
		if watch {
			replayed = r.buffer.Peek(code)
		} else {
			replayed = r.buffer.Take(code)
		}
	}
	sub.replaying = len(replayed) > 0
	r.mu.Unlock()

	if len(replayed) > 0 {
		r.log.Info().
			Str("code", code.String()).
			Int("replayed_count", len(replayed)).
			Bool("watch", watch).
			Msg("Replaying buffered events to new subscriber")
		for _, v := range replayed {
			v := v
			executor.Safe(r.log, func() { cb(code, v) })
		}
		if r.onReplay != nil && !watch {
			r.onReplay(code, len(replayed))
		}
		r.flushBacklog(sub)
	}
	return sub.Token
}

// flushBacklog posts values queued during a replay until none remain, then
// lets Dispatch post to sub directly.
func (r *Registry) flushBacklog(sub *Subscription) {
	for {
		r.mu.Lock()
		pending := sub.backlog
		sub.backlog = nil
		if _, live := r.byToken[sub.Token]; !live {
			pending = nil
		}
		if len(pending) == 0 {
			sub.replaying = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		for _, v := range pending {
			v := v
			cb := sub.callback
			sub.exec.Post(func() { cb(sub.Code, v) })
		}
	}
}

// Unregister removes a subscription. It does not touch the replay buffer.
func (r *Registry) Unregister(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byToken[token]
	if !ok {
		return false
	}
	delete(r.byToken, token)

	set := r.subs
	if sub.watch {
		set = r.watchers
	}
	list := set[sub.Code]
	for i, s := range list {
		if s.Token == token {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(set, sub.Code)
	} else {
		set[sub.Code] = list
	}
	return true
}

// Dispatch hands value to every subscriber of code in registration order,
// then to watchers. With no subscribers, replay codes are buffered and
// others go to watchers only, or are dropped.
func (r *Registry) Dispatch(code protocol.EventCode, value any) Disposition {
	r.mu.Lock()
	list := r.subs[code]
	watchers := r.watchers[code]

	d := Delivered
	var discarded, buffered int
	if len(list) == 0 {
		_, replay := r.replay[code]
		switch {
		case replay:
			d = Buffered
			discarded = r.buffer.Put(code, value)
			buffered = r.buffer.Len(code)
		case len(watchers) == 0:
			r.mu.Unlock()
			return Dropped
		}
	}

	targets := make([]*Subscription, 0, len(list)+len(watchers))
	for _, group := range [][]*Subscription{list, watchers} {
		for _, sub := range group {
			if sub.replaying {
				sub.backlog = append(sub.backlog, value)
				continue
			}
			targets = append(targets, sub)
		}
	}
	r.mu.Unlock()

	if d == Buffered {
		r.log.Debug().
			Str("code", code.String()).
			Int("buffered_count", buffered).
			Int("discarded", discarded).
			Int("watchers", len(watchers)).
			Msg("Buffered event with no subscriber")
	}

	for _, sub := range targets {
		cb := sub.callback
		sub.exec.Post(func() { cb(code, value) })
	}
	return d
}

// IsReplay reports whether code is buffered while unsubscribed.
func (r *Registry) IsReplay(code protocol.EventCode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.replay[code]
	return ok
}

// Counts returns the number of subscribers per code. Watchers are not counted.
func (r *Registry) Counts() map[protocol.EventCode]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[protocol.EventCode]int, len(r.subs))
	for c, list := range r.subs {
		out[c] = len(list)
	}
	return out
}

// Buffered returns the number of buffered values per code.
func (r *Registry) Buffered() map[protocol.EventCode]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := r.buffer.Codes()
	out := make(map[protocol.EventCode]int, len(codes))
	for _, c := range codes {
		out[c] = r.buffer.Len(c)
	}
	return out
}

// Len returns the total number of subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

// Reset drops every subscription and buffered value.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[protocol.EventCode][]*Subscription)
	r.watchers = make(map[protocol.EventCode][]*Subscription)
	r.byToken = make(map[Token]*Subscription)
	r.buffer.Clear()
}
