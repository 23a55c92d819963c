package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickCallback is invoked once per tick. Errors are logged; the runner keeps going.
type TickCallback func(context.Context, Tick) error

// Tick is one firing of a Runner.
type Tick struct {
	ID        uint64
	StartedAt time.Time
	Interval  time.Duration
	// Missed counts ticks skipped because the previous callback overran.
	Missed uint64
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Handler  TickCallback
	Interval time.Duration
	// Origin is when tick 0 fires. Zero means the time of Start.
	Origin time.Time
	// Now returns the current time. Defaults to time.Now if nil.
	Now    func() time.Time
	Logger zerolog.Logger
}

// Runner fires at Origin + K*Interval. Ticks that fall inside a slow callback
// are coalesced into the next one rather than replayed.
type Runner struct {
	log      zerolog.Logger
	handler  TickCallback
	interval time.Duration
	origin   time.Time
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRunner constructs a Runner. Interval must be positive.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be positive")
	}
	if cfg.Handler == nil {
		return nil, errors.New("poller: handler is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		log:      cfg.Logger,
		handler:  cfg.Handler,
		interval: cfg.Interval,
		origin:   cfg.Origin,
		now:      cfg.Now,
	}, nil
}

// Start begins ticking until ctx is canceled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	if r.origin.IsZero() {
		r.origin = r.now()
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true
	go r.run(runCtx, r.done)
}

// Stop halts the runner and waits for an in-progress callback.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

// TickForTime returns the id and start of the tick covering t.
func (r *Runner) TickForTime(t time.Time) (uint64, time.Time) {
	if t.Before(r.origin) {
		return 0, r.origin
	}
	id := uint64(t.Sub(r.origin) / r.interval)
	return id, r.tickStart(id)
}

func (r *Runner) tickStart(id uint64) time.Time {
	return r.origin.Add(time.Duration(id) * r.interval)
}

func (r *Runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var (
		last    uint64
		emitted bool
	)
	next := r.origin
	for {
		delay := next.Sub(r.now())
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		now := r.now()
		if now.Before(r.origin) {
			next = r.origin
			continue
		}
		id, start := r.TickForTime(now)
		if emitted && id <= last {
			next = r.tickStart(last + 1)
			continue
		}

		var missed uint64
		if emitted {
			missed = id - last - 1
		}
		tick := Tick{ID: id, StartedAt: start, Interval: r.interval, Missed: missed}
		if err := r.handler(ctx, tick); err != nil {
			r.log.Warn().Err(err).Uint64("tick_id", id).Msg("Tick handler returned error")
		}
		last, emitted = id, true
		next = r.tickStart(id + 1)
	}
}
