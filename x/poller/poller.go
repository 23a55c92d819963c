package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/modem"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
)

// Issuer is the part of modem.Client the poller needs.
type Issuer interface {
	Issue(ctx context.Context, code protocol.RequestCode, payload []byte, cb pending.Callback, opts ...modem.DeliveryOption) (uint32, error)
}

// Target is one request issued on a fixed cadence.
type Target struct {
	Code     int32         `mapstructure:"code"     yaml:"code"`
	Strings  []string      `mapstructure:"strings"  yaml:"strings,omitempty"`
	Ints     []int32       `mapstructure:"ints"     yaml:"ints,omitempty"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Timeout defaults to Interval.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

func (t Target) payload() ([]byte, error) {
	switch {
	case t.Strings != nil && t.Ints != nil:
		return nil, fmt.Errorf("poller: %s sets both strings and ints", protocol.RequestCode(t.Code))
	case t.Strings != nil:
		return codec.Encode(t.Strings)
	case t.Ints != nil:
		return codec.Encode(t.Ints)
	default:
		return nil, nil
	}
}

// Result is the latest envelope for a target.
type Result struct {
	Code     string    `json:"code"`
	Interval string    `json:"interval"`
	Value    any       `json:"value,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
	Polls    uint64    `json:"polls"`
	Failures uint64    `json:"failures"`
	// Skipped counts ticks that found the previous request still pending.
	Skipped  uint64 `json:"skipped"`
	Missed   uint64 `json:"missed"`
	LastTick uint64 `json:"last_tick"`
	InFlight bool   `json:"in_flight"`
}

type target struct {
	Target
	code     protocol.RequestCode
	payload  []byte
	runner   *Runner
	inflight atomic.Bool

	mu     sync.Mutex
	result Result
}

// Poller issues each target's request on its own Runner. A tick is skipped
// while the previous request for that target is still pending.
type Poller struct {
	log     zerolog.Logger
	issuer  Issuer
	now     func() time.Time
	targets []*target
}

// New validates targets and builds their runners.
func New(log zerolog.Logger, issuer Issuer, targets []Target) (*Poller, error) {
	p := &Poller{
		log:    log.With().Str("component", "poller").Logger(),
		issuer: issuer,
		now:    time.Now,
	}
	for _, t := range targets {
		payload, err := t.payload()
		if err != nil {
			return nil, err
		}
		if t.Timeout <= 0 {
			t.Timeout = t.Interval
		}
		tg := &target{
			Target:  t,
			code:    protocol.RequestCode(t.Code),
			payload: payload,
		}
		tg.result = Result{Code: tg.code.String(), Interval: t.Interval.String()}

		r, err := NewRunner(RunnerConfig{
			Handler:  p.tickHandler(tg),
			Interval: t.Interval,
			Logger:   p.log.With().Str("code", tg.code.String()).Logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("poller: %s: %w", tg.code, err)
		}
		tg.runner = r
		p.targets = append(p.targets, tg)
	}
	return p, nil
}

// Start starts every runner.
func (p *Poller) Start(ctx context.Context) {
	for _, t := range p.targets {
		t.runner.Start(ctx)
	}
	if len(p.targets) > 0 {
		p.log.Info().Int("targets", len(p.targets)).Msg("Polling started")
	}
}

// Stop stops every runner.
func (p *Poller) Stop() {
	for _, t := range p.targets {
		t.runner.Stop()
	}
}

// Results returns the latest result per target, in configuration order.
func (p *Poller) Results() []Result {
	out := make([]Result, 0, len(p.targets))
	for _, t := range p.targets {
		t.mu.Lock()
		r := t.result
		t.mu.Unlock()
		r.InFlight = t.inflight.Load()
		out = append(out, r)
	}
	return out
}

func (p *Poller) tickHandler(t *target) TickCallback {
	return func(ctx context.Context, tick Tick) error {
		t.mu.Lock()
		t.result.LastTick = tick.ID
		t.result.Missed += tick.Missed
		t.mu.Unlock()

		if !t.inflight.CompareAndSwap(false, true) {
			t.mu.Lock()
			t.result.Skipped++
			t.mu.Unlock()
			return nil
		}

		_, err := p.issuer.Issue(ctx, t.code, t.payload, func(env pending.Envelope) {
			t.record(env, p.now())
			t.inflight.Store(false)
		}, modem.WithTimeout(t.Timeout))
		if err != nil {
			t.inflight.Store(false)
			return fmt.Errorf("failed to issue %s: %w", t.code, err)
		}
		return nil
	}
}

func (t *target) record(env pending.Envelope, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.Polls++
	t.result.At = at
	if env.Err != nil {
		t.result.Failures++
		t.result.Error = env.Err.Error()
		return
	}
	t.result.Value = env.Value
	t.result.Error = ""
}
