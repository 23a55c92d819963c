package modem

import (
	"fmt"
	"strings"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/decoder"
	"github.com/compose-network/radiolink/x/events"
	"github.com/compose-network/radiolink/x/executor"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
	"go.opentelemetry.io/otel/trace"
)

// TeardownPolicy decides what happens to subscriptions and buffered events
// when the transport goes away. Pending requests are always drained.
type TeardownPolicy uint8

const (
	// RetainOnTeardown keeps subscriptions and the replay buffer for the next Attach.
	RetainOnTeardown TeardownPolicy = iota
	// ClearOnTeardown drops subscriptions and buffered events.
	ClearOnTeardown
)

func (p TeardownPolicy) String() string {
	switch p {
	case RetainOnTeardown:
		return "retain"
	case ClearOnTeardown:
		return "clear"
	default:
		return fmt.Sprintf("teardown-policy(%d)", uint8(p))
	}
}

// ParseTeardownPolicy accepts "retain" or "clear". Empty means retain.
func ParseTeardownPolicy(s string) (TeardownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retain":
		return RetainOnTeardown, nil
	case "clear":
		return ClearOnTeardown, nil
	default:
		return 0, fmt.Errorf("modem: unknown teardown policy %q", s)
	}
}

// Option configures the client
type Option func(*Config)

// Config holds client configuration
type Config struct {
	Executor       executor.Executor
	TeardownPolicy TeardownPolicy
	BufferPolicy   events.Policy
	Chain          *decoder.Chain
	ReplayCodes    []protocol.EventCode
	Limits         codec.Limits
	MaxFrameSize   int
	Metrics        *Metrics
	Tracer         trace.Tracer
	TimerFactory   pending.TimerFactory
	MaxHistory     int
	Now            func() time.Time
}

// WithDefaultExecutor sets where callbacks run when the caller names none.
// By default the client owns a serial executor.
func WithDefaultExecutor(ex executor.Executor) Option {
	return func(c *Config) {
		c.Executor = ex
	}
}

// WithTeardownPolicy sets subscription retention across reconnects
func WithTeardownPolicy(p TeardownPolicy) Option {
	return func(c *Config) {
		c.TeardownPolicy = p
	}
}

// WithBufferPolicy sets how replay codes are buffered
func WithBufferPolicy(p events.Policy) Option {
	return func(c *Config) {
		c.BufferPolicy = p
	}
}

// WithChain sets the decoder chain, typically a vendor variant over decoder.Base
func WithChain(chain *decoder.Chain) Option {
	return func(c *Config) {
		c.Chain = chain
	}
}

// WithReplayCodes replaces the set of replay-on-subscribe event codes
func WithReplayCodes(codes ...protocol.EventCode) Option {
	return func(c *Config) {
		c.ReplayCodes = codes
	}
}

// WithLimits sets codec limits applied to inbound payloads
func WithLimits(l codec.Limits) Option {
	return func(c *Config) {
		c.Limits = l
	}
}

// WithMaxFrameSize bounds outbound frames so oversize payloads fail at Issue
func WithMaxFrameSize(n int) Option {
	return func(c *Config) {
		c.MaxFrameSize = n
	}
}

// WithMetrics sets the metrics sink; nil disables metrics
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer used for request spans
func WithTracer(t trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = t
	}
}

// WithTimerFactory sets the timer source for request timeouts
func WithTimerFactory(f pending.TimerFactory) Option {
	return func(c *Config) {
		c.TimerFactory = f
	}
}

// WithMaxHistory bounds the completed-request history
func WithMaxHistory(n int) Option {
	return func(c *Config) {
		c.MaxHistory = n
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

type deliveryOptions struct {
	timeout time.Duration
	exec    executor.Executor
}

// DeliveryOption decorates a single request or subscription.
type DeliveryOption func(*deliveryOptions)

// WithTimeout cancels a request with pending.ErrRequestTimeout after d.
// Subscriptions ignore it.
func WithTimeout(d time.Duration) DeliveryOption {
	return func(o *deliveryOptions) { o.timeout = d }
}

// OnExecutor runs the callback on ex instead of the client default.
func OnExecutor(ex executor.Executor) DeliveryOption {
	return func(o *deliveryOptions) { o.exec = ex }
}
