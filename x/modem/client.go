package modem

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/decoder"
	"github.com/compose-network/radiolink/x/events"
	"github.com/compose-network/radiolink/x/executor"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "radiolink"

// Client correlates requests with responses and routes unsolicited events for
// one modem. Transports come and go through Attach and teardown; the
// registries outlive them.
type Client struct {
	log      zerolog.Logger
	policy   TeardownPolicy
	chain    *decoder.Chain
	pending  *pending.Registry
	subs     *events.Registry
	router   *events.Router
	exec     executor.Executor
	owned    *executor.Serial
	async    executor.Executor
	metrics  *Metrics
	tracer   trace.Tracer
	limits   codec.Limits
	maxFrame int
	now      func() time.Time
	started  time.Time

	mu      sync.RWMutex
	conn    transport.Connection
	session string
	done    chan struct{}
	closed  bool

	framesIn       atomic.Uint64
	framesOut      atomic.Uint64
	malformed      atomic.Uint64
	duplicates     atomic.Uint64
	unknownCodes   atomic.Uint64
	decodeFailures atomic.Uint64
	teardowns      atomic.Uint64
}

// New creates a client with no transport attached.
func New(log zerolog.Logger, opts ...Option) *Client {
	cfg := &Config{
		TeardownPolicy: RetainOnTeardown,
		BufferPolicy:   events.BufferLatest,
		ReplayCodes:    protocol.DefaultReplayCodes(),
		Limits:         codec.DefaultLimits(),
		MaxFrameSize:   codec.DefaultMaxFrameSize,
		TimerFactory:   pending.SystemTimerFactory{},
		MaxHistory:     pending.DefaultMaxHistory,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Client{
		log:      log.With().Str("component", "modem").Logger(),
		policy:   cfg.TeardownPolicy,
		chain:    cfg.Chain,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		limits:   cfg.Limits,
		maxFrame: cfg.MaxFrameSize,
		now:      cfg.Now,
		exec:     cfg.Executor,
		async:    executor.Go{Log: log},
	}
	if c.chain == nil {
		c.chain = decoder.Base()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.exec == nil {
		c.owned = executor.NewSerial("modem-callbacks", log)
		c.exec = c.owned
	}
	c.started = c.now()

	pcfg := pending.DefaultConfig(log)
	pcfg.Executor = c.exec
	pcfg.TimerFactory = cfg.TimerFactory
	pcfg.Now = cfg.Now
	pcfg.MaxHistory = cfg.MaxHistory
	pcfg.OnFinalize = c.onFinalize
	c.pending = pending.New(pcfg)

	ecfg := events.DefaultConfig(log)
	ecfg.Policy = cfg.BufferPolicy
	ecfg.ReplayCodes = cfg.ReplayCodes
	ecfg.OnReplay = c.onReplay
	c.subs = events.NewRegistry(ecfg)
	c.router = events.NewRouter(log, c.chain, c.subs)

	return c
}

// Attach starts a session on conn and the reader loop that serves it.
func (c *Client) Attach(conn transport.Connection) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyAttached
	}
	c.conn = conn
	c.session = uuid.NewString()
	c.done = make(chan struct{})
	session, done := c.session, c.done
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionsActive.Inc()
	}

	c.log.Info().
		Str("session_id", session).
		Str("conn_id", conn.ID()).
		Str("remote_addr", conn.Info().RemoteAddr).
		Str("chain", c.chain.Name()).
		Msg("Modem transport attached")

	go c.readLoop(conn, session, done)
	return nil
}

// SessionDone returns a channel closed when the current session ends, or nil
// when no transport is attached.
func (c *Client) SessionDone() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.done
}

// Connected reports whether a transport is attached.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// SessionID returns the id of the current or most recent session.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Chain returns the decoder chain in use.
func (c *Client) Chain() *decoder.Chain { return c.chain }

// Close tears down the session, drains pending requests and stops the
// client-owned executor once queued callbacks have run.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		<-done
	}

	// Requests created while detached never reached a reader loop.
	c.pending.Drain(pending.ErrTransportUnavailable)

	if c.owned != nil {
		c.owned.Close()
	}

	c.log.Info().
		Uint64("frames_in", c.framesIn.Load()).
		Uint64("frames_out", c.framesOut.Load()).
		Msg("Modem client closed")
	return nil
}

// Done is closed once every callback queued on the client-owned executor
// has run after Close. It is nil when callbacks use a caller executor.
func (c *Client) Done() <-chan struct{} {
	if c.owned == nil {
		return nil
	}
	return c.owned.Done()
}

func (c *Client) currentConn() transport.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// teardown detaches conn if it is still current. Pending requests get a
// synthetic error; subscriptions follow the teardown policy.
func (c *Client) teardown(conn transport.Connection, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	session := c.session
	c.mu.Unlock()

	_ = conn.Close()
	drained := c.pending.Drain(pending.ErrTransportUnavailable)

	if c.policy == ClearOnTeardown {
		c.subs.Reset()
	}

	c.teardowns.Add(1)
	if c.metrics != nil {
		c.metrics.SessionsActive.Dec()
		c.metrics.Teardowns.Inc()
	}

	c.log.Info().
		Err(cause).
		Str("session_id", session).
		Int("drained", drained).
		Str("policy", c.policy.String()).
		Msg("Modem transport torn down")
}

func (c *Client) onFinalize(done pending.Completed) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCompleted(done.Code.String(), done.Outcome, done.Latency().Seconds())
}

func (c *Client) onReplay(_ protocol.EventCode, n int) {
	if c.metrics == nil {
		return
	}
	c.metrics.ReplayedEvents.Add(float64(n))
}
