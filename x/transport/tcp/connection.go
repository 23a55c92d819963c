package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/transport"
	"github.com/rs/zerolog"
)

// TimeoutConfig contains timeout settings for connection operations
type TimeoutConfig struct {
	Dial  time.Duration `mapstructure:"dial" yaml:"dial"`   // Timeout for establishing the link (default: 5s)
	Read  time.Duration `mapstructure:"read" yaml:"read"`   // Idle timeout per frame; 0 disables it, modems may be silent for long periods
	Write time.Duration `mapstructure:"write" yaml:"write"` // Timeout for write operations (default: 10s)
}

// DefaultTimeoutConfig returns production-ready timeout defaults
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Dial:  5 * time.Second,
		Read:  0,
		Write: 10 * time.Second,
	}
}

// connection implements transport.Connection over a stream socket
type connection struct {
	net.Conn
	id       string
	codec    codec.FrameCodec
	log      zerolog.Logger
	timeouts TimeoutConfig

	mu   sync.RWMutex
	info transport.ConnectionInfo

	// Buffered I/O
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error

	// Metrics
	framesRead    atomic.Uint64
	framesWritten atomic.Uint64
	bytesRead     atomic.Uint64
	bytesWritten  atomic.Uint64
}

// NewConnection wraps an established stream.
func NewConnection(netConn net.Conn, id string, fc codec.FrameCodec, log zerolog.Logger) transport.Connection {
	return NewConnectionWithTimeouts(netConn, id, fc, log, DefaultTimeoutConfig())
}

// NewConnectionWithTimeouts wraps an established stream with custom timeouts.
func NewConnectionWithTimeouts(
	netConn net.Conn, id string, fc codec.FrameCodec, log zerolog.Logger, timeouts TimeoutConfig,
) transport.Connection {
	if fc == nil {
		fc = codec.NewStreamCodec(codec.DefaultMaxFrameSize)
	}
	now := time.Now()

	remote := ""
	if addr := netConn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	return &connection{
		Conn:     netConn,
		id:       id,
		codec:    fc,
		log:      log.With().Str("conn_id", id).Logger(),
		timeouts: timeouts,
		reader:   bufio.NewReaderSize(netConn, 16384),
		writer:   bufio.NewWriterSize(netConn, 16384),
		info: transport.ConnectionInfo{
			ID:          id,
			RemoteAddr:  remote,
			ConnectedAt: now,
			LastSeen:    now,
		},
	}
}

// Dial connects to a modem endpoint. network is "tcp" or "unix".
func Dial(
	ctx context.Context, network, addr, id string, fc codec.FrameCodec, log zerolog.Logger, timeouts TimeoutConfig,
) (transport.Connection, error) {
	d := net.Dialer{Timeout: timeouts.Dial}
	netConn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s %s: %w", network, addr, err)
	}
	return NewConnectionWithTimeouts(netConn, id, fc, log, timeouts), nil
}

// ReadFrame reads one delimited frame
func (c *connection) ReadFrame() ([]byte, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}

	if c.timeouts.Read > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.timeouts.Read)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	frame, err := c.codec.ReadFrame(c.reader)
	if err != nil {
		if c.closed.Load() && !errors.Is(err, codec.ErrMalformed) {
			return nil, transport.ErrClosed
		}
		return nil, err
	}

	c.UpdateLastSeen()
	c.framesRead.Add(1)
	c.bytesRead.Add(uint64(len(frame)) + 4)

	return frame, nil
}

// WriteFrame writes one frame and flushes it
func (c *connection) WriteFrame(frame []byte) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeouts.Write > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.timeouts.Write)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if err := c.codec.WriteFrame(c.writer, frame); err != nil {
		return err
	}

	if err := c.writer.Flush(); err != nil {
		return err
	}

	c.framesWritten.Add(1)
	c.bytesWritten.Add(uint64(len(frame)) + 4)
	return nil
}

// Close closes the underlying stream once.
func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.Conn.Close()
		c.log.Debug().Msg("Connection closed")
	})
	return c.closeErr
}

// ID returns the connection ID.
func (c *connection) ID() string {
	return c.id
}

// Info returns connection information.
func (c *connection) Info() transport.ConnectionInfo {
	c.mu.RLock()
	info := c.info
	c.mu.RUnlock()

	info.FramesRead = c.framesRead.Load()
	info.FramesWritten = c.framesWritten.Load()
	info.BytesRead = c.bytesRead.Load()
	info.BytesWritten = c.bytesWritten.Load()

	return info
}

// UpdateLastSeen updates the last seen timestamp.
func (c *connection) UpdateLastSeen() {
	c.mu.Lock()
	c.info.LastSeen = time.Now()
	c.mu.Unlock()
}
