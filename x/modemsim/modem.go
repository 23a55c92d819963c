package modemsim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/transport"
	"github.com/rs/zerolog"
)

// Modem answers requests on one connection according to a Script.
type Modem struct {
	log     zerolog.Logger
	script  *Script
	metrics *Metrics

	mu       sync.Mutex
	conn     transport.Connection
	requests []protocol.Request
	wg       sync.WaitGroup
}

// NewModem creates a simulated modem. metrics may be nil.
func NewModem(log zerolog.Logger, script *Script, m *Metrics) *Modem {
	if script == nil {
		script = DefaultScript()
	}
	return &Modem{
		log:     log.With().Str("component", "modemsim").Str("script", script.Name).Logger(),
		script:  script,
		metrics: m,
	}
}

// Serve emits the on-connect events and then answers requests until ctx ends
// or the connection fails. conn is closed on return.
func (m *Modem) Serve(ctx context.Context, conn transport.Connection) error {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
		m.wg.Wait()
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	for _, ev := range m.script.OnConnect {
		if err := m.sendEvent(conn, ev); err != nil {
			return err
		}
	}

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, codec.ErrMalformed) {
				m.recordError("malformed", "read")
				m.log.Warn().Err(err).Msg("Skipping malformed request frame")
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		received := time.Now()

		req, err := protocol.ReadRequest(frame)
		if err != nil {
			m.recordError("malformed", "decode")
			m.log.Warn().Err(err).Msg("Dropping undecodable request")
			continue
		}
		if m.metrics != nil {
			m.metrics.RecordFrameReceived("request", len(frame))
		}

		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.mu.Unlock()

		m.log.Debug().Uint32("serial", req.Serial).Str("code", req.Code.String()).Msg("Request received")

		resp := m.script.responseFor(req.Code)
		if resp.Silent {
			continue
		}
		if resp.Delay <= 0 {
			if err := m.respond(conn, req, resp, received); err != nil {
				return err
			}
			continue
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			select {
			case <-time.After(resp.Delay):
			case <-ctx.Done():
				return
			}
			if err := m.respond(conn, req, resp, received); err != nil {
				m.log.Debug().Err(err).Uint32("serial", req.Serial).Msg("Delayed response not sent")
			}
		}()
	}
}

func (m *Modem) respond(conn transport.Connection, req protocol.Request, resp Response, received time.Time) error {
	var payload []byte
	if resp.Error == protocol.ErrorNone {
		var err error
		if payload, err = resp.Payload.Encode(); err != nil {
			return fmt.Errorf("failed to encode %s response: %w", req.Code, err)
		}
	}
	frame, err := protocol.EncodeResponse(req.Serial, resp.Error, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s response: %w", req.Code, err)
	}
	if err := conn.WriteFrame(frame); err != nil {
		m.recordError("write", "response")
		return fmt.Errorf("failed to write %s response: %w", req.Code, err)
	}
	if m.metrics != nil {
		m.metrics.RecordFrameSent("response", len(frame))
		m.metrics.RecordResponse(req.Code.String(), time.Since(received))
	}

	for _, ev := range resp.Events {
		if err := m.sendEvent(conn, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Modem) sendEvent(conn transport.Connection, ev Event) error {
	payload, err := ev.Payload.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Code, err)
	}
	frame, err := protocol.EncodeEvent(ev.Code, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Code, err)
	}
	if err := conn.WriteFrame(frame); err != nil {
		m.recordError("write", "event")
		return fmt.Errorf("failed to write %s event: %w", ev.Code, err)
	}
	if m.metrics != nil {
		m.metrics.RecordFrameSent("event", len(frame))
	}
	m.log.Debug().Str("code", ev.Code.String()).Msg("Event sent")
	return nil
}

// Inject sends an unsolicited event on the active connection.
func (m *Modem) Inject(ev Event) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return transport.ErrClosed
	}
	return m.sendEvent(conn, ev)
}

// Drop closes the active connection, as a modem reset would.
func (m *Modem) Drop() bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.Close() == nil
}

// Requests returns every request received so far.
func (m *Modem) Requests() []protocol.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *Modem) recordError(errType, op string) {
	if m.metrics != nil {
		m.metrics.RecordError(errType, op)
	}
}
