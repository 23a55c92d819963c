package modemsim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/transport/tcp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server accepts modem links and serves each with its own Modem.
type Server struct {
	log     zerolog.Logger
	script  *Script
	metrics *Metrics
	codec   codec.FrameCodec

	mu       sync.Mutex
	listener net.Listener
	modems   map[string]*Modem
	wg       sync.WaitGroup
}

// NewServer creates a simulator server. metrics may be nil.
func NewServer(log zerolog.Logger, script *Script, m *Metrics) *Server {
	if script == nil {
		script = DefaultScript()
	}
	return &Server{
		log:     log.With().Str("component", "modemsim-server").Logger(),
		script:  script,
		metrics: m,
		codec:   codec.NewStreamCodec(codec.DefaultMaxFrameSize),
		modems:  make(map[string]*Modem),
	}
}

// Listen binds addr. Use Addr to learn the port when addr ends in ":0".
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Simulated modem listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx ends, then waits for every session.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("modemsim: server not listening")
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.recordError("accept")
			s.wg.Wait()
			return fmt.Errorf("accept failed: %w", err)
		}

		id := uuid.NewString()
		conn := tcp.NewConnection(netConn, id, s.codec, s.log)
		modem := NewModem(s.log.With().Str("conn_id", id).Logger(), s.script, s.metrics)

		s.mu.Lock()
		s.modems[id] = modem
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordConnection("accepted")
		}
		s.log.Info().Str("conn_id", id).Str("remote_addr", netConn.RemoteAddr().String()).Msg("Client connected")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			started := time.Now()
			err := modem.Serve(ctx, conn)

			s.mu.Lock()
			delete(s.modems, id)
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RecordConnection("closed")
				s.metrics.RecordConnectionDuration(time.Since(started))
			}
			s.log.Info().Err(err).Str("conn_id", id).Msg("Client disconnected")
		}()
	}
}

// Broadcast injects ev on every live connection and returns how many got it.
func (s *Server) Broadcast(ev Event) int {
	s.mu.Lock()
	modems := make([]*Modem, 0, len(s.modems))
	for _, m := range s.modems {
		modems = append(modems, m)
	}
	s.mu.Unlock()

	sent := 0
	for _, m := range modems {
		if err := m.Inject(ev); err != nil {
			s.log.Debug().Err(err).Str("code", ev.Code.String()).Msg("Broadcast to connection failed")
			continue
		}
		sent++
	}
	if s.metrics != nil {
		s.metrics.RecordBroadcast(sent)
	}
	return sent
}

// DropAll closes every live connection and returns how many were closed.
func (s *Server) DropAll() int {
	s.mu.Lock()
	modems := make([]*Modem, 0, len(s.modems))
	for _, m := range s.modems {
		modems = append(modems, m)
	}
	s.mu.Unlock()

	n := 0
	for _, m := range modems {
		if m.Drop() {
			n++
		}
	}
	if n > 0 {
		s.log.Info().Int("dropped", n).Msg("Dropped simulator connections")
	}
	return n
}

// Connections returns the number of live sessions.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.modems)
}

func (s *Server) recordError(op string) {
	if s.metrics != nil {
		s.metrics.RecordError("network", op)
	}
}
