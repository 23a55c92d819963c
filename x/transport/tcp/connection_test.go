package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (transport.Connection, transport.Connection) {
	t.Helper()
	a, b := net.Pipe()
	fc := codec.NewStreamCodec(1 << 10)
	ca := NewConnection(a, "a", fc, zerolog.Nop())
	cb := NewConnection(b, "b", fc, zerolog.Nop())
	t.Cleanup(func() {
		_ = ca.Close()
		_ = cb.Close()
	})
	return ca, cb
}

func TestConnection_FrameExchange(t *testing.T) {
	t.Parallel()

	ca, cb := pipe(t)

	errc := make(chan error, 1)
	go func() { errc <- ca.WriteFrame([]byte("hello")) }()

	frame, err := cb.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), frame)
	require.NoError(t, <-errc)

	assert.Equal(t, uint64(1), ca.Info().FramesWritten)
	assert.Equal(t, uint64(9), ca.Info().BytesWritten)
	assert.Equal(t, uint64(1), cb.Info().FramesRead)
	assert.Equal(t, "b", cb.ID())
}

func TestConnection_ClosedOperations(t *testing.T) {
	t.Parallel()

	ca, _ := pipe(t)
	require.NoError(t, ca.Close())
	require.NoError(t, ca.Close(), "close is idempotent")

	_, err := ca.ReadFrame()
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, ca.WriteFrame([]byte("x")), transport.ErrClosed)
}

func TestConnection_CloseUnblocksReader(t *testing.T) {
	t.Parallel()

	ca, _ := pipe(t)

	errc := make(chan error, 1)
	go func() {
		_, err := ca.ReadFrame()
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ca.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("reader not unblocked by close")
	}
}

func TestDial(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, "tcp", ln.Addr().String(), "modem", nil, zerolog.Nop(), DefaultTimeoutConfig())
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()
	srv := NewConnection(server, "srv", nil, zerolog.Nop())

	go func() { _ = conn.WriteFrame([]byte{1, 2, 3}) }()
	frame, err := srv.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, frame)
	assert.NotEmpty(t, conn.Info().RemoteAddr)

	_, err = Dial(ctx, "tcp", "127.0.0.1:1", "x", nil, zerolog.Nop(), TimeoutConfig{Dial: 100 * time.Millisecond})
	assert.Error(t, err)
}
