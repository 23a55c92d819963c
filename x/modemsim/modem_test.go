package modemsim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/transport"
	"github.com/compose-network/radiolink/x/transport/tcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, script *Script) (*Modem, transport.Connection) {
	t.Helper()
	a, b := net.Pipe()
	fc := codec.NewStreamCodec(codec.DefaultMaxFrameSize)
	modem := NewModem(zerolog.Nop(), script, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = modem.Serve(ctx, tcp.NewConnection(a, "sim", fc, zerolog.Nop()))
	}()
	client := tcp.NewConnection(b, "client", fc, zerolog.Nop())
	t.Cleanup(func() {
		cancel()
		_ = client.Close()
		<-done
	})
	return modem, client
}

func readHeader(t *testing.T, conn transport.Connection) (protocol.Header, *codec.Cursor) {
	t.Helper()
	frame, err := conn.ReadFrame()
	require.NoError(t, err)
	c := codec.NewCursor(frame)
	h, err := protocol.ReadHeader(c)
	require.NoError(t, err)
	return h, c
}

func request(t *testing.T, conn transport.Connection, code protocol.RequestCode, serial uint32) {
	t.Helper()
	frame, err := protocol.EncodeRequest(code, serial, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteFrame(frame))
}

func TestModem_ScriptedExchange(t *testing.T) {
	t.Parallel()

	script, err := ParseScript([]byte(sampleScript))
	require.NoError(t, err)
	modem, conn := serve(t, script)

	h, c := readHeader(t, conn)
	assert.Equal(t, protocol.FrameUnsolicited, h.Type)
	assert.Equal(t, protocol.EventRILConnected, h.Event)
	ints, err := c.ReadInt32s()
	require.NoError(t, err)
	assert.Equal(t, []int32{15}, ints)

	h, _ = readHeader(t, conn)
	assert.Equal(t, protocol.EventCustomSIMInfo, h.Event)

	request(t, conn, protocol.RequestGetIMSI, 1)
	h, c = readHeader(t, conn)
	assert.Equal(t, protocol.FrameSolicited, h.Type)
	assert.Equal(t, uint32(1), h.Serial)
	assert.Equal(t, protocol.ErrorNone, h.Error)
	imsi, err := c.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "001010123456789", imsi)

	request(t, conn, protocol.RequestEnterSIMPIN, 2)
	h, _ = readHeader(t, conn)
	assert.Equal(t, uint32(2), h.Serial)
	assert.Equal(t, protocol.ErrorPasswordIncorrect, h.Error)

	request(t, conn, protocol.RequestOEMHookStrings, 3)
	h, _ = readHeader(t, conn)
	assert.Equal(t, uint32(3), h.Serial)
	h, _ = readHeader(t, conn)
	assert.Equal(t, protocol.EventOEMHookRaw, h.Event)

	require.Eventually(t, func() bool { return len(modem.Requests()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.RequestOEMHookStrings, modem.Requests()[2].Code)
}

func TestModem_SilentAndDelayed(t *testing.T) {
	t.Parallel()

	script, err := ParseScript([]byte(sampleScript))
	require.NoError(t, err)
	script.OnConnect = nil
	_, conn := serve(t, script)

	request(t, conn, protocol.RequestRadioPower, 1)
	request(t, conn, protocol.RequestOEMHookRaw, 2)
	request(t, conn, protocol.RequestDial, 3)

	// The silent request never answers and the delayed one arrives after the default.
	h, _ := readHeader(t, conn)
	assert.Equal(t, uint32(3), h.Serial)
	h, c := readHeader(t, conn)
	assert.Equal(t, uint32(2), h.Serial)
	raw, err := c.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, raw)
}

func TestModem_UnscriptedRequestNotSupported(t *testing.T) {
	t.Parallel()

	_, conn := serve(t, &Script{Name: "empty"})
	request(t, conn, protocol.RequestDial, 7)
	h, _ := readHeader(t, conn)
	assert.Equal(t, uint32(7), h.Serial)
	assert.Equal(t, protocol.ErrorRequestNotSupported, h.Error)
}

func TestModem_Inject(t *testing.T) {
	t.Parallel()

	modem, conn := serve(t, &Script{Name: "empty"})
	require.Eventually(t, func() bool {
		modem.mu.Lock()
		defer modem.mu.Unlock()
		return modem.conn != nil
	}, time.Second, 5*time.Millisecond)

	go func() {
		_ = modem.Inject(Event{Code: protocol.EventSignalStrength, Payload: Payload{Ints: []int32{20}}})
	}()
	h, _ := readHeader(t, conn)
	assert.Equal(t, protocol.EventSignalStrength, h.Event)

	idle := NewModem(zerolog.Nop(), nil, nil)
	assert.ErrorIs(t, idle.Inject(Event{Code: protocol.EventNewSMS}), transport.ErrClosed)
}
