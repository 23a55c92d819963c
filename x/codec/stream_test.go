package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCodec_WriteRead(t *testing.T) {
	t.Parallel()

	c := NewStreamCodec(1 << 10)
	buf := new(bytes.Buffer)

	require.NoError(t, c.WriteFrame(buf, []byte("first")))
	require.NoError(t, c.WriteFrame(buf, bytes.Repeat([]byte{0xab}, 512)))

	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	f1, err := c.ReadFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), f1)

	f2, err := c.ReadFrame(buf)
	require.NoError(t, err)
	assert.Len(t, f2, 512)

	_, err = c.ReadFrame(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamCodec_OversizeResyncs(t *testing.T) {
	t.Parallel()

	big := NewStreamCodec(1 << 10)
	small := NewStreamCodec(8)
	buf := new(bytes.Buffer)

	require.NoError(t, big.WriteFrame(buf, bytes.Repeat([]byte{1}, 64)))
	require.NoError(t, big.WriteFrame(buf, []byte("next")))

	_, err := small.ReadFrame(buf)
	require.ErrorIs(t, err, ErrMalformed)

	f, err := small.ReadFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("next"), f)
}

func TestStreamCodec_EmptyFrame(t *testing.T) {
	t.Parallel()

	c := NewStreamCodec(0)
	assert.Equal(t, DefaultMaxFrameSize, c.MaxFrameSize())
	assert.Error(t, c.WriteFrame(io.Discard, nil))

	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	_, err := c.ReadFrame(buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStreamCodec_WriteTooLarge(t *testing.T) {
	t.Parallel()

	c := NewStreamCodec(4)
	err := c.WriteFrame(io.Discard, []byte("12345"))
	assert.ErrorIs(t, err, ErrFieldTooLarge)
}

func TestStreamCodec_Truncated(t *testing.T) {
	t.Parallel()

	c := NewStreamCodec(64)
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, uint32(10))
	buf.WriteString("abc")

	_, err := c.ReadFrame(buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
