package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameSize bounds a single transport frame.
const DefaultMaxFrameSize = 1 << 20

// StreamCodec delimits frames on a byte stream with a big-endian uint32 length prefix.
type StreamCodec struct {
	maxFrameSize int

	// Buffer pool for prefix+frame writes
	bufferPool sync.Pool
}

// NewStreamCodec creates a stream codec; non-positive sizes use DefaultMaxFrameSize.
func NewStreamCodec(maxFrameSize int) *StreamCodec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &StreamCodec{
		maxFrameSize: maxFrameSize,
		bufferPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 0, 1024)
				return &buf
			},
		},
	}
}

// WriteFrame writes the length prefix and frame in a single Write call.
func (c *StreamCodec) WriteFrame(w io.Writer, frame []byte) error {
	n := len(frame)
	if n == 0 {
		return fmt.Errorf("empty frame")
	}
	if n > c.maxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds max %d", ErrFieldTooLarge, n, c.maxFrameSize)
	}

	bufPtr := c.bufferPool.Get().(*[]byte)
	defer c.bufferPool.Put(bufPtr)

	buf := (*bufPtr)[:0]
	buf = binary.BigEndian.AppendUint32(buf, uint32(n))
	buf = append(buf, frame...)
	*bufPtr = buf

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads the next frame. Oversized and empty frames are consumed
// from the stream and reported as ErrMalformed, so the caller can log and keep
// reading at the next boundary. Any other error comes from the reader itself.
func (c *StreamCodec) ReadFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return nil, malformed("empty frame")
	}
	if uint64(length) > uint64(c.maxFrameSize) {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, err
		}
		return nil, malformed("frame size %d exceeds max %d", length, c.maxFrameSize)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// MaxFrameSize returns the maximum frame size.
func (c *StreamCodec) MaxFrameSize() int {
	return c.maxFrameSize
}
