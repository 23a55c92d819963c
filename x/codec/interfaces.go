package codec

import "io"

// FrameReader reads one delimited frame from a stream.
type FrameReader interface {
	ReadFrame(r io.Reader) ([]byte, error)
}

// FrameWriter writes one delimited frame to a stream.
type FrameWriter interface {
	WriteFrame(w io.Writer, frame []byte) error
}

// FrameCodec is the stream delimiting used by transports.
type FrameCodec interface {
	FrameReader
	FrameWriter
	MaxFrameSize() int
}

var _ FrameCodec = (*StreamCodec)(nil)
