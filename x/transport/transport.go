package transport

import (
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// ConnectionInfo describes a live modem link.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastSeen      time.Time `json:"last_seen"`
	FramesRead    uint64    `json:"frames_read"`
	FramesWritten uint64    `json:"frames_written"`
	BytesRead     uint64    `json:"bytes_read"`
	BytesWritten  uint64    `json:"bytes_written"`
}

// Connection carries whole frames. ReadFrame is called from a single
// goroutine; WriteFrame may be called concurrently.
type Connection interface {
	// ReadFrame blocks for the next frame. Errors wrapping codec.ErrMalformed
	// mean one frame was skipped and the stream is still usable.
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	ID() string
	Info() ConnectionInfo
}
