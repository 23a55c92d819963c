package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/compose-network/radiolink/x/codec"
)

// FrameType is the first field of every inbound frame.
type FrameType int32

const (
	FrameSolicited   FrameType = 0
	FrameUnsolicited FrameType = 1
)

func (t FrameType) String() string {
	switch t {
	case FrameSolicited:
		return "solicited"
	case FrameUnsolicited:
		return "unsolicited"
	default:
		return fmt.Sprintf("frame-type(%d)", int32(t))
	}
}

// MaxSerial is the largest serial representable on the wire.
const MaxSerial = math.MaxInt32

var (
	ErrUnknownFrameType = errors.New("protocol: unknown frame type")
	ErrInvalidSerial    = errors.New("protocol: invalid serial")
)

// Header is the classified prefix of an inbound frame. Serial and Error are
// set for solicited frames, Event for unsolicited ones.
type Header struct {
	Type   FrameType
	Serial uint32
	Error  ErrorCode
	Event  EventCode
}

// ReadHeader consumes the header and leaves c at the start of the payload.
// Header errors wrap codec.ErrMalformed.
func ReadHeader(c *codec.Cursor) (Header, error) {
	t, err := c.ReadInt32()
	if err != nil {
		return Header{}, fmt.Errorf("failed to read frame type: %w", err)
	}

	h := Header{Type: FrameType(t)}
	switch h.Type {
	case FrameSolicited:
		serial, err := c.ReadInt32()
		if err != nil {
			return Header{}, fmt.Errorf("failed to read serial: %w", err)
		}
		if serial <= 0 {
			return Header{}, fmt.Errorf("%w: %w: %d", codec.ErrMalformed, ErrInvalidSerial, serial)
		}
		e, err := c.ReadInt32()
		if err != nil {
			return Header{}, fmt.Errorf("failed to read error code: %w", err)
		}
		h.Serial = uint32(serial)
		h.Error = ErrorCode(e)
	case FrameUnsolicited:
		code, err := c.ReadInt32()
		if err != nil {
			return Header{}, fmt.Errorf("failed to read event code: %w", err)
		}
		h.Event = EventCode(code)
	default:
		return Header{}, fmt.Errorf("%w: %w: %d", codec.ErrMalformed, ErrUnknownFrameType, t)
	}
	return h, nil
}

// Request is an outbound command frame as seen by the modem side.
type Request struct {
	Code    RequestCode
	Serial  uint32
	Payload []byte
}

// EncodeRequest builds an outbound frame: code, serial, payload.
func EncodeRequest(code RequestCode, serial uint32, payload []byte) ([]byte, error) {
	if serial == 0 || serial > MaxSerial {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSerial, serial)
	}
	w := codec.NewWriter()
	w.PutInt32(int32(code))
	w.PutInt32(int32(serial))
	w.PutRaw(payload)
	return w.Finish()
}

// ReadRequest parses an outbound frame. The payload does not alias frame.
func ReadRequest(frame []byte) (Request, error) {
	c := codec.NewCursor(frame)
	code, err := c.ReadInt32()
	if err != nil {
		return Request{}, fmt.Errorf("failed to read request code: %w", err)
	}
	serial, err := c.ReadInt32()
	if err != nil {
		return Request{}, fmt.Errorf("failed to read serial: %w", err)
	}
	if serial <= 0 {
		return Request{}, fmt.Errorf("%w: %w: %d", codec.ErrMalformed, ErrInvalidSerial, serial)
	}
	payload := append([]byte{}, c.Rest()...)
	return Request{Code: RequestCode(code), Serial: uint32(serial), Payload: payload}, nil
}

// EncodeResponse builds a solicited frame.
func EncodeResponse(serial uint32, errCode ErrorCode, payload []byte) ([]byte, error) {
	if serial == 0 || serial > MaxSerial {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSerial, serial)
	}
	w := codec.NewWriter()
	w.PutInt32(int32(FrameSolicited))
	w.PutInt32(int32(serial))
	w.PutInt32(int32(errCode))
	w.PutRaw(payload)
	return w.Finish()
}

// EncodeEvent builds an unsolicited frame.
func EncodeEvent(code EventCode, payload []byte) ([]byte, error) {
	w := codec.NewWriter()
	w.PutInt32(int32(FrameUnsolicited))
	w.PutInt32(int32(code))
	w.PutRaw(payload)
	return w.Finish()
}
