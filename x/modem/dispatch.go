package modem

import (
	"errors"
	"io"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/decoder"
	"github.com/compose-network/radiolink/x/events"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/transport"
)

// readLoop reads frames strictly in arrival order until the transport fails.
// Malformed frames are skipped; any other read error ends the session.
func (c *Client) readLoop(conn transport.Connection, session string, done chan struct{}) {
	defer close(done)

	log := c.log.With().Str("session_id", session).Logger()
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, codec.ErrMalformed) {
				c.drop("malformed")
				log.Warn().Err(err).Msg("Skipping malformed frame")
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				log.Info().Err(err).Msg("Modem transport closed")
			} else {
				log.Warn().Err(err).Msg("Modem transport read failed")
			}
			c.teardown(conn, err)
			return
		}
		c.dispatch(frame)
	}
}

// dispatch classifies one frame and hands it off. It never blocks on callbacks.
func (c *Client) dispatch(frame []byte) {
	c.framesIn.Add(1)
	if c.metrics != nil {
		c.metrics.FrameSize.Observe(float64(len(frame)))
	}

	cur := codec.NewCursorWithLimits(frame, c.limits)
	h, err := protocol.ReadHeader(cur)
	if err != nil {
		c.drop("malformed")
		c.log.Warn().Err(err).Int("frame_bytes", len(frame)).Msg("Dropping frame with malformed header")
		return
	}

	switch h.Type {
	case protocol.FrameSolicited:
		c.handleResponse(h, cur)
	case protocol.FrameUnsolicited:
		c.handleEvent(h.Event, cur)
	}
}

func (c *Client) handleResponse(h protocol.Header, cur *codec.Cursor) {
	entry, ok := c.pending.Lookup(h.Serial)
	if !ok {
		c.drop("duplicate_serial")
		c.duplicates.Add(1)
		c.log.Warn().Err(ErrDuplicateSerial).Uint32("serial", h.Serial).Msg("Dropping response")
		return
	}

	log := c.log.With().Uint32("serial", h.Serial).Str("code", entry.Code.String()).Logger()

	if h.Error != protocol.ErrorNone {
		log.Debug().Str("error", h.Error.String()).Msg("Request failed remotely")
		c.pending.Resolve(h.Serial, pending.Envelope{Err: &pending.RemoteError{
			Code:    h.Error,
			Request: entry.Code,
			Serial:  h.Serial,
		}})
		return
	}

	value, err := c.chain.Decode(decoder.KindResponse, int32(entry.Code), cur, c)
	if err != nil {
		if errors.Is(err, decoder.ErrUnknownCode) {
			c.unknownCodes.Add(1)
			c.drop("unknown_code")
			log.Debug().Err(err).Msg("No decoder for response, resolving with error")
			c.pending.Resolve(h.Serial, pending.Envelope{Err: err})
			return
		}
		// The request stays pending until its timeout or teardown.
		c.decodeFailures.Add(1)
		c.drop("decode_failed")
		log.Error().Err(err).Msg("Failed to decode response, dropping frame")
		return
	}

	if !c.pending.Resolve(h.Serial, pending.Envelope{Value: value}) {
		c.duplicates.Add(1)
		c.drop("duplicate_serial")
		log.Warn().Err(ErrDuplicateSerial).Msg("Request completed while decoding response")
	}
}

func (c *Client) handleEvent(code protocol.EventCode, cur *codec.Cursor) {
	d, _ := c.router.Route(code, cur, c)
	switch d {
	case events.Unknown:
		c.unknownCodes.Add(1)
		c.drop("unknown_code")
	case events.DecodeFailed:
		c.decodeFailures.Add(1)
		c.drop("decode_failed")
	}
	if c.metrics != nil {
		c.metrics.RecordEvent(code.String(), string(d))
	}
}

func (c *Client) drop(reason string) {
	if reason == "malformed" {
		c.malformed.Add(1)
	}
	if c.metrics != nil {
		c.metrics.RecordDropped(reason)
	}
}
