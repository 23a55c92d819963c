package modem

import (
	"time"

	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/transport"
)

// Stats is a point-in-time view of the client.
type Stats struct {
	SessionID      string                    `json:"session_id,omitempty"`
	Connected      bool                      `json:"connected"`
	Connection     *transport.ConnectionInfo `json:"connection,omitempty"`
	Chain          string                    `json:"chain"`
	Uptime         time.Duration             `json:"uptime"`
	Pending        int                       `json:"pending"`
	LastSerial     uint32                    `json:"last_serial"`
	InFlight       []pending.Info            `json:"in_flight"`
	Subscriptions  map[string]int            `json:"subscriptions"`
	Buffered       map[string]int            `json:"buffered"`
	FramesIn       uint64                    `json:"frames_in"`
	FramesOut      uint64                    `json:"frames_out"`
	Malformed      uint64                    `json:"malformed"`
	Duplicates     uint64                    `json:"duplicates"`
	UnknownCodes   uint64                    `json:"unknown_codes"`
	DecodeFailures uint64                    `json:"decode_failures"`
	Teardowns      uint64                    `json:"teardowns"`
}

// Stats returns current counters and registry contents.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	conn, session := c.conn, c.session
	c.mu.RUnlock()

	s := Stats{
		SessionID:      session,
		Connected:      conn != nil,
		Chain:          c.chain.Name(),
		Uptime:         c.now().Sub(c.started),
		Pending:        c.pending.Len(),
		LastSerial:     c.pending.LastSerial(),
		InFlight:       c.pending.Snapshot(),
		Subscriptions:  byName(c.subs.Counts()),
		Buffered:       byName(c.subs.Buffered()),
		FramesIn:       c.framesIn.Load(),
		FramesOut:      c.framesOut.Load(),
		Malformed:      c.malformed.Load(),
		Duplicates:     c.duplicates.Load(),
		UnknownCodes:   c.unknownCodes.Load(),
		DecodeFailures: c.decodeFailures.Load(),
		Teardowns:      c.teardowns.Load(),
	}
	if conn != nil {
		info := conn.Info()
		s.Connection = &info
	}
	return s
}

// History returns recently completed requests, oldest first.
func (c *Client) History() []pending.Completed {
	return c.pending.History()
}

// PendingCount returns the number of requests awaiting a response.
func (c *Client) PendingCount() int {
	return c.pending.Len()
}

func byName(m map[protocol.EventCode]int) map[string]int {
	out := make(map[string]int, len(m))
	for code, n := range m {
		out[code.String()] = n
	}
	return out
}
