package events

import (
	"fmt"
	"sort"
	"strings"

	"github.com/compose-network/radiolink/x/protocol"
)

// Policy selects how many undelivered occurrences of a replay code are kept.
type Policy uint8

const (
	// BufferLatest keeps only the most recent value per code.
	BufferLatest Policy = iota
	// BufferAll keeps every occurrence, oldest first, up to a per-code cap.
	BufferAll
)

func (p Policy) String() string {
	switch p {
	case BufferLatest:
		return "latest"
	case BufferAll:
		return "all"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy accepts "latest" or "all". Empty means latest.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latest":
		return BufferLatest, nil
	case "all":
		return BufferAll, nil
	default:
		return 0, fmt.Errorf("events: unknown buffer policy %q", s)
	}
}

// DefaultMaxPerCode caps BufferAll queues.
const DefaultMaxPerCode = 64

// Buffer holds undelivered values of replay codes. It is not safe for
// concurrent use; Registry guards it with its own lock.
type Buffer struct {
	policy     Policy
	maxPerCode int
	values     map[protocol.EventCode][]any
}

func NewBuffer(policy Policy, maxPerCode int) *Buffer {
	if maxPerCode <= 0 {
		maxPerCode = DefaultMaxPerCode
	}
	return &Buffer{
		policy:     policy,
		maxPerCode: maxPerCode,
		values:     make(map[protocol.EventCode][]any),
	}
}

// Put stores v for code and reports how many values were discarded to make room.
func (b *Buffer) Put(code protocol.EventCode, v any) int {
	if b.policy == BufferLatest {
		discarded := len(b.values[code])
		b.values[code] = []any{v}
		return discarded
	}

	q := append(b.values[code], v)
	discarded := 0
	if len(q) > b.maxPerCode {
		discarded = len(q) - b.maxPerCode
		q = append(q[:0:0], q[discarded:]...)
	}
	b.values[code] = q
	return discarded
}

// Take returns and clears the buffered values for code, oldest first.
func (b *Buffer) Take(code protocol.EventCode) []any {
	q := b.values[code]
	delete(b.values, code)
	return q
}

// Peek returns a copy of the buffered values for code without clearing them.
func (b *Buffer) Peek(code protocol.EventCode) []any {
	return append([]any(nil), b.values[code]...)
}

// Len reports how many values are buffered for code.
func (b *Buffer) Len(code protocol.EventCode) int { return len(b.values[code]) }

// Codes lists the codes holding buffered values.
func (b *Buffer) Codes() []protocol.EventCode {
	out := make([]protocol.EventCode, 0, len(b.values))
	for c := range b.values {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear drops every buffered value.
func (b *Buffer) Clear() {
	b.values = make(map[protocol.EventCode][]any)
}
