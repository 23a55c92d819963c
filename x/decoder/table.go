package decoder

import (
	"fmt"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/protocol"
)

// Kind separates the response and event keyspaces, which share numbers.
type Kind uint8

const (
	KindResponse Kind = iota + 1
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) codeName(code int32) string {
	switch k {
	case KindResponse:
		return protocol.RequestCode(code).String()
	case KindEvent:
		return protocol.EventCode(code).String()
	default:
		return fmt.Sprintf("%d", code)
	}
}

// DecodeFunc turns a payload into a value. The cursor is positioned at the
// start of the payload.
type DecodeFunc func(ctx *Context, c *codec.Cursor) (any, error)

type key struct {
	kind Kind
	code int32
}

// Table collects decoders before a Chain is built. It is not safe for
// concurrent use and is copied by NewChain.
type Table struct {
	entries map[key]DecodeFunc
}

func NewTable() *Table {
	return &Table{entries: make(map[key]DecodeFunc)}
}

// Install sets the decoder for (kind, code), replacing any earlier entry in this table.
func (t *Table) Install(kind Kind, code int32, fn DecodeFunc) {
	if fn == nil {
		delete(t.entries, key{kind, code})
		return
	}
	t.entries[key{kind, code}] = fn
}

func (t *Table) InstallResponse(code protocol.RequestCode, fn DecodeFunc) {
	t.Install(KindResponse, int32(code), fn)
}

func (t *Table) InstallEvent(code protocol.EventCode, fn DecodeFunc) {
	t.Install(KindEvent, int32(code), fn)
}

func (t *Table) Len() int { return len(t.entries) }
