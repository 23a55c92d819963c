package decoder

import (
	"fmt"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/protocol"
)

// Issuer lets an override send a command as a side effect of decoding.
// Implementations must not block on the response.
type Issuer interface {
	IssueAsync(code protocol.RequestCode, payload []byte) error
}

// Context is handed to every DecodeFunc for one frame.
type Context struct {
	Kind   Kind
	Code   int32
	Issuer Issuer

	owner *Chain
	mark  codec.Mark
}

// Chain returns the chain whose table supplied the running decoder.
func (ctx *Context) Chain() *Chain { return ctx.owner }

// Parent returns the chain a fallthrough would delegate to, or nil at the root.
func (ctx *Context) Parent() *Chain { return ctx.owner.parent }

// Fallthrough rewinds c to the payload start and lets the parent chain decode
// the untouched payload. At the root it reports ErrUnknownCode.
func (ctx *Context) Fallthrough(c *codec.Cursor) (any, error) {
	if err := c.Rewind(ctx.mark); err != nil {
		return nil, fmt.Errorf("failed to rewind for fallthrough: %w", err)
	}
	parent := ctx.owner.parent
	if parent == nil {
		return nil, unknownCode(ctx.Kind, ctx.Code)
	}
	return parent.Decode(ctx.Kind, ctx.Code, c, ctx.Issuer)
}
