package decoder

import (
	"errors"
	"fmt"
	"sort"

	"github.com/compose-network/radiolink/x/codec"
)

// Chain resolves codes against its own table first and then its parent,
// up to the root. A Chain is immutable once built and safe for concurrent use.
type Chain struct {
	name    string
	entries map[key]DecodeFunc
	parent  *Chain
}

// NewChain builds a chain from a snapshot of t. parent may be nil for the root.
func NewChain(name string, t *Table, parent *Chain) *Chain {
	entries := make(map[key]DecodeFunc)
	if t != nil {
		for k, fn := range t.entries {
			entries[k] = fn
		}
	}
	return &Chain{name: name, entries: entries, parent: parent}
}

func (ch *Chain) Name() string { return ch.name }

func (ch *Chain) Parent() *Chain { return ch.parent }

// Resolve finds the decoder for (kind, code) and the chain that owns it.
func (ch *Chain) Resolve(kind Kind, code int32) (DecodeFunc, *Chain, bool) {
	for cur := ch; cur != nil; cur = cur.parent {
		if fn, ok := cur.entries[key{kind, code}]; ok {
			return fn, cur, true
		}
	}
	return nil, nil, false
}

// Decode resolves and runs the decoder for (kind, code) on c. Unresolved codes
// return an error wrapping ErrUnknownCode; decoder errors and panics return a
// *DecodeError. issuer may be nil when overrides never re-issue commands.
func (ch *Chain) Decode(kind Kind, code int32, c *codec.Cursor, issuer Issuer) (any, error) {
	fn, owner, ok := ch.Resolve(kind, code)
	if !ok {
		return nil, unknownCode(kind, code)
	}
	ctx := &Context{
		Kind:   kind,
		Code:   code,
		Issuer: issuer,
		owner:  owner,
		mark:   c.Mark(),
	}
	return owner.run(ctx, fn, c)
}

func (ch *Chain) run(ctx *Context, fn DecodeFunc, c *codec.Cursor) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = &DecodeError{Kind: ctx.Kind, Code: ctx.Code, Chain: ch.name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	v, err = fn(ctx, c)
	if err == nil {
		return v, nil
	}

	var de *DecodeError
	if errors.Is(err, ErrUnknownCode) || errors.As(err, &de) {
		return nil, err
	}
	return nil, &DecodeError{Kind: ctx.Kind, Code: ctx.Code, Chain: ch.name, Err: err}
}

// Entry describes one resolvable code.
type Entry struct {
	Kind      string `json:"kind"`
	Code      int32  `json:"code"`
	Name      string `json:"name"`
	Chain     string `json:"chain"`
	Overrides string `json:"overrides,omitempty"`
}

// Describe lists every code the chain resolves, with the chain that owns it
// and the ancestor it shadows, if any.
func (ch *Chain) Describe() []Entry {
	owners := make(map[key]*Chain)
	shadowed := make(map[key]*Chain)
	for cur := ch; cur != nil; cur = cur.parent {
		for k := range cur.entries {
			if _, ok := owners[k]; !ok {
				owners[k] = cur
				continue
			}
			if _, ok := shadowed[k]; !ok {
				shadowed[k] = cur
			}
		}
	}

	out := make([]Entry, 0, len(owners))
	for k, owner := range owners {
		e := Entry{
			Kind:  k.kind.String(),
			Code:  k.code,
			Name:  k.kind.codeName(k.code),
			Chain: owner.name,
		}
		if s, ok := shadowed[k]; ok {
			e.Overrides = s.name
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind
		}
		return out[i].Code < out[j].Code
	})
	return out
}
