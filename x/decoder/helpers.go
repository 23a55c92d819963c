package decoder

import "github.com/compose-network/radiolink/x/codec"

// Void ignores the payload.
func Void(_ *Context, _ *codec.Cursor) (any, error) {
	return nil, nil
}

func Int32s(_ *Context, c *codec.Cursor) (any, error) {
	return c.ReadInt32s()
}

func Strings(_ *Context, c *codec.Cursor) (any, error) {
	return c.ReadStrings()
}

func String(_ *Context, c *codec.Cursor) (any, error) {
	return c.ReadString()
}

// FirstString reads a string array and returns its first element, or "" when empty.
func FirstString(_ *Context, c *codec.Cursor) (any, error) {
	ss, err := c.ReadStrings()
	if err != nil {
		return nil, err
	}
	if len(ss) == 0 {
		return "", nil
	}
	return ss[0], nil
}

// Raw reads a length-prefixed byte array.
func Raw(_ *Context, c *codec.Cursor) (any, error) {
	return c.ReadBytes()
}
