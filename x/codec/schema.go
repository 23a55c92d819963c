package codec

import (
	"fmt"
	"math"
)

// Kind names a field type in a Decode schema.
type Kind uint8

const (
	KindInt32 Kind = iota + 1
	KindString
	KindOptionalString
	KindBytes
	KindInt32s
	KindStrings
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindString:
		return "string"
	case KindOptionalString:
		return "optional-string"
	case KindBytes:
		return "bytes"
	case KindInt32s:
		return "int32s"
	case KindStrings:
		return "strings"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Encode writes fields in order. Supported types are int32, int, string,
// *string (nil is absent), []byte, []int32, []string and untyped nil (absent string).
func Encode(fields ...any) ([]byte, error) {
	w := NewWriter()
	for i, f := range fields {
		switch v := f.(type) {
		case nil:
			w.PutNullString()
		case int32:
			w.PutInt32(v)
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, fmt.Errorf("%w: field %d: int %d overflows int32", ErrUnsupportedField, i, v)
			}
			w.PutInt32(int32(v))
		case string:
			w.PutString(v)
		case *string:
			w.PutOptionalString(v)
		case []byte:
			w.PutBytes(v)
		case []int32:
			w.PutInt32s(v)
		case []string:
			w.PutStrings(v)
		default:
			return nil, fmt.Errorf("%w: field %d: %T", ErrUnsupportedField, i, f)
		}
	}
	return w.Finish()
}

// Decode reads one value per schema entry. KindOptionalString decodes to
// *string so the absent sentinel survives as nil. Trailing bytes are ignored.
func Decode(data []byte, schema ...Kind) ([]any, error) {
	c := NewCursor(data)
	out := make([]any, 0, len(schema))
	for i, k := range schema {
		v, err := c.Read(k)
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, k, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Read decodes a single field of kind k.
func (c *Cursor) Read(k Kind) (any, error) {
	switch k {
	case KindInt32:
		return c.ReadInt32()
	case KindString:
		return c.ReadString()
	case KindOptionalString:
		s, ok, err := c.ReadOptionalString()
		if err != nil || !ok {
			return (*string)(nil), err
		}
		return &s, nil
	case KindBytes:
		return c.ReadBytes()
	case KindInt32s:
		return c.ReadInt32s()
	case KindStrings:
		return c.ReadStrings()
	default:
		return nil, fmt.Errorf("%w: schema kind %s", ErrUnsupportedField, k)
	}
}
