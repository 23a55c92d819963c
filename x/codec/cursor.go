package codec

import (
	"encoding/binary"
	"unicode/utf8"
)

// Mark is a saved cursor position.
type Mark struct {
	off int
}

// Offset reports the byte offset the mark points at.
func (m Mark) Offset() int { return m.off }

// Cursor reads fields from a single frame buffer. It is not safe for
// concurrent use; each frame gets its own cursor on the reader goroutine.
type Cursor struct {
	buf    []byte
	off    int
	limits Limits
}

func NewCursor(b []byte) *Cursor {
	return NewCursorWithLimits(b, DefaultLimits())
}

func NewCursorWithLimits(b []byte, limits Limits) *Cursor {
	return &Cursor{buf: b, limits: limits.normalized()}
}

// Mark captures the current position for a later Rewind.
func (c *Cursor) Mark() Mark { return Mark{off: c.off} }

// Rewind returns the cursor to m. Marks past the end of the buffer are malformed.
func (c *Cursor) Rewind(m Mark) error {
	if m.off < 0 || m.off > len(c.buf) {
		return malformed("rewind to %d outside buffer of %d bytes", m.off, len(c.buf))
	}
	c.off = m.off
	return nil
}

func (c *Cursor) Offset() int { return c.off }

func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// Rest returns the unread bytes without advancing.
func (c *Cursor) Rest() []byte { return c.buf[c.off:] }

// Limits returns the limits the cursor enforces.
func (c *Cursor) Limits() Limits { return c.limits }

func (c *Cursor) Skip(n int) error {
	if n < 0 || n > c.Remaining() {
		return malformed("skip %d bytes with %d remaining", n, c.Remaining())
	}
	c.off += n
	return nil
}

// PeekInt32 reads the next integer without advancing.
func (c *Cursor) PeekInt32() (int32, error) {
	if c.Remaining() < 4 {
		return 0, malformed("need 4 bytes at offset %d, have %d", c.off, c.Remaining())
	}
	return int32(binary.LittleEndian.Uint32(c.buf[c.off:])), nil
}

func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.PeekInt32()
	if err != nil {
		return 0, err
	}
	c.off += 4
	return v, nil
}

// ReadString reads a string, returning "" for the absent sentinel.
func (c *Cursor) ReadString() (string, error) {
	s, _, err := c.ReadOptionalString()
	return s, err
}

// ReadOptionalString reads a string and reports whether it was present.
func (c *Cursor) ReadOptionalString() (string, bool, error) {
	start := c.off
	b, err := c.readField()
	if err != nil {
		return "", false, err
	}
	if b == nil {
		return "", false, nil
	}
	if !utf8.Valid(b) {
		c.off = start
		return "", false, malformed("invalid utf-8 string at offset %d", start)
	}
	return string(b), true, nil
}

// ReadBytes reads a byte array. Absent yields nil, zero length yields an empty
// non-nil slice. The result does not alias the frame buffer.
func (c *Cursor) ReadBytes() ([]byte, error) {
	b, err := c.readField()
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (c *Cursor) ReadInt32s() ([]int32, error) {
	start := c.off
	n, err := c.readCount()
	if err != nil || n < 0 {
		return nil, err
	}
	if c.Remaining() < n*4 {
		c.off = start
		return nil, malformed("int array of %d needs %d bytes, have %d", n, n*4, c.Remaining())
	}
	out := make([]int32, n)
	for i := range out {
		out[i], _ = c.ReadInt32()
	}
	return out, nil
}

// ReadStrings reads a string array; absent elements read as "".
func (c *Cursor) ReadStrings() ([]string, error) {
	start := c.off
	n, err := c.readCount()
	if err != nil || n < 0 {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := c.ReadString()
		if err != nil {
			c.off = start
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// readField returns the raw bytes of a length-prefixed field, nil when absent.
// On error the cursor is left where it was.
func (c *Cursor) readField() ([]byte, error) {
	start := c.off
	n, err := c.ReadInt32()
	if err != nil {
		return nil, err
	}
	switch {
	case n == Absent:
		return nil, nil
	case n < 0:
		c.off = start
		return nil, malformed("negative length %d at offset %d", n, start)
	case int(n) > c.limits.MaxFieldBytes:
		c.off = start
		return nil, malformed("field length %d exceeds max %d", n, c.limits.MaxFieldBytes)
	case int(n) > c.Remaining():
		c.off = start
		return nil, malformed("field length %d exceeds remaining %d", n, c.Remaining())
	}
	b := c.buf[c.off : c.off+int(n) : c.off+int(n)]
	c.off += int(n)
	return b, nil
}

// readCount reads an array count, returning -1 for absent.
func (c *Cursor) readCount() (int, error) {
	start := c.off
	n, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	switch {
	case n == Absent:
		return -1, nil
	case n < 0:
		c.off = start
		return 0, malformed("negative array count %d at offset %d", n, start)
	case int(n) > c.limits.MaxArrayLen:
		c.off = start
		return 0, malformed("array count %d exceeds max %d", n, c.limits.MaxArrayLen)
	}
	return int(n), nil
}
