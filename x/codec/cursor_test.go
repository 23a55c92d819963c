package codec

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTripPrimitives(t *testing.T) {
	t.Parallel()

	w := NewWriter()
	w.PutInt32(-7)
	w.PutString("héllo")
	w.PutString("")
	w.PutNullString()
	w.PutBytes([]byte{1, 2, 3})
	w.PutBytes([]byte{})
	w.PutBytes(nil)
	w.PutInt32s([]int32{1, -1, 1 << 30})
	w.PutInt32s([]int32{})
	w.PutInt32s(nil)
	w.PutStrings([]string{"a", "", "c"})
	w.PutStrings([]string{})
	w.PutStrings(nil)
	b, err := w.Finish()
	require.NoError(t, err)

	c := NewCursor(b)

	i, err := c.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i)

	s, ok, err := c.ReadOptionalString()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "héllo", s)

	s, ok, err = c.ReadOptionalString()
	require.NoError(t, err)
	assert.True(t, ok, "empty string is present")
	assert.Equal(t, "", s)

	_, ok, err = c.ReadOptionalString()
	require.NoError(t, err)
	assert.False(t, ok, "null string is absent")

	bs, err := c.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, bs)

	bs, err = c.ReadBytes()
	require.NoError(t, err)
	assert.NotNil(t, bs)
	assert.Empty(t, bs)

	bs, err = c.ReadBytes()
	require.NoError(t, err)
	assert.Nil(t, bs)

	is, err := c.ReadInt32s()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -1, 1 << 30}, is)

	is, err = c.ReadInt32s()
	require.NoError(t, err)
	assert.NotNil(t, is)
	assert.Empty(t, is)

	is, err = c.ReadInt32s()
	require.NoError(t, err)
	assert.Nil(t, is)

	ss, err := c.ReadStrings()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "c"}, ss)

	ss, err = c.ReadStrings()
	require.NoError(t, err)
	assert.NotNil(t, ss)
	assert.Empty(t, ss)

	ss, err = c.ReadStrings()
	require.NoError(t, err)
	assert.Nil(t, ss)

	assert.Zero(t, c.Remaining())
}

func TestCursor_LittleEndian(t *testing.T) {
	t.Parallel()

	w := NewWriter()
	w.PutInt32(0x01020304)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, w.Bytes())
}

func TestCursor_PeekMarkRewind(t *testing.T) {
	t.Parallel()

	b, err := Encode(int32(1550), "ABC")
	require.NoError(t, err)

	c := NewCursor(b)
	m := c.Mark()

	v, err := c.PeekInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(1550), v)
	assert.Equal(t, 0, c.Offset(), "peek does not advance")

	_, err = c.ReadInt32()
	require.NoError(t, err)
	s, err := c.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ABC", s)

	require.NoError(t, c.Rewind(m))
	assert.Equal(t, len(b), c.Remaining())
	assert.Equal(t, b, c.Rest())

	assert.ErrorIs(t, c.Rewind(Mark{off: len(b) + 1}), ErrMalformed)
}

func TestCursor_Malformed(t *testing.T) {
	t.Parallel()

	le := func(vs ...int32) []byte {
		var out []byte
		for _, v := range vs {
			out = binary.LittleEndian.AppendUint32(out, uint32(v))
		}
		return out
	}

	tests := []struct {
		name string
		data []byte
		read func(c *Cursor) error
	}{
		{"short int", []byte{1, 2}, func(c *Cursor) error { _, err := c.ReadInt32(); return err }},
		{"string past end", append(le(10), 'a', 'b'), func(c *Cursor) error { _, err := c.ReadString(); return err }},
		{"negative length", le(-2), func(c *Cursor) error { _, err := c.ReadBytes(); return err }},
		{"over limit", le(1 << 21), func(c *Cursor) error { _, err := c.ReadBytes(); return err }},
		{"array past end", le(3, 1), func(c *Cursor) error { _, err := c.ReadInt32s(); return err }},
		{"negative count", le(-5), func(c *Cursor) error { _, err := c.ReadStrings(); return err }},
		{"bad utf8", append(le(2), 0xff, 0xfe), func(c *Cursor) error { _, err := c.ReadString(); return err }},
		{"skip past end", le(1), func(c *Cursor) error { return c.Skip(8) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCursor(tt.data)
			err := tt.read(c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestCursor_FailedReadLeavesPosition(t *testing.T) {
	t.Parallel()

	b := binary.LittleEndian.AppendUint32(nil, 100)
	c := NewCursor(b)
	_, err := c.ReadString()
	require.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, 0, c.Offset())
}

func TestCursor_ReadBytesDoesNotAlias(t *testing.T) {
	t.Parallel()

	b, err := Encode([]byte{9, 9})
	require.NoError(t, err)

	c := NewCursor(b)
	out, err := c.ReadBytes()
	require.NoError(t, err)
	b[4] = 0
	assert.Equal(t, []byte{9, 9}, out)
}

func TestWriter_Limits(t *testing.T) {
	t.Parallel()

	w := NewWriterWithLimits(Limits{MaxFieldBytes: 4, MaxArrayLen: 2})
	w.PutString("toolong")
	w.PutInt32(1)
	_, err := w.Finish()
	assert.ErrorIs(t, err, ErrFieldTooLarge)

	w = NewWriterWithLimits(Limits{MaxFieldBytes: 4, MaxArrayLen: 2})
	w.PutInt32s([]int32{1, 2, 3})
	_, err = w.Finish()
	assert.ErrorIs(t, err, ErrFieldTooLarge)

	w = NewWriter()
	w.PutString(string([]byte{0xff}))
	_, err = w.Finish()
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
