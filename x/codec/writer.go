package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Writer appends fields in wire order. The first error sticks and every
// later Put is a no-op, so callers check once in Finish.
type Writer struct {
	buf    []byte
	limits Limits
	err    error
}

func NewWriter() *Writer {
	return NewWriterWithLimits(DefaultLimits())
}

func NewWriterWithLimits(limits Limits) *Writer {
	return &Writer{
		buf:    make([]byte, 0, 64),
		limits: limits.normalized(),
	}
}

func (w *Writer) PutInt32(v int32) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// PutString writes a length-prefixed UTF-8 string.
func (w *Writer) PutString(s string) {
	if w.err != nil {
		return
	}
	if !utf8.ValidString(s) {
		w.err = ErrInvalidUTF8
		return
	}
	if !w.checkField(len(s)) {
		return
	}
	w.PutInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// PutNullString writes the absent-string sentinel.
func (w *Writer) PutNullString() {
	w.PutInt32(Absent)
}

// PutOptionalString writes s, or the absent sentinel when s is nil.
func (w *Writer) PutOptionalString(s *string) {
	if s == nil {
		w.PutNullString()
		return
	}
	w.PutString(*s)
}

// PutBytes writes a length-prefixed byte array; nil is written as absent.
func (w *Writer) PutBytes(b []byte) {
	if w.err != nil {
		return
	}
	if b == nil {
		w.PutInt32(Absent)
		return
	}
	if !w.checkField(len(b)) {
		return
	}
	w.PutInt32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) PutInt32s(vs []int32) {
	if w.err != nil {
		return
	}
	if vs == nil {
		w.PutInt32(Absent)
		return
	}
	if !w.checkArray(len(vs)) {
		return
	}
	w.PutInt32(int32(len(vs)))
	for _, v := range vs {
		w.PutInt32(v)
	}
}

func (w *Writer) PutStrings(ss []string) {
	if w.err != nil {
		return
	}
	if ss == nil {
		w.PutInt32(Absent)
		return
	}
	if !w.checkArray(len(ss)) {
		return
	}
	w.PutInt32(int32(len(ss)))
	for _, s := range ss {
		w.PutString(s)
	}
}

// PutRaw appends b without a length prefix.
func (w *Writer) PutRaw(b []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the buffer written so far, regardless of errors.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Err() error { return w.err }

// Finish returns the encoded buffer or the first error hit while writing.
func (w *Writer) Finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func (w *Writer) checkField(n int) bool {
	if n > w.limits.MaxFieldBytes {
		w.err = fmt.Errorf("%w: field size %d exceeds max %d", ErrFieldTooLarge, n, w.limits.MaxFieldBytes)
		return false
	}
	return true
}

func (w *Writer) checkArray(n int) bool {
	if n > w.limits.MaxArrayLen {
		w.err = fmt.Errorf("%w: array length %d exceeds max %d", ErrFieldTooLarge, n, w.limits.MaxArrayLen)
		return false
	}
	return true
}
