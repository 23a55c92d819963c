package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a payload whose length prefixes disagree with the buffer.
	ErrMalformed = errors.New("codec: malformed frame")
	// ErrFieldTooLarge is returned by writers when a field exceeds the configured limits.
	ErrFieldTooLarge = errors.New("codec: field exceeds limit")
	// ErrInvalidUTF8 is returned when a string field is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("codec: invalid utf-8 string")
	// ErrUnsupportedField is returned by Encode for values with no wire form.
	ErrUnsupportedField = errors.New("codec: unsupported field type")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
