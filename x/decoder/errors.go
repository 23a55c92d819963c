package decoder

import (
	"errors"
	"fmt"
)

// ErrUnknownCode is reported when no chain up to the root has a decoder for a
// code. It is expected under protocol version skew and is not a decode failure.
var ErrUnknownCode = errors.New("decoder: unknown code")

// DecodeError reports a decoder that failed or panicked on a known code.
type DecodeError struct {
	Kind  Kind
	Code  int32
	Chain string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoder: failed to decode %s %s (chain %s): %v", e.Kind, e.Kind.codeName(e.Code), e.Chain, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func unknownCode(kind Kind, code int32) error {
	return fmt.Errorf("%w: %s %s", ErrUnknownCode, kind, kind.codeName(code))
}
