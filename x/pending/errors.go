package pending

import (
	"errors"
	"fmt"

	"github.com/compose-network/radiolink/x/protocol"
)

var (
	// ErrTransportUnavailable is delivered to every pending request on teardown.
	ErrTransportUnavailable = errors.New("pending: transport unavailable")
	// ErrRequestTimeout is delivered when a caller-set timeout expires.
	ErrRequestTimeout = errors.New("pending: request timed out")
	// ErrSerialsExhausted is returned by Create once the serial space is used up.
	ErrSerialsExhausted = errors.New("pending: serial space exhausted")
)

// RemoteError is delivered when the modem answers with a non-zero error code.
// The payload of such a response is never decoded.
type RemoteError struct {
	Code    protocol.ErrorCode
	Request protocol.RequestCode
	Serial  uint32
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("pending: %s (serial %d) failed: %s", e.Request, e.Serial, e.Code)
}
