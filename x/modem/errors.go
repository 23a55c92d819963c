package modem

import "errors"

var (
	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("modem: client closed")
	// ErrAlreadyAttached is returned by Attach while a session is live.
	ErrAlreadyAttached = errors.New("modem: transport already attached")
	// ErrDuplicateSerial is logged when a response matches no pending request.
	ErrDuplicateSerial = errors.New("modem: response for unknown or completed serial")
	// ErrPayloadTooLarge is returned by Issue when the frame cannot fit the transport.
	ErrPayloadTooLarge = errors.New("modem: payload too large")
	// ErrUnexpectedType is returned by CallAs when the decoded value has another type.
	ErrUnexpectedType = errors.New("modem: unexpected result type")
)
