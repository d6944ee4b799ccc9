package h2engine

import (
	"errors"
	"fmt"
)

// Engine errors. ReceiveData and the Send methods wrap one of these.
var (
	// ErrInvalidBodyLength is returned when a response body contradicts its
	// declared content-length. The concrete error is *InvalidBodyLengthError.
	ErrInvalidBodyLength = errors.New("invalid body length")

	// ErrProtocol is returned for frames that violate HTTP/2 framing rules or
	// cannot be decoded.
	ErrProtocol = errors.New("protocol error")

	// ErrFlowControl is returned when a flow control window would be exceeded.
	ErrFlowControl = errors.New("flow control error")

	// ErrStreamClosed is returned when a frame or a send targets a stream
	// that is already closed in that direction.
	ErrStreamClosed = errors.New("stream closed")

	// ErrConnectionClosed is returned when sending on a connection after
	// GOAWAY was sent or received.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrInvalidHeader is returned by SendHeaders when outbound validation is
	// enabled and a field is not a valid HTTP/2 field.
	ErrInvalidHeader = errors.New("invalid header field")
)

// InvalidBodyLengthError reports a response whose DATA frames disagree with
// its content-length header.
type InvalidBodyLengthError struct {
	StreamID uint32
	Expected int64
	Actual   int64
}

// Error implements error.
func (e *InvalidBodyLengthError) Error() string {
	return fmt.Sprintf("%s on stream %d: expected %d bytes, received %d",
		ErrInvalidBodyLength, e.StreamID, e.Expected, e.Actual)
}

// Unwrap returns ErrInvalidBodyLength.
func (e *InvalidBodyLengthError) Unwrap() error {
	return ErrInvalidBodyLength
}
