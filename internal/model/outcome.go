package model

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/net/http2"
)

// ErrorClass is the closed set of error signals an exchange can produce.
type ErrorClass int

const (
	// ErrorClassNone means the exchange produced no error signal.
	ErrorClassNone ErrorClass = iota

	// ErrorClassInvalidBodyLength means the response body contradicted its
	// declared length. This is the tunnelling signal.
	ErrorClassInvalidBodyLength

	// ErrorClassConnectionTerminated means the peer sent GOAWAY.
	// The peer's error code is kept in ErrorKind.Code.
	ErrorClassConnectionTerminated

	// ErrorClassStreamReset means the peer reset the request stream with
	// RST_STREAM. The code is kept in ErrorKind.Code.
	ErrorClassStreamReset

	// ErrorClassGeneric covers every other failure: TLS or ALPN problems,
	// undecodable frames, unexpected socket errors.
	ErrorClassGeneric
)

// String returns the wire name of the class.
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassNone:
		return "none"
	case ErrorClassInvalidBodyLength:
		return "invalidBodyLength"
	case ErrorClassConnectionTerminated:
		return "connectionTerminated"
	case ErrorClassStreamReset:
		return "streamReset"
	case ErrorClassGeneric:
		return "genericError"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ErrorClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ErrorClass) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*c = ErrorClassNone
	case "invalidBodyLength":
		*c = ErrorClassInvalidBodyLength
	case "connectionTerminated":
		*c = ErrorClassConnectionTerminated
	case "streamReset":
		*c = ErrorClassStreamReset
	case "genericError":
		*c = ErrorClassGeneric
	default:
		return fmt.Errorf("unknown error class %q", string(text))
	}
	return nil
}

// ErrorKind is the error signal of one exchange.
// Code is meaningful only for ErrorClassConnectionTerminated and
// ErrorClassStreamReset.
type ErrorKind struct {
	Class ErrorClass    `json:"class"`
	Code  http2.ErrCode `json:"code,omitempty"`
}

// ErrorNone returns the empty error signal.
func ErrorNone() ErrorKind {
	return ErrorKind{Class: ErrorClassNone}
}

// ErrorInvalidBodyLength returns the invalid body length signal.
func ErrorInvalidBodyLength() ErrorKind {
	return ErrorKind{Class: ErrorClassInvalidBodyLength}
}

// ErrorConnectionTerminated returns the GOAWAY signal with the peer's code.
func ErrorConnectionTerminated(code http2.ErrCode) ErrorKind {
	return ErrorKind{Class: ErrorClassConnectionTerminated, Code: code}
}

// ErrorStreamReset returns the RST_STREAM signal with the peer's code.
func ErrorStreamReset(code http2.ErrCode) ErrorKind {
	return ErrorKind{Class: ErrorClassStreamReset, Code: code}
}

// ErrorGeneric returns the catch-all error signal.
func ErrorGeneric() ErrorKind {
	return ErrorKind{Class: ErrorClassGeneric}
}

// IsNone reports whether no error was observed.
func (e ErrorKind) IsNone() bool { return e.Class == ErrorClassNone }

// IsInvalidBodyLength reports whether the body contradicted its declared length.
func (e ErrorKind) IsInvalidBodyLength() bool { return e.Class == ErrorClassInvalidBodyLength }

// IsConnectionTerminated reports whether the peer sent GOAWAY with the given code.
func (e ErrorKind) IsConnectionTerminated(code http2.ErrCode) bool {
	return e.Class == ErrorClassConnectionTerminated && e.Code == code
}

// IsStreamReset reports whether the peer reset the stream.
func (e ErrorKind) IsStreamReset() bool { return e.Class == ErrorClassStreamReset }

// IsGeneric reports whether the catch-all error was observed.
func (e ErrorKind) IsGeneric() bool { return e.Class == ErrorClassGeneric }

// String returns e.g. "none" or "connectionTerminated(INTERNAL_ERROR)".
func (e ErrorKind) String() string {
	switch e.Class {
	case ErrorClassConnectionTerminated, ErrorClassStreamReset:
		return fmt.Sprintf("%s(%s)", e.Class, e.Code)
	default:
		return e.Class.String()
	}
}

// ResponseOutcome is the normalized observation of one request/response
// exchange. It is produced once per exchange and not modified afterwards.
//
// TimedOut implies that Headers and Body are empty. Build outcomes with
// NewTimedOutOutcome or call Normalize before handing one out.
type ResponseOutcome struct {
	// Headers is the response header block, empty if no response arrived.
	Headers HeaderList `json:"headers"`

	// Body is the response body, empty if none arrived.
	Body []byte `json:"body,omitempty"`

	// Error is the error signal of the exchange.
	Error ErrorKind `json:"error"`

	// TimedOut is true iff no data arrived within the target timeout before
	// the stream reached its terminal state.
	TimedOut bool `json:"timed_out"`

	// Elapsed is the wall time of the exchange, connect included.
	Elapsed time.Duration `json:"elapsed"`
}

// NewTimedOutOutcome returns an outcome for an exchange that timed out.
func NewTimedOutOutcome(elapsed time.Duration) ResponseOutcome {
	return ResponseOutcome{
		Headers:  HeaderList{},
		Error:    ErrorNone(),
		TimedOut: true,
		Elapsed:  elapsed,
	}
}

// Normalize returns a copy of o that satisfies the outcome invariant:
// a timed out outcome carries no headers and no body, and Headers is never nil.
func (o ResponseOutcome) Normalize() ResponseOutcome {
	if o.TimedOut {
		o.Headers = HeaderList{}
		o.Body = nil
		return o
	}
	if o.Headers == nil {
		o.Headers = HeaderList{}
	}
	return o
}

// Responded reports whether response headers arrived.
func (o ResponseOutcome) Responded() bool {
	return len(o.Headers) > 0
}

// Status returns the :status value, or "" if no response arrived.
func (o ResponseOutcome) Status() string {
	return o.Headers.Status()
}

// BodyDigest returns the hex SHA3-256 digest of the body, or "" if the
// body is empty.
func (o ResponseOutcome) BodyDigest() string {
	if len(o.Body) == 0 {
		return ""
	}
	sum := sha3.Sum256(o.Body)
	return hex.EncodeToString(sum[:])
}

// OutcomeSummary is the reportable subset of a ResponseOutcome.
// Raw bodies are replaced by their size and digest.
type OutcomeSummary struct {
	Status     string        `json:"status,omitempty"`
	Error      string        `json:"error"`
	TimedOut   bool          `json:"timed_out"`
	BodyLength int           `json:"body_length"`
	BodyDigest string        `json:"body_digest,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Summary returns the reportable subset of o.
func (o ResponseOutcome) Summary() OutcomeSummary {
	return OutcomeSummary{
		Status:     o.Status(),
		Error:      o.Error.String(),
		TimedOut:   o.TimedOut,
		BodyLength: len(o.Body),
		BodyDigest: o.BodyDigest(),
		Elapsed:    o.Elapsed,
	}
}

// Describe returns a one-line human readable form of the summary,
// e.g. "status 200", "timed out" or "no response, connectionTerminated(INTERNAL_ERROR)".
func (s OutcomeSummary) Describe() string {
	if s.TimedOut {
		return "timed out"
	}
	desc := "no response"
	if s.Status != "" {
		desc = "status " + s.Status
	}
	if s.Error != "" && s.Error != ErrorClassNone.String() {
		desc += ", " + s.Error
	}
	return desc
}
