package model

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// RequestSpec describes one HTTP/2 request to send.
// A RequestSpec is built fresh for every probe step and must not be modified
// after it has been handed to a session.
type RequestSpec struct {
	// Headers is the request header block, pseudo-headers included, in wire order.
	Headers HeaderList `json:"headers"`

	// Body is sent as a single DATA frame carrying END_STREAM. It may be empty.
	Body []byte `json:"body,omitempty"`
}

// NewRequestSpec creates a RequestSpec from headers and body.
func NewRequestSpec(headers HeaderList, body []byte) RequestSpec {
	return RequestSpec{Headers: headers, Body: body}
}

// Method returns the :method value, or "" when absent.
func (r RequestSpec) Method() string {
	v, _ := r.Headers.Get(PseudoMethod)
	return v
}

// Fingerprint returns a short, stable identifier of the exact bytes this
// request puts on the wire (header names, values and body).
// It lets reports and logs refer to a crafted payload without echoing it.
func (r RequestSpec) Fingerprint() string {
	h := sha3.New256()
	for _, f := range r.Headers {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write([]byte(f.Value))
		h.Write([]byte{0})
	}
	h.Write(r.Body)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
