package model

import (
	"fmt"
	"strings"
)

// ProbeID identifies one smuggling probe.
type ProbeID string

const (
	// ProbeH2CL detects content-length based smuggling.
	ProbeH2CL ProbeID = "h2.cl"
	// ProbeH2CLCRLF detects content-length smuggling through CRLF injection
	// in a header value.
	ProbeH2CLCRLF ProbeID = "h2.cl-crlf"
	// ProbeH2TE detects transfer-encoding based smuggling.
	ProbeH2TE ProbeID = "h2.te"
	// ProbeH2TECRLF detects transfer-encoding smuggling through CRLF injection
	// in a header value.
	ProbeH2TECRLF ProbeID = "h2.te-crlf"
	// ProbeH2Tunnel detects request tunnelling.
	ProbeH2Tunnel ProbeID = "h2.tunnel"
)

// AllProbes returns every probe in execution order.
func AllProbes() []ProbeID {
	return []ProbeID{ProbeH2CL, ProbeH2CLCRLF, ProbeH2TE, ProbeH2TECRLF, ProbeH2Tunnel}
}

// ParseProbeID parses a probe name. Matching is case-insensitive and
// accepts "_" in place of ".".
func ParseProbeID(s string) (ProbeID, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", ".")
	for _, id := range AllProbes() {
		if string(id) == norm {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown probe %q", s)
}

// Label returns the human readable name of the probe.
func (p ProbeID) Label() string {
	switch p {
	case ProbeH2CL:
		return "H2.CL"
	case ProbeH2CLCRLF:
		return "H2.CL (CRLF)"
	case ProbeH2TE:
		return "H2.TE"
	case ProbeH2TECRLF:
		return "H2.TE (CRLF)"
	case ProbeH2Tunnel:
		return "HTTP/2 request tunnelling"
	default:
		return string(p)
	}
}

// Order returns the position of the probe in execution order, or -1.
func (p ProbeID) Order() int {
	for i, id := range AllProbes() {
		if id == p {
			return i
		}
	}
	return -1
}
