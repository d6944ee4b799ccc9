package model

// Severity represents the risk level of a probe verdict.
type Severity int

const (
	// SeverityInfo is used for probes that did not fire.
	SeverityInfo Severity = iota

	// SeverityLow indicates minor issues with limited impact.
	SeverityLow

	// SeverityMedium indicates issues that need more conditions to be exploitable.
	SeverityMedium

	// SeverityHigh indicates a desync between front-end and back-end that
	// typically allows request hijacking or cache poisoning.
	SeverityHigh

	// SeverityCritical indicates that a whole attacker-controlled request
	// reaches the back-end.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// FindingInfo contains metadata about a probe finding including severity,
// impact description, and remediation recommendation.
type FindingInfo struct {
	Severity       Severity
	Impact         string
	Recommendation string
}

// findingInfoMapping maps probes to the metadata reported when they fire.
var findingInfoMapping = map[ProbeID]FindingInfo{
	ProbeH2CL: {
		Severity:       SeverityHigh,
		Impact:         "The front-end forwards the HTTP/2 content-length header to an HTTP/1.1 back-end without checking it against the DATA frames, so a request can end early and leave bytes that the back-end treats as the start of the next request.",
		Recommendation: "Reject HTTP/2 requests whose content-length does not match the received DATA length, or recompute content-length when downgrading.",
	},
	ProbeH2CLCRLF: {
		Severity:       SeverityHigh,
		Impact:         "CR and LF in HTTP/2 header values are copied into the HTTP/1.1 request, letting an attacker inject a content-length header line.",
		Recommendation: "Reject header values containing CR, LF or NUL as required by RFC 9113 section 8.2.1.",
	},
	ProbeH2TE: {
		Severity:       SeverityHigh,
		Impact:         "The transfer-encoding header is forwarded to the back-end, which then parses the body as chunked and disagrees with the front-end about where the request ends.",
		Recommendation: "Strip or reject connection-specific headers such as transfer-encoding in HTTP/2 requests.",
	},
	ProbeH2TECRLF: {
		Severity:       SeverityHigh,
		Impact:         "A transfer-encoding header injected through CRLF in a header value reaches the back-end and desynchronizes request boundaries.",
		Recommendation: "Reject header values containing CR, LF or NUL and never forward transfer-encoding from HTTP/2 requests.",
	},
	ProbeH2Tunnel: {
		Severity:       SeverityCritical,
		Impact:         "A complete HTTP/1.1 request embedded in a header name or in :path is forwarded verbatim and executed by the back-end, bypassing front-end access controls.",
		Recommendation: "Validate header names and pseudo-header values against RFC 9113 before downgrading and reject requests containing CR, LF or whitespace in :path.",
	},
}

// GetSeverity returns the severity of a probe when it fires.
// Returns SeverityInfo if the probe is not in the mapping.
func GetSeverity(probe ProbeID) Severity {
	if info, ok := findingInfoMapping[probe]; ok {
		return info.Severity
	}
	return SeverityInfo
}

// GetFindingInfo returns the full finding information for a probe.
// Returns a default FindingInfo with SeverityInfo if the probe is not in the mapping.
func GetFindingInfo(probe ProbeID) FindingInfo {
	if info, ok := findingInfoMapping[probe]; ok {
		return info
	}
	return FindingInfo{
		Severity:       SeverityInfo,
		Impact:         "Unknown probe. Review manually.",
		Recommendation: "Investigate the finding and assess risk.",
	}
}
