package model

import (
	"time"
)

// StepOutcome records what one request of a probe observed.
type StepOutcome struct {
	// Step is the name of the probe step, e.g. "control" or "content-length: 99999".
	Step string `json:"step"`

	// Fingerprint identifies the exact request that was sent.
	Fingerprint string `json:"fingerprint"`

	// Outcome is the summarized observation.
	Outcome OutcomeSummary `json:"outcome"`
}

// DetectionResult is the verdict of a single probe.
type DetectionResult struct {
	Probe      ProbeID       `json:"probe"`
	Label      string        `json:"label"`
	Vulnerable bool          `json:"vulnerable"`
	Steps      []StepOutcome `json:"steps"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Severity returns the severity of this result.
func (r DetectionResult) Severity() Severity {
	if !r.Vulnerable {
		return SeverityInfo
	}
	return GetSeverity(r.Probe)
}

// CheckResult is the result of the plain GET sanity check.
type CheckResult struct {
	// Responded is true if response headers arrived.
	Responded bool `json:"responded"`

	// Status is the :status value of the response, "" when none arrived.
	Status string `json:"status,omitempty"`

	// Outcome is the summarized observation.
	Outcome OutcomeSummary `json:"outcome"`
}

// NewCheckResult builds a CheckResult from the sanity check outcome.
func NewCheckResult(o ResponseOutcome) CheckResult {
	return CheckResult{
		Responded: o.Responded(),
		Status:    o.Status(),
		Outcome:   o.Summary(),
	}
}

// ScanReport is everything collected for one target during a scan.
type ScanReport struct {
	// Target is the probed host.
	Target Target `json:"target"`

	// DateScanned is when the scan started.
	DateScanned time.Time `json:"date_scanned"`

	// Check is the sanity check result, nil if it did not run.
	Check *CheckResult `json:"check,omitempty"`

	// Results holds one entry per probe that ran, in execution order.
	Results []DetectionResult `json:"results"`

	// Error is set when the scan of this target was aborted.
	Error string `json:"error,omitempty"`

	// Duration is the total wall time of the scan.
	Duration time.Duration `json:"duration"`
}

// NewScanReport creates an empty report for target.
func NewScanReport(target Target) *ScanReport {
	return &ScanReport{
		Target:      target,
		DateScanned: time.Now(),
		Results:     []DetectionResult{},
	}
}

// AddResult appends a probe result.
func (r *ScanReport) AddResult(res DetectionResult) {
	r.Results = append(r.Results, res)
}

// VulnerableCount returns the number of probes that reported vulnerable.
func (r *ScanReport) VulnerableCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Vulnerable {
			n++
		}
	}
	return n
}

// HasVulnerabilities reports whether any probe reported vulnerable.
func (r *ScanReport) HasVulnerabilities() bool {
	return r.VulnerableCount() > 0
}

// Verdicts returns the verdict of every probe that ran.
func (r *ScanReport) Verdicts() map[ProbeID]bool {
	out := make(map[ProbeID]bool, len(r.Results))
	for _, res := range r.Results {
		out[res.Probe] = res.Vulnerable
	}
	return out
}

// Result returns the result of the given probe.
func (r *ScanReport) Result(id ProbeID) (DetectionResult, bool) {
	for _, res := range r.Results {
		if res.Probe == id {
			return res, true
		}
	}
	return DetectionResult{}, false
}

// HighestSeverity returns the highest severity among the results.
func (r *ScanReport) HighestSeverity() Severity {
	highest := SeverityInfo
	for _, res := range r.Results {
		if s := res.Severity(); s > highest {
			highest = s
		}
	}
	return highest
}
