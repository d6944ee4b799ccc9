package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/h2smuggle/internal/model"
)

// Directions of a Comparison.
const (
	DirectionWorsened  = "worsened"
	DirectionImproved  = "improved"
	DirectionUnchanged = "unchanged"
)

// Probe states used in a VerdictChange.
const (
	StateVulnerable    = "vulnerable"
	StateNotVulnerable = "not vulnerable"
	StateNotRun        = "not run"
)

// ScanMetadata summarizes one side of a Comparison.
type ScanMetadata struct {
	DateScanned     time.Time `json:"date_scanned"`
	VulnerableCount int       `json:"vulnerable_count"`
	HighestSeverity string    `json:"highest_severity"`
}

// VerdictChange is a probe whose state differs between two scans.
type VerdictChange struct {
	Probe    model.ProbeID `json:"probe"`
	Previous string        `json:"previous"`
	Current  string        `json:"current"`
}

// Comparison is the difference between two scans of the same host.
type Comparison struct {
	Target    string          `json:"target"`
	Previous  ScanMetadata    `json:"previous_scan"`
	Current   ScanMetadata    `json:"current_scan"`
	Changes   []VerdictChange `json:"changes"`
	Unchanged int             `json:"unchanged_count"`
	Direction string          `json:"direction"`
}

// Compare computes the verdict changes from previous to current.
// Probes are visited in execution order.
func Compare(previous, current *model.ScanReport) *Comparison {
	c := &Comparison{
		Target:   current.Target.Hostname,
		Previous: newScanMetadata(previous),
		Current:  newScanMetadata(current),
		Changes:  []VerdictChange{},
	}

	before := previous.Verdicts()
	after := current.Verdicts()
	for _, id := range model.AllProbes() {
		prev, cur := probeState(before, id), probeState(after, id)
		if prev == StateNotRun && cur == StateNotRun {
			continue
		}
		if prev == cur {
			c.Unchanged++
			continue
		}
		c.Changes = append(c.Changes, VerdictChange{Probe: id, Previous: prev, Current: cur})
	}

	switch prevScore, curScore := riskScore(previous), riskScore(current); {
	case curScore > prevScore:
		c.Direction = DirectionWorsened
	case curScore < prevScore:
		c.Direction = DirectionImproved
	default:
		c.Direction = DirectionUnchanged
	}
	return c
}

func newScanMetadata(r *model.ScanReport) ScanMetadata {
	return ScanMetadata{
		DateScanned:     r.DateScanned,
		VulnerableCount: r.VulnerableCount(),
		HighestSeverity: r.HighestSeverity().String(),
	}
}

func probeState(verdicts map[model.ProbeID]bool, id model.ProbeID) string {
	vulnerable, ok := verdicts[id]
	switch {
	case !ok:
		return StateNotRun
	case vulnerable:
		return StateVulnerable
	default:
		return StateNotVulnerable
	}
}

// riskScore weights vulnerable probes by severity.
func riskScore(r *model.ScanReport) int {
	score := 0
	for _, res := range r.Results {
		switch res.Severity() {
		case model.SeverityCritical:
			score += 100
		case model.SeverityHigh:
			score += 50
		case model.SeverityMedium:
			score += 10
		case model.SeverityLow:
			score += 5
		}
	}
	return score
}

// WriteText writes the comparison in human-readable form.
func (c *Comparison) WriteText(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scan Comparison: %s\n", c.Target)
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Risk Status: %s\n\n", title(c.Direction))
	fmt.Fprintf(&sb, "Previous scan: %s  (%d vulnerable)\n",
		c.Previous.DateScanned.Format("2006-01-02 15:04:05"), c.Previous.VulnerableCount)
	fmt.Fprintf(&sb, "Current scan:  %s  (%d vulnerable)\n\n",
		c.Current.DateScanned.Format("2006-01-02 15:04:05"), c.Current.VulnerableCount)

	if len(c.Changes) == 0 {
		sb.WriteString("No verdict changes.\n")
	} else {
		fmt.Fprintf(&sb, "Verdict changes (%d):\n", len(c.Changes))
		for _, ch := range c.Changes {
			fmt.Fprintf(&sb, "  %-28s %s -> %s\n", ch.Probe.Label(), ch.Previous, ch.Current)
		}
	}
	if c.Unchanged > 0 {
		fmt.Fprintf(&sb, "\n%d probe(s) unchanged\n", c.Unchanged)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
