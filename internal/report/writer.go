package report

import (
	"io"
	"strings"

	"github.com/nao1215/h2smuggle/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs one report and returns the number of bytes written.
	Write(report *model.ScanReport) (int, error)

	// WriteBatch outputs the reports of a multi-target scan.
	WriteBatch(reports []*model.ScanReport) (int, error)
}

// MultiWriter writes to multiple Writers.
// Our Writer writes reports, not bytes, so io.MultiWriter does not fit.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all Writers. It stops on the first error.
func (m *MultiWriter) Write(report *model.ScanReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteBatch outputs the reports to all Writers. It stops on the first error.
func (m *MultiWriter) WriteBatch(reports []*model.ScanReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// title upper-cases the first letter of every word. A Caser is stateful
// and must not be shared between goroutines.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

// Subject returns what a probe looks for, e.g. "H2.CL request smuggling"
// or "HTTP/2 request tunnelling".
func Subject(id model.ProbeID) string {
	if id == model.ProbeH2Tunnel {
		return id.Label()
	}
	return id.Label() + " request smuggling"
}

// Verdict returns the verdict word of a result.
func Verdict(res model.DetectionResult) string {
	if res.Vulnerable {
		return title("potentially vulnerable")
	}
	return title("not vulnerable")
}

// scanStatus returns a one-word state of the scan of a target.
func scanStatus(report *model.ScanReport) string {
	switch {
	case report.Error != "":
		return "error"
	case report.Check != nil && !report.Check.Responded:
		return "no response"
	case report.HasVulnerabilities():
		return "vulnerable"
	default:
		return "complete"
	}
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return strings.TrimSpace(s[:maxLen-3]) + "..."
}
