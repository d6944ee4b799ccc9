package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/h2smuggle/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds the outcome of every probe step.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-step output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one report.
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	var sb strings.Builder
	w.writeReport(&sb, report)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteBatch outputs every report followed by a one-line summary.
func (w *SimpleWriter) WriteBatch(reports []*model.ScanReport) (int, error) {
	var sb strings.Builder
	vulnerable := 0
	for _, report := range reports {
		w.writeReport(&sb, report)
		if report.HasVulnerabilities() {
			vulnerable++
		}
	}
	fmt.Fprintf(&sb, "Scanned %d target(s), %d potentially vulnerable.\n", len(reports), vulnerable)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeReport(sb *strings.Builder, report *model.ScanReport) {
	w.writeHeader(sb, report)
	w.writeProbes(sb, report)
	w.writeFindings(sb, report)
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScanReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                         H2SMUGGLE REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Target:       %s\n", report.Target.Addr())
	fmt.Fprintf(sb, "Scan Date:    %s\n", report.DateScanned.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:     %s\n", report.Duration.Round(time.Millisecond))
	if report.Check != nil {
		fmt.Fprintf(sb, "Sanity Check: %s\n", report.Check.Outcome.Describe())
	}
	if report.Error != "" {
		fmt.Fprintf(sb, "Status:       %s - %s\n", title(scanStatus(report)), report.Error)
	} else {
		fmt.Fprintf(sb, "Status:       %s\n", title(scanStatus(report)))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeProbes(sb *strings.Builder, report *model.ScanReport) {
	if len(report.Results) == 0 {
		return
	}

	writeSection(sb, "PROBES")
	for _, res := range report.Results {
		indicator := "   "
		severity := ""
		if res.Vulnerable {
			indicator = severityIndicator(res.Severity())
			severity = res.Severity().String()
		}
		fmt.Fprintf(sb, "  [%-3s] %-28s %-24s %s\n", indicator, res.Probe.Label(), Verdict(res), severity)
		if w.verbose {
			for _, step := range res.Steps {
				fmt.Fprintf(sb, "          %-36s %s (%s)\n",
					truncateString(step.Step, 36), step.Outcome.Describe(), step.Outcome.Elapsed.Round(time.Millisecond))
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *model.ScanReport) {
	if !report.HasVulnerabilities() {
		return
	}

	writeSection(sb, "FINDINGS")
	for _, res := range report.Results {
		if !res.Vulnerable {
			continue
		}
		info := model.GetFindingInfo(res.Probe)
		fmt.Fprintf(sb, "[%s] %s\n", info.Severity, Subject(res.Probe))
		fmt.Fprintf(sb, "    Impact: %s\n", info.Impact)
		fmt.Fprintf(sb, "    Recommendation: %s\n\n", info.Recommendation)
	}
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by h2smuggle\n")
	sb.WriteString("https://github.com/nao1215/h2smuggle\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, name string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(name)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "!!!"
	case model.SeverityHigh:
		return "!!"
	case model.SeverityMedium:
		return "!"
	case model.SeverityLow:
		return "-"
	default:
		return "i"
	}
}
