package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/h2smuggle/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format for documentation
// and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs one report.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	return w.WriteBatch([]*model.ScanReport{report})
}

// WriteBatch outputs all reports in one document. A target overview table
// is added when more than one target was scanned.
func (w *MarkdownWriter) WriteBatch(reports []*model.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("h2smuggle Report")
	md.PlainText("")

	if len(reports) > 1 {
		w.writeOverview(md, reports)
	}
	for _, report := range reports {
		w.writeTarget(md, report)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeOverview(md *markdown.Markdown, reports []*model.ScanReport) {
	md.H2("Targets")
	md.PlainText("")

	rows := make([][]string, len(reports))
	for i, r := range reports {
		rows[i] = []string{
			"`" + r.Target.Addr() + "`",
			statusText(r),
			strconv.Itoa(r.VulnerableCount()),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Target", "Status", "Vulnerable Probes"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeTarget(md *markdown.Markdown, report *model.ScanReport) {
	md.H2(report.Target.Addr())
	md.PlainText("")

	check := "-"
	if report.Check != nil {
		check = report.Check.Outcome.Describe()
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target.Addr() + "`"},
			{"Scan Date", report.DateScanned.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration.Round(time.Millisecond).String()},
			{"Sanity Check", check},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")

	w.writeProbes(md, report)
	if report.HasVulnerabilities() {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
	w.writeFindings(md, report)
}

func statusText(report *model.ScanReport) string {
	switch scanStatus(report) {
	case "error":
		return "❌ Error - " + report.Error
	case "no response":
		return "⚠️ No Response"
	case "vulnerable":
		return "🔴 Potentially Vulnerable"
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeProbes(md *markdown.Markdown, report *model.ScanReport) {
	if len(report.Results) == 0 {
		md.PlainText("No probes ran.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Results))
	for i, res := range report.Results {
		severity := "-"
		if res.Vulnerable {
			severity = res.Severity().String()
		}
		rows[i] = []string{
			res.Probe.Label(),
			Verdict(res),
			severity,
			res.Elapsed.Round(time.Millisecond).String(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Probe", "Verdict", "Severity", "Elapsed"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the probe verdicts.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.ScanReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Probe Verdicts"),
		piechart.WithShowData(true),
	)

	vulnerable := report.VulnerableCount()
	chart.LabelAndIntValue("Potentially vulnerable", uint64(vulnerable))
	if rest := len(report.Results) - vulnerable; rest > 0 {
		chart.LabelAndIntValue("Not vulnerable", uint64(rest))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.ScanReport) {
	switch {
	case report.Error != "":
		md.Importantf("Scan aborted: %s", report.Error)
	case report.Check != nil && !report.Check.Responded:
		md.Note("The target did not answer a plain HTTP/2 GET, so no probe was sent.")
	case report.HighestSeverity() == model.SeverityCritical:
		md.Cautionf("Request tunnelling detected! %d probe(s) reported the target as potentially vulnerable.",
			report.VulnerableCount())
	case report.HasVulnerabilities():
		md.Warningf("Request smuggling detected. %d probe(s) reported the target as potentially vulnerable.",
			report.VulnerableCount())
	default:
		md.Tip("No probe reported the target as vulnerable.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.ScanReport) {
	if !report.HasVulnerabilities() {
		return
	}

	md.PlainText("### Findings")
	md.PlainText("")

	var rows [][]string
	for _, res := range report.Results {
		if !res.Vulnerable {
			continue
		}
		info := model.GetFindingInfo(res.Probe)
		rows = append(rows, []string{
			Subject(res.Probe),
			info.Severity.String(),
			truncateString(info.Recommendation, 80),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Finding", "Severity", "Recommendation"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, res := range report.Results {
		if res.Vulnerable {
			md.Details(Subject(res.Probe), model.GetFindingInfo(res.Probe).Impact)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [h2smuggle](https://github.com/nao1215/h2smuggle)*")
}
