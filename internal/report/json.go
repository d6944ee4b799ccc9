package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/h2smuggle/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one report as a JSON object.
func (w *JSONWriter) Write(report *model.ScanReport) (int, error) {
	return w.writeJSON(report)
}

// WriteBatch outputs the reports as a JSON array.
func (w *JSONWriter) WriteBatch(reports []*model.ScanReport) (int, error) {
	if reports == nil {
		reports = []*model.ScanReport{}
	}
	return w.writeJSON(reports)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

// Summary is the at-a-glance part of a JSONReport.
type Summary struct {
	Targets    int `json:"targets"`
	Vulnerable int `json:"vulnerable"`
	NoResponse int `json:"no_response"`
}

// NewSummary counts the targets of a scan by state.
func NewSummary(reports []*model.ScanReport) Summary {
	s := Summary{Targets: len(reports)}
	for _, r := range reports {
		if r.HasVulnerabilities() {
			s.Vulnerable++
		}
		if r.Check != nil && !r.Check.Responded {
			s.NoResponse++
		}
	}
	return s
}

// JSONReport wraps reports with the version that produced them.
type JSONReport struct {
	// Version is the h2smuggle version that generated this report.
	Version string `json:"version"`

	// Summary counts targets by state.
	Summary Summary `json:"summary"`

	// Reports holds one report per target.
	Reports []*model.ScanReport `json:"reports"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(reports []*model.ScanReport, version string) *JSONReport {
	if reports == nil {
		reports = []*model.ScanReport{}
	}
	return &JSONReport{
		Version: version,
		Summary: NewSummary(reports),
		Reports: reports,
	}
}

// FullJSONWriter outputs reports inside a JSONReport wrapper.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for wrapped reports.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs one report wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.ScanReport) (int, error) {
	return w.writeJSON(NewJSONReport([]*model.ScanReport{report}, w.version))
}

// WriteBatch outputs all reports wrapped with metadata.
func (w *FullJSONWriter) WriteBatch(reports []*model.ScanReport) (int, error) {
	return w.writeJSON(NewJSONReport(reports, w.version))
}
