package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/h2smuggle/internal/model"
)

func testTarget(host string) model.Target {
	return model.NewTarget(host, 443, 5*time.Second, "test-agent")
}

func result(id model.ProbeID, vulnerable bool) model.DetectionResult {
	return model.DetectionResult{
		Probe:      id,
		Label:      id.Label(),
		Vulnerable: vulnerable,
		Steps: []model.StepOutcome{{
			Step:    "control",
			Outcome: model.OutcomeSummary{Status: "200", Error: "none", Elapsed: 120 * time.Millisecond},
		}},
		Elapsed: 150 * time.Millisecond,
	}
}

// createTestReport creates a report in which H2.CL and the tunnel probe fired.
func createTestReport() *model.ScanReport {
	report := model.NewScanReport(testTarget("vulnerable.example"))
	report.Check = &model.CheckResult{
		Responded: true,
		Status:    "200",
		Outcome:   model.OutcomeSummary{Status: "200", Error: "none"},
	}
	report.AddResult(result(model.ProbeH2CL, true))
	report.AddResult(result(model.ProbeH2CLCRLF, false))
	report.AddResult(result(model.ProbeH2TE, false))
	report.AddResult(result(model.ProbeH2TECRLF, false))
	report.AddResult(result(model.ProbeH2Tunnel, true))
	report.Duration = 2 * time.Second
	return report
}

func createCleanReport(host string) *model.ScanReport {
	report := model.NewScanReport(testTarget(host))
	report.Check = &model.CheckResult{
		Responded: true,
		Status:    "200",
		Outcome:   model.OutcomeSummary{Status: "200", Error: "none"},
	}
	for _, id := range model.AllProbes() {
		report.AddResult(result(id, false))
	}
	return report
}

func createNoResponseReport(host string) *model.ScanReport {
	report := model.NewScanReport(testTarget(host))
	report.Check = &model.CheckResult{
		Outcome: model.OutcomeSummary{Error: "genericError"},
	}
	report.Error = "no response from " + host + ":443"
	return report
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and verdicts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"H2SMUGGLE REPORT",
			"vulnerable.example:443",
			"Sanity Check: status 200",
			"Status:       Vulnerable",
			"PROBES",
			"Potentially Vulnerable",
			"Not Vulnerable",
			"FINDINGS",
			"[CRITICAL] HTTP/2 request tunnelling",
			"[HIGH] H2.CL request smuggling",
			"Recommendation:",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "status 200 (120ms)") {
			t.Error("steps should only be written in verbose mode")
		}
	})

	t.Run("verbose writes steps", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "status 200 (120ms)") {
			t.Error("expected step outcomes in verbose output")
		}
	})

	t.Run("clean report has no findings section", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createCleanReport("clean.example")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if strings.Contains(output, "FINDINGS") {
			t.Error("unexpected findings section")
		}
		if !strings.Contains(output, "Status:       Complete") {
			t.Error("expected complete status")
		}
	})

	t.Run("error report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createNoResponseReport("down.example")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "Status:       Error - no response from down.example:443") {
			t.Errorf("expected error status, got:\n%s", output)
		}
		if strings.Contains(output, "PROBES") {
			t.Error("unexpected probes section")
		}
	})

	t.Run("batch summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		reports := []*model.ScanReport{createTestReport(), createCleanReport("clean.example")}
		n, err := NewSimpleWriter(&buf).WriteBatch(reports)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("returned %d bytes, wrote %d", n, buf.Len())
		}
		output := buf.String()
		if strings.Count(output, "H2SMUGGLE REPORT") != 2 {
			t.Error("expected one header per report")
		}
		if !strings.Contains(output, "Scanned 2 target(s), 1 potentially vulnerable.") {
			t.Error("expected batch summary")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact single report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("compact output should be a single line")
		}

		var got model.ScanReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Target.Hostname != "vulnerable.example" {
			t.Errorf("hostname = %q", got.Target.Hostname)
		}
		if got.VulnerableCount() != 2 {
			t.Errorf("VulnerableCount = %d, want 2", got.VulnerableCount())
		}
	})

	t.Run("pretty batch", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint())
		if _, err := w.WriteBatch([]*model.ScanReport{createTestReport(), createCleanReport("clean.example")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  {") {
			t.Error("expected indented array elements")
		}

		var got []model.ScanReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d reports, want 2", len(got))
		}
	})

	t.Run("nil batch is an empty array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteBatch(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.TrimSpace(buf.String()); got != "[]" {
			t.Errorf("got %q, want []", got)
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent("", "\t")).Write(createCleanReport("clean.example")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n\t\"target\"") {
			t.Error("expected tab indentation")
		}
	})
}

func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewFullJSONWriter(&buf, "1.2.3")
	reports := []*model.ScanReport{
		createTestReport(),
		createCleanReport("clean.example"),
		createNoResponseReport("down.example"),
	}
	if _, err := w.WriteBatch(reports); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got JSONReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Version != "1.2.3" {
		t.Errorf("Version = %q", got.Version)
	}
	want := Summary{Targets: 3, Vulnerable: 1, NoResponse: 1}
	if got.Summary != want {
		t.Errorf("Summary = %+v, want %+v", got.Summary, want)
	}
	if len(got.Reports) != 3 {
		t.Errorf("got %d reports, want 3", len(got.Reports))
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("vulnerable target", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# h2smuggle Report",
			"## vulnerable.example:443",
			"Potentially Vulnerable",
			"pie",
			"[!CAUTION]",
			"### Findings",
			"HTTP/2 request tunnelling",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "## Targets") {
			t.Error("single report should not have a target overview")
		}
	})

	t.Run("high severity only uses warning", func(t *testing.T) {
		t.Parallel()

		report := createCleanReport("cl.example")
		report.Results[0].Vulnerable = true

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!WARNING]") {
			t.Error("expected WARNING alert")
		}
	})

	t.Run("clean target", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createCleanReport("clean.example")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!TIP]") {
			t.Error("expected TIP alert")
		}
		if strings.Contains(output, "pie") {
			t.Error("pie chart is only drawn when a probe fired")
		}
	})

	t.Run("batch has overview", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		reports := []*model.ScanReport{createTestReport(), createNoResponseReport("down.example")}
		if _, err := NewMarkdownWriter(&buf).WriteBatch(reports); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "## Targets") {
			t.Error("expected target overview")
		}
		if !strings.Contains(output, "Error - no response from down.example:443") {
			t.Error("expected error status for down.example")
		}
		if !strings.Contains(output, "No probes ran.") {
			t.Error("expected note for target without probes")
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*model.ScanReport) (int, error)        { return 0, errors.New("boom") }
func (failingWriter) WriteBatch([]*model.ScanReport) (int, error) { return 0, errors.New("boom") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		m := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))
		n, err := m.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("n = %d, want %d", n, text.Len()+js.Len())
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected both writers to receive output")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		m := NewMultiWriter(failingWriter{}, NewSimpleWriter(&after))
		if _, err := m.WriteBatch([]*model.ScanReport{createTestReport()}); err == nil {
			t.Fatal("expected error")
		}
		if after.Len() != 0 {
			t.Error("writers after the failing one must not run")
		}
	})
}

func TestSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		probe model.ProbeID
		want  string
	}{
		{model.ProbeH2CL, "H2.CL request smuggling"},
		{model.ProbeH2CLCRLF, "H2.CL (CRLF) request smuggling"},
		{model.ProbeH2TE, "H2.TE request smuggling"},
		{model.ProbeH2TECRLF, "H2.TE (CRLF) request smuggling"},
		{model.ProbeH2Tunnel, "HTTP/2 request tunnelling"},
	}
	for _, tt := range tests {
		t.Run(string(tt.probe), func(t *testing.T) {
			t.Parallel()
			if got := Subject(tt.probe); got != tt.want {
				t.Errorf("Subject(%s) = %q, want %q", tt.probe, got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a longer string", 10, "this is..."},
		{"abcd", 3, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := truncateString(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}
