package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nao1215/h2smuggle/internal/detect"
	"github.com/nao1215/h2smuggle/internal/model"
	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// ColorEnabled reports whether ANSI colors should be written to w. Only a
// terminal gets colors; buffers and pipes never do.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ProgressWriter prints the live progress of a scan. It implements
// detect.Progress and detect.CheckObserver and is safe for concurrent use,
// so one value can serve a whole batch.
type ProgressWriter struct {
	mu     sync.Mutex
	output io.Writer
	color  bool
	prefix bool
}

var (
	_ detect.Progress      = (*ProgressWriter)(nil)
	_ detect.CheckObserver = (*ProgressWriter)(nil)
)

// ProgressOption configures a ProgressWriter.
type ProgressOption func(*ProgressWriter)

// WithColor enables ANSI colors.
func WithColor(color bool) ProgressOption {
	return func(p *ProgressWriter) {
		p.color = color
	}
}

// WithTargetPrefix prefixes every line with the target address. Use it
// when several targets are scanned concurrently.
func WithTargetPrefix(prefix bool) ProgressOption {
	return func(p *ProgressWriter) {
		p.prefix = prefix
	}
}

// NewProgressWriter creates a ProgressWriter that outputs to the given writer.
func NewProgressWriter(output io.Writer, opts ...ProgressOption) *ProgressWriter {
	p := &ProgressWriter{output: output}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckStarted prints the sanity check announcement.
func (p *ProgressWriter) CheckStarted(target model.Target) {
	p.println(target, colorGray, fmt.Sprintf("Making a GET HTTP2 request to %s ...", target.Addr()))
}

// CheckFinished prints the sanity check result.
func (p *ProgressWriter) CheckFinished(target model.Target, result model.CheckResult) {
	if !result.Responded {
		p.println(target, colorYellow, fmt.Sprintf("Unable to make a GET HTTP2 request to %s.", target.Addr()))
		return
	}
	p.println(target, "", fmt.Sprintf("Got response status code %s.", result.Status))
}

// ProbeStarted prints the probe announcement.
func (p *ProgressWriter) ProbeStarted(target model.Target, probe detect.Probe) {
	p.println(target, colorGray, fmt.Sprintf("Detecting %s ...", Subject(probe.ID)))
}

// ProbeFinished prints the verdict of a probe.
func (p *ProgressWriter) ProbeFinished(target model.Target, result model.DetectionResult) {
	if result.Vulnerable {
		p.println(target, colorBold+colorRed,
			fmt.Sprintf("[!] Potentially vulnerable to %s.", Subject(result.Probe)))
		return
	}
	p.println(target, colorGreen,
		fmt.Sprintf("Not potentially vulnerable to %s.", Subject(result.Probe)))
}

func (p *ProgressWriter) println(target model.Target, color, line string) {
	if p.prefix {
		line = "[" + target.Addr() + "] " + line
	}
	if p.color && color != "" {
		line = color + line + colorReset
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.output, line+"\n")
}
