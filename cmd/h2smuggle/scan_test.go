package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/h2smuggle/internal/config"
	"github.com/nao1215/h2smuggle/internal/database"
	"github.com/nao1215/h2smuggle/internal/detect"
	"github.com/nao1215/h2smuggle/internal/model"
	"github.com/nao1215/h2smuggle/internal/report"
)

func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()
	if cmd.Use != "scan [host]..." {
		t.Errorf("unexpected use %q", cmd.Use)
	}

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"port", "p", "443"},
		{"timeout", "t", "5s"},
		{"user-agent", "u", config.DefaultUserAgent},
		{"list", "l", ""},
		{"probe", "P", "[]"},
		{"batch", "b", "1"},
		{"proxy", "", ""},
		{"tor", "", "false"},
		{"tor-timeout", "", "3m0s"},
		{"config", "c", ""},
		{"json", "j", "false"},
		{"markdown", "m", "false"},
		{"output", "o", ""},
		{"no-save", "", "false"},
		{"no-color", "", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("shorthand = %q, want %q", flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("default = %q, want %q", flag.DefValue, tt.defValue)
			}
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("flags", func(t *testing.T) {
		t.Parallel()

		cfgFile := writeFile(t, ".h2smuggle", "defaults:\n  timeout: 9s\n")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{
			"-c", cfgFile, "-p", "8443", "-t", "2s", "-u", "probe/1.0",
			"-P", "h2.cl,h2.tunnel", "-b", "4", "--no-save", "--no-color", "-j",
		}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Port != 8443 || cfg.Timeout != 2*time.Second || cfg.UserAgent != "probe/1.0" {
			t.Errorf("target options = %d %s %q", cfg.Port, cfg.Timeout, cfg.UserAgent)
		}
		if !slices.Equal(cfg.Probes, []string{"h2.cl", "h2.tunnel"}) {
			t.Errorf("Probes = %q", cfg.Probes)
		}
		if cfg.BatchSize != 4 || cfg.SaveToDB || !cfg.NoColor || !cfg.JSONReport {
			t.Errorf("unexpected config %+v", cfg)
		}
		if !slices.Equal(cfg.Targets, []string{"example.com"}) {
			t.Errorf("Targets = %q", cfg.Targets)
		}
	})

	t.Run("file defaults apply to flags not given", func(t *testing.T) {
		t.Parallel()

		cfgFile := writeFile(t, ".h2smuggle", "defaults:\n  port: 8443\n  timeout: 9s\n  probes: [h2.te]\n")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", cfgFile, "-t", "2s"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Port != 8443 {
			t.Errorf("Port = %d, want 8443 from file", cfg.Port)
		}
		if cfg.Timeout != 2*time.Second {
			t.Errorf("Timeout = %s, want explicit 2s", cfg.Timeout)
		}
		if !slices.Equal(cfg.Probes, []string{"h2.te"}) {
			t.Errorf("Probes = %q", cfg.Probes)
		}
	})

	t.Run("target list is appended to args", func(t *testing.T) {
		t.Parallel()

		cfgFile := writeFile(t, ".h2smuggle", "defaults: {}\n")
		list := writeFile(t, "hosts.txt", "# targets\nb.example\n\nc.example:8443\n")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", cfgFile, "-l", list}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"a.example"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"a.example", "b.example", "c.example:8443"}
		if !slices.Equal(cfg.Targets, want) {
			t.Errorf("Targets = %q, want %q", cfg.Targets, want)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "missing")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		_, err := buildConfig(cmd, []string{"example.com"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid config file", func(t *testing.T) {
		t.Parallel()

		cfgFile := writeFile(t, ".h2smuggle", "invalid: yaml: content: [")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", cfgFile}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, []string{"example.com"}); err == nil {
			t.Error("expected error for invalid config file")
		}
	})
}

func TestScanTargets(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Targets = []string{"Example.COM", "other.example:8443"}
	cfg.Probes = []string{"h2.tunnel", "h2.cl"}
	cfg.File = &config.File{
		Targets: map[string]config.TargetConfig{
			"other.example": {Timeout: 9 * time.Second, Probes: []string{"h2.te"}},
		},
	}

	targets, probes, err := scanTargets(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets", len(targets))
	}
	if targets[0].Addr() != "example.com:443" || targets[1].Addr() != "other.example:8443" {
		t.Errorf("addrs = %s, %s", targets[0].Addr(), targets[1].Addr())
	}
	if targets[1].Timeout != 9*time.Second {
		t.Errorf("override timeout = %s", targets[1].Timeout)
	}

	ids := func(ps []detect.Probe) []model.ProbeID {
		out := make([]model.ProbeID, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}
	if got := ids(probes["example.com:443"]); !slices.Equal(got, []model.ProbeID{model.ProbeH2CL, model.ProbeH2Tunnel}) {
		t.Errorf("example.com probes = %v", got)
	}
	if got := ids(probes["other.example:8443"]); !slices.Equal(got, []model.ProbeID{model.ProbeH2TE}) {
		t.Errorf("other.example probes = %v", got)
	}
}

func TestRunScanCmdValidation(t *testing.T) {
	t.Parallel()

	cfgFile := writeFile(t, ".h2smuggle", "defaults: {}\n")
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no targets", []string{"scan", "-c", cfgFile}, config.ErrNoTarget},
		{"conflicting formats", []string{"scan", "-c", cfgFile, "-j", "-m", "example.com"}, config.ErrConflictingReportFormats},
		{"conflicting proxies", []string{"scan", "-c", cfgFile, "--tor", "--proxy", "127.0.0.1:9050", "example.com"}, config.ErrConflictingProxyOptions},
		{"unknown probe", []string{"scan", "-c", cfgFile, "-P", "h2.xx", "example.com"}, config.ErrUnknownProbe},
		{"bad batch", []string{"scan", "-c", cfgFile, "-b", "0", "example.com"}, config.ErrInvalidBatchSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestRunScanUnreachableHost(t *testing.T) {
	t.Parallel()

	cfgFile := writeFile(t, ".h2smuggle", "defaults: {}\n")
	reportPath := filepath.Join(t.TempDir(), "out", "report.json")
	port := strconv.Itoa(closedPort(t))

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"scan", "-c", cfgFile, "--no-save", "--no-color",
		"-t", "1s", "-p", port, "-j", "-o", reportPath, "127.0.0.1",
	})

	err := cmd.Execute()
	if !errors.Is(err, detect.ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var got report.JSONReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}
	if got.Summary.NoResponse != 1 || len(got.Reports) != 1 {
		t.Fatalf("summary = %+v", got.Summary)
	}
	r := got.Reports[0]
	if r.Check == nil || r.Check.Responded {
		t.Errorf("check = %+v", r.Check)
	}
	if len(r.Results) != 0 {
		t.Error("no probe may run after a failed sanity check")
	}
}

func TestRunScanProgressOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		progressOut bool
	}{
		{name: "text report file", args: []string{"-o", "report.txt"}, progressOut: true},
		{name: "json report on stdout", args: []string{"-j"}, progressOut: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			cfgFile := writeFile(t, ".h2smuggle", "defaults: {}\n")
			addr := "127.0.0.1:" + strconv.Itoa(closedPort(t))

			args := []string{"scan", "-c", cfgFile, "--no-save", "-t", "1s"}
			for _, a := range tt.args {
				if a == "report.txt" {
					a = filepath.Join(dir, a)
				}
				args = append(args, a)
			}
			args = append(args, addr)

			var stdout, stderr bytes.Buffer
			cmd := NewRootCmd()
			cmd.SetOut(&stdout)
			cmd.SetErr(&stderr)
			cmd.SetArgs(args)
			if err := cmd.Execute(); !errors.Is(err, detect.ErrNoResponse) {
				t.Fatalf("expected ErrNoResponse, got %v", err)
			}

			progress, other := stdout.String(), stderr.String()
			if !tt.progressOut {
				progress, other = other, progress
			}
			want := "Unable to make a GET HTTP2 request to " + addr + "."
			if !strings.Contains(progress, want) {
				t.Errorf("progress output missing %q:\n%s", want, progress)
			}
			if strings.Contains(other, "Making a GET HTTP2 request") {
				t.Errorf("progress written to the wrong stream:\n%s", other)
			}
			if strings.Contains(progress, "\033[") {
				t.Error("colors written to a non-terminal")
			}
			if got := strings.Contains(stdout.String(), "h2smuggle version"); got != tt.progressOut {
				t.Errorf("banner on stdout = %v, want %v", got, tt.progressOut)
			}
		})
	}
}

func TestOutputReports(t *testing.T) {
	t.Parallel()

	newReport := func(host string) *model.ScanReport {
		r := model.NewScanReport(model.NewTarget(host, 443, time.Second, "ua"))
		r.Check = &model.CheckResult{Responded: true, Status: "200"}
		r.AddResult(model.DetectionResult{Probe: model.ProbeH2CL, Vulnerable: true})
		return r
	}

	tests := []struct {
		name    string
		cfg     func(*config.Config)
		reports int
		want    string
	}{
		{"simple", func(*config.Config) {}, 1, "H2SMUGGLE REPORT"},
		{"simple batch", func(*config.Config) {}, 2, "Scanned 2 target(s)"},
		{"json", func(c *config.Config) { c.JSONReport = true }, 1, `"version"`},
		{"markdown", func(c *config.Config) { c.MarkdownReport = true }, 2, "## Targets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			tt.cfg(cfg)
			var reports []*model.ScanReport
			for i := range tt.reports {
				reports = append(reports, newReport("host"+strconv.Itoa(i)+".example"))
			}

			var buf bytes.Buffer
			if err := outputReports(cfg, &buf, reports); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected output to contain %q\n%s", tt.want, buf.String())
			}
		})
	}

	t.Run("file output", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ReportFile = filepath.Join(t.TempDir(), "a", "b", "report.txt")
		var stdout bytes.Buffer
		if err := outputReports(cfg, &stdout, []*model.ScanReport{newReport("x.example")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stdout.Len() != 0 {
			t.Error("nothing may go to stdout when writing to a file")
		}
		info, err := os.Stat(cfg.ReportFile)
		if err != nil {
			t.Fatalf("report file missing: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("report mode = %v, want 0600", info.Mode().Perm())
		}
	})
}

func TestSaveScanReports(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	checked := model.NewScanReport(model.NewTarget("checked.example", 443, time.Second, "ua"))
	checked.Check = &model.CheckResult{Responded: true, Status: "200"}
	unchecked := model.NewScanReport(model.NewTarget("unchecked.example", 443, time.Second, "ua"))

	ctx := t.Context()
	saveScanReports(ctx, db, []*model.ScanReport{checked, unchecked}, discardLogger())
	saveScanReports(ctx, nil, []*model.ScanReport{checked}, discardLogger())

	targets, err := db.ListScannedTargets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].Target != "checked.example" {
		t.Errorf("saved targets = %+v", targets)
	}
}

func TestCompletedReportsAndNoResponse(t *testing.T) {
	t.Parallel()

	ok := model.NewScanReport(model.NewTarget("ok.example", 443, time.Second, "ua"))
	ok.Check = &model.CheckResult{Responded: true}
	down := model.NewScanReport(model.NewTarget("down.example", 443, time.Second, "ua"))
	down.Check = &model.CheckResult{}

	got := completedReports([]*model.ScanReport{ok, nil, down, nil})
	if len(got) != 2 {
		t.Fatalf("got %d reports, want 2", len(got))
	}
	if n := countNoResponse(got); n != 1 {
		t.Errorf("countNoResponse = %d, want 1", n)
	}
}

func TestBuildDialer(t *testing.T) {
	t.Parallel()

	t.Run("direct", func(t *testing.T) {
		t.Parallel()

		d, cleanup, err := buildDialer(t.Context(), config.NewConfig(), discardLogger(), &bytes.Buffer{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer cleanup()
		if _, ok := d.(*net.Dialer); !ok {
			t.Errorf("got %T, want *net.Dialer", d)
		}
	})

	t.Run("unreachable proxy", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.Timeout = time.Second
		cfg.ProxyAddress = "127.0.0.1:" + strconv.Itoa(closedPort(t))
		_, cleanup, err := buildDialer(t.Context(), cfg, discardLogger(), &bytes.Buffer{})
		defer cleanup()
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid proxy address", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ProxyAddress = "not a proxy"
		_, cleanup, err := buildDialer(t.Context(), cfg, discardLogger(), &bytes.Buffer{})
		defer cleanup()
		if err == nil {
			t.Fatal("expected error")
		}
	})
}
