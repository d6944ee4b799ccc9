package model

import (
	"testing"
	"time"
)

func TestTarget(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		hostname  string
		port      int
		addr      string
		authority string
	}{
		{"hostname", "example.com", 443, "example.com:443", "example.com"},
		{"custom port", "example.com", 8443, "example.com:8443", "example.com"},
		{"ipv4", "127.0.0.1", 443, "127.0.0.1:443", "127.0.0.1"},
		{"ipv6", "::1", 443, "[::1]:443", "::1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			target := NewTarget(tc.hostname, tc.port, 5*time.Second, "ua")
			if got := target.Addr(); got != tc.addr {
				t.Errorf("Addr() = %q, expected %q", got, tc.addr)
			}
			if got := target.Authority(); got != tc.authority {
				t.Errorf("Authority() = %q, expected %q", got, tc.authority)
			}
			if target.String() != tc.addr {
				t.Errorf("String() = %q, expected %q", target.String(), tc.addr)
			}
		})
	}
}

func TestHeaderList(t *testing.T) {
	t.Parallel()

	base := HeaderList{
		{Name: ":scheme", Value: "https"},
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/"},
		{Name: "x", Value: "1"},
		{Name: "x", Value: "2"},
	}

	t.Run("get returns first match", func(t *testing.T) {
		t.Parallel()

		v, ok := base.Get("x")
		if !ok || v != "1" {
			t.Errorf("Get(x) = %q, %v", v, ok)
		}
		if _, ok := base.Get("X"); ok {
			t.Error("Get must match names exactly")
		}
	})

	t.Run("with replaces in place and does not alias", func(t *testing.T) {
		t.Parallel()

		got := base.With(":path", "/admin")
		if v, _ := got.Get(":path"); v != "/admin" {
			t.Errorf("expected replaced path, got %q", v)
		}
		if got[2].Name != ":path" {
			t.Error("replacement must keep position")
		}
		if v, _ := base.Get(":path"); v != "/" {
			t.Errorf("original modified: %q", v)
		}
	})

	t.Run("with appends missing field", func(t *testing.T) {
		t.Parallel()

		got := base.With("content-length", "0")
		if len(got) != len(base)+1 {
			t.Fatalf("expected %d fields, got %d", len(base)+1, len(got))
		}
		if got[len(got)-1].Name != "content-length" {
			t.Errorf("expected appended field last, got %q", got[len(got)-1].Name)
		}
	})

	t.Run("append keeps raw bytes", func(t *testing.T) {
		t.Parallel()

		raw := "x\r\ncontent-length: 0\r\n\r\n"
		got := base.Append(Header{Name: "x", Value: raw})
		if got[len(got)-1].Value != raw {
			t.Errorf("value altered: %q", got[len(got)-1].Value)
		}
		if len(base) != 5 {
			t.Error("original modified")
		}
	})

	t.Run("clone of nil is nil", func(t *testing.T) {
		t.Parallel()

		var h HeaderList
		if h.Clone() != nil {
			t.Error("expected nil")
		}
	})
}

func TestRequestSpec(t *testing.T) {
	t.Parallel()

	spec := NewRequestSpec(HeaderList{{Name: ":method", Value: "HEAD"}}, nil)
	if spec.Method() != "HEAD" {
		t.Errorf("Method() = %q", spec.Method())
	}

	a := NewRequestSpec(HeaderList{{Name: "content-length", Value: "5"}}, []byte("0\r\n\r\n"))
	b := NewRequestSpec(HeaderList{{Name: "content-length", Value: "9"}}, []byte("99999\r\n\r\n"))
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different requests must have different fingerprints")
	}
	if a.Fingerprint() != a.Fingerprint() {
		t.Error("fingerprint must be stable")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("expected 16 chars, got %q", a.Fingerprint())
	}

	// Moving bytes between name and value must change the fingerprint.
	c := NewRequestSpec(HeaderList{{Name: "ab", Value: "c"}}, nil)
	d := NewRequestSpec(HeaderList{{Name: "a", Value: "bc"}}, nil)
	if c.Fingerprint() == d.Fingerprint() {
		t.Error("name/value boundary must be part of the fingerprint")
	}
}

func TestProbeID(t *testing.T) {
	t.Parallel()

	t.Run("parse", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			in       string
			expected ProbeID
			wantErr  bool
		}{
			{"h2.cl", ProbeH2CL, false},
			{"H2.CL-CRLF", ProbeH2CLCRLF, false},
			{" h2_te ", ProbeH2TE, false},
			{"h2.te-crlf", ProbeH2TECRLF, false},
			{"h2.tunnel", ProbeH2Tunnel, false},
			{"h2.xx", "", true},
		}
		for _, tc := range testCases {
			got, err := ParseProbeID(tc.in)
			if (err != nil) != tc.wantErr {
				t.Errorf("ParseProbeID(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
				continue
			}
			if got != tc.expected {
				t.Errorf("ParseProbeID(%q) = %q, expected %q", tc.in, got, tc.expected)
			}
		}
	})

	t.Run("order and labels", func(t *testing.T) {
		t.Parallel()

		labels := []string{"H2.CL", "H2.CL (CRLF)", "H2.TE", "H2.TE (CRLF)", "HTTP/2 request tunnelling"}
		for i, id := range AllProbes() {
			if id.Order() != i {
				t.Errorf("%s: Order() = %d, expected %d", id, id.Order(), i)
			}
			if id.Label() != labels[i] {
				t.Errorf("%s: Label() = %q, expected %q", id, id.Label(), labels[i])
			}
		}
		if ProbeID("x").Order() != -1 {
			t.Error("unknown probe must have order -1")
		}
	})
}

func TestScanReport(t *testing.T) {
	t.Parallel()

	r := NewScanReport(NewTarget("example.com", 443, time.Second, "ua"))
	if r.HasVulnerabilities() {
		t.Error("empty report must not have vulnerabilities")
	}
	if r.HighestSeverity() != SeverityInfo {
		t.Errorf("HighestSeverity() = %v", r.HighestSeverity())
	}

	r.AddResult(DetectionResult{Probe: ProbeH2CL, Vulnerable: false})
	r.AddResult(DetectionResult{Probe: ProbeH2TE, Vulnerable: true})
	r.AddResult(DetectionResult{Probe: ProbeH2Tunnel, Vulnerable: true})

	if r.VulnerableCount() != 2 {
		t.Errorf("VulnerableCount() = %d", r.VulnerableCount())
	}
	if !r.HasVulnerabilities() {
		t.Error("expected vulnerabilities")
	}
	if r.HighestSeverity() != SeverityCritical {
		t.Errorf("HighestSeverity() = %v", r.HighestSeverity())
	}

	verdicts := r.Verdicts()
	if verdicts[ProbeH2CL] || !verdicts[ProbeH2TE] || !verdicts[ProbeH2Tunnel] {
		t.Errorf("unexpected verdicts %v", verdicts)
	}
	if _, ok := verdicts[ProbeH2CLCRLF]; ok {
		t.Error("probes that did not run must be absent")
	}

	res, ok := r.Result(ProbeH2TE)
	if !ok || !res.Vulnerable {
		t.Errorf("Result(h2.te) = %+v, %v", res, ok)
	}
	if res.Severity() != SeverityHigh {
		t.Errorf("Severity() = %v", res.Severity())
	}
	if _, ok := r.Result(ProbeH2CLCRLF); ok {
		t.Error("expected missing result")
	}
}

func TestNewCheckResult(t *testing.T) {
	t.Parallel()

	c := NewCheckResult(ResponseOutcome{Headers: HeaderList{{Name: ":status", Value: "301"}}})
	if !c.Responded || c.Status != "301" {
		t.Errorf("unexpected check result %+v", c)
	}

	c = NewCheckResult(NewTimedOutOutcome(time.Second))
	if c.Responded || c.Status != "" || !c.Outcome.TimedOut {
		t.Errorf("unexpected check result %+v", c)
	}
}
