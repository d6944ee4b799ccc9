package detect

import (
	"fmt"

	"golang.org/x/net/http2"

	"github.com/nao1215/h2smuggle/internal/model"
)

// Request bodies of the transfer-encoding probes. The control body is a
// terminating chunk; the other announces a 99999 byte chunk and stops.
const (
	terminatingChunk = "0\r\n\r\n"
	oversizedChunk   = "99999\r\n\r\n"
)

// baseHeaders returns the fields every probe request starts with, in wire order.
func baseHeaders(t model.Target, method string) model.HeaderList {
	return model.HeaderList{
		{Name: model.PseudoScheme, Value: "https"},
		{Name: model.PseudoMethod, Value: method},
		{Name: model.PseudoPath, Value: "/"},
		{Name: model.PseudoAuthority, Value: t.Authority()},
		{Name: "user-agent", Value: t.UserAgent},
	}
}

func request(method string, body string, extra ...model.Header) func(model.Target) model.RequestSpec {
	return func(t model.Target) model.RequestSpec {
		var b []byte
		if body != "" {
			b = []byte(body)
		}
		return model.NewRequestSpec(baseHeaders(t, method).Append(extra...), b)
	}
}

// controlRespondedTargetHung is the timing verdict shared by the two-step
// probes: the control request is answered and the crafted one hangs.
func controlRespondedTargetHung(o []model.ResponseOutcome) bool {
	return len(o) >= 2 && !o[0].TimedOut && o[1].TimedOut
}

// H2CL probes content-length based smuggling.
//
// A back-end that trusts a forwarded content-length waits for 99999 bytes
// that never come, while the control with content-length 0 is answered.
// A non-numeric length makes such a proxy either drop the connection with
// INTERNAL_ERROR or answer 400; both count.
func H2CL() Probe {
	return Probe{
		ID:    model.ProbeH2CL,
		Label: model.ProbeH2CL.Label(),
		Steps: []Step{
			{Name: "control (content-length: 0)", Build: request("POST", "", model.Header{Name: "content-length", Value: "0"})},
			{Name: "content-length: 99999", Build: request("POST", "", model.Header{Name: "content-length", Value: "99999"})},
			{Name: "content-length: z", Build: request("POST", "", model.Header{Name: "content-length", Value: "z"})},
		},
		Verdict: func(o []model.ResponseOutcome) bool {
			if len(o) != 3 || !controlRespondedTargetHung(o) {
				return false
			}
			return o[2].Error.IsConnectionTerminated(http2.ErrCodeInternal) || o[2].Status() == "400"
		},
	}
}

// H2CLCRLF probes content-length smuggling through a CRLF sequence in the
// value of header "x".
func H2CLCRLF() Probe {
	inject := func(length string) model.Header {
		return model.Header{Name: "x", Value: "x\r\ncontent-length: " + length + "\r\n\r\n"}
	}
	return Probe{
		ID:    model.ProbeH2CLCRLF,
		Label: model.ProbeH2CLCRLF.Label(),
		Steps: []Step{
			{Name: "control (injected content-length: 0)", Build: request("POST", "", inject("0"))},
			{Name: "injected content-length: 99999", Build: request("POST", "", inject("99999"))},
		},
		Verdict: controlRespondedTargetHung,
	}
}

// H2TE probes transfer-encoding based smuggling. Both requests carry a
// content-length that matches their DATA, so only a back-end honoring
// transfer-encoding: chunked waits for the rest of the announced chunk.
func H2TE() Probe {
	te := model.Header{Name: "transfer-encoding", Value: "chunked"}
	return Probe{
		ID:    model.ProbeH2TE,
		Label: model.ProbeH2TE.Label(),
		Steps: []Step{
			{
				Name:  "control (terminating chunk)",
				Build: request("POST", terminatingChunk, model.Header{Name: "content-length", Value: "5"}, te),
			},
			{
				Name:  "oversized chunk",
				Build: request("POST", oversizedChunk, model.Header{Name: "content-length", Value: "9"}, te),
			},
		},
		Verdict: controlRespondedTargetHung,
	}
}

// H2TECRLF probes transfer-encoding smuggling through a CRLF sequence in the
// value of header "x". No standalone transfer-encoding field is sent.
func H2TECRLF() Probe {
	inject := model.Header{Name: "x", Value: "x\r\ntransfer-encoding: chunked"}
	return Probe{
		ID:    model.ProbeH2TECRLF,
		Label: model.ProbeH2TECRLF.Label(),
		Steps: []Step{
			{Name: "control (terminating chunk)", Build: request("POST", terminatingChunk, inject)},
			{Name: "oversized chunk", Build: request("POST", oversizedChunk, inject)},
		},
		Verdict: controlRespondedTargetHung,
	}
}

// H2Tunnel probes request tunnelling. Each HEAD request hides a complete
// HTTP/1.1 request; a back-end that executes it answers with a body the
// HEAD response cannot have.
func H2Tunnel() Probe {
	inHeaderName := func(t model.Target) model.RequestSpec {
		name := fmt.Sprintf("x: x\r\n\r\nGET / HTTP/1.1\r\nHost: %s\r\n\r\n", t.Hostname)
		return request("HEAD", "", model.Header{Name: name, Value: "x"})(t)
	}
	inPath := func(t model.Target) model.RequestSpec {
		path := fmt.Sprintf("/ HTTP/1.1\r\nHost: %s\r\n\r\nGET / HTTP/1.1\r\nX: X", t.Hostname)
		spec := request("HEAD", "")(t)
		spec.Headers = spec.Headers.With(model.PseudoPath, path)
		return spec
	}
	return Probe{
		ID:    model.ProbeH2Tunnel,
		Label: model.ProbeH2Tunnel.Label(),
		Steps: []Step{
			{Name: "request in header name", Build: inHeaderName},
			{Name: "request in :path", Build: inPath},
		},
		StepVerdict: func(o model.ResponseOutcome) bool {
			return o.Error.IsInvalidBodyLength()
		},
	}
}

// Probes returns every probe in execution order.
func Probes() []Probe {
	return []Probe{H2CL(), H2CLCRLF(), H2TE(), H2TECRLF(), H2Tunnel()}
}

// Select returns the probes with the given ids in execution order.
// An empty ids selects every probe.
func Select(ids []model.ProbeID) ([]Probe, error) {
	all := Probes()
	if len(ids) == 0 {
		return all, nil
	}
	want := make(map[model.ProbeID]bool, len(ids))
	for _, id := range ids {
		if id.Order() < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProbe, id)
		}
		want[id] = true
	}
	selected := make([]Probe, 0, len(want))
	for _, p := range all {
		if want[p.ID] {
			selected = append(selected, p)
		}
	}
	return selected, nil
}

// CheckRequest is the plain GET sent before any probe.
func CheckRequest(t model.Target) model.RequestSpec {
	return request("GET", "")(t)
}
