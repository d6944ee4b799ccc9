// Package detect classifies HTTP/2 downgrade request smuggling.
//
// A Probe is a declarative description: an ordered list of request builders
// and a verdict over the outcomes they produce. One driver, Engine.Run,
// evaluates every probe the same way, so the five probes differ only in the
// requests they craft and the predicate they apply:
//
//   - H2.CL: content-length forwarded without reconciling it with DATA
//   - H2.CL (CRLF): content-length injected through CRLF in a header value
//   - H2.TE: transfer-encoding forwarded to an HTTP/1.1 back-end
//   - H2.TE (CRLF): transfer-encoding injected through CRLF
//   - HTTP/2 request tunnelling: a full HTTP/1.1 request hidden in a header
//     name or in :path
//
// Probes never run requests in parallel. Each request goes through an
// Executor (normally *session.Session) on its own connection, so probes share
// no state and can be run in any order or repeated.
package detect
