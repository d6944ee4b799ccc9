// Package session performs one HTTP/2 request/response exchange over TLS.
//
// A Session opens a fresh TCP connection for every call to Execute,
// negotiates TLS with ALPN "h2" (certificates and hostnames are not
// verified), sends exactly one request on stream 1 and reads until the
// response stream ends, the peer closes the connection or no data
// arrives within the target timeout.
//
// Every failure is folded into the returned model.ResponseOutcome. Execute
// has no error return and never retries: a timeout or an error is the
// observation the detection probes classify.
package session
