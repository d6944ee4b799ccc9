// Package h2engine is a sans-IO HTTP/2 client connection.
//
// The engine never touches a socket. Callers push bytes read from the peer
// into ReceiveData, get back decoded events, and write whatever DataToSend
// returns. Framing and HPACK come from golang.org/x/net/http2 and
// golang.org/x/net/http2/hpack; this package adds the connection and stream
// bookkeeping a single request/response exchange needs: SETTINGS and PING
// acknowledgements, send and receive flow control windows, response
// content-length accounting and GOAWAY/RST_STREAM handling.
//
// Outbound header fields are encoded exactly as given unless
// Config.ValidateOutboundHeaders or Config.NormalizeOutboundHeaders is set.
// Names and values may therefore carry upper case letters, colons, CR or LF,
// which is what smuggling probes need.
package h2engine
