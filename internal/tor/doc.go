// Package tor provides the proxied dialers of h2smuggle.
//
// A Client dials through a SOCKS5 proxy (--proxy) and satisfies the dialer
// the session expects. EmbeddedTor starts a private Tor daemon with tornago
// (--tor) and hands out a Client bound to its SOCKS port. Hostnames are
// resolved by the proxy, so SNI and :authority stay the user's hostname.
package tor
