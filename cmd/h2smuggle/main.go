// Package main provides the entry point for the h2smuggle CLI.
//
// h2smuggle probes HTTPS servers for HTTP/2 downgrade request smuggling
// (H2.CL, H2.TE and their CRLF injection variants) and for HTTP/2 request
// tunnelling.
//
// Usage:
//
//	h2smuggle scan <host>...
//	h2smuggle scan --list <file>
//	h2smuggle history <host>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
