package model

import (
	"net"
	"strconv"
	"time"
)

// Target is the immutable configuration for probing one host.
// It is built once from configuration and then passed by value into every
// session and detection call; nothing mutates it afterwards.
type Target struct {
	// Hostname is the host to connect to. It is also sent as :authority and
	// as the TLS server name.
	Hostname string `json:"hostname"`

	// Port is the TLS port.
	Port int `json:"port"`

	// Timeout bounds connect, TLS handshake and every socket read of a
	// single connection.
	Timeout time.Duration `json:"timeout"`

	// UserAgent is sent as the user-agent header of every request.
	UserAgent string `json:"user_agent"`
}

// NewTarget creates a Target.
func NewTarget(hostname string, port int, timeout time.Duration, userAgent string) Target {
	return Target{
		Hostname:  hostname,
		Port:      port,
		Timeout:   timeout,
		UserAgent: userAgent,
	}
}

// Addr returns the dial address in "host:port" form.
// IPv6 literals are bracketed.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Hostname, strconv.Itoa(t.Port))
}

// Authority returns the value used for the :authority pseudo-header.
func (t Target) Authority() string {
	return t.Hostname
}

// String returns the dial address.
func (t Target) String() string {
	return t.Addr()
}
