package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// hostProfile is the IDNA lookup profile without the STD3 letter, digit
// and hyphen rule, so names like my_svc.internal are accepted.
var hostProfile = idna.New(idna.MapForLookup(), idna.StrictDomainName(false))

// isForbiddenHostRune reports whether r cannot appear in :authority.
func isForbiddenHostRune(r rune) bool {
	return r <= ' ' || r == 0x7f || strings.ContainsRune("/?#@[]\\:%", r)
}

// NormalizeHost turns user input into a hostname usable for SNI and
// :authority, plus the port written in the input (0 when absent).
//
// Accepted forms are a hostname, an IP literal, host:port, [ipv6]:port and
// an https:// URL. Hostnames are converted for IDNA lookup, so they come
// back lower case and in punycode; underscores are kept. A trailing dot is
// dropped.
func NormalizeHost(raw string) (string, int, error) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", 0, fmt.Errorf("%w: %q", ErrInvalidHost, raw)
		}
		s = u.Host
	}
	if s == "" {
		return "", 0, fmt.Errorf("%w: empty", ErrInvalidHost)
	}

	host, port := s, 0
	if ip := net.ParseIP(strings.Trim(s, "[]")); ip != nil {
		return ip.String(), 0, nil
	}
	if h, p, err := net.SplitHostPort(s); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %q", ErrInvalidPort, p)
		}
		if err := validatePort(n); err != nil {
			return "", 0, err
		}
		host, port = h, n
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), port, nil
	}
	ascii, err := hostProfile.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil || ascii == "" || strings.ContainsFunc(ascii, isForbiddenHostRune) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidHost, raw)
	}
	return ascii, port, nil
}
