package security

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrUnsafeEndpoint is returned when an outbound URL points at an address the
// service must never call (loopback, RFC1918, link-local, cloud metadata).
var ErrUnsafeEndpoint = errors.New("endpoint address not allowed")

var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"metadata.google":          {},
	"metadata.google.internal": {},
}

// ValidateEndpointURL decides whether a webhook or callback URL is safe for
// server-side delivery. IP literals are checked directly; hostnames are
// resolved and every returned address must pass.
func ValidateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse endpoint url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrUnsafeEndpoint, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrUnsafeEndpoint)
	}
	if _, bad := blockedHosts[strings.ToLower(host)]; bad {
		return fmt.Errorf("%w: host %q", ErrUnsafeEndpoint, host)
	}

	if addr, perr := netip.ParseAddr(host); perr == nil {
		return checkAddr(host, addr)
	}

	resolved, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("resolve endpoint host %q: %w", host, err)
	}
	for _, s := range resolved {
		addr, perr := netip.ParseAddr(s)
		if perr != nil {
			continue
		}
		if err := checkAddr(host, addr); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(host string, addr netip.Addr) error {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsUnspecified():
		return fmt.Errorf("%w: %s resolves to %s", ErrUnsafeEndpoint, host, addr)
	}
	return nil
}
