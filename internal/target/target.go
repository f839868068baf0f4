// Package target holds the normalized address of the monitored Minecraft
// server.
package target

import (
	"net"
	"net/netip"
	"strconv"
)

// Target is the immutable address of the monitored server. The zero value is
// not useful; build one with New.
type Target struct {
	host    string
	addr    netip.Addr // valid only for literal IP hosts
	port    uint16     // 0 = unset
	display string
}

// New classifies host as a literal IP address when netip accepts it and as a
// domain name otherwise. Literal IPs are displayed in canonical form; Host
// keeps the configured spelling. Domains are not validated; a malformed one fails at
// connect time. A port of 0 means no port was configured.
func New(host string, port uint16) Target {
	t := Target{host: host, port: port}
	t.display = host
	if addr, err := netip.ParseAddr(host); err == nil {
		t.addr = addr
		t.display = addr.String() // canonical form, e.g. "2001:DB8::1" -> "2001:db8::1"
	}
	if port != 0 {
		t.display += ":" + strconv.FormatUint(uint64(port), 10)
	}
	return t
}

// Host returns the host exactly as configured.
func (t Target) Host() string { return t.host }

// Port returns the configured port and whether one was set.
func (t Target) Port() (uint16, bool) { return t.port, t.port != 0 }

// IsIP reports whether the host is a literal IPv4 or IPv6 address.
func (t Target) IsIP() bool { return t.addr.IsValid() }

// Addr returns the literal IP address; it is invalid for domain targets.
func (t Target) Addr() netip.Addr { return t.addr }

// DisplayAddress returns "host:port" when a port is set and "host" otherwise.
// It is used for logs and for the offline presence text.
func (t Target) DisplayAddress() string { return t.display }

func (t Target) String() string { return t.display }

// DialAddress returns a dialable address, substituting defaultPort when no
// port is configured. IPv6 literals are bracketed.
func (t Target) DialAddress(defaultPort uint16) string {
	port := t.port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(t.host, strconv.FormatUint(uint64(port), 10))
}

// Private and reserved ranges that remote players cannot reach.
var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),     // RFC1918 Class A
	netip.MustParsePrefix("172.16.0.0/12"),  // RFC1918 Class B
	netip.MustParsePrefix("192.168.0.0/16"), // RFC1918 Class C
	netip.MustParsePrefix("127.0.0.0/8"),    // Loopback
	netip.MustParsePrefix("169.254.0.0/16"), // Link-local (RFC3927)
	netip.MustParsePrefix("0.0.0.0/8"),      // This network
	netip.MustParsePrefix("100.64.0.0/10"),  // CGNAT (RFC6598)
	netip.MustParsePrefix("::1/128"),        // IPv6 loopback
	netip.MustParsePrefix("fe80::/10"),      // IPv6 link-local
	netip.MustParsePrefix("fc00::/7"),       // IPv6 unique local (RFC4193)
}

// IsPrivate reports whether the target is a literal IP inside a private or
// reserved range. Domain targets always report false.
func (t Target) IsPrivate() bool {
	if !t.addr.IsValid() {
		return false
	}
	addr := t.addr.Unmap().WithZone("")
	for _, prefix := range privateRanges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
