package urlutil

import (
	"fmt"
	"net/netip"
	"strings"
)

// blockedPrefixes are private and reserved ranges a render target must not point at
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("ff00::/8"),
}

// IsPrivateAddr reports whether addr is in a private or reserved range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func IsPrivateAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ValidateHostNotPrivateIP rejects IP literals in private ranges and the
// localhost name. Other hostnames pass; no DNS resolution is performed.
func ValidateHostNotPrivateIP(hostname string) error {
	host := strings.TrimSuffix(strings.ToLower(hostname), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("host %s is a loopback name", hostname)
	}

	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return nil
	}
	if IsPrivateAddr(addr) {
		return fmt.Errorf("host %s is a private/reserved IP address", hostname)
	}
	return nil
}
