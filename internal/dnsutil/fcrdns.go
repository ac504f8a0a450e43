// Package dnsutil implements forward-confirmed reverse DNS: the PTR
// record of an address yields candidate names, and a name is only
// trusted if at least one of its forward records points back at the
// original address.
package dnsutil

import (
	"net"
	"strings"
)

// Resolver does the two lookups FCrDNS needs. The default uses the
// system resolver; tests substitute a fixed table.
type Resolver struct {
	LookupAddr func(addr string) ([]string, error)
	LookupHost func(host string) ([]string, error)
}

// Default uses the system resolver.
var Default = &Resolver{
	LookupAddr: net.LookupAddr,
	LookupHost: net.LookupHost,
}

// ForwardConfirmed returns the first PTR name of ip whose forward
// records (A or AAAA) include ip, or "" if no name checks out. Address
// comparison goes through net.ParseIP, so textual variations of the
// same address (IPv6 compression, case) compare equal.
func (r *Resolver) ForwardConfirmed(ip net.IP) string {
	if ip == nil {
		return ""
	}

	names, err := r.LookupAddr(ip.String())
	if err != nil {
		return ""
	}

	for _, name := range names {
		name = strings.TrimSuffix(name, ".")
		if name == "" {
			continue
		}

		addrs, err := r.LookupHost(name)
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if parsed := net.ParseIP(addr); parsed != nil && parsed.Equal(ip) {
				return name
			}
		}
	}

	return ""
}
