// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"net/netip"
)

// Resolver maps a hostname to the addresses to query.
type Resolver interface {
	// LookupImmediate resolves host without blocking when possible,
	// for example when host is an IP address literal.
	LookupImmediate(host string, port uint16) (netip.AddrPort, bool)

	// LookupAsync starts resolving host. A nil return means done will
	// be invoked exactly once, from any goroutine. A non-nil return
	// means done will never be invoked.
	LookupAsync(ctx context.Context, host string, port uint16, done func([]netip.AddrPort, error)) error
}

// lookupLiteral parses host as an IP address literal.
func lookupLiteral(host string, port uint16) (netip.AddrPort, bool) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(addr, port), true
}

func addrPortsFrom(addrs []netip.Addr, port uint16) []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, netip.AddrPortFrom(addr.Unmap(), port))
	}
	return out
}
