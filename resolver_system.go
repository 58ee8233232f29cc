// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"net"
	"net/netip"
)

// SystemResolver is a [Resolver] using a [*net.Resolver].
//
// Each lookup runs on its own goroutine.
type SystemResolver struct {
	// Network is "ip", "ip4" or "ip6". Empty means "ip4".
	Network string

	// Resolver is the resolver to use. Nil means [net.DefaultResolver].
	Resolver *net.Resolver
}

var _ Resolver = &SystemResolver{}

// LookupImmediate implements [Resolver].
func (r *SystemResolver) LookupImmediate(host string, port uint16) (netip.AddrPort, bool) {
	return lookupLiteral(host, port)
}

// LookupAsync implements [Resolver].
func (r *SystemResolver) LookupAsync(
	ctx context.Context, host string, port uint16, done func([]netip.AddrPort, error)) error {
	network := r.Network
	if network == "" {
		network = "ip4"
	}
	reso := r.Resolver
	if reso == nil {
		reso = net.DefaultResolver
	}
	go func() {
		addrs, err := reso.LookupNetIP(ctx, network, host)
		if err != nil {
			done(nil, err)
			return
		}
		done(addrPortsFrom(addrs, port), nil)
	}()
	return nil
}
