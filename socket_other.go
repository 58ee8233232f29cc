//go:build !linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"errors"
	"net/netip"
)

// NewSocket returns [errors.ErrUnsupported] outside of Linux.
//
// Use [Config.NewSocket] to plug in a custom [Socket].
func NewSocket(addr netip.AddrPort) (Socket, error) {
	return nil, errors.ErrUnsupported
}
