//go:build !linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import "errors"

// NewEpollReactor returns [errors.ErrUnsupported] outside of Linux.
//
// Use [Config.NewReactor] to plug in a custom [Reactor].
func NewEpollReactor() (Reactor, error) {
	return nil, errors.ErrUnsupported
}
