// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrClosed is returned when using a [*Client] or [Reactor] after Close.
	ErrClosed = errors.New("evinfo: use of closed client")

	// ErrInProgress is returned by [Socket.Connect] when the connection
	// is still being established. It is not a failure.
	ErrInProgress = errors.New("evinfo: connect in progress")

	// ErrWouldBlock is returned by [Socket] I/O that cannot make
	// progress without blocking. It is not a failure.
	ErrWouldBlock = errors.New("evinfo: operation would block")

	// ErrNoProgress indicates that a send returned zero bytes without error.
	ErrNoProgress = errors.New("evinfo: send made no progress")

	// ErrRemoteClosed indicates that the peer closed the connection
	// before sending the whole response.
	ErrRemoteClosed = errors.New("evinfo: remote closed the connection")

	// ErrTimeout indicates that the request deadline expired.
	ErrTimeout = fmt.Errorf("evinfo: request timed out: %w", context.DeadlineExceeded)

	// ErrResolve indicates that the hostname could not be resolved.
	ErrResolve = errors.New("evinfo: cannot resolve host")

	// ErrNoAddresses indicates that resolution succeeded with no addresses.
	ErrNoAddresses = errors.New("evinfo: host resolved to no addresses")
)

// RequestError describes the failure of a request to a given address.
//
// Op is the state machine step that failed: "socket", "connect", "send",
// "recv", "decode", "register" or "timeout".
type RequestError struct {
	Addr netip.AddrPort
	Op   string
	Err  error
}

func (e *RequestError) Error() string {
	return "evinfo: " + e.Op + " " + e.Addr.String() + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
