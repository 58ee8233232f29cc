// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import "net/netip"

// Socket is a non-blocking stream socket.
//
// Connect returns [ErrInProgress] while the connection is being
// established. Send and Recv return [ErrWouldBlock] when they cannot
// make progress. Recv returns zero bytes and no error on EOF.
type Socket interface {
	// Fd returns the descriptor to register with a [Reactor].
	Fd() int

	// Connect starts connecting to addr.
	Connect(addr netip.AddrPort) error

	// Send writes bytes from p.
	Send(p []byte) (int, error)

	// Recv reads bytes into p.
	Recv(p []byte) (int, error)

	// Close closes the socket.
	Close() error
}

// SocketFactory opens a [Socket] suitable for connecting to addr.
type SocketFactory func(addr netip.AddrPort) (Socket, error)
