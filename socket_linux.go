//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"errors"
	"net/netip"
	"os"

	"golang.org/x/sys/unix"
)

// NewSocket opens a non-blocking TCP [Socket] for the family of addr.
func NewSocket(addr netip.AddrPort) (Socket, error) {
	family := unix.AF_INET6
	if addr.Addr().Unmap().Is4() {
		family = unix.AF_INET
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	return &sysSocket{fd: fd, family: family}, nil
}

type sysSocket struct {
	fd     int
	family int
}

var _ Socket = &sysSocket{}

// Fd implements [Socket].
func (s *sysSocket) Fd() int {
	return s.fd
}

// Connect implements [Socket].
func (s *sysSocket) Connect(addr netip.AddrPort) error {
	var sa unix.Sockaddr
	if s.family == unix.AF_INET {
		sa = &unix.SockaddrInet4{Port: int(addr.Port()), Addr: addr.Addr().Unmap().As4()}
	} else {
		sa = &unix.SockaddrInet6{Port: int(addr.Port()), Addr: addr.Addr().As16()}
	}
	switch err := unix.Connect(s.fd, sa); {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EINTR):
		return ErrInProgress
	default:
		return os.NewSyscallError("connect", err)
	}
}

// Send implements [Socket].
func (s *sysSocket) Send(p []byte) (int, error) {
	count, err := unix.SendmsgN(s.fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
	return count, mapIOError("sendmsg", err)
}

// Recv implements [Socket].
func (s *sysSocket) Recv(p []byte) (int, error) {
	count, _, err := unix.Recvfrom(s.fd, p, unix.MSG_DONTWAIT)
	if count < 0 {
		count = 0
	}
	return count, mapIOError("recvfrom", err)
}

// Close implements [Socket].
func (s *sysSocket) Close() error {
	return os.NewSyscallError("close", unix.Close(s.fd))
}

func mapIOError(syscall string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return ErrWouldBlock
	default:
		return os.NewSyscallError(syscall, err)
	}
}
