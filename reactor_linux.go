//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"encoding/binary"
	"errors"
	"maps"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollReactor is a [Reactor] built on epoll one-shot registrations.
//
// Posted functions and [Reactor.Wakeup] use an eventfd that is always
// registered for reading.
type epollReactor struct {
	// loopMu serializes RunOnce and the final part of Close.
	loopMu sync.Mutex
	events []unix.EpollEvent

	// mu protects all the fields below.
	mu        sync.Mutex
	closed    bool
	fdsClosed bool
	epfd      int
	wakefd    int
	regs      map[int]*epollRegistration
	posted    []func()
	timeNow   func() time.Time
}

type epollRegistration struct {
	handler  Handler
	interest Interest
	deadline time.Time
	armed    bool
}

var errAlreadyRegistered = errors.New("evinfo: fd already registered")

// NewEpollReactor returns a new epoll based [Reactor].
func NewEpollReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}
	r := &epollReactor{
		events:  make([]unix.EpollEvent, 128),
		epfd:    epfd,
		wakefd:  wakefd,
		regs:    make(map[int]*epollRegistration),
		timeNow: time.Now,
	}
	return r, nil
}

func epollEvents(interest Interest) uint32 {
	var events uint32 = unix.EPOLLONESHOT
	if interest&InterestRead != 0 {
		events |= unix.EPOLLIN
	}
	if interest&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// must be called with mu held
func (r *epollReactor) ctl(op, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl", unix.EpollCtl(r.epfd, op, fd, &ev))
}

// Register implements [Reactor].
func (r *epollReactor) Register(fd int, interest Interest, deadline time.Time, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, found := r.regs[fd]; found {
		return errAlreadyRegistered
	}
	if err := r.ctl(unix.EPOLL_CTL_ADD, fd, epollEvents(interest)); err != nil {
		return err
	}
	r.regs[fd] = &epollRegistration{
		handler:  handler,
		interest: interest,
		deadline: deadline,
		armed:    true,
	}
	if !deadline.IsZero() {
		// A concurrent epoll_wait timeout does not know this deadline yet.
		r.wakeLocked()
	}
	return nil
}

// Rearm implements [Reactor].
func (r *epollReactor) Rearm(fd int, interest Interest, deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	reg, found := r.regs[fd]
	if !found {
		return os.NewSyscallError("epoll_ctl", unix.ENOENT)
	}
	if err := r.ctl(unix.EPOLL_CTL_MOD, fd, epollEvents(interest)); err != nil {
		return err
	}
	reg.interest = interest
	reg.deadline = deadline
	reg.armed = true
	return nil
}

// Deregister implements [Reactor].
func (r *epollReactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.regs[fd]; !found || r.fdsClosed {
		return nil
	}
	delete(r.regs, fd)
	return r.ctl(unix.EPOLL_CTL_DEL, fd, 0)
}

// Post implements [Reactor].
func (r *epollReactor) Post(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.posted = append(r.posted, fn)
	r.wakeLocked()
	return nil
}

// Wakeup implements [Reactor].
func (r *epollReactor) Wakeup() {
	r.mu.Lock()
	r.wakeLocked()
	r.mu.Unlock()
}

// must be called with mu held
func (r *epollReactor) wakeLocked() {
	if r.fdsClosed {
		return
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(r.wakefd, one[:]) // EAGAIN means a wakeup is already pending
}

// RunOnce implements [Reactor].
func (r *epollReactor) RunOnce() error {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	for {
		msec, err := r.waitTimeout()
		if err != nil {
			return err
		}
		count, err := unix.EpollWait(r.epfd, r.events, msec)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return os.NewSyscallError("epoll_wait", err)
		}
		var woken bool
		var dispatched int
		for _, ev := range r.events[:count] {
			if int(ev.Fd) == r.wakefd {
				r.drainWakeup()
				woken = true
				continue
			}
			dispatched += r.dispatch(int(ev.Fd), ev.Events)
		}
		dispatched += r.expire()
		dispatched += r.runPosted()
		if dispatched > 0 || woken {
			return nil
		}
	}
}

// waitTimeout returns the epoll_wait timeout in milliseconds.
func (r *epollReactor) waitTimeout() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	if len(r.posted) > 0 {
		return 0, nil
	}
	var earliest time.Time
	for _, reg := range r.regs {
		if !reg.armed || reg.deadline.IsZero() {
			continue
		}
		if earliest.IsZero() || reg.deadline.Before(earliest) {
			earliest = reg.deadline
		}
	}
	if earliest.IsZero() {
		return -1, nil
	}
	delta := earliest.Sub(r.timeNow())
	if delta <= 0 {
		return 0, nil
	}
	msec := (delta + time.Millisecond - 1) / time.Millisecond
	return int(min(msec, math.MaxInt32)), nil
}

func (r *epollReactor) drainWakeup() {
	var buf [8]byte
	_, _ = unix.Read(r.wakefd, buf[:])
}

func (r *epollReactor) dispatch(fd int, events uint32) int {
	r.mu.Lock()
	reg, found := r.regs[fd]
	if !found || !reg.armed {
		r.mu.Unlock()
		return 0
	}
	reg.armed = false
	fired := readyInterest(events, reg.interest)
	handler := reg.handler
	r.mu.Unlock()

	handler(fired)
	return 1
}

// readyInterest maps epoll events onto the registered interest.
//
// Errors and hangups are reported as the whole interest so the handler
// observes them through its next I/O operation.
func readyInterest(events uint32, interest Interest) Interest {
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		return interest
	}
	var fired Interest
	if events&unix.EPOLLIN != 0 {
		fired |= InterestRead
	}
	if events&unix.EPOLLOUT != 0 {
		fired |= InterestWrite
	}
	if fired &= interest; fired == 0 {
		return interest
	}
	return fired
}

func (r *epollReactor) expire() int {
	now := r.timeNow()
	r.mu.Lock()
	var due []Handler
	for fd, reg := range r.regs {
		if !reg.armed || reg.deadline.IsZero() || now.Before(reg.deadline) {
			continue
		}
		reg.armed = false
		_ = r.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLONESHOT)
		due = append(due, reg.handler)
	}
	r.mu.Unlock()

	for _, handler := range due {
		handler(InterestTimeout)
	}
	return len(due)
}

func (r *epollReactor) runPosted() int {
	r.mu.Lock()
	posted := r.posted
	r.posted = nil
	r.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
	return len(posted)
}

// Close implements [Reactor].
//
// Close must not be called from a handler or posted function.
func (r *epollReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.wakeLocked()
	r.mu.Unlock()

	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	// Post and Register now fail, so these drain for good.
	r.runPosted()
	r.abort()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fdsClosed = true
	r.regs = nil
	r.posted = nil
	return errors.Join(
		os.NewSyscallError("close", unix.Close(r.wakefd)),
		os.NewSyscallError("close", unix.Close(r.epfd)),
	)
}

// abort delivers InterestClosed to every registration, in fd order.
func (r *epollReactor) abort() {
	r.mu.Lock()
	fds := slices.Sorted(maps.Keys(r.regs))
	handlers := make([]Handler, 0, len(fds))
	for _, fd := range fds {
		reg := r.regs[fd]
		reg.armed = false
		handlers = append(handlers, reg.handler)
	}
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(InterestClosed)
	}
}
