// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import "time"

// Interest is a set of readiness conditions.
type Interest uint8

const (
	// InterestRead is readiness for reading.
	InterestRead Interest = 1 << iota

	// InterestWrite is readiness for writing.
	InterestWrite

	// InterestTimeout is delivered to a [Handler] when the registration
	// deadline expires. It cannot be requested.
	InterestTimeout

	// InterestClosed is delivered to the [Handler] of every registration
	// still present when the reactor closes. It cannot be requested.
	InterestClosed
)

// Handler processes the events that fired for a registration.
type Handler func(events Interest)

// Reactor is the readiness notification substrate requests run on.
//
// Registrations are one-shot: once a registration fires (readiness or
// deadline) it stays disarmed until [Reactor.Rearm]. A zero deadline
// means no deadline.
//
// Handlers and posted functions run on the goroutine calling
// [Reactor.RunOnce], one at a time. All other methods are safe to call
// from any goroutine.
type Reactor interface {
	// Register starts watching fd for the given interest.
	Register(fd int, interest Interest, deadline time.Time, handler Handler) error

	// Rearm re-enables a registration that has fired.
	Rearm(fd int, interest Interest, deadline time.Time) error

	// Deregister stops watching fd.
	Deregister(fd int) error

	// Post schedules fn to run on the dispatching goroutine.
	Post(fn func()) error

	// RunOnce blocks until at least one handler or posted function has
	// run, or until Wakeup is called. It returns [ErrClosed] after Close.
	RunOnce() error

	// Wakeup makes a blocked RunOnce return.
	Wakeup()

	// Close runs the pending posted functions, delivers [InterestClosed]
	// to every registration and then releases the reactor resources. The
	// handlers run on the goroutine calling Close and may Deregister.
	Close() error
}
