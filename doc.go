// SPDX-License-Identifier: GPL-3.0-or-later

// Package evinfo implements an asynchronous client for the info protocol.
//
// # Protocol
//
// An info request is a frame consisting of an 8-byte header followed by
// a body. The header is a big endian 64-bit word holding the protocol
// version (8 bits), the message type (8 bits) and the body size (48 bits).
// The request body lists names separated by newlines; an empty body asks
// for the server default set of values. The response body has one
// "name\tvalue" line per name, see [ParseSingle] and [ParseResponse].
//
// # Core Abstraction
//
// Each request runs a non-blocking state machine over a [Socket]:
//
//	connecting -> writing -> reading header -> reading body -> done
//
// driven by readiness notifications from a [Reactor]. Registrations are
// one-shot and re-armed after every notification that does not end the
// request. On Linux, [NewEpollReactor] and [NewSocket] provide the default
// implementations on top of epoll and raw non-blocking sockets.
//
// When [*Client.RequestInfo] or [*Client.RequestInfoByHost] return nil, the
// [Callback] is invoked exactly once per address, either with a [*Response]
// or with an error. All request resources are released right after the
// callback returns.
//
// # Running the Client
//
// Callbacks run on the goroutine pumping the reactor, which is either
// [*Client.Run], for the normal event loop, or [*Client.Shutdown], which
// returns once no request or lookup is in flight. Call [*Client.Close] at
// the end to release the reactor. Requests still in flight at that point
// fail with [ErrClosed], and their callbacks run inside Close.
//
// # Name Resolution
//
// [*Client.RequestInfoByHost] resolves hostnames with [Config.Resolver] and
// queries every address it finds. [*SystemResolver] uses the system
// resolver; [*DNSResolver] queries a given DNS server directly over UDP or TCP.
// Lookup completions are marshalled onto the reactor goroutine.
//
// # Observability
//
// All operations support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled.
//
// Span events (*Start/*Done pairs) record request, connect, lookup and DNS
// exchange lifecycles. Completion events include t0, t, err and errClass,
// where errClass comes from [Config.ErrClassifier]. Per-I/O events (sendDone,
// recvDone) use [slog.LevelDebug]. A slowDispatch warning is emitted when a
// notification takes longer than [Config.SlowDispatchThreshold]. Every
// event emitted for a request carries the request spanID (see [NewSpanID]).
//
// # Timeouts
//
// A positive timeout becomes an absolute deadline enforced by the [Reactor].
// When it expires the request fails with an error wrapping [ErrTimeout].
// For hostnames, the same deadline covers resolution and all the
// per-address requests.
package evinfo
