// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"errors"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Client issues info requests over a [Reactor].
//
// Request methods are safe to call from any goroutine. Callbacks run on
// the goroutine calling [*Client.Run] or [*Client.Shutdown].
//
// Construct using [NewClient].
type Client struct {
	errClassifier         ErrClassifier
	logger                SLogger
	maxResponseSize       uint64
	newSocket             SocketFactory
	reactor               Reactor
	resolver              Resolver
	slowDispatchThreshold time.Duration
	timeNow               func() time.Time

	// ctx bounds asynchronous lookups and is canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// transactions counts the requests and lookups in flight.
	transactions atomic.Int64

	stats statsCounters
}

// NewClient creates a new [*Client] and its [Reactor].
//
// The cfg argument contains the common configuration for evinfo operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewClient(cfg *Config, logger SLogger) (*Client, error) {
	reactor, err := cfg.NewReactor()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		errClassifier:         cfg.ErrClassifier,
		logger:                logger,
		maxResponseSize:       min(cfg.MaxResponseSize, MaxResponseSizeLimit),
		newSocket:             cfg.NewSocket,
		reactor:               reactor,
		resolver:              cfg.Resolver,
		slowDispatchThreshold: cfg.SlowDispatchThreshold,
		timeNow:               cfg.TimeNow,
		ctx:                   ctx,
		cancel:                cancel,
	}
	return c, nil
}

// RequestInfo queries the server at addr for the given names.
//
// The names argument lists names separated by ';', ':' or ','. An empty
// string asks for the server default set of values.
//
// A positive timeout bounds the whole request. Zero means no timeout.
//
// A nil return means cb will be invoked exactly once. Otherwise the
// returned error explains why the request could not start and cb is
// never invoked.
func (c *Client) RequestInfo(addr netip.AddrPort, names string, timeout time.Duration, cb Callback) error {
	return c.startRequest(addr, names, c.deadline(timeout), cb)
}

func (c *Client) deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return c.timeNow().Add(timeout)
}

func (c *Client) startRequest(addr netip.AddrPort, names string, deadline time.Time, cb Callback) error {
	c.stats.hostRequests.Add(1)
	wbuf := bytebufferpool.Get()
	frame, err := AppendRequest(wbuf.B[:0], names)
	if err != nil {
		bytebufferpool.Put(wbuf)
		return err
	}
	wbuf.B = frame
	r := &request{
		addr:     addr,
		cb:       cb,
		client:   c,
		deadline: deadline,
		spanID:   NewSpanID(),
		state:    stateConnecting,
		t0:       c.timeNow(),
		wbuf:     wbuf,
	}
	r.logStart()

	sock, err := c.newSocket(addr)
	if err != nil {
		err = &RequestError{Addr: addr, Op: "socket", Err: err}
		r.logDone(err)
		bytebufferpool.Put(wbuf)
		return err
	}
	r.sock = sock

	r.logConnectStart()
	if err := sock.Connect(addr); err != nil && !errors.Is(err, ErrInProgress) {
		r.logConnectDone(err)
		sock.Close()
		err = &RequestError{Addr: addr, Op: "connect", Err: err}
		r.logDone(err)
		bytebufferpool.Put(wbuf)
		return err
	}

	// Count before registering: the handler may run on another
	// goroutine as soon as Register returns.
	c.transactions.Add(1)
	if err := c.reactor.Register(sock.Fd(), InterestWrite, deadline, r.handle); err != nil {
		c.transactions.Add(-1)
		sock.Close()
		err = &RequestError{Addr: addr, Op: "register", Err: err}
		r.logDone(err)
		bytebufferpool.Put(wbuf)
		return err
	}
	return nil
}

// release tears down a finished request.
func (c *Client) release(r *request, err error) {
	_ = c.reactor.Deregister(r.sock.Fd())
	_ = r.sock.Close()
	bytebufferpool.Put(r.wbuf)
	r.wbuf = nil
	c.stats.record(err)
	c.transactions.Add(-1)
}

// Run dispatches events until ctx is done or the reactor fails.
//
// The return value is ctx.Err() when ctx is done.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.reactor.Wakeup)
	defer stop()
	for ctx.Err() == nil {
		if err := c.reactor.RunOnce(); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Shutdown dispatches events until no request or lookup is in flight.
//
// Shutdown does not cancel anything: requests without a timeout to a
// server that never answers keep it waiting.
func (c *Client) Shutdown() error {
	for c.transactions.Load() > 0 {
		if err := c.reactor.RunOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Close cancels pending lookups and closes the [Reactor].
//
// Every request still in flight fails with [ErrClosed] and its callback
// runs on the goroutine calling Close before Close returns. Lookups still
// running invoke their callback later, with an error wrapping [ErrClosed].
//
// Close must not be called from a [Callback].
func (c *Client) Close() error {
	c.cancel()
	return c.reactor.Close()
}

// Transactions returns the number of requests and lookups in flight.
func (c *Client) Transactions() int64 {
	return c.transactions.Load()
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}
