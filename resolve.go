// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"
)

// RequestInfoByHost queries every address host resolves to.
//
// When host is an address literal this is equivalent to [*Client.RequestInfo].
// Otherwise host is resolved with [Config.Resolver] and cb is invoked
// once per resolved address. If resolution fails, or returns no
// addresses, cb is invoked once with an error wrapping [ErrResolve] or
// [ErrNoAddresses].
//
// The timeout covers resolution and all the per-address requests.
//
// A non-nil return means cb will never be invoked.
func (c *Client) RequestInfoByHost(host string, port uint16, names string, timeout time.Duration, cb Callback) error {
	c.stats.hostRequests.Add(1)
	deadline := c.deadline(timeout)
	if addr, ok := c.resolver.LookupImmediate(host, port); ok {
		return c.startRequest(addr, names, deadline, cb)
	}

	res := &resolution{
		cb:       cb,
		client:   c,
		deadline: deadline,
		host:     host,
		names:    names,
		port:     port,
		spanID:   NewSpanID(),
		t0:       c.timeNow(),
	}
	ctx, cancel := c.ctx, context.CancelFunc(func() {})
	if !deadline.IsZero() {
		ctx, cancel = context.WithDeadline(ctx, deadline)
	}
	res.cancel = cancel

	res.logLookupStart()
	c.transactions.Add(1)
	if err := c.resolver.LookupAsync(ctx, host, port, res.done); err != nil {
		cancel()
		c.transactions.Add(-1)
		err = fmt.Errorf("%w %q: %w", ErrResolve, host, err)
		res.logLookupDone(nil, err)
		return err
	}
	return nil
}

// resolution tracks a hostname lookup until it fans out.
type resolution struct {
	cancel   context.CancelFunc
	cb       Callback
	client   *Client
	deadline time.Time
	host     string
	names    string
	port     uint16
	spanID   string
	t0       time.Time
}

// done is the lookup completion, which may run on any goroutine.
func (res *resolution) done(addrs []netip.AddrPort, err error) {
	res.cancel()
	if perr := res.client.reactor.Post(func() { res.complete(addrs, err) }); perr != nil {
		res.complete(nil, perr)
	}
}

// complete runs the fan-out, normally on the reactor goroutine.
func (res *resolution) complete(addrs []netip.AddrPort, err error) {
	c := res.client
	defer c.transactions.Add(-1)

	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrTimeout
	}
	if err != nil {
		err = fmt.Errorf("%w %q: %w", ErrResolve, res.host, err)
	} else if len(addrs) <= 0 {
		err = fmt.Errorf("%w: %q", ErrNoAddresses, res.host)
	}
	res.logLookupDone(addrs, err)
	if err != nil {
		c.stats.record(err)
		res.cb(nil, err)
		return
	}

	for _, addr := range addrs {
		if err := c.startRequest(addr, res.names, res.deadline, res.cb); err != nil {
			c.stats.record(err)
			res.cb(nil, err)
		}
	}
}

func (res *resolution) logLookupStart() {
	res.client.logger.Info(
		"lookupStart",
		slog.Time("deadline", res.deadline),
		slog.String("host", res.host),
		slog.String("spanID", res.spanID),
		slog.Time("t", res.t0),
	)
}

func (res *resolution) logLookupDone(addrs []netip.AddrPort, err error) {
	res.client.logger.Info(
		"lookupDone",
		slog.Any("addrs", addrs),
		slog.Time("deadline", res.deadline),
		slog.Any("err", err),
		slog.String("errClass", res.client.errClassifier.Classify(err)),
		slog.String("host", res.host),
		slog.String("spanID", res.spanID),
		slog.Time("t0", res.t0),
		slog.Time("t", res.client.timeNow()),
	)
}
