// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverstream"
	"github.com/bassosimone/minest"
	"github.com/bassosimone/safeconn"
	"github.com/miekg/dns"
)

// Dialer abstracts the [*net.Dialer] behavior.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDNSOverUDPResolver returns a [*DNSResolver] using DNS-over-UDP.
//
// The cfg argument contains the common configuration for evinfo operations.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// The server argument is the address of the DNS server to query.
func NewDNSOverUDPResolver(cfg *Config, logger SLogger, server netip.AddrPort) *DNSResolver {
	return newDNSResolver(cfg, logger, "udp", server)
}

// NewDNSOverTCPResolver is like [NewDNSOverUDPResolver] but uses DNS-over-TCP.
func NewDNSOverTCPResolver(cfg *Config, logger SLogger, server netip.AddrPort) *DNSResolver {
	return newDNSResolver(cfg, logger, "tcp", server)
}

func newDNSResolver(cfg *Config, logger SLogger, protocol string, server netip.AddrPort) *DNSResolver {
	return &DNSResolver{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Protocol:      protocol,
		Server:        server,
		TimeNow:       cfg.TimeNow,
	}
}

// DNSResolver is a [Resolver] querying A records from a DNS server,
// bypassing the system resolver.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with lookups.
type DNSResolver struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by the constructors from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by the constructors from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by the constructors to the user-provided logger.
	Logger SLogger

	// Protocol is either "udp" or "tcp".
	//
	// Set by the constructors according to the constructor name.
	Protocol string

	// Server is the DNS server address.
	//
	// Set by the constructors to the user-provided value.
	Server netip.AddrPort

	// TimeNow is the function to get the current time.
	//
	// Set by the constructors from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Resolver = &DNSResolver{}

// LookupImmediate implements [Resolver].
func (r *DNSResolver) LookupImmediate(host string, port uint16) (netip.AddrPort, bool) {
	return lookupLiteral(host, port)
}

// LookupAsync implements [Resolver].
func (r *DNSResolver) LookupAsync(
	ctx context.Context, host string, port uint16, done func([]netip.AddrPort, error)) error {
	go func() {
		addrs, err := r.Lookup(ctx, host)
		if err != nil {
			done(nil, err)
			return
		}
		done(addrPortsFrom(addrs, port), nil)
	}()
	return nil
}

// Lookup returns the IPv4 addresses of host.
//
// The connection to the server is closed when ctx is done.
func (r *DNSResolver) Lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	conn, err := r.Dialer.DialContext(ctx, r.Protocol, r.Server.String())
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		conn.Close()
	}()

	t0 := r.TimeNow()
	deadline, _ := ctx.Deadline()
	lc := &dnsLookupLog{
		ErrClassifier:  r.ErrClassifier,
		Host:           host,
		LocalAddr:      safeconn.LocalAddr(conn),
		Logger:         r.Logger,
		Protocol:       safeconn.Network(conn),
		RemoteAddr:     safeconn.RemoteAddr(conn),
		ServerProtocol: r.Protocol,
		SpanID:         NewSpanID(),
		TimeNow:        r.TimeNow,
	}

	lc.logStart(t0, deadline)
	addrs, err := r.exchange(ctx, conn, lc, t0)
	lc.logDone(t0, deadline, addrs, err)
	return addrs, err
}

// exchange sends the A query over conn and collects the addresses.
func (r *DNSResolver) exchange(ctx context.Context, conn net.Conn, lc *dnsLookupLog, t0 time.Time) ([]netip.Addr, error) {
	var (
		rawQuery []byte
		resp     *dnscodec.Response
		err      error
	)
	query := dnscodec.NewQuery(lc.Host, dns.TypeA)
	switch r.Protocol {
	case "tcp":
		txp := dnsoverstream.NewTransport(dnsoverstream.NewStreamOpenerDialerTCP(r.Dialer), r.Server)
		txp.ObserveRawQuery = lc.makeQueryObserver(&rawQuery)
		txp.ObserveRawResponse = lc.makeResponseObserver(t0, &rawQuery)
		resp, err = txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTCPStreamOpener(conn), query)
	default:
		txp := minest.NewDNSOverUDPTransport(r.Dialer, r.Server)
		txp.ObserveRawQuery = lc.makeQueryObserver(&rawQuery)
		txp.ObserveRawResponse = lc.makeResponseObserver(t0, &rawQuery)
		resp, err = txp.ExchangeWithConn(ctx, conn, query)
	}
	if err != nil {
		return nil, err
	}

	records, err := resp.RecordsA()
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(records))
	for _, record := range records {
		if addr, err := netip.ParseAddr(record); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// dnsLookupLog emits the structured events of a [*DNSResolver] lookup.
//
// Every event carries the same SpanID so that the query, the response
// and the outcome of a lookup can be correlated.
type dnsLookupLog struct {
	// ErrClassifier classifies the lookup error.
	ErrClassifier ErrClassifier

	// Host is the name being resolved.
	Host string

	// LocalAddr is the local address of the connection.
	LocalAddr string

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Protocol is the network of the connection as reported by it.
	Protocol string

	// RemoteAddr is the remote address of the connection.
	RemoteAddr string

	// ServerProtocol is the [DNSResolver.Protocol] in use.
	ServerProtocol string

	// SpanID identifies the lookup.
	SpanID string

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

func (lc *dnsLookupLog) logStart(t0 time.Time, deadline time.Time) {
	lc.Logger.Info(
		"dnsExchangeStart",
		slog.Time("deadline", deadline),
		slog.String("dnsQueryType", dns.TypeToString[dns.TypeA]),
		slog.String("host", lc.Host),
		slog.String("localAddr", lc.LocalAddr),
		slog.String("protocol", lc.Protocol),
		slog.String("remoteAddr", lc.RemoteAddr),
		slog.String("serverProtocol", lc.ServerProtocol),
		slog.String("spanID", lc.SpanID),
		slog.Time("t", t0),
	)
}

func (lc *dnsLookupLog) logDone(t0 time.Time, deadline time.Time, addrs []netip.Addr, err error) {
	lc.Logger.Info(
		"dnsExchangeDone",
		slog.Any("addrs", addrs),
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", lc.ErrClassifier.Classify(err)),
		slog.String("host", lc.Host),
		slog.String("localAddr", lc.LocalAddr),
		slog.String("protocol", lc.Protocol),
		slog.String("remoteAddr", lc.RemoteAddr),
		slog.String("serverProtocol", lc.ServerProtocol),
		slog.String("spanID", lc.SpanID),
		slog.Time("t0", t0),
		slog.Time("t", lc.TimeNow()),
	)
}

// makeQueryObserver stores the raw query into rqr for the response event.
func (lc *dnsLookupLog) makeQueryObserver(rqr *[]byte) func([]byte) {
	return func(rawQuery []byte) {
		lc.Logger.Debug(
			"dnsQuery",
			slog.Any("dnsRawQuery", rawQuery),
			slog.String("host", lc.Host),
			slog.String("serverProtocol", lc.ServerProtocol),
			slog.String("spanID", lc.SpanID),
			slog.Time("t", lc.TimeNow()),
		)
		*rqr = rawQuery
	}
}

func (lc *dnsLookupLog) makeResponseObserver(t0 time.Time, rqr *[]byte) func([]byte) {
	return func(rawResp []byte) {
		lc.Logger.Debug(
			"dnsResponse",
			slog.Any("dnsRawQuery", *rqr),
			slog.Any("dnsRawResponse", rawResp),
			slog.String("host", lc.Host),
			slog.String("serverProtocol", lc.ServerProtocol),
			slog.String("spanID", lc.SpanID),
			slog.Time("t0", t0),
			slog.Time("t", lc.TimeNow()),
		)
	}
}
