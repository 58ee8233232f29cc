// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/valyala/bytebufferpool"
)

// Response is the successful result of an info request.
type Response struct {
	// Addr is the address of the server that answered.
	Addr netip.AddrPort

	// Body is the response payload. The receiver owns it.
	Body []byte
}

// Callback receives the outcome of an info request.
//
// On success err is nil and resp is valid. On failure resp is nil and,
// for transport failures, err is a [*RequestError].
//
// Callbacks run on the goroutine pumping the [Reactor].
type Callback func(resp *Response, err error)

type requestState uint8

const (
	stateConnecting requestState = iota
	stateWriting
	stateReadingHeader
	stateReadingBody
	stateDone
)

// request is the state of a single info request to a single address.
type request struct {
	addr     netip.AddrPort
	cb       Callback
	client   *Client
	deadline time.Time
	sock     Socket
	spanID   string
	state    requestState
	t0       time.Time

	// wbuf holds the request frame and returns to the pool on release.
	wbuf *bytebufferpool.ByteBuffer
	woff int

	hbuf [HeaderSize]byte
	hoff int

	// body has one spare zero byte past blen.
	body []byte
	boff int
	blen int
}

// handle is the [Handler] driving the state machine.
func (r *request) handle(events Interest) {
	runtimex.Assert(r.state != stateDone)
	t0 := r.client.timeNow()
	r.client.stats.events.Add(1)
	defer r.checkSlowDispatch(t0)

	if events&InterestClosed != 0 {
		r.fail("close", ErrClosed)
		return
	}
	if events&InterestTimeout != 0 {
		r.fail("timeout", ErrTimeout)
		return
	}
	switch r.state {
	case stateConnecting, stateWriting:
		r.write()
	case stateReadingHeader, stateReadingBody:
		r.read()
	}
}

func (r *request) write() {
	for r.woff < len(r.wbuf.B) {
		count, err := r.sock.Send(r.wbuf.B[r.woff:])
		r.logIO("sendDone", count, err)
		if errors.Is(err, ErrWouldBlock) {
			r.rearm(InterestWrite)
			return
		}

		// The first send after a writable notification tells us
		// whether the connect succeeded.
		if r.state == stateConnecting {
			r.logConnectDone(err)
			if err != nil {
				r.fail("connect", err)
				return
			}
			r.state = stateWriting
		}

		switch {
		case err != nil:
			r.fail("send", err)
			return
		case count <= 0:
			r.fail("send", ErrNoProgress)
			return
		}
		r.woff += count
	}
	r.state = stateReadingHeader
	r.rearm(InterestRead)
}

func (r *request) read() {
	for {
		var buf []byte
		if r.state == stateReadingHeader {
			buf = r.hbuf[r.hoff:]
		} else {
			buf = r.body[r.boff:r.blen]
		}

		count, err := r.sock.Recv(buf)
		r.logIO("recvDone", count, err)
		switch {
		case errors.Is(err, ErrWouldBlock):
			r.rearm(InterestRead)
			return
		case err != nil:
			r.fail("recv", err)
			return
		case count <= 0:
			r.fail("recv", ErrRemoteClosed)
			return
		}

		if r.state == stateReadingBody {
			r.boff += count
			if r.boff >= r.blen {
				r.succeed()
				return
			}
			continue
		}

		r.hoff += count
		if r.hoff < HeaderSize {
			continue
		}
		if !r.startBody() {
			return
		}
		if r.blen == 0 {
			r.succeed()
			return
		}
	}
}

// startBody decodes the header and allocates the body buffer.
func (r *request) startBody() bool {
	hdr, err := DecodeHeader(r.hbuf[:])
	if err != nil {
		r.fail("decode", err)
		return false
	}
	if hdr.Size > r.client.maxResponseSize {
		r.fail("decode", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, hdr.Size))
		return false
	}
	runtimex.Assert(r.body == nil)
	r.blen = int(hdr.Size)
	r.body = make([]byte, r.blen+1)
	r.state = stateReadingBody
	return true
}

func (r *request) rearm(interest Interest) {
	if err := r.client.reactor.Rearm(r.sock.Fd(), interest, r.deadline); err != nil {
		r.fail("register", err)
	}
}

func (r *request) succeed() {
	r.finish(&Response{Addr: r.addr, Body: r.body[:r.blen]}, nil)
}

func (r *request) fail(op string, err error) {
	r.finish(nil, &RequestError{Addr: r.addr, Op: op, Err: err})
}

// finish invokes the callback and releases the request resources.
func (r *request) finish(resp *Response, err error) {
	runtimex.Assert(r.state != stateDone)
	r.state = stateDone
	r.logDone(err)
	r.cb(resp, err)
	r.client.release(r, err)
}

func (r *request) checkSlowDispatch(t0 time.Time) {
	threshold := r.client.slowDispatchThreshold
	if threshold <= 0 {
		return
	}
	t := r.client.timeNow()
	if elapsed := t.Sub(t0); elapsed > threshold {
		r.client.logger.Warn(
			"slowDispatch",
			slog.Duration("elapsed", elapsed),
			slog.String("remoteAddr", r.addr.String()),
			slog.String("spanID", r.spanID),
			slog.Time("t0", t0),
			slog.Time("t", t),
		)
	}
}

func (r *request) logStart() {
	r.client.logger.Info(
		"infoRequestStart",
		slog.Time("deadline", r.deadline),
		slog.String("protocol", "tcp"),
		slog.String("remoteAddr", r.addr.String()),
		slog.Int("requestSize", len(r.wbuf.B)),
		slog.String("spanID", r.spanID),
		slog.Time("t", r.t0),
	)
}

func (r *request) logDone(err error) {
	r.client.logger.Info(
		"infoRequestDone",
		slog.Time("deadline", r.deadline),
		slog.Any("err", err),
		slog.String("errClass", r.client.errClassifier.Classify(err)),
		slog.String("protocol", "tcp"),
		slog.String("remoteAddr", r.addr.String()),
		slog.Int("responseSize", r.blen),
		slog.String("spanID", r.spanID),
		slog.Time("t0", r.t0),
		slog.Time("t", r.client.timeNow()),
	)
}

func (r *request) logConnectStart() {
	r.client.logger.Info(
		"connectStart",
		slog.Time("deadline", r.deadline),
		slog.String("protocol", "tcp"),
		slog.String("remoteAddr", r.addr.String()),
		slog.String("spanID", r.spanID),
		slog.Time("t", r.t0),
	)
}

func (r *request) logConnectDone(err error) {
	r.client.logger.Info(
		"connectDone",
		slog.Time("deadline", r.deadline),
		slog.Any("err", err),
		slog.String("errClass", r.client.errClassifier.Classify(err)),
		slog.String("protocol", "tcp"),
		slog.String("remoteAddr", r.addr.String()),
		slog.String("spanID", r.spanID),
		slog.Time("t0", r.t0),
		slog.Time("t", r.client.timeNow()),
	)
}

func (r *request) logIO(msg string, count int, err error) {
	r.client.logger.Debug(
		msg,
		slog.Int("ioBytesCount", max(count, 0)),
		slog.Any("err", err),
		slog.String("errClass", r.client.errClassifier.Classify(err)),
		slog.String("protocol", "tcp"),
		slog.String("remoteAddr", r.addr.String()),
		slog.String("spanID", r.spanID),
		slog.Time("t", r.client.timeNow()),
	)
}
