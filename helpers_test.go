// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var (
		mu      sync.Mutex
		records []slog.Record
	)
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordMessages returns the messages of the captured records, in order.
func recordMessages(records []slog.Record) []string {
	var msgs []string
	for _, rec := range records {
		msgs = append(msgs, rec.Message)
	}
	return msgs
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc,
// RemoteAddrFunc and CloseFunc set.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		CloseFunc:      func() error { return nil },
		LocalAddrFunc:  func() net.Addr { return &net.UDPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.UDPAddr{} },
	}
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current time and then advances it by step.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeReactor is a [Reactor] that fires every armed registration on
// each RunOnce, delivering a timeout when the deadline has passed.
type fakeReactor struct {
	mu           sync.Mutex
	clock        *fakeClock
	closed       bool
	deregistered []int
	posted       []func()
	regs         map[int]*fakeRegistration
	registerErr  error
	rearmErr     error
	runErr       error
}

type fakeRegistration struct {
	handler  Handler
	interest Interest
	deadline time.Time
	armed    bool
}

var errNothingToDo = errors.New("fakeReactor: nothing to do")

func newFakeReactor(clock *fakeClock) *fakeReactor {
	return &fakeReactor{clock: clock, regs: make(map[int]*fakeRegistration)}
}

var _ Reactor = &fakeReactor{}

func (r *fakeReactor) Register(fd int, interest Interest, deadline time.Time, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.registerErr != nil {
		return r.registerErr
	}
	r.regs[fd] = &fakeRegistration{handler: handler, interest: interest, deadline: deadline, armed: true}
	return nil
}

func (r *fakeReactor) Rearm(fd int, interest Interest, deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rearmErr != nil {
		return r.rearmErr
	}
	reg := r.regs[fd]
	reg.interest, reg.deadline, reg.armed = interest, deadline, true
	return nil
}

func (r *fakeReactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.regs, fd)
	r.deregistered = append(r.deregistered, fd)
	return nil
}

func (r *fakeReactor) Post(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.posted = append(r.posted, fn)
	return nil
}

func (r *fakeReactor) RunOnce() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.runErr != nil {
		r.mu.Unlock()
		return r.runErr
	}
	posted := r.posted
	r.posted = nil
	var fds []int
	for fd, reg := range r.regs {
		if reg.armed {
			fds = append(fds, fd)
		}
	}
	r.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
	slices.Sort(fds)
	for _, fd := range fds {
		r.fire(fd)
	}
	if len(posted) <= 0 && len(fds) <= 0 {
		return errNothingToDo
	}
	return nil
}

// fire delivers the armed interest of fd, or a timeout.
func (r *fakeReactor) fire(fd int) {
	r.mu.Lock()
	reg, found := r.regs[fd]
	if !found || !reg.armed {
		r.mu.Unlock()
		return
	}
	reg.armed = false
	events := reg.interest
	if !reg.deadline.IsZero() && !r.clock.Now().Before(reg.deadline) {
		events = InterestTimeout
	}
	handler := reg.handler
	r.mu.Unlock()
	handler(events)
}

func (r *fakeReactor) Wakeup() {}

// Close runs the posted functions and then delivers [InterestClosed]
// to every registration, in fd order.
func (r *fakeReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	posted := r.posted
	r.posted = nil
	r.mu.Unlock()

	for _, fn := range posted {
		fn()
	}

	r.mu.Lock()
	fds := slices.Sorted(maps.Keys(r.regs))
	var handlers []Handler
	for _, fd := range fds {
		r.regs[fd].armed = false
		handlers = append(handlers, r.regs[fd].handler)
	}
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(InterestClosed)
	}
	return nil
}

func (r *fakeReactor) registration(fd int) (fakeRegistration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, found := r.regs[fd]
	if !found {
		return fakeRegistration{}, false
	}
	return *reg, true
}

// fakeSocket is a [Socket] with scripted behavior.
//
// The sendErrs and recvErrs slices are consumed one entry per call: a
// non-nil entry is returned as the error, a nil entry lets the call
// proceed normally. Once consumed, calls proceed normally.
type fakeSocket struct {
	fd         int
	connectErr error
	sendChunk  int
	sendErrs   []error
	sendZero   bool
	sent       []byte
	recvChunk  int
	recvErrs   []error
	input      []byte
	closeCount int
}

var _ Socket = &fakeSocket{}

func (s *fakeSocket) Fd() int {
	return s.fd
}

func (s *fakeSocket) Connect(addr netip.AddrPort) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	return ErrInProgress
}

func (s *fakeSocket) Send(p []byte) (int, error) {
	if len(s.sendErrs) > 0 {
		err := s.sendErrs[0]
		s.sendErrs = s.sendErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if s.sendZero {
		return 0, nil
	}
	count := len(p)
	if s.sendChunk > 0 {
		count = min(count, s.sendChunk)
	}
	s.sent = append(s.sent, p[:count]...)
	return count, nil
}

func (s *fakeSocket) Recv(p []byte) (int, error) {
	if len(s.recvErrs) > 0 {
		err := s.recvErrs[0]
		s.recvErrs = s.recvErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	count := min(len(p), len(s.input))
	if s.recvChunk > 0 {
		count = min(count, s.recvChunk)
	}
	copy(p, s.input[:count])
	s.input = s.input[count:]
	return count, nil
}

func (s *fakeSocket) Close() error {
	s.closeCount++
	return nil
}

// newResponseFrame returns a response frame carrying body.
func newResponseFrame(body string) []byte {
	frame := AppendHeader(nil, Header{Version: 1, Type: ProtoTypeInfo, Size: uint64(len(body))})
	return append(frame, body...)
}

// testEnv bundles a [*Client] wired to fakes.
type testEnv struct {
	client  *Client
	clock   *fakeClock
	reactor *fakeReactor
	records *[]slog.Record
	sockets map[netip.AddrPort]*fakeSocket
}

// newTestEnv returns a [*testEnv] whose sockets are looked up by address.
func newTestEnv(cfg *Config, sockets map[netip.AddrPort]*fakeSocket) *testEnv {
	clock := newFakeClock()
	reactor := newFakeReactor(clock)
	logger, records := newCapturingLogger()
	cfg.NewReactor = func() (Reactor, error) { return reactor, nil }
	cfg.NewSocket = func(addr netip.AddrPort) (Socket, error) {
		sock, found := sockets[addr]
		if !found {
			return nil, errors.New("no socket for address")
		}
		return sock, nil
	}
	cfg.SlowDispatchThreshold = 0
	cfg.TimeNow = clock.Now
	client, err := NewClient(cfg, logger)
	if err != nil {
		panic(err)
	}
	return &testEnv{
		client:  client,
		clock:   clock,
		reactor: reactor,
		records: records,
		sockets: sockets,
	}
}

// callbackResult is a captured [Callback] invocation.
type callbackResult struct {
	resp *Response
	err  error
}

// newRecordingCallback returns a [Callback] appending to the returned slice.
func newRecordingCallback() (Callback, *[]callbackResult) {
	var results []callbackResult
	cb := func(resp *Response, err error) {
		results = append(results, callbackResult{resp: resp, err: err})
	}
	return cb, &results
}

// fakeResolver is a [Resolver] whose LookupAsync completes synchronously
// with addrs and err, or stores the completion when deferDone is set.
type fakeResolver struct {
	addrs     []netip.AddrPort
	asyncErr  error
	deferDone bool
	done      func([]netip.AddrPort, error)
	err       error
}

var _ Resolver = &fakeResolver{}

func (r *fakeResolver) LookupImmediate(host string, port uint16) (netip.AddrPort, bool) {
	return lookupLiteral(host, port)
}

func (r *fakeResolver) LookupAsync(
	ctx context.Context, host string, port uint16, done func([]netip.AddrPort, error)) error {
	if r.asyncErr != nil {
		return r.asyncErr
	}
	if r.deferDone {
		r.done = done
		return nil
	}
	done(r.addrs, r.err)
	return nil
}
