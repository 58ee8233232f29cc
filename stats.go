// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import "sync/atomic"

// Stats is a snapshot of the [*Client] counters.
type Stats struct {
	// HostRequests counts request entries: one per [*Client.RequestInfo]
	// call, one per [*Client.RequestInfoByHost] call and one per address
	// that call requests. Entries failing synchronously are counted too.
	HostRequests uint64

	// Events counts the reactor notifications handled by requests.
	Events uint64

	// Completed counts the callbacks invoked with success.
	Completed uint64

	// Failed counts the callbacks invoked with an error.
	Failed uint64
}

type statsCounters struct {
	hostRequests atomic.Uint64
	events       atomic.Uint64
	completed    atomic.Uint64
	failed       atomic.Uint64
}

func (s *statsCounters) record(err error) {
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.completed.Add(1)
}

func (s *statsCounters) snapshot() Stats {
	return Stats{
		HostRequests: s.hostRequests.Load(),
		Events:       s.events.Load(),
		Completed:    s.completed.Load(),
		Failed:       s.failed.Load(),
	}
}
