// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"net"
	"time"
)

// DefaultMaxResponseSize is the default value of [Config.MaxResponseSize].
const DefaultMaxResponseSize = 16 << 20

// MaxResponseSizeLimit is the largest [Config.MaxResponseSize] a [*Client]
// honors. [NewClient] lowers larger values to this limit.
const MaxResponseSizeLimit = 1 << 30

// DefaultSlowDispatchThreshold is the default value of [Config.SlowDispatchThreshold].
const DefaultSlowDispatchThreshold = 50 * time.Millisecond

// Config holds common configuration for evinfo operations.
//
// Pass this to [NewClient] and to the resolver constructors to pre-wire
// dependencies. All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*DNSResolver].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// MaxResponseSize is the largest response body we accept. Values
	// above [MaxResponseSizeLimit] are lowered to it.
	//
	// Set by [NewConfig] to [DefaultMaxResponseSize].
	MaxResponseSize uint64

	// NewReactor creates the [Reactor] used by a [*Client].
	//
	// Set by [NewConfig] to [NewEpollReactor].
	NewReactor func() (Reactor, error)

	// NewSocket opens the [Socket] used by each request.
	//
	// Set by [NewConfig] to [NewSocket].
	NewSocket SocketFactory

	// Resolver maps hostnames to addresses for [*Client.RequestInfoByHost].
	//
	// Set by [NewConfig] to [*SystemResolver].
	Resolver Resolver

	// SlowDispatchThreshold is the dispatch duration above which we
	// emit a slowDispatch warning. Zero disables the warning.
	//
	// Set by [NewConfig] to [DefaultSlowDispatchThreshold].
	SlowDispatchThreshold time.Duration

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:                &net.Dialer{},
		ErrClassifier:         DefaultErrClassifier,
		MaxResponseSize:       DefaultMaxResponseSize,
		NewReactor:            NewEpollReactor,
		NewSocket:             NewSocket,
		Resolver:              &SystemResolver{},
		SlowDispatchThreshold: DefaultSlowDispatchThreshold,
		TimeNow:               time.Now,
	}
}
