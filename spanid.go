// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying a single info request.
//
// Every log event emitted on behalf of a request carries its span ID
// under the spanID key, so that interleaved requests sharing the same
// reactor can be told apart.
//
// This function panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
