// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import "github.com/bassosimone/errclass"

// ErrClassifier classifies errors into categorical strings for logging.
//
// Implementations map errors to short labels (e.g., "ETIMEDOUT",
// "ECONNREFUSED") emitted as the errClass attribute of completion events.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using [errclass.New].
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)
