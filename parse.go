// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"errors"
	"strings"
)

// ErrMalformedResponse indicates a response body without the expected
// name, tab, value, newline layout.
var ErrMalformedResponse = errors.New("evinfo: malformed info response")

// ParseSingle returns the value of a response to a single name.
//
// The response has the "name\tvalue\n" form. Text after the first
// newline is ignored.
func ParseSingle(body []byte) (string, error) {
	_, rest, found := strings.Cut(string(body), "\t")
	if !found {
		return "", ErrMalformedResponse
	}
	value, _, found := strings.Cut(rest, "\n")
	if !found {
		return "", ErrMalformedResponse
	}
	return value, nil
}

// ParseResponse maps each name in a response to its value.
//
// Each line has the "name\tvalue" form. A line without a tab maps the
// whole line to the empty string. Empty lines are skipped.
func ParseResponse(body []byte) map[string]string {
	values := make(map[string]string)
	for line := range strings.SplitSeq(string(body), "\n") {
		if line == "" {
			continue
		}
		name, value, _ := strings.Cut(line, "\t")
		values[name] = value
	}
	return values
}
