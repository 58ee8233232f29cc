// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/bassosimone/errclass"
	"github.com/stretchr/testify/assert"
)

func TestDefaultErrClassifier(t *testing.T) {
	assert.Equal(t, "", DefaultErrClassifier.Classify(nil))
	assert.Equal(t, errclass.ETIMEDOUT, DefaultErrClassifier.Classify(context.DeadlineExceeded))
	assert.Equal(t, errclass.EGENERIC, DefaultErrClassifier.Classify(errors.New("unknown error")))
}

// Request timeouts wrap context.DeadlineExceeded and classify accordingly.
func TestDefaultErrClassifierTimeout(t *testing.T) {
	assert.Equal(t, errclass.ETIMEDOUT, DefaultErrClassifier.Classify(ErrTimeout))
}

func TestErrClassifierFunc(t *testing.T) {
	fn := ErrClassifierFunc(func(err error) string { return "CUSTOM" })
	assert.Equal(t, "CUSTOM", fn.Classify(errors.New("x")))
}
