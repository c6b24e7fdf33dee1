package scard

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRcToError(t *testing.T) {
	assert.NoError(t, rcToError(0))

	err := rcToError(0x8010000a)
	assert.Same(t, ErrTimeout, err)
	assert.Equal(t, "operation timed out", err.Error())

	err = rcToError(0xdeadbeef)
	assert.Contains(t, err.Error(), "0xdeadbeef")
}

func TestErrorIsMatchesByCode(t *testing.T) {
	// a fresh instance with the same code counts as the same error
	err := fmt.Errorf("wait failed: %w", &Error{Code: 0x80100002, desc: "operation cancelled"})
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.False(t, errors.Is(err, ErrTimeout))
}
