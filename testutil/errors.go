/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"time"

	"github.com/stretchr/testify/require"
)

// RequireNoErrorInChannel asserts that there is no error in the buffered channel.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var err error
	select {
	case err = <-c:
	default:
	}
	require.NoError(t, err, msgAndArgs...)
}

// RequireSignal waits for a value in the channel and fails the test on timeout.
func RequireSignal[T any](t require.TestingT, c <-chan T, timeout time.Duration, msgAndArgs ...interface{}) T {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case v := <-c:
		return v
	case <-time.After(timeout):
		require.FailNow(t, "timed out waiting for a signal", msgAndArgs...)
	}
	var zero T
	return zero
}
