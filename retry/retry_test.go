/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errNoAck = errors.New("no acknowledgment")

func TestDoWithRetry_AttemptsPolicy(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 5, 16} {
		calls := 0
		notified := 0
		err := DoWithRetry(context.Background(), NewAttemptsPolicy(maxAttempts), nil,
			func(error, time.Duration) { notified++ },
			func(ctx context.Context) error {
				calls++
				return errNoAck
			})
		require.ErrorIs(t, err, errNoAck)
		require.Equal(t, maxAttempts, calls)
		require.Equal(t, maxAttempts-1, notified)
	}
}

func TestDoWithRetry_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := DoWithRetry(context.Background(), NewAttemptsPolicy(10), nil, nil, func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return nil
		}
		return errNoAck
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoWithRetry_PermanentError(t *testing.T) {
	errSend := errors.New("send failed")
	calls := 0
	err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 10),
		func(err error) bool { return errors.Is(err, errNoAck) }, nil,
		func(ctx context.Context) error {
			calls++
			return errSend
		})
	require.ErrorIs(t, err, errSend)
	require.Equal(t, 1, calls)
}

func TestDoWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := DoWithRetry(ctx, NewConstantBackoffPolicy(time.Millisecond*10, 0), nil, nil, func(ctx context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errNoAck
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}
