package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallWithRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	result, err := CallWithRetry(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	}, 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestCallWithRetryExhaustsAttempts(t *testing.T) {
	cause := errors.New("always failing")
	_, err := CallWithRetry(context.Background(), func() (int, error) {
		return 0, cause
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestCallWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CallWithRetry(ctx, func() (int, error) {
		return 0, errors.New("fail")
	}, 10, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
}
