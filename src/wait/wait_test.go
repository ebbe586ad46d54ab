package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntilStopsWhenConditionHolds(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilIsBounded(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), 5*time.Millisecond, 50*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntilPropagatesHardErrors(t *testing.T) {
	boom := errors.New("boom")
	err := Until(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestValue(t *testing.T) {
	n := 0
	v, err := Value(context.Background(), time.Millisecond, time.Second, func(context.Context) (int, bool, error) {
		n++
		return n * 10, n == 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}
