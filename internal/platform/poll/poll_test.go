package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStartRunsImmediatelyAndRepeats(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	task := Start(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		if calls.Add(1) == 3 {
			return Done
		}
		return nil
	})

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.NoError(t, task.Err())
}

func TestStopTearsDownDeterministically(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	task := Start(context.Background(), time.Hour, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	task.Stop()
	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("Stop returned before the goroutine exited")
	}
}

func TestErrorEndsTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("status endpoint down")
	task := Start(context.Background(), 5*time.Millisecond, func(ctx context.Context) error { return boom })
	<-task.Done()
	assert.ErrorIs(t, task.Err(), boom)
}

func TestParentCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	task := Start(ctx, 5*time.Millisecond, func(ctx context.Context) error { return nil })
	cancel()
	<-task.Done()
	assert.NoError(t, task.Err())
}
