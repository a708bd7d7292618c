package title

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlight_Do(t *testing.T) {
	f := NewFlight()

	result, shared, err := f.Do(context.Background(), "k", func(context.Context) (string, error) {
		return "v", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v", result)
	assert.False(t, shared)
	assert.Zero(t, f.Size())
}

func TestFlight_ErrorsAreNotCached(t *testing.T) {
	f := NewFlight()
	var calls atomic.Int32

	fn := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("first fails")
		}
		return "ok", nil
	}

	_, _, err := f.Do(context.Background(), "k", fn)
	assert.Error(t, err)

	result, _, err := f.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestFlight_CallerCancellationDoesNotAbortRun(t *testing.T) {
	f := NewFlight()
	release := make(chan struct{})
	finished := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _, err := f.Do(ctx, "k", func(runCtx context.Context) (string, error) {
			<-release
			finished <- runCtx.Err()
			return "done", nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	require.Eventually(t, func() bool { return f.Size() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	joined := make(chan string, 1)
	go func() {
		result, shared, err := f.Do(context.Background(), "k", func(context.Context) (string, error) {
			return "unused", nil
		})
		assert.NoError(t, err)
		assert.True(t, shared)
		joined <- result
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.NoError(t, <-finished)
	assert.Equal(t, "done", <-joined)
}

func TestFlight_ConcurrentCallersShareOneRun(t *testing.T) {
	f := NewFlight()
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 8
	results := make(chan string, n)
	var ready sync.WaitGroup
	ready.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			ready.Done()
			result, _, err := f.Do(context.Background(), "k", func(context.Context) (string, error) {
				calls.Add(1)
				<-release
				return "shared", nil
			})
			assert.NoError(t, err)
			results <- result
		}()
	}

	ready.Wait()
	require.Eventually(t, func() bool { return f.Size() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < n; i++ {
		assert.Equal(t, "shared", <-results)
	}
	assert.Equal(t, int32(1), calls.Load())
}
