package miniredis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopStartStopWait(t *testing.T) {
	var l EventLoop
	assert.False(t, l.Running())
	l.Wait() // never started

	started := make(chan struct{})
	require.NoError(t, l.Start(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started
	assert.True(t, l.Running())

	l.Stop()
	l.Wait()
	assert.False(t, l.Running())

	l.Stop() // idempotent
}

func TestEventLoopRejectsSecondStart(t *testing.T) {
	var l EventLoop
	release := make(chan struct{})
	require.NoError(t, l.Start(func(ctx context.Context) { <-release }))

	assert.ErrorIs(t, l.Start(func(context.Context) {}), ErrLoopRunning)

	close(release)
	l.Wait()
	assert.NoError(t, l.Start(func(context.Context) {}))
	l.Wait()
}

func TestEventLoopRestartWaitsForPreviousRun(t *testing.T) {
	var l EventLoop
	var active atomic.Int32
	var overlap atomic.Bool

	body := func(ctx context.Context) {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	}

	require.NoError(t, l.Start(body))
	l.Stop()
	require.NoError(t, l.Start(body), "a stopped loop may be restarted before it has unwound")
	l.Stop()
	l.Wait()

	assert.False(t, overlap.Load(), "runs must not overlap")
	assert.Equal(t, int32(0), active.Load())
}

func TestEventLoopRunReturnsOnItsOwn(t *testing.T) {
	var l EventLoop
	var ran atomic.Bool
	require.NoError(t, l.Start(func(context.Context) { ran.Store(true) }))
	l.Wait()
	assert.True(t, ran.Load())
	assert.False(t, l.Running())
}
