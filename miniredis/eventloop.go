package miniredis

import (
	"context"
	"sync"
)

// EventLoop owns the goroutine that drives an AsyncConn.
//
// Start spawns exactly one goroutine running the supplied function; Stop
// cancels its context and Wait blocks until it has returned. The zero value
// is ready to use and a stopped loop may be started again. A run started
// while the stopped previous one is still unwinding begins only after that
// one has returned, so at most one run executes at any time.
type EventLoop struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	done    chan struct{}
}

// Start runs run on a new goroutine. It returns ErrLoopRunning if the
// current run is still live and has not been stopped.
func (l *EventLoop) Start(run func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.done
	if prev != nil && !l.stopped && !closed(prev) {
		return ErrLoopRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.stopped = false

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		run(ctx)
	}()
	return nil
}

// Stop asks the running loop to break. It does not wait and may be called
// any number of times, including from the loop goroutine itself.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
}

// Wait blocks until the latest run has returned. It returns immediately
// when the loop was never started. Calling Wait from the loop goroutine
// deadlocks.
func (l *EventLoop) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a run is in progress.
func (l *EventLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done != nil && !closed(l.done)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
