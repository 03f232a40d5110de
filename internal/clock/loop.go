package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrLoopStopped is returned when work is handed to a loop that is no longer running
var ErrLoopStopped = errors.New("clock: loop stopped")

const defaultQueueSize = 256

// Loop is the single logical thread of control. All pin, filter, generator and
// channel state is only touched from functions running on the loop.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewLoop creates a loop with a bounded task queue
func NewLoop(logger *zap.Logger, queueSize int) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Loop{
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run executes posted tasks in order until ctx is cancelled or Stop is called
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("Event loop started")
	defer l.logger.Info("Event loop stopped")

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.done:
			return
		case task := <-l.tasks:
			l.execute(task)
		}
	}
}

// Post queues fn for execution on the loop. It blocks while the queue is full
// and returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// TryPost queues fn without blocking. It returns false when the queue is
// full or the loop has stopped.
func (l *Loop) TryPost(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	default:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
// Must not be called from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Stop terminates Run; queued tasks are discarded
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// Done is closed once the loop stops
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Loop task panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	task()
}
