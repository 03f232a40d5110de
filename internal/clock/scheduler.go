package clock

import (
	"sync/atomic"
	"time"
)

// Handle cancels a scheduled callback. Stop returns false if the callback
// already ran or was stopped before.
type Handle interface {
	Stop() bool
}

// Scheduler hands out cancellable one-shot callbacks.
// Callbacks always run on the loop thread that owns the scheduler.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Handle
}

// WallScheduler schedules on real time and executes callbacks on a Loop
type WallScheduler struct {
	loop *Loop
}

// NewWallScheduler binds a wall-clock scheduler to loop
func NewWallScheduler(loop *Loop) *WallScheduler {
	return &WallScheduler{loop: loop}
}

func (s *WallScheduler) Now() time.Time {
	return time.Now()
}

func (s *WallScheduler) AfterFunc(d time.Duration, fn func()) Handle {
	h := &wallHandle{}
	h.timer = time.AfterFunc(d, func() {
		s.loop.Post(func() {
			// a Stop issued after the OS timer fired still wins
			if h.state.CompareAndSwap(handlePending, handleFired) {
				fn()
			}
		})
	})
	return h
}

const (
	handlePending int32 = iota
	handleFired
	handleStopped
)

type wallHandle struct {
	timer *time.Timer
	state atomic.Int32
}

func (h *wallHandle) Stop() bool {
	if !h.state.CompareAndSwap(handlePending, handleStopped) {
		return false
	}
	h.timer.Stop()
	return true
}
