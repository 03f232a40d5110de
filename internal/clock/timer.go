package clock

import (
	"time"

	"github.com/KevinKickass/boardlink/internal/events"
)

const (
	EventTick     = "tick"
	EventComplete = "complete"
)

const minDelay = time.Millisecond

// Timer is a cancellable periodic tick source.
// RepeatCount 0 repeats forever.
type Timer struct {
	*events.Dispatcher

	sched        Scheduler
	delay        time.Duration
	repeatCount  int
	currentCount int
	running      bool
	handle       Handle
}

// NewTimer creates a stopped timer
func NewTimer(sched Scheduler, delay time.Duration, repeatCount int, opts ...events.Option) *Timer {
	if delay < minDelay {
		delay = minDelay
	}
	if repeatCount < 0 {
		repeatCount = 0
	}
	return &Timer{
		Dispatcher:  events.NewDispatcher(opts...),
		sched:       sched,
		delay:       delay,
		repeatCount: repeatCount,
	}
}

func (t *Timer) Delay() time.Duration { return t.delay }
func (t *Timer) RepeatCount() int     { return t.repeatCount }
func (t *Timer) CurrentCount() int    { return t.currentCount }
func (t *Timer) Running() bool        { return t.running }

// Start arms the timer; it is a no-op when already running
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.running = true
	t.arm()
}

// Stop cancels the pending tick. CurrentCount is kept.
func (t *Timer) Stop() {
	t.running = false
	t.disarm()
}

// Reset stops the timer and clears the tick counter
func (t *Timer) Reset() {
	t.Stop()
	t.currentCount = 0
}

// SetDelay changes the period; a running timer re-arms with the new delay
func (t *Timer) SetDelay(d time.Duration) {
	if d < minDelay {
		d = minDelay
	}
	t.delay = d
	t.rearm()
}

// SetRepeatCount changes the repeat limit; a running timer re-arms
func (t *Timer) SetRepeatCount(n int) {
	if n < 0 {
		n = 0
	}
	t.repeatCount = n
	t.rearm()
}

func (t *Timer) rearm() {
	if !t.running {
		return
	}
	t.disarm()
	t.arm()
}

func (t *Timer) arm() {
	t.handle = t.sched.AfterFunc(t.delay, t.tick)
}

func (t *Timer) disarm() {
	if t.handle != nil {
		t.handle.Stop()
		t.handle = nil
	}
}

func (t *Timer) tick() {
	t.handle = nil
	if !t.running {
		return
	}
	t.currentCount++

	if t.repeatCount != 0 && t.currentCount > t.repeatCount {
		t.Stop()
		t.Emit(EventComplete, t, map[string]any{"count": t.currentCount})
		return
	}

	// armed before listeners run so they can Stop or re-arm
	t.arm()
	t.Emit(EventTick, t, map[string]any{"count": t.currentCount})
}
