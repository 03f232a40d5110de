package clock

import (
	"sort"
	"time"
)

// Virtual is a manually advanced scheduler. Callbacks run synchronously inside
// Advance, in deadline order, FIFO for equal deadlines.
type Virtual struct {
	now   time.Time
	seq   uint64
	queue []*virtualTask
}

type virtualTask struct {
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

func (t *virtualTask) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewVirtual creates a virtual scheduler starting at start
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	return v.now
}

func (v *Virtual) AfterFunc(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	v.seq++
	task := &virtualTask{at: v.now.Add(d), seq: v.seq, fn: fn}

	i := sort.Search(len(v.queue), func(i int) bool {
		q := v.queue[i]
		return q.at.After(task.at) || (q.at.Equal(task.at) && q.seq > task.seq)
	})
	v.queue = append(v.queue, nil)
	copy(v.queue[i+1:], v.queue[i:])
	v.queue[i] = task
	return task
}

// Advance moves time forward by d, firing every callback that comes due
func (v *Virtual) Advance(d time.Duration) {
	target := v.now.Add(d)
	for {
		task := v.popDue(target)
		if task == nil {
			break
		}
		v.now = task.at
		task.fired = true
		task.fn()
	}
	v.now = target
}

// Pending returns the number of scheduled, not yet fired callbacks
func (v *Virtual) Pending() int {
	n := 0
	for _, t := range v.queue {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (v *Virtual) popDue(target time.Time) *virtualTask {
	for len(v.queue) > 0 {
		head := v.queue[0]
		if head.at.After(target) {
			return nil
		}
		v.queue = v.queue[1:]
		if head.stopped {
			continue
		}
		return head
	}
	return nil
}
