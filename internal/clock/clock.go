// Package clock provides the tick-driven timer used for delayed returns.
//
// A Clock never runs on its own goroutine. The owning loop calls Advance once
// per frame and every due callback runs synchronously inside that call, so
// scheduled work stays on the loop's logical thread.
package clock

import (
	"container/heap"
	"time"
)

// TimeBase selects which timeline a timer follows.
type TimeBase uint8

const (
	// Scaled time is multiplied by the clock's time scale.
	Scaled TimeBase = iota
	// Unscaled time advances with real elapsed time regardless of time scale.
	Unscaled
)

func (b TimeBase) String() string {
	if b == Unscaled {
		return "unscaled"
	}
	return "scaled"
}

// Cancelable is a handle to a scheduled callback.
type Cancelable interface {
	Cancel()
}

// Clock keeps a scaled and an unscaled timeline plus their pending timers.
// It is not safe for concurrent use.
type Clock struct {
	scale  float64
	now    [2]time.Duration
	queues [2]timerQueue
	seq    uint64
	frames uint64

	advancing bool
	deferred  []*Timer
}

// New returns a clock at time zero with a time scale of 1.
func New() *Clock {
	return &Clock{scale: 1}
}

// SetTimeScale changes the multiplier applied to scaled time. Negative values clamp to zero.
func (c *Clock) SetTimeScale(scale float64) {
	if scale < 0 {
		scale = 0
	}
	c.scale = scale
}

// TimeScale returns the current scaled-time multiplier.
func (c *Clock) TimeScale() float64 { return c.scale }

// Now returns the elapsed time on the requested timeline.
func (c *Clock) Now(base TimeBase) time.Duration { return c.now[base.index()] }

// Frames returns how many times Advance has run.
func (c *Clock) Frames() uint64 { return c.frames }

// Pending returns the number of timers waiting to fire.
func (c *Clock) Pending() int {
	n := c.queues[0].Len() + c.queues[1].Len()
	for _, t := range c.deferred {
		if !t.done {
			n++
		}
	}
	return n
}

// After schedules fn to run once delay has elapsed on the given timeline.
func (c *Clock) After(delay time.Duration, base TimeBase, fn func()) Cancelable {
	if delay < 0 {
		delay = 0
	}
	c.seq++
	t := &Timer{
		clock: c,
		base:  base,
		at:    c.now[base.index()] + delay,
		seq:   c.seq,
		fn:    fn,
		index: -1,
	}
	if c.advancing {
		c.deferred = append(c.deferred, t)
		return t
	}
	heap.Push(&c.queues[base.index()], t)
	return t
}

// Advance moves both timelines forward by dt of real time and fires every
// timer that came due, earliest first. Timers scheduled by those callbacks
// wait for the next Advance. It returns the number of callbacks run.
func (c *Clock) Advance(dt time.Duration) int {
	if dt < 0 {
		dt = 0
	}
	c.frames++
	c.now[Unscaled.index()] += dt
	c.now[Scaled.index()] += time.Duration(float64(dt) * c.scale)

	c.advancing = true
	defer c.flushDeferred()

	fired := 0
	for {
		t := c.nextDue()
		if t == nil {
			return fired
		}
		heap.Pop(&c.queues[t.base.index()])
		t.done = true
		if t.fn != nil {
			t.fn()
		}
		fired++
	}
}

// flushDeferred queues the timers scheduled while Advance was firing.
func (c *Clock) flushDeferred() {
	c.advancing = false
	for _, t := range c.deferred {
		if !t.done {
			heap.Push(&c.queues[t.base.index()], t)
		}
	}
	clear(c.deferred)
	c.deferred = c.deferred[:0]
}

func (c *Clock) nextDue() *Timer {
	var best *Timer
	for i := range c.queues {
		q := c.queues[i]
		if q.Len() == 0 {
			continue
		}
		top := q[0]
		if top.at > c.now[i] {
			continue
		}
		if best == nil || top.at-c.now[i] < best.at-c.now[best.base.index()] ||
			(top.at-c.now[i] == best.at-c.now[best.base.index()] && top.seq < best.seq) {
			best = top
		}
	}
	return best
}

func (b TimeBase) index() int {
	if b == Unscaled {
		return 1
	}
	return 0
}

// Timer is a scheduled callback owned by a Clock.
type Timer struct {
	clock *Clock
	base  TimeBase
	at    time.Duration
	seq   uint64
	fn    func()
	index int
	done  bool
}

// Cancel prevents the callback from running. Cancelling a fired or already
// cancelled timer is a no-op.
func (t *Timer) Cancel() {
	if t == nil || t.done {
		return
	}
	t.done = true
	if t.index >= 0 {
		heap.Remove(&t.clock.queues[t.base.index()], t.index)
	}
}

// Done reports whether the timer fired or was cancelled.
func (t *Timer) Done() bool { return t.done }

type timerQueue []*Timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
