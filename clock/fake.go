package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Fake is a manually driven Clock. Time only moves through Advance and Set.
// Callbacks run on the goroutine calling Advance, with the fake unlocked, so
// they may call back into the fake (Now, AfterFunc, Stop).
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	skew   time.Duration
	seq    uint64
	timers fakeHeap
}

// NewFake returns a fake clock reading start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run once the fake time reaches now+d. A
// non-positive d is due immediately and runs on the next Advance, including
// Advance(0).
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d < 0 {
		d = 0
	}
	f.seq++
	t := &fakeTimer{
		fake:     f,
		armedAt:  f.now,
		deadline: f.now.Add(d),
		seq:      f.seq,
		fn:       fn,
	}
	heap.Push(&f.timers, t)
	return t
}

// SetSkew shifts the time observed by callbacks relative to their deadline.
// A positive skew simulates late wake-ups. A negative skew simulates early
// ones; an early wake-up never lands at or before the instant the timer was
// armed.
func (f *Fake) SetSkew(skew time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skew = skew
}

// Advance moves the fake time forward by d, running every callback that
// becomes due in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for len(f.timers) > 0 && !f.timers[0].deadline.After(target) {
		t := heap.Pop(&f.timers).(*fakeTimer)

		at := t.deadline.Add(f.skew)
		if f.skew < 0 && !at.After(t.armedAt) {
			at = t.deadline
		}
		if at.After(target) {
			at = target
		}
		if at.After(f.now) {
			f.now = at
		}

		f.mu.Unlock()
		t.fn()
		f.mu.Lock()
	}
	if target.After(f.now) {
		f.now = target
	}
	f.mu.Unlock()
}

// Set advances the fake time to t. Moving backwards is ignored.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	d := t.Sub(f.now)
	f.mu.Unlock()
	if d < 0 {
		return
	}
	f.Advance(d)
}

// Pending returns the number of armed timers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

type fakeTimer struct {
	fake     *Fake
	armedAt  time.Time
	deadline time.Time
	seq      uint64
	fn       func()
	index    int
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()

	if t.index < 0 {
		return false
	}
	heap.Remove(&t.fake.timers, t.index)
	return true
}

// fakeHeap orders timers by deadline, then by arming order.
type fakeHeap []*fakeTimer

func (h fakeHeap) Len() int { return len(h) }

func (h fakeHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h fakeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *fakeHeap) Push(x any) {
	t := x.(*fakeTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *fakeHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
