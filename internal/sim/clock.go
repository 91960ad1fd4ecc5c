package sim

import (
	"runtime"
	"sync"
	"time"
)

// Clock is a virtual monotonic clock. Sleep advances it immediately, which
// lets a full lift trip run in microseconds of real time.
type Clock struct {
	mtx   sync.Mutex
	now   time.Time
	slept time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Unix(0, 0)}
}

func (c *Clock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	if d > 0 {
		c.mtx.Lock()
		c.now = c.now.Add(d)
		c.slept += d
		c.mtx.Unlock()
	}
	runtime.Gosched()
}

func (c *Clock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
}

// Slept is the total time spent in Sleep.
func (c *Clock) Slept() time.Duration {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.slept
}

// PacedClock keeps time on a virtual Clock but really sleeps for any delay of
// at least Threshold. Step delays then run at full speed while idle polls and
// dwells keep their real length.
type PacedClock struct {
	*Clock
	Threshold time.Duration
}

func (p PacedClock) Sleep(d time.Duration) {
	if d >= p.Threshold {
		time.Sleep(d)
	}
	p.Clock.Sleep(d)
}
