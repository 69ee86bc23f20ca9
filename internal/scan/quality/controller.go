// Package quality adapts the depth sampling stride to the observed frame
// rate: coarser when frames arrive late, finer when there is headroom.
package quality

import (
	"sync"
	"time"

	"github.com/banshee-data/footscan/internal/scan/geometry"
	"github.com/banshee-data/footscan/internal/timeutil"
)

// Controller is a ±1 step controller on the sampling stride. It measures
// the interval between successive Next calls.
type Controller struct {
	clock timeutil.Clock

	mu     sync.Mutex
	last   time.Time
	primed bool
	lastDt time.Duration
}

// NewController returns a controller reading time from clock. A nil clock
// uses the wall clock.
func NewController(clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{clock: clock}
}

// Next returns the stride for the next frame.
//
// The first call only records a time mark. Afterwards, if the time since
// the previous call exceeds 1/targetFPS the stride grows by one (capped at
// geometry.MaxSampleStride), otherwise it shrinks by one (floored at 1).
// A non-positive targetFPS holds the stride.
func (c *Controller) Next(targetFPS float64, stride int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if !c.primed {
		c.primed = true
		c.last = now
		return clampStride(stride)
	}
	dt := now.Sub(c.last)
	c.last = now
	c.lastDt = dt

	if targetFPS <= 0 {
		return clampStride(stride)
	}
	budget := time.Duration(float64(time.Second) / targetFPS)
	if dt > budget {
		return clampStride(stride + 1)
	}
	return clampStride(stride - 1)
}

// LastInterval returns the most recent measured interval between calls.
func (c *Controller) LastInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDt
}

// Reset forgets the time mark, so the next call primes again.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.primed = false
	c.lastDt = 0
	c.mu.Unlock()
}

func clampStride(s int) int {
	if s < 1 {
		return 1
	}
	if s > geometry.MaxSampleStride {
		return geometry.MaxSampleStride
	}
	return s
}
