// Package preview decides when a live preview frame is due and renders it
// as a small JPEG.
package preview

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinInterval is the shortest allowed spacing between preview frames.
const MinInterval = 50 * time.Millisecond

// IntervalFor returns the preview spacing for a target frame rate:
// half the frame rate, never faster than MinInterval.
func IntervalFor(targetFPS float64) time.Duration {
	if targetFPS <= 0 {
		return MinInterval
	}
	iv := time.Duration(float64(time.Second) / (2 * targetFPS))
	if iv < MinInterval {
		return MinInterval
	}
	return iv
}

// Throttle rate-limits preview emission. The interval follows the target
// frame rate passed to each Allow call.
type Throttle struct {
	mu       sync.Mutex
	lim      *rate.Limiter
	interval time.Duration
	allowed  uint64
	denied   uint64
}

// NewThrottle returns a Throttle that admits its first frame immediately.
func NewThrottle() *Throttle {
	return &Throttle{}
}

// Allow reports whether a preview frame may be emitted at now.
func (t *Throttle) Allow(now time.Time, targetFPS float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	iv := IntervalFor(targetFPS)
	switch {
	case t.lim == nil:
		t.lim = rate.NewLimiter(rate.Every(iv), 1)
	case iv != t.interval:
		t.lim.SetLimitAt(now, rate.Every(iv))
	}
	t.interval = iv

	if t.lim.AllowN(now, 1) {
		t.allowed++
		return true
	}
	t.denied++
	return false
}

// Stats returns how many frames were admitted and held back.
func (t *Throttle) Stats() (allowed, denied uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowed, t.denied
}

// Reset drops the limiter so the next frame is admitted immediately.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.lim = nil
	t.mu.Unlock()
}
