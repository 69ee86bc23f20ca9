package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// worker runs captures on one dedicated goroutine. A capture offered while
// the worker is busy is released and dropped instead of queued.
type worker struct {
	in     chan *Capture
	handle func(*Capture)

	accepted atomic.Uint64
	dropped  atomic.Uint64
}

func newWorker(handle func(*Capture)) *worker {
	return &worker{in: make(chan *Capture), handle: handle}
}

// run processes captures until ctx is done. It returns after any in-flight
// capture has finished and been released.
func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-w.in:
			w.process(c)
		}
	}
}

func (w *worker) process(c *Capture) {
	defer c.release()
	w.handle(c)
}

// submit hands c to the worker if it is idle. It reports whether the
// capture was accepted; a rejected capture has already been released.
func (w *worker) submit(ctx context.Context, c *Capture) bool {
	select {
	case w.in <- c:
		w.accepted.Add(1)
		return true
	case <-ctx.Done():
	default:
	}
	c.release()
	w.dropped.Add(1)
	return false
}
