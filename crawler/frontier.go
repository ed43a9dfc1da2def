package crawler

import (
	"context"
	"sync"
)

// frontier is a FIFO queue of discovered paths shared by a fixed-size pool
// of worker goroutines, together with a pending count that reaches zero
// exactly when the queue is empty and every path taken from it has
// finished processing — the signal that a site crawl has drained.
type frontier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	pending int
	done    bool
}

func newFrontier() *frontier {
	f := &frontier{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// push enqueues path and counts it as pending work.
func (f *frontier) push(path string) {
	f.mu.Lock()
	f.queue = append(f.queue, path)
	f.pending++
	f.cond.Signal()
	f.mu.Unlock()
}

// pop blocks until a path is available, the frontier has drained, or ctx is
// done. ok is false once there is nothing left for the caller to do.
func (f *frontier) pop(ctx context.Context) (path string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) == 0 && !f.done && ctx.Err() == nil {
		f.cond.Wait()
	}
	if ctx.Err() != nil || len(f.queue) == 0 {
		return "", false
	}
	path, f.queue = f.queue[0], f.queue[1:]
	return path, true
}

// taskDone marks one unit of pending work complete; once every pushed path
// has been matched by a taskDone call the frontier is marked drained and
// every blocked pop wakes up with ok=false.
func (f *frontier) taskDone() {
	f.mu.Lock()
	f.pending--
	if f.pending == 0 {
		f.done = true
		f.cond.Broadcast()
	}
	f.mu.Unlock()
}

// wake unblocks every goroutine waiting in pop, used when the crawl's
// context is cancelled so workers notice ctx.Err() without waiting for
// more work to arrive.
func (f *frontier) wake() {
	f.mu.Lock()
	f.cond.Broadcast()
	f.mu.Unlock()
}
