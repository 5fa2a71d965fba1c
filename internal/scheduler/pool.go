package scheduler

import "sync"

// workerPool bounds concurrent task executions. Slots are reserved with a
// non-blocking tryAcquire before any queue mutation so a saturated pool
// leaves drones idle for reconsideration next tick instead of blocking the
// control loop.
type workerPool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{slots: make(chan struct{}, size)}
}

// tryAcquire reserves one execution slot without blocking.
func (p *workerPool) tryAcquire() bool {
	select {
	case p.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// release returns a reserved slot. Callers that acquired but did not
// dispatch must release explicitly.
func (p *workerPool) release() {
	<-p.slots
}

// dispatch runs fn on its own goroutine holding a previously reserved slot,
// releasing the slot when fn returns.
func (p *workerPool) dispatch(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		fn()
	}()
}

// wait blocks until every dispatched execution has returned.
func (p *workerPool) wait() {
	p.wg.Wait()
}

// inFlight reports the number of reserved slots.
func (p *workerPool) inFlight() int {
	return len(p.slots)
}
