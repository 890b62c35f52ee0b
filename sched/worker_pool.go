package sched

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// workerPool runs point tasks on a fixed set of goroutines so that large
// launch domains do not oversubscribe the machine.
type workerPool struct {
	numWorkers int
	workCh     chan func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
	queued     atomic.Int64
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	wp := &workerPool{
		numWorkers: numWorkers,
		workCh:     make(chan func(), numWorkers*2),
		stopCh:     make(chan struct{}),
	}

	wp.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *workerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.stopCh:
			// Drain what was accepted before Close.
			for {
				select {
				case fn, ok := <-wp.workCh:
					if !ok {
						return
					}
					wp.run(fn)
				default:
					return
				}
			}
		case fn, ok := <-wp.workCh:
			if !ok {
				return
			}
			wp.run(fn)
		}
	}
}

func (wp *workerPool) run(fn func()) {
	wp.queued.Add(-1)
	fn()
}

// Submit enqueues fn. It blocks while the queue is full and fails once the
// pool is closed or ctx is done.
func (wp *workerPool) Submit(ctx context.Context, fn func()) error {
	wp.submitMu.RLock()
	defer wp.submitMu.RUnlock()

	if wp.closed.Load() {
		return ErrClosed
	}

	wp.queued.Add(1)
	select {
	case wp.workCh <- fn:
		return nil
	case <-wp.stopCh:
		wp.queued.Add(-1)
		return ErrClosed
	case <-ctx.Done():
		wp.queued.Add(-1)
		return ctx.Err()
	}
}

// Queued returns the number of submitted tasks not yet started.
func (wp *workerPool) Queued() int { return int(wp.queued.Load()) }

// Close stops the workers after draining accepted work.
func (wp *workerPool) Close() {
	if !wp.closed.CompareAndSwap(false, true) {
		return
	}

	wp.submitMu.Lock()
	close(wp.stopCh)
	close(wp.workCh)
	wp.submitMu.Unlock()

	wp.wg.Wait()
}
