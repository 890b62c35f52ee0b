package sched

import (
	"context"
	"sync"
)

// Future is a single-assignment value produced asynchronously.
//
// Get is the only blocking consumer; everything else in the runtime chains
// futures without blocking the submitting goroutine.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// Event is a future that carries only completion.
type Event = Future[struct{}]

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// FromValue returns a future already resolved to v.
func FromValue[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v, nil)
	return f
}

// FromError returns a future already failed with err.
func FromError[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Get blocks until the future resolves or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Ready reports whether the future has resolved.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the failure of a resolved future, or nil when it is pending
// or succeeded.
func (f *Future[T]) Err() error {
	if !f.Ready() {
		return nil
	}
	return f.err
}

// wait blocks without a context; only runtime-owned goroutines use it.
func (f *Future[T]) wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Then returns a future resolved with fn applied to f's value.
// A failure of f propagates without calling fn.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := newFuture[U]()
	go func() {
		v, err := f.wait()
		if err != nil {
			var zero U
			out.resolve(zero, err)
			return
		}
		out.resolve(fn(v))
	}()
	return out
}

// Join returns a future resolved with fn applied to both values.
func Join[A, B, U any](a *Future[A], b *Future[B], fn func(A, B) (U, error)) *Future[U] {
	out := newFuture[U]()
	go func() {
		va, err := a.wait()
		if err != nil {
			var zero U
			out.resolve(zero, err)
			return
		}
		vb, err := b.wait()
		if err != nil {
			var zero U
			out.resolve(zero, err)
			return
		}
		out.resolve(fn(va, vb))
	}()
	return out
}

// AsEvent drops the value of f, keeping completion and failure.
func AsEvent[T any](f *Future[T]) *Event {
	return Then(f, func(T) (struct{}, error) { return struct{}{}, nil })
}
