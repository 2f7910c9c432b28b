package service

import (
	"context"
	"sync"
)

// Deferred is a value that becomes available later. Waiting can be abandoned but
// the underlying work still runs to completion.
type Deferred[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolved returns an already completed Deferred.
func Resolved[T any](val T, err error) *Deferred[T] {
	d := newDeferred[T]()
	d.resolve(val, err)
	return d
}

func (d *Deferred[T]) resolve(val T, err error) {
	d.once.Do(func() {
		d.val, d.err = val, err
		close(d.done)
	})
}

// Done is closed once the value is available.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the value is ready or ctx ends.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
