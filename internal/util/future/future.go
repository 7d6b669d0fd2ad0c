package future

import (
	"context"
	"fmt"
	"sync"
)

type result[T any] struct {
	v   T
	err error
}

// PanicError is the error a Future completes with when its function
// panics. Value is whatever was passed to panic.
type PanicError struct {
	Value interface{}
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic: %v", p.Value) }

// Unwrap exposes a panic value that is itself an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// Future is a single-shot result that completes exactly once.
type Future[T any] struct {
	doneChannel chan struct{}
	res         result[T]
	once        sync.Once
}

// New runs fn in a goroutine and completes the Future when fn returns. A
// panic in fn completes the Future with a *PanicError.
func New[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{doneChannel: make(chan struct{})}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.complete(zero, &PanicError{Value: r})
			}
		}()
		v, err := fn()
		f.complete(v, err)
	}()
	return f
}

// Await blocks until completion and returns the result.
func (f *Future[T]) Await() (T, error) {
	<-f.doneChannel
	return f.res.v, f.res.err
}

// AwaitContext waits until completion or until ctx is done, in which case
// it returns ctx's error.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.doneChannel:
		return f.res.v, f.res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// complete sets the result exactly once and closes doneChannel.
func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.res = result[T]{v: v, err: err}
		close(f.doneChannel)
	})
}
