package shell

import (
	"context"
	"sync"
)

// Executor runs callbacks. A nil Executor runs them on the goroutine that
// observed completion.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

// Go runs every callback on a new goroutine.
var Go Executor = ExecutorFunc(func(fn func()) { go fn() })

// Future is a handle to a Result that becomes available later.
type Future struct {
	done chan struct{}
	once sync.Once
	res  Result
	err  error
}

// NewPromise returns an unresolved Future and the function that resolves it.
// Only the first call to resolve has an effect.
func NewPromise() (*Future, func(Result, error)) {
	f := &Future{done: make(chan struct{}), res: NotExecutedResult()}
	return f, f.resolve
}

func (f *Future) resolve(res Result, err error) {
	f.once.Do(func() {
		f.res = res
		f.err = err
		close(f.done)
	})
}

// Done is closed once the Result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the Result is available or ctx ends.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return NotExecutedResult(), ctx.Err()
	}
}

// Then invokes cb on exec once the Result is available.
func (f *Future) Then(exec Executor, cb func(Result, error)) {
	if cb == nil {
		return
	}
	go func() {
		<-f.done
		if exec == nil {
			cb(f.res, f.err)
			return
		}
		exec.Execute(func() { cb(f.res, f.err) })
	}()
}
