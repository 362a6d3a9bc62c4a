package dispatch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rhuss/relay/pkg/capability"
)

// Future is the pending result of a handler running on either lane.
type Future struct {
	started chan struct{}
	done    chan struct{}
	once    sync.Once

	value any
	err   error
}

func newFuture() *Future {
	return &Future{started: make(chan struct{}), done: make(chan struct{})}
}

// Started is closed when the handler begins executing.
func (f *Future) Started() <-chan struct{} { return f.started }

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the handler finishes.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.value, f.err
}

func (f *Future) hasStarted() bool {
	select {
	case <-f.started:
		return true
	default:
		return false
	}
}

func (f *Future) start() { close(f.started) }

func (f *Future) complete(v any, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

// lane runs handlers and hands back a Future.
type lane interface {
	submit(ctx context.Context, name string, h capability.Handler, args map[string]any) *Future
}

// workerPool runs blocking handlers with at most size in flight. Callers
// never wait for a slot: the submitting goroutine returns immediately and
// the queued call waits in its own goroutine until a slot frees up or ctx
// ends.
type workerPool struct {
	sem *semaphore.Weighted
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{sem: semaphore.NewWeighted(int64(size))}
}

func (p *workerPool) submit(ctx context.Context, name string, h capability.Handler, args map[string]any) *Future {
	f := newFuture()
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.complete(nil, err)
			return
		}
		defer p.sem.Release(1)
		f.start()
		f.complete(call(ctx, name, h, args))
	}()
	return f
}

// scheduler runs suspending handlers. Each call gets its own goroutine and
// relies on the handler honoring ctx to give resources back.
type scheduler struct{}

func (scheduler) submit(ctx context.Context, name string, h capability.Handler, args map[string]any) *Future {
	f := newFuture()
	go func() {
		f.start()
		f.complete(call(ctx, name, h, args))
	}()
	return f
}

// call runs the handler and converts errors and panics into a
// HandlerFailure.
func call(ctx context.Context, name string, h capability.Handler, args map[string]any) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v = nil
			err = &HandlerFailure{Capability: name, Cause: fmt.Errorf("%v", rec), Panicked: true}
		}
	}()
	v, err = h.Call(ctx, args)
	if err != nil {
		return nil, &HandlerFailure{Capability: name, Cause: err}
	}
	return v, nil
}
