// Package synth resolves the synthesis engine of a guild and runs blocking
// engine calls on a bounded set of workers.
package synth

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of engine calls running at once. The zero value is
// not usable; create one with [NewPool].
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a Pool with workers slots. A non-positive value means
// runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Do runs fn on a worker goroutine and waits for it to return.
//
// fn receives ctx and is expected to stop early when it ends, but Do never
// returns before fn does: an engine that ignores cancellation must not
// write its artifact after the caller has cleaned up. When ctx ended while
// fn ran, the context error wins over fn's result.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn(ctx)
	}()

	err := <-done
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
