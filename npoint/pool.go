package npoint

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many ToThread handlers run at once
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool allows size handlers to run at once.  Zero or less means
// GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

var (
	defaultPoolOnce sync.Once
	defaultPool     *Pool
)

func sharedPool() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(0)
	})
	return defaultPool
}

// Run waits for a slot and then runs fn on its own goroutine,
// returning when fn does.  It only fails if ctx ends while waiting
// for a slot; once started, fn runs to completion.
func (p *Pool) Run(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer p.sem.Release(1)
		defer close(done)
		fn()
	}()
	<-done
	return nil
}
