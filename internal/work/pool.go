// Package work provides a bounded spawn-and-detach pool for background AI
// tasks. Callers dispatch and move on; the pool limits concurrency, logs
// every task's outcome so detached work is never silently lost, and drains
// on shutdown.
package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wayfare-app/wayfare/internal/log"
)

// Task is a unit of background work. The context is the pool's lifecycle
// context, not a request context: it outlives the HTTP response that
// triggered the task and stays live through the shutdown drain.
type Task func(ctx context.Context) error

// Pool runs detached tasks with bounded concurrency.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger log.Logger

	abort  <-chan struct{} // parent cancellation; aborts queued tasks only
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool running at most size tasks concurrently.
// ctx is the application lifecycle context: its cancellation aborts tasks
// still waiting for a worker slot, but the context handed to running tasks
// is detached from it so a shutdown signal cannot kill work mid-flight.
func NewPool(ctx context.Context, size int, logger log.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Pool{
		sem:    make(chan struct{}, size),
		logger: logger,
		abort:  ctx.Done(),
		ctx:    taskCtx,
		cancel: cancel,
	}
}

// Go dispatches fn and returns immediately. The task waits for a worker
// slot, runs to completion regardless of the dispatching request's fate,
// and has its outcome logged. Dispatch after Close is dropped with a log.
func (p *Pool) Go(name string, fn Task) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("task dropped, pool closed", "task", name)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-p.abort:
			p.logger.Warn("task never started, pool shutting down", "task", name)
			return
		}

		start := time.Now()
		err := p.run(fn)
		switch {
		case err != nil:
			p.logger.Error("background task failed", "task", name, "duration", time.Since(start), "error", err)
		default:
			p.logger.Debug("background task completed", "task", name, "duration", time.Since(start))
		}
	}()
}

// run executes fn with a panic boundary so one bad task cannot take down
// the process.
func (p *Pool) run(fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(p.ctx)
}

// Close stops accepting tasks and drains the ones already dispatched,
// queued included. The task context is detached from the parent and only
// cancelled after the drain, so shutdown never aborts work mid-flight —
// not even when the parent context is a signal context that is already
// cancelled. Parent cancellation only aborts tasks still queued.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}
