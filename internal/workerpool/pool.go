// Package workerpool runs a fixed number of goroutines over a bounded queue.
package workerpool

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by SubmitWait once Drain has started.
var ErrClosed = errors.New("workerpool: closed")

// Pool is a fixed-size goroutine pool with a bounded input queue.
type Pool[T any] struct {
	queue   chan T
	done    chan struct{}
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
	once    sync.Once

	// submitters hold the read lock so Drain can close the queue only once
	// none of them is mid-send.
	mu sync.RWMutex
}

// New starts n workers reading a queue of capacity cap. Workers stop when ctx
// is done or after Drain.
func New[T any](ctx context.Context, n, cap int, fn func(context.Context, T)) *Pool[T] {
	if n < 1 {
		n = 1
	}
	if cap < 0 {
		cap = 0
	}
	p := &Pool[T]{
		queue:   make(chan T, cap),
		done:    make(chan struct{}),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *Pool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues without blocking and reports whether there was room.
func (p *Pool[T]) Submit(t T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// SubmitWait blocks until there is room in the queue, ctx is done or the pool
// is drained.
func (p *Pool[T]) SubmitWait(ctx context.Context, t T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.queue <- t:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain rejects further submissions, releases blocked submitters with
// ErrClosed and waits for workers to finish what is already queued.
func (p *Pool[T]) Drain() {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		close(p.queue)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool[T]) QueueLen() int {
	return len(p.queue)
}

func (p *Pool[T]) QueueCap() int {
	return cap(p.queue)
}
