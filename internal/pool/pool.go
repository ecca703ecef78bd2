// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package pool implements a fixed-size worker pool with an unbounded
// task queue, used by the engine to run query fan-out work without
// spawning a goroutine per request.
package pool

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sjyango/vintsdb/internal/atomicext"
)

// ErrShutdown is the error a Future completes with when Submit is
// called after Shutdown, instead of enqueueing a task no worker will
// ever run.
var ErrShutdown = errors.New("pool: submit after shutdown")

// spinLimit bounds how many times Future.Wait spins on the ready flag
// before parking on the completion channel; queries are typically
// microseconds to low milliseconds, so a short spin often avoids the
// channel's scheduling latency entirely.
const spinLimit = 1000

// Future is the result of a task submitted to a Pool.
type Future struct {
	ready  atomic.Bool
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result any, err error) {
	f.result = result
	f.err = err
	f.ready.Store(true)
	close(f.done)
}

// Wait blocks until the task completes and returns its result.
func (f *Future) Wait() (any, error) {
	for i := 0; i < spinLimit && !f.ready.Load(); i++ {
		atomicext.Pause()
	}
	if !f.ready.Load() {
		<-f.done
	}
	return f.result, f.err
}

type task struct {
	fn  func() (any, error)
	fut *Future
}

// Pool is a fixed number of worker goroutines draining an unbounded FIFO
// task queue.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []task
	shutdown bool
	wg       sync.WaitGroup
}

// New starts a Pool with the given number of worker goroutines. workers
// must be >= 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shutdown {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.shutdown {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		result, err := t.fn()
		t.fut.complete(result, err)
	}
}

// Submit enqueues fn for execution by a worker and returns a Future for
// its result. Submit never blocks, even if every worker is busy: the
// task queue grows without bound. Once Shutdown has been called, Submit
// no longer enqueues anything; it returns a Future already completed
// with ErrShutdown, so a caller waiting on it observes a failure
// instead of blocking forever on a task that will never run.
func (p *Pool) Submit(fn func() (any, error)) *Future {
	fut := newFuture()
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		fut.complete(nil, ErrShutdown)
		return fut
	}
	p.queue = append(p.queue, task{fn: fn, fut: fut})
	p.mu.Unlock()
	p.cond.Signal()
	return fut
}

// Shutdown waits for the queue to drain and every worker to exit. A
// Submit racing with or following Shutdown fails with ErrShutdown
// rather than being silently dropped.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
