// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool provides the persistent goroutine pool kernels are
// launched on.
//
// A launch returns only after every chunk has finished, which is the
// synchronization point between pipeline stages. The caller participates in
// the work, so a launch never waits on a helper that has not started and
// nested launches cannot deadlock.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	pool.ParallelFor(len(dt), func(start, end int) {
//	    for i := start; i < end; i++ {
//	        dt[i] += slip * dE[i]
//	    }
//	})
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Executor runs data-parallel loops. *Pool implements it; Inline runs
// everything on the calling goroutine.
type Executor interface {
	// NumWorkers returns the number of goroutines that may execute chunks.
	NumWorkers() int

	// ParallelFor splits [0, n) into at most NumWorkers contiguous chunks
	// and calls fn once per chunk.
	ParallelFor(n int, fn func(start, end int))

	// ParallelForAtomic calls fn once for every i in [0, n), distributing
	// indices by atomic work stealing.
	ParallelForAtomic(n int, fn func(i int))
}

// Pool is a fixed set of worker goroutines fed through a task channel.
type Pool struct {
	workers int
	tasks   chan func()

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	launches atomic.Int64
}

// New starts a pool with the given number of workers. workers <= 0 uses
// GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan func(), workers),
	}
	// The caller always runs one share itself.
	for range workers - 1 {
		p.wg.Go(func() {
			for task := range p.tasks {
				task()
			}
		})
	}
	return p
}

// NumWorkers returns the worker count including the calling goroutine.
func (p *Pool) NumWorkers() int { return p.workers }

// Launches returns the number of parallel loops executed so far.
func (p *Pool) Launches() int64 { return p.launches.Load() }

// Close stops the workers. Launches after Close run inline.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// ParallelFor implements Executor.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	p.launches.Add(1)
	workers := min(p.workers, n)
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	numChunks := (n + chunk - 1) / chunk
	p.run(numChunks, func(c int) {
		start := c * chunk
		fn(start, min(start+chunk, n))
	})
}

// ParallelForAtomic implements Executor.
func (p *Pool) ParallelForAtomic(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	p.launches.Add(1)
	if p.workers <= 1 || n == 1 {
		for i := range n {
			fn(i)
		}
		return
	}
	p.run(n, fn)
}

// run executes body(i) for i in [0, numTasks). Helpers are offered the work
// without blocking; whatever they do not claim the caller does. A panic in
// any task is re-raised on the calling goroutine once all claimed tasks have
// finished.
func (p *Pool) run(numTasks int, body func(i int)) {
	var (
		next     atomic.Int64
		done     atomic.Int64
		panicked atomic.Pointer[panicValue]
		finished = make(chan struct{})
	)

	work := func() {
		for {
			i := int(next.Add(1) - 1)
			if i >= numTasks {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						panicked.CompareAndSwap(nil, &panicValue{r})
					}
					if done.Add(1) == int64(numTasks) {
						close(finished)
					}
				}()
				if panicked.Load() == nil {
					body(i)
				}
			}()
		}
	}

	p.mu.RLock()
	if !p.closed {
		for range min(p.workers, numTasks) - 1 {
			select {
			case p.tasks <- work:
			default:
			}
		}
	}
	p.mu.RUnlock()

	work()
	<-finished

	if pv := panicked.Load(); pv != nil {
		panic(pv.value)
	}
}

type panicValue struct{ value any }

// Inline is an Executor that runs every loop on the calling goroutine.
type Inline struct{}

// NumWorkers implements Executor.
func (Inline) NumWorkers() int { return 1 }

// ParallelFor implements Executor.
func (Inline) ParallelFor(n int, fn func(start, end int)) {
	if n > 0 {
		fn(0, n)
	}
}

// ParallelForAtomic implements Executor.
func (Inline) ParallelForAtomic(n int, fn func(i int)) {
	for i := range n {
		fn(i)
	}
}
