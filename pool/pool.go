// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package pool implements a fixed-size worker pool over a strictly FIFO
// task queue, built directly atop mutex.Mutex, cond.Cond and thread.Thread
// rather than goroutines-plus-channels, so the queue/signal/shutdown
// protocol is exactly the hand-rolled one spec'd (acquire queue mutex,
// push/pop a linked list, signal one waiter) instead of whatever
// scheduling a channel-backed pool would hide.
package pool

import (
	"time"

	"github.com/dijkstracula/go-ctk/cond"
	"github.com/dijkstracula/go-ctk/ctkerr"
	"github.com/dijkstracula/go-ctk/ctklog"
	"github.com/dijkstracula/go-ctk/mutex"
	"github.com/dijkstracula/go-ctk/thread"
)

// Task is a unit of work: a function and its borrowed argument, matching
// the (function, argument) pair C5's data model names. Task functions
// must not panic; a panicking task is a caller bug and is this package's
// responsibility to not convert into a crashed worker (see the recover
// wrapper in the worker loop).
type Task func(arg any)

type taskNode struct {
	fn   Task
	arg  any
	next *taskNode
}

// Pool is a fixed-worker-count FIFO task queue.
type Pool struct {
	mu *mutex.Mutex
	cv *cond.Cond

	head, tail *taskNode
	count      int
	stop       bool

	workers []*thread.Thread[int, struct{}]
}

// New starts n workers, each blocked waiting for the first task. n <= 0
// is rejected with InvalidArgument.
func New(n int) (*Pool, error) {
	const op = "Pool.New"
	if n <= 0 {
		return nil, ctkerr.Invalid(op)
	}
	m, err := mutex.New(mutex.Plain)
	if err != nil {
		return nil, ctkerr.New(op, ctkerr.KindOf(err), err)
	}
	p := &Pool{mu: m, cv: cond.New(), workers: make([]*thread.Thread[int, struct{}], n)}
	for i := 0; i < n; i++ {
		w := thread.New[int, struct{}]()
		if err := w.Start(p.workerLoop, i); err != nil {
			return nil, ctkerr.New(op, ctkerr.KindOf(err), err)
		}
		p.workers[i] = w
	}
	ctklog.Debug("pool", op, "workers", n)
	return p, nil
}

// Submit appends a task at the tail of the queue and wakes one worker.
// Fails with Cancelled once the pool is shutting down or shut down.
func (p *Pool) Submit(fn Task, arg any) error {
	const op = "Pool.Submit"
	if fn == nil {
		return ctkerr.Invalid(op)
	}
	if err := p.mu.Lock(); err != nil {
		if ctkerr.Is(err, ctkerr.InvalidArgument) {
			// Only Destroy disposes the queue mutex.
			return ctkerr.CancelledErr(op)
		}
		return ctkerr.InternalErr(op, err)
	}
	defer p.mu.Unlock()

	if p.stop {
		return ctkerr.CancelledErr(op)
	}
	node := &taskNode{fn: fn, arg: arg}
	if p.tail == nil {
		p.head, p.tail = node, node
	} else {
		p.tail.next = node
		p.tail = node
	}
	p.count++
	p.cv.Signal()
	return nil
}

// workerLoop is the trampoline body run by every worker thread.
func (p *Pool) workerLoop(_ int) struct{} {
	for {
		if err := p.mu.Lock(); err != nil {
			return struct{}{}
		}
		for p.head == nil && !p.stop {
			if err := p.cv.Wait(p.mu); err != nil {
				_ = p.mu.Unlock()
				return struct{}{}
			}
		}
		if p.stop {
			_ = p.mu.Unlock()
			return struct{}{}
		}
		node := p.head
		p.head = node.next
		if p.head == nil {
			p.tail = nil
		}
		p.count--
		_ = p.mu.Unlock()

		p.runTask(node)
	}
}

// runTask invokes a task's function, converting a panic into a logged
// event rather than a crashed worker - tasks may not panic per contract,
// but a worker that dies silently on a caller bug is worse than one that
// logs and keeps going.
func (p *Pool) runTask(node *taskNode) {
	defer func() {
		if r := recover(); r != nil {
			ctklog.Error("pool", "Pool.runTask", ctkerr.InternalErr("Pool.runTask", nil), "panic", r)
		}
	}()
	node.fn(node.arg)
}

// Wait quiesces: it polls the queue count until it reaches zero. It does
// NOT wait for in-flight task execution to finish, only for the queue to
// drain - workers run tasks outside the lock and have no per-task
// completion signal, so polling is the literal contract here, not a
// stand-in for something better.
func (p *Pool) Wait() error {
	const op = "Pool.Wait"
	for {
		if err := p.mu.Lock(); err != nil {
			return ctkerr.InternalErr(op, err)
		}
		n := p.count
		stopped := p.stop
		_ = p.mu.Unlock()
		if n == 0 || stopped {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// Destroy sets the stop flag, wakes every worker, joins them all, and
// frees any remaining unexecuted tasks.
func (p *Pool) Destroy() error {
	const op = "Pool.Destroy"
	if err := p.mu.Lock(); err != nil {
		return ctkerr.InternalErr(op, err)
	}
	p.stop = true
	p.cv.Broadcast()
	_ = p.mu.Unlock()

	for _, w := range p.workers {
		if _, err := w.Join(); err != nil {
			return ctkerr.New(op, ctkerr.KindOf(err), err)
		}
		if err := w.Dispose(); err != nil {
			return err
		}
	}

	if err := p.mu.Lock(); err != nil {
		return ctkerr.InternalErr(op, err)
	}
	p.head, p.tail, p.count = nil, nil, 0
	_ = p.mu.Unlock()

	if err := p.cv.Dispose(); err != nil {
		return err
	}
	if err := p.mu.Dispose(); err != nil {
		return err
	}
	ctklog.Debug("pool", op)
	return nil
}

// Len is an advisory, observable count of queued (not yet dequeued)
// tasks.
func (p *Pool) Len() int {
	if err := p.mu.Lock(); err != nil {
		return 0
	}
	defer p.mu.Unlock()
	return p.count
}
