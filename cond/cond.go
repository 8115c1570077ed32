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

// Package cond implements a condition variable coupled to an explicit
// mutex argument at every wait call, in the style of vanadium/nsync's CV
// (rather than sync.Cond's single Locker bound at construction time): the
// mutex is a parameter of Wait/WaitWithDeadline to remind callers that the
// call has a side effect on it, and WaitWithDeadline takes an absolute
// deadline rather than a relative timeout for the same reason nsync's CV
// does - relative timeouts are seductive in trivial examples and wrong
// under retries.
//
// Unlike sync.Cond, waiters are tracked individually (one buffered channel
// apiece, queued in a list.List) rather than via a semaphore, because
// WaitWithDeadline needs to remove a specific waiter from the queue on
// timeout without disturbing the others.
package cond

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dijkstracula/go-ctk/ctkerr"
)

// Locker is satisfied by mutex.Mutex. It differs from sync.Locker only in
// that Lock/Unlock can fail - a mutex.Mutex reports misuse (uninitialized,
// unowned) as an error rather than panicking.
type Locker interface {
	Lock() error
	Unlock() error
}

// Cond is a condition variable. The zero value is not usable; construct
// with New.
type Cond struct {
	initialized atomic.Bool
	qmu         sync.Mutex
	waiters     *list.List // of chan struct{}, buffered 1
	waiterCount atomic.Int64
}

// New returns an initialized condition variable with no waiters.
func New() *Cond {
	c := &Cond{waiters: list.New()}
	c.initialized.Store(true)
	return c
}

func (c *Cond) checkInit(op string) error {
	if c == nil || !c.initialized.Load() {
		return ctkerr.Invalid(op)
	}
	return nil
}

func (c *Cond) enqueue() (*list.Element, chan struct{}) {
	ch := make(chan struct{}, 1)
	c.qmu.Lock()
	e := c.waiters.PushBack(ch)
	c.qmu.Unlock()
	c.waiterCount.Add(1)
	return e, ch
}

// dequeueIfPresent removes e from the waiter list if it is still there,
// reporting whether it found (and removed) it. If it returns false, a
// concurrent Signal/Broadcast has already claimed this waiter and a send
// on its channel is in flight (or has landed).
func (c *Cond) dequeueIfPresent(e *list.Element) bool {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	for el := c.waiters.Front(); el != nil; el = el.Next() {
		if el == e {
			c.waiters.Remove(el)
			return true
		}
	}
	return false
}

// Wait atomically releases mtx and suspends the caller; mtx is
// re-acquired before Wait returns, on every path except an Internal
// error, which means releasing or re-acquiring mtx itself failed and mtx
// is not held by the caller. The caller must own mtx
// on entry, and must re-check its predicate on return: this may be a
// spurious wakeup.
func (c *Cond) Wait(mtx Locker) error {
	const op = "Cond.Wait"
	if err := c.checkInit(op); err != nil {
		return err
	}
	e, ch := c.enqueue()
	if err := mtx.Unlock(); err != nil {
		c.dequeueIfPresent(e)
		c.waiterCount.Add(-1)
		return ctkerr.InternalErr(op, err)
	}
	<-ch
	c.waiterCount.Add(-1)
	if err := mtx.Lock(); err != nil {
		return ctkerr.InternalErr(op, err)
	}
	return nil
}

// WaitWithDeadline is Wait but returns a TimedOut error if deadline
// elapses first. mtx is re-acquired before returning on every path,
// including timeout, except an Internal error (as for Wait).
func (c *Cond) WaitWithDeadline(mtx Locker, deadline time.Time) error {
	const op = "Cond.WaitWithDeadline"
	if err := c.checkInit(op); err != nil {
		return err
	}
	e, ch := c.enqueue()
	if err := mtx.Unlock(); err != nil {
		c.dequeueIfPresent(e)
		c.waiterCount.Add(-1)
		return ctkerr.InternalErr(op, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var timedOut bool
	select {
	case <-ch:
	case <-timer.C:
		if c.dequeueIfPresent(e) {
			timedOut = true
		} else {
			// Already claimed by Signal/Broadcast: take its wakeup and
			// report success rather than a timeout.
			<-ch
		}
	}
	c.waiterCount.Add(-1)

	if err := mtx.Lock(); err != nil {
		return ctkerr.InternalErr(op, err)
	}
	if timedOut {
		return ctkerr.TimedOutErr(op)
	}
	return nil
}

// Signal wakes at most one waiter. No effect if there are none.
func (c *Cond) Signal() {
	c.qmu.Lock()
	e := c.waiters.Front()
	if e != nil {
		c.waiters.Remove(e)
	}
	c.qmu.Unlock()
	if e != nil {
		e.Value.(chan struct{}) <- struct{}{}
	}
}

// Broadcast wakes all current waiters, who then re-contend for the mutex
// each passed to its own Wait/WaitWithDeadline call.
func (c *Cond) Broadcast() {
	c.qmu.Lock()
	chans := make([]chan struct{}, 0, c.waiters.Len())
	for el := c.waiters.Front(); el != nil; el = el.Next() {
		chans = append(chans, el.Value.(chan struct{}))
	}
	c.waiters.Init()
	c.qmu.Unlock()
	for _, ch := range chans {
		ch <- struct{}{}
	}
}

// WaiterCount is an advisory, observable count of current waiters.
func (c *Cond) WaiterCount() int64 {
	if c == nil || !c.initialized.Load() {
		return 0
	}
	return c.waiterCount.Load()
}

// Dispose is idempotent. Calling it while any thread is waiting is a
// caller precondition violation, not a checked error.
func (c *Cond) Dispose() error {
	if c == nil || !c.initialized.Load() {
		return nil
	}
	c.initialized.Store(false)
	return nil
}
