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

// Package thread implements a preemptive OS-thread lifecycle on top of a
// goroutine pinned, for its whole life, to one OS thread via
// runtime.LockOSThread. Go gives no portable API to create or join a raw
// OS thread directly; pinning is the closest a goroutine gets to owning
// one exclusively, and it is what lets this package hand back a
// meaningful per-thread identity (see internal/gid) the way the real
// backend would hand back a tid.
package thread

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dijkstracula/go-ctk/ctkerr"
	"github.com/dijkstracula/go-ctk/ctklog"
	"github.com/dijkstracula/go-ctk/internal/gid"
)

// State is a Thread's position in its lifecycle state machine.
type State int32

const (
	Fresh State = iota
	Started
	Detached
	Finished
	Joined
	Disposed
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Started:
		return "started"
	case Detached:
		return "detached"
	case Finished:
		return "finished"
	case Joined:
		return "joined"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Thread is a handle to one OS-thread-backed execution of entry(arg). A
// is the argument type, T the return type; both are borrowed/owned the
// same way a C thread's void* would be, but without the type erasure -
// this is exactly the generic-parameter re-architecture spec.md §9 calls
// for.
type Thread[A any, T any] struct {
	state atomic.Int32
	id    atomic.Uint64

	// everDetached is sticky: once true, it stays true even after the
	// worker's trampoline later flips state back to Finished, so Join and
	// Dispose can still tell "this handle was detached" after the fact.
	everDetached atomic.Bool
	cancel       atomic.Bool

	mu          sync.Mutex // guards the fields below
	startedAt   time.Time
	finishedAt  time.Time
	result      T

	done chan struct{} // closed exactly once, when Finished is reached
}

// New returns a handle in the Fresh state.
func New[A any, T any]() *Thread[A, T] {
	t := &Thread[A, T]{done: make(chan struct{})}
	t.state.Store(int32(Fresh))
	return t
}

// State returns the handle's current lifecycle state.
func (t *Thread[A, T]) State() State { return State(t.state.Load()) }

// ID returns the process-local, possibly-reused thread identifier,
// populated once the trampoline has started running. Empty before then.
func (t *Thread[A, T]) ID() string {
	if id := t.id.Load(); id != 0 {
		return fmt.Sprintf("t%d", id)
	}
	return ""
}

// Start launches entry(arg) on a new OS-thread-pinned goroutine. Fails
// with Busy if the handle is not Fresh, InvalidArgument if entry is nil.
func (t *Thread[A, T]) Start(entry func(A) T, arg A) error {
	const op = "Thread.Start"
	if entry == nil {
		return ctkerr.Invalid(op)
	}
	if !t.state.CompareAndSwap(int32(Fresh), int32(Started)) {
		return ctkerr.BusyErr(op)
	}
	go t.trampoline(entry, arg)
	return nil
}

// trampoline records the thread id and start time, runs entry, stores the
// result, and marks Finished - the bookkeeping wrapper spec.md §4.4
// requires. The Fresh -> Started transition is made by Start itself.
func (t *Thread[A, T]) trampoline(entry func(A) T, arg A) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t.id.Store(gid.Current())
	t.mu.Lock()
	t.startedAt = time.Now()
	t.mu.Unlock()
	ctklog.Debug("thread", "Thread.trampoline.start", "id", t.ID())

	result := entry(arg)

	t.mu.Lock()
	t.result = result
	t.finishedAt = time.Now()
	t.mu.Unlock()

	for {
		cur := State(t.state.Load())
		if cur == Started && t.state.CompareAndSwap(int32(Started), int32(Finished)) {
			break
		}
		if cur == Detached && t.state.CompareAndSwap(int32(Detached), int32(Finished)) {
			break
		}
		if cur == Finished {
			break
		}
	}
	close(t.done)
	ctklog.Debug("thread", "Thread.trampoline.finish", "id", t.ID())
}

// RequestCancel sets the cooperative-cancel flag. The engine performs no
// forced termination; entry must poll CancelRequested at safe points.
func (t *Thread[A, T]) RequestCancel() { t.cancel.Store(true) }

// CancelRequested reports whether RequestCancel has been called.
func (t *Thread[A, T]) CancelRequested() bool { return t.cancel.Load() }

// Join blocks until the target is Finished, transfers the stored result,
// and transitions to Joined. Join is once-only and mutually exclusive
// with Detach.
func (t *Thread[A, T]) Join() (T, error) {
	const op = "Thread.Join"
	var zero T

	if t.everDetached.Load() {
		return zero, ctkerr.DetachedErr(op)
	}
	switch State(t.state.Load()) {
	case Fresh:
		return zero, ctkerr.NotStartedErr(op)
	case Disposed:
		return zero, ctkerr.Invalid(op)
	case Joined:
		return zero, ctkerr.DetachedErr(op)
	}

	<-t.done

	if t.everDetached.Load() {
		return zero, ctkerr.DetachedErr(op)
	}
	if !t.state.CompareAndSwap(int32(Finished), int32(Joined)) {
		return zero, ctkerr.DetachedErr(op)
	}

	t.mu.Lock()
	res := t.result
	t.mu.Unlock()
	return res, nil
}

// Detach marks the target non-joinable; teardown ownership transfers to
// the runtime (in practice: to the Go garbage collector, once the
// goroutine returns). Detach is once-only and mutually exclusive with
// Join.
func (t *Thread[A, T]) Detach() error {
	const op = "Thread.Detach"
	if t.everDetached.Load() {
		return ctkerr.DetachedErr(op)
	}
	for {
		cur := State(t.state.Load())
		switch cur {
		case Fresh:
			return ctkerr.NotStartedErr(op)
		case Joined:
			return ctkerr.DetachedErr(op)
		case Disposed:
			return ctkerr.Invalid(op)
		case Started:
			if t.state.CompareAndSwap(int32(Started), int32(Detached)) {
				t.everDetached.Store(true)
				return nil
			}
		case Finished:
			if t.state.CompareAndSwap(int32(Finished), int32(Detached)) {
				t.everDetached.Store(true)
				return nil
			}
		case Detached:
			return ctkerr.DetachedErr(op)
		}
	}
}

// Dispose is safe on a Fresh handle, a Joined handle, a Finished handle
// (detached or not - once Finished there is nothing left to leak), and is
// idempotent. On a Started-but-not-yet-finished handle it blocks until
// Finished, per the recommended contract in spec.md §9 Open Question 3.
func (t *Thread[A, T]) Dispose() error {
	const op = "Thread.Dispose"
	cur := State(t.state.Load())
	if cur == Disposed {
		return nil
	}
	if cur == Fresh {
		if t.state.CompareAndSwap(int32(Fresh), int32(Disposed)) {
			return nil
		}
		// lost the race to a concurrent Start; fall through and wait.
	}

	<-t.done

	for {
		cur = State(t.state.Load())
		if cur == Disposed {
			return nil
		}
		if t.state.CompareAndSwap(int32(cur), int32(Disposed)) {
			ctklog.Debug("thread", op, "id", t.ID())
			return nil
		}
	}
}

// StartedAt and FinishedAt return the zero time.Time if not yet recorded.
func (t *Thread[A, T]) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

func (t *Thread[A, T]) FinishedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}

// Equal reports whether t and other refer to the same live OS thread.
// Identity of a finished or disposed handle is undefined, per spec.
func (t *Thread[A, T]) Equal(other *Thread[A, T]) bool { return t == other }

// Yield is a platform-independent hint that the calling goroutine is
// willing to let others run.
func Yield() { runtime.Gosched() }

// Sleep suspends the calling goroutine for at least d. Go's time.Sleep
// cannot be interrupted by signal delivery the way a POSIX nanosleep can,
// so there is no "restart against remaining budget" to implement; this
// wrapper exists to document that fact at the call site, not to change
// behavior.
func Sleep(d time.Duration) { time.Sleep(d) }
