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

// Package fiber implements cooperative, non-preemptive user-space
// coroutines on top of goroutines rather than hand-rolled stack/register
// contexts: Go gives no portable way to allocate a raw stack and swap
// %rsp/%rbp (or their platform equivalents) from user code, so each fiber
// is backed by its own goroutine that blocks on an unbuffered channel
// until resumed, and "context switch" is a channel handoff rather than an
// assembly trampoline.
//
// This re-architecture has one honest divergence from the original
// per-OS-thread model: a resumed fiber's backing goroutine is not
// actually pinned to the same kernel thread that established the group,
// because nothing ever runs two fibers of one group concurrently (the
// channel handoff is a strict baton pass) there is no safety hazard in
// that divergence, but it means "same OS thread" is enforced as "member
// of the same fiber group's known goroutine-id set" rather than literally
// the same kernel thread id throughout. Every goroutine that ever runs as
// part of a group locks itself to whatever real OS thread it lands on for
// its own lifetime, and its goroutine id is added to the group's set when
// that backing goroutine starts (for the main fiber, when EstablishMain
// runs) - so a resume issued from a goroutine that was never part of this
// group's lineage is still correctly rejected.
package fiber

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dijkstracula/go-ctk/ctkerr"
	"github.com/dijkstracula/go-ctk/ctklog"
	"github.com/dijkstracula/go-ctk/internal/gid"
)

const defaultStackSize = 64 * 1024

// group is the per-OS-thread fiber scheduler state: which fiber is
// current, and which goroutine ids belong to this lineage.
type group struct {
	mu        sync.Mutex
	threadIDs map[uint64]struct{}
	current   atomic.Pointer[Fiber]
}

func (g *group) addThread(id uint64) {
	g.mu.Lock()
	g.threadIDs[id] = struct{}{}
	g.mu.Unlock()
}

func (g *group) ownsThread(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.threadIDs[id]
	return ok
}

var (
	registryMu sync.Mutex
	registry   = map[uint64]*group{} // establishing gid -> group
)

func lookupGroup(callerGid uint64) *group {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, g := range registry {
		if g.ownsThreadLocked(callerGid) {
			return g
		}
	}
	return nil
}

func (g *group) ownsThreadLocked(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.threadIDs[id]
	return ok
}

// Fiber is a cooperative coroutine handle.
type Fiber struct {
	group *group

	isMain    bool
	activate  chan struct{} // receiving means "you are now running"
	killCh    chan struct{} // closed to unblock a never-resumed fiber's backing goroutine
	entry     func(arg any)
	arg       any
	stackSize int

	finished    atomic.Bool
	everResumed atomic.Bool
	disposed    atomic.Bool
	link        atomic.Pointer[Fiber]
}

// EstablishMain converts the calling goroutine into the main fiber of a
// new group, pinning it to its current OS thread for the group's entire
// lifetime. One-time per OS thread; a second call on the same thread
// fails with Busy.
func EstablishMain() (*Fiber, error) {
	const op = "Fiber.EstablishMain"
	runtime.LockOSThread()
	self := gid.Current()

	registryMu.Lock()
	if g, ok := registry[self]; ok && g != nil {
		registryMu.Unlock()
		runtime.UnlockOSThread()
		return nil, ctkerr.BusyErr(op)
	}
	g := &group{threadIDs: map[uint64]struct{}{}}
	registry[self] = g
	registryMu.Unlock()

	g.addThread(self)
	main := &Fiber{group: g, isMain: true, activate: make(chan struct{})}
	main.everResumed.Store(true)
	g.current.Store(main)
	ctklog.Debug("fiber", op)
	return main, nil
}

// Create allocates a new fiber bound to the calling OS thread's group.
// stackSize is advisory (Go goroutine stacks grow dynamically); the
// parameter is accepted and recorded only to keep the create(entry, arg,
// stack_size) shape callers expect from the original C-style API.
func Create(entry func(arg any), arg any, stackSize ...int) (*Fiber, error) {
	const op = "Fiber.Create"
	if entry == nil {
		return nil, ctkerr.Invalid(op)
	}
	g := lookupGroup(gid.Current())
	if g == nil {
		return nil, ctkerr.NotStartedErr(op)
	}
	size := defaultStackSize
	if len(stackSize) > 0 && stackSize[0] > 0 {
		size = stackSize[0]
	}
	f := &Fiber{
		group:     g,
		activate:  make(chan struct{}),
		killCh:    make(chan struct{}),
		entry:     entry,
		arg:       arg,
		stackSize: size,
	}
	go f.run()
	ctklog.Debug("fiber", op, "stackSize", size)
	return f, nil
}

// run is the trampoline body for every non-main fiber.
func (f *Fiber) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	f.group.addThread(gid.Current())

	select {
	case <-f.activate:
	case <-f.killCh:
		return
	}

	f.entry(f.arg)

	f.finished.Store(true)
	link := f.link.Load()
	f.group.current.Store(link)
	if link != nil {
		link.activate <- struct{}{}
	}
	// link == nil: platform-defined per spec, but finished is already
	// recorded and this goroutine simply exits rather than terminating
	// the process.
}

// Resume transfers control from the calling fiber to the target, which
// must belong to the same group as the caller (i.e. the same OS thread
// lineage). The caller's link is not touched; the target's link is set
// to the caller so that, when the target later finishes or yields back,
// control returns here.
func (f *Fiber) Resume() error {
	const op = "Fiber.Resume"
	if f == nil || f.disposed.Load() {
		return ctkerr.Invalid(op)
	}
	if f.finished.Load() {
		return ctkerr.FinishedErr(op)
	}
	g := f.group
	self := gid.Current()
	if !g.ownsThread(self) {
		return ctkerr.Invalid(op)
	}
	from := g.current.Load()
	if from == f {
		return ctkerr.Invalid(op)
	}

	f.link.Store(from)
	f.everResumed.Store(true)
	g.current.Store(f)

	f.activate <- struct{}{}
	<-from.activate
	return nil
}

// YieldTo is an alias for Resume: the original model names the same
// transfer-of-control operation "resume" when scheduler-initiated and
// "yield-to" when invoked cooperatively from inside a running fiber. The
// mechanics are identical.
func (f *Fiber) YieldTo() error { return f.Resume() }

// IsFinished reports whether the fiber's entry function has returned.
func (f *Fiber) IsFinished() bool { return f.finished.Load() }

// IsCurrent reports whether f is the fiber currently running on its
// group's OS thread.
func (f *Fiber) IsCurrent() bool {
	if f == nil || f.group == nil {
		return false
	}
	return f.group.current.Load() == f
}

// Dispose frees a non-current, finished (or never-resumed) fiber.
// Disposing the current fiber is an error.
func (f *Fiber) Dispose() error {
	const op = "Fiber.Dispose"
	if f == nil || f.disposed.Load() {
		return nil
	}
	if f.IsCurrent() {
		return ctkerr.Invalid(op)
	}
	if f.everResumed.Load() && !f.finished.Load() {
		return ctkerr.BusyErr(op)
	}
	if !f.everResumed.Load() && !f.isMain {
		close(f.killCh)
	}
	f.disposed.Store(true)
	ctklog.Debug("fiber", op)
	return nil
}
