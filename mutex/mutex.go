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

// Package mutex implements a blocking mutual-exclusion lock with a
// non-blocking try-acquire, in the style of the intention-lock state
// register in this repo's earlier ilock package: lock state lives in a
// single held/free flag, read and written only while an internal
// sync.Mutex is held, and a sync.Cond parks anyone who finds it held. A
// plain mutex has only two states rather than ilock's four.
package mutex

import (
	"sync"
	"sync/atomic"

	"github.com/dijkstracula/go-ctk/ctkerr"
	"github.com/dijkstracula/go-ctk/ctklog"
	"github.com/dijkstracula/go-ctk/internal/gid"
)

// Kind discriminates a plain mutex from a recursive one. Recursive
// mutexes are optional per spec; this backend does not implement one and
// reports Unsupported rather than silently emulating reentrancy.
type Kind int

const (
	Plain Kind = iota
	Recursive
)

// TryResult is the outcome of TryLock.
type TryResult int

const (
	Acquired TryResult = iota
	Busy
)

// Mutex is a blocking mutual-exclusion lock. The zero value is not usable;
// construct with New.
type Mutex struct {
	kind Kind

	mu          sync.Mutex // backing kernel object
	cond        *sync.Cond
	initialized atomic.Bool
	held        atomic.Bool // best-effort "locked" hint, racy by contract
	owner       atomic.Uint64
}

// New returns an initialized, unlocked Mutex of the given Kind.
func New(kind Kind) (*Mutex, error) {
	if kind == Recursive {
		return nil, ctkerr.UnsupportedErr("Mutex.New")
	}
	m := &Mutex{kind: kind}
	m.cond = sync.NewCond(&m.mu)
	m.initialized.Store(true)
	ctklog.Debug("mutex", "Mutex.New")
	return m, nil
}

func (m *Mutex) checkInit(op string) error {
	if m == nil || !m.initialized.Load() {
		return ctkerr.Invalid(op)
	}
	return nil
}

// Lock blocks until the mutex is acquired.
func (m *Mutex) Lock() error {
	const op = "Mutex.Lock"
	if err := m.checkInit(op); err != nil {
		return err
	}
	self := gid.Current()
	m.mu.Lock()
	for m.held.Load() {
		if self != 0 && m.owner.Load() == self {
			m.mu.Unlock()
			return ctkerr.DeadlockErr(op)
		}
		m.cond.Wait()
	}
	m.held.Store(true)
	m.owner.Store(self)
	m.mu.Unlock()
	return nil
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() (TryResult, error) {
	const op = "Mutex.TryLock"
	if err := m.checkInit(op); err != nil {
		return Busy, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held.Load() {
		return Busy, nil
	}
	m.held.Store(true)
	m.owner.Store(gid.Current())
	return Acquired, nil
}

// Unlock releases the mutex. Returns NotPermitted if the calling
// goroutine is not the recorded owner and ownership is detectable.
func (m *Mutex) Unlock() error {
	const op = "Mutex.Unlock"
	if err := m.checkInit(op); err != nil {
		return err
	}
	self := gid.Current()
	m.mu.Lock()
	if !m.held.Load() {
		m.mu.Unlock()
		return ctkerr.NotPermittedErr(op)
	}
	if self != 0 && m.owner.Load() != 0 && m.owner.Load() != self {
		m.mu.Unlock()
		return ctkerr.NotPermittedErr(op)
	}
	m.held.Store(false)
	m.owner.Store(0)
	m.mu.Unlock()
	m.cond.Signal()
	return nil
}

// IsLocked is a best-effort, advisory, possibly-racy observation of the
// locked hint.
func (m *Mutex) IsLocked() bool {
	if m == nil || !m.initialized.Load() {
		return false
	}
	return m.held.Load()
}

// Dispose is idempotent and safe on a zeroed or already-disposed handle.
// Calling it while the mutex is held by any thread is a caller precondition
// violation (undefined behavior per spec), not a checked error.
func (m *Mutex) Dispose() error {
	if m == nil || !m.initialized.Load() {
		return nil
	}
	m.initialized.Store(false)
	m.held.Store(false)
	m.owner.Store(0)
	ctklog.Debug("mutex", "Mutex.Dispose")
	return nil
}

// locker adapts Mutex to sync.Locker so it composes with sync.Cond and
// any stdlib API expecting one. Panics translate Lock/Unlock errors,
// which only occur on a misused (uninitialized/unowned) handle - the same
// contract sync.Mutex itself gives for a double-unlock.
type locker struct{ m *Mutex }

func (l locker) Lock() {
	if err := l.m.Lock(); err != nil {
		panic(err)
	}
}

func (l locker) Unlock() {
	if err := l.m.Unlock(); err != nil {
		panic(err)
	}
}

// AsLocker exposes m as a sync.Locker, for composing with components (cond,
// barrier) that are specified in terms of a generic lockable mutex.
func (m *Mutex) AsLocker() sync.Locker { return locker{m} }
